// Package processor turns raw message text into the display body, previews
// and card list stored on a message.
package processor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/memohai/forum/internal/card"
)

type Processor struct {
	smileys  SmileySource
	expander Expander
	limits   Limits
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates a Processor. A nil expander renders every URL as a plain
// link; a nil smiley source disables smiley replacement.
func New(log *slog.Logger, smileys SmileySource, expander Expander, limits Limits) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		smileys:  smileys,
		expander: expander,
		limits:   limits.withDefaults(),
		validate: validator.New(),
		logger:   log.With(slog.String("service", "processor")),
	}
}

// Limits returns the effective limits.
func (p *Processor) Limits() Limits { return p.limits }

// Process runs the pipeline over raw. Validation failures are returned as
// *ValidationError with Result.Errors set; URL handler failures never fail
// the message.
func (p *Processor) Process(ctx context.Context, raw string) (Result, error) {
	body, err := p.sanitize(raw)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return Result{Errors: verr.Fields}, err
		}
		return Result{}, err
	}

	// One snapshot per message so a reload cannot mix two smiley sets.
	snap := p.snapshot()

	nodes := tokenize(body)
	if !hasVisibleText(nodes) {
		verr := invalid("required", "body is required")
		return Result{Errors: verr.Fields}, verr
	}
	nodes = p.replaceURLs(ctx, nodes)
	if err := ctx.Err(); err != nil {
		// Expansions were cut short; the output would be degraded.
		return Result{}, err
	}
	nodes = replaceSmileys(nodes, snap)

	res := Result{
		DisplayBody:  render(nodes),
		ShortPreview: shortPreview(nodes, p.limits.ShortPreviewRunes),
		LongPreview:  longPreview(nodes, p.limits.LongPreviewRunes),
		Cards:        collectCards(nodes),
	}
	p.logger.Debug("message processed",
		slog.Int("body_bytes", len(res.DisplayBody)),
		slog.Int("cards", len(res.Cards)),
	)
	return res, nil
}

func collectCards(nodes []node) []card.Card {
	cards := []card.Card{}
	seen := map[string]struct{}{}
	for _, n := range nodes {
		if n.kind != embedNode {
			continue
		}
		if _, ok := seen[n.card.ID]; ok {
			continue
		}
		seen[n.card.ID] = struct{}{}
		cards = append(cards, n.card)
	}
	return cards
}
