package processor

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/memohai/forum/internal/embed"
)

// maxParallelExpansions bounds concurrent handler calls for one message.
const maxParallelExpansions = 4

var urlPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"'\x60]+`)

type urlSpan struct {
	start, end int
	raw        string
}

// findURLs returns URL-like spans of text with trailing punctuation removed.
func findURLs(text string) []urlSpan {
	var spans []urlSpan
	for _, loc := range urlPattern.FindAllStringIndex(text, -1) {
		raw := trimURL(text[loc[0]:loc[1]])
		if _, err := embed.Normalize(raw); err != nil {
			continue
		}
		spans = append(spans, urlSpan{start: loc[0], end: loc[0] + len(raw), raw: raw})
	}
	return spans
}

// trimURL drops sentence punctuation and unbalanced closing brackets.
func trimURL(s string) string {
	for s != "" {
		last := s[len(s)-1]
		switch {
		case strings.IndexByte(".,;:!?*", last) >= 0:
		case last == ')' && strings.Count(s, ")") > strings.Count(s, "("):
		case last == ']' && strings.Count(s, "]") > strings.Count(s, "["):
		default:
			return s
		}
		s = s[:len(s)-1]
	}
	return s
}

// replaceURLs splits text nodes around detected URLs and turns each URL into
// an embed or a plain link. Distinct URLs are expanded concurrently; the
// result does not depend on completion order.
func (p *Processor) replaceURLs(ctx context.Context, nodes []node) []node {
	var order []string
	spans := make([][]urlSpan, len(nodes))
	for i, n := range nodes {
		if n.kind != textNode || n.literal {
			continue
		}
		spans[i] = findURLs(n.text)
		for _, s := range spans[i] {
			order = append(order, s.raw)
		}
	}
	if len(order) == 0 {
		return nodes
	}

	results := p.expandAll(ctx, order)
	out := make([]node, 0, len(nodes)+2*len(order))
	for i, n := range nodes {
		if len(spans[i]) == 0 {
			out = append(out, n)
			continue
		}
		pos := 0
		for _, s := range spans[i] {
			if s.start > pos {
				out = append(out, node{kind: textNode, text: n.text[pos:s.start]})
			}
			out = append(out, linkFor(s.raw, results[s.raw]))
			pos = s.end
		}
		if pos < len(n.text) {
			out = append(out, node{kind: textNode, text: n.text[pos:]})
		}
	}
	return out
}

func (p *Processor) expandAll(ctx context.Context, raws []string) map[string]embed.Result {
	unique := make([]string, 0, len(raws))
	results := make(map[string]embed.Result, len(raws))
	for _, raw := range raws {
		if _, ok := results[raw]; ok {
			continue
		}
		results[raw] = embed.Result{}
		unique = append(unique, raw)
	}

	expanded := make([]embed.Result, len(unique))
	if p.expander == nil {
		for i, raw := range unique {
			expanded[i] = plainResult(raw)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxParallelExpansions)
		for i, raw := range unique {
			g.Go(func() error {
				expanded[i] = p.expander.Expand(gctx, raw)
				return nil
			})
		}
		_ = g.Wait()
	}
	for i, raw := range unique {
		results[raw] = expanded[i]
	}
	return results
}

func plainResult(raw string) embed.Result {
	u, err := embed.Normalize(raw)
	if err != nil {
		return embed.Result{URL: raw}
	}
	return embed.Result{URL: u.String()}
}

func linkFor(raw string, res embed.Result) node {
	if res.Embedded {
		return node{kind: embedNode, text: raw, href: res.Card.URL, card: res.Card}
	}
	href := res.URL
	if href == "" || href == raw {
		href = plainResult(raw).URL
	}
	return node{kind: linkNode, text: raw, href: href}
}
