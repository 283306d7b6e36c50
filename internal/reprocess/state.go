package reprocess

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/memohai/forum/internal/message"
)

// MaxPageSize bounds the page size a state may carry.
const MaxPageSize = 1000

var (
	// ErrInvalidState rejects tampered, malformed or out-of-range states.
	ErrInvalidState = errors.New("invalid continuation state")
	// ErrUnknownStage is returned by Start for an unsupported stage.
	ErrUnknownStage = errors.New("unknown stage")
)

// Stage names a batch operation.
type Stage string

const (
	// StageProcessMessages processes messages that were never processed.
	StageProcessMessages Stage = "process-messages"
	// StageReprocessMessages re-derives every non-deleted message.
	StageReprocessMessages Stage = "reprocess-messages"
)

// Stages lists the supported stages.
func Stages() []Stage {
	return []Stage{StageProcessMessages, StageReprocessMessages}
}

func (s Stage) Valid() bool {
	return s == StageProcessMessages || s == StageReprocessMessages
}

func (s Stage) filter(maxID int64) message.Filter {
	return message.Filter{Unprocessed: s == StageProcessMessages, MaxID: maxID}
}

// State is the progress of one batch run. It is handed to the caller as an
// opaque signed token and carries everything needed to resume.
type State struct {
	Stage       Stage     `json:"stage"`
	CurrentStep int       `json:"current_step"`
	TotalSteps  int       `json:"total_steps"`
	PageSize    int       `json:"page_size"`
	MaxID       int64     `json:"max_id"`
	Cursor      int64     `json:"cursor"`
	StartedAt   time.Time `json:"started_at"`
}

// Complete reports whether every page has been processed. A plan with no
// steps is complete from the start.
func (s State) Complete() bool { return s.TotalSteps == 0 || s.CurrentStep >= s.TotalSteps }

func (s State) validate() error {
	switch {
	case !s.Stage.Valid():
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidState, s.Stage)
	case s.PageSize <= 0 || s.PageSize > MaxPageSize:
		return fmt.Errorf("%w: page size %d", ErrInvalidState, s.PageSize)
	case s.TotalSteps < 0 || s.CurrentStep < -1 || s.CurrentStep > s.TotalSteps:
		return fmt.Errorf("%w: step %d of %d", ErrInvalidState, s.CurrentStep, s.TotalSteps)
	case s.MaxID < 0 || s.Cursor < 0 || (s.TotalSteps > 0 && s.MaxID == 0):
		return fmt.Errorf("%w: id range", ErrInvalidState)
	case s.CurrentStep <= 0 && s.Cursor != 0:
		return fmt.Errorf("%w: cursor before first page", ErrInvalidState)
	}
	return nil
}

// Codec signs states with a keyed BLAKE2b-256 MAC. The token is
// base64url(json) "." base64url(mac).
type Codec struct {
	key []byte
}

// NewCodec derives the MAC key from secret.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("state secret is required")
	}
	sum := blake2b.Sum256(secret)
	return &Codec{key: sum[:]}, nil
}

func (c *Codec) Encode(s State) (string, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	mac, err := c.mac(payload)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(mac), nil
}

// Decode verifies and parses a token. Every failure is ErrInvalidState.
func (c *Codec) Decode(token string) (State, error) {
	encPayload, encMAC, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok {
		return State{}, fmt.Errorf("%w: malformed token", ErrInvalidState)
	}
	payload, err := base64.RawURLEncoding.DecodeString(encPayload)
	if err != nil {
		return State{}, fmt.Errorf("%w: malformed payload", ErrInvalidState)
	}
	gotMAC, err := base64.RawURLEncoding.DecodeString(encMAC)
	if err != nil {
		return State{}, fmt.Errorf("%w: malformed signature", ErrInvalidState)
	}
	wantMAC, err := c.mac(payload)
	if err != nil {
		return State{}, err
	}
	if subtle.ConstantTimeCompare(gotMAC, wantMAC) != 1 {
		return State{}, fmt.Errorf("%w: signature mismatch", ErrInvalidState)
	}

	var s State
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if err := s.validate(); err != nil {
		return State{}, err
	}
	return s, nil
}

func (c *Codec) mac(payload []byte) ([]byte, error) {
	h, err := blake2b.New256(c.key)
	if err != nil {
		return nil, err
	}
	h.Write(payload)
	return h.Sum(nil), nil
}
