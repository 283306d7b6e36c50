package embed

import (
	"errors"
	"fmt"
	"io"
)

const (
	// MaxAPIBytes caps JSON API responses.
	MaxAPIBytes int64 = 1 << 20
	// MaxPageBytes caps how much of an HTML page is scanned for metadata.
	MaxPageBytes int64 = 512 << 10
)

// ErrResponseTooLarge indicates a remote body exceeded its cap.
var ErrResponseTooLarge = errors.New("response too large")

// ReadAllWithLimit reads from reader and rejects payloads larger than maxBytes.
func ReadAllWithLimit(reader io.Reader, maxBytes int64) ([]byte, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max bytes must be greater than 0")
	}
	limited := &io.LimitedReader{
		R: reader,
		N: maxBytes + 1,
	}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrResponseTooLarge, maxBytes)
	}
	return data, nil
}
