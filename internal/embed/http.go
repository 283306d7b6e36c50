package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

var publicClient = NewPublicClient()

// defaultClient returns c, or a client restricted to public addresses.
func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return publicClient
}

func getBody(ctx context.Context, client *http.Client, target string, headers map[string]string, maxBytes int64) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.Header, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}
	body, err := ReadAllWithLimit(resp.Body, maxBytes)
	if err != nil {
		return nil, resp.Header, err
	}
	return body, resp.Header, nil
}

func getJSON(ctx context.Context, client *http.Client, target string, headers map[string]string, out any) error {
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Accept"] = "application/json"
	body, _, err := getBody(ctx, client, target, headers, MaxAPIBytes)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return nil
}
