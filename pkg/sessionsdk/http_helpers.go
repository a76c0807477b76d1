package sessionsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an error response is read for a message.
const maxErrorBody = 64 << 10

// url builds a complete URL by appending the path to the base URL.
func (c *Client) url(path string) string {
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}

// NewRequest builds a request against the configured base URL. A JSON body
// is encoded when body is not nil; the request can always be resent.
func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("sessionsdk: encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), rd)
	if err != nil {
		return nil, fmt.Errorf("sessionsdk: create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// postIssuer sends an unauthenticated JSON request to the issuer with the
// plain HTTP client. A non-empty bearer is attached as is.
func (c *Client) postIssuer(ctx context.Context, op, path, bearer string, in, out any, fallback string) error {
	req, err := c.NewRequest(ctx, http.MethodPost, path, in)
	if err != nil {
		return err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.plain.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}

	return decodeJSON(op, resp, out, fallback)
}

// postAuthorized sends a JSON request through the session transport, so it
// gets the same proactive refresh and retry as any business call.
func (c *Client) postAuthorized(ctx context.Context, op, path string, in, out any, fallback string) error {
	req, err := c.NewRequest(ctx, http.MethodPost, path, in)
	if err != nil {
		return err
	}

	resp, err := c.authorized.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}

	return decodeJSON(op, resp, out, fallback)
}

// decodeJSON decodes a 2xx response into target, which may be nil. Any
// other status becomes an *AuthError.
func decodeJSON(op string, resp *http.Response, target any, fallback string) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return parseErrorResponse(op, resp, body, fallback)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("read response body: %w", err)}
	}

	if target == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, target); err != nil {
		return &AuthError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s: malformed response", fallback),
		}
	}

	return nil
}

// drain discards what is left of a response body so the connection can be
// reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
