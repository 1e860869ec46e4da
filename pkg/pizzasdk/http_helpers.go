package pizzasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// validate checks request bodies before they leave the process.
var validate = validator.New(validator.WithRequiredStructEnabled())

// url builds a complete URL by appending the path to the base URL.
func (c *Client) url(path string) string {
	return c.BaseURL + path
}

// doRequest performs an HTTP request with the Client's HTTP client.
// This is for unauthenticated requests (no Authorization header).
func (c *Client) doRequest(
	ctx context.Context,
	method, path string,
	body []byte,
	headers map[string]string,
) (*http.Response, error) {
	req, err := newRequest(ctx, method, c.url(path), body, headers)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	return resp, nil
}

// newRequest builds a request whose body can be rebuilt from the same bytes,
// so a rejected request can be sent again unchanged.
func newRequest(
	ctx context.Context,
	method, url string,
	body []byte,
	headers map[string]string,
) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// jsonBody validates v (when it carries validate tags) and marshals it.
func jsonBody(v any) ([]byte, map[string]string, error) {
	if err := validate.Struct(v); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); !ok {
			return nil, nil, fmt.Errorf("invalid request: %w", err)
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return b, map[string]string{"Content-Type": "application/json"}, nil
}

// readBody drains and closes the response body.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return b, nil
}

// discardBody drains and closes a response the caller will not read, so the
// connection can be reused.
func discardBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// decodeJSON decodes a JSON response into the target.
// Returns an *APIError if the response status is not 2xx.
func decodeJSON(resp *http.Response, target any) error {
	bodyBytes, err := readBody(resp)
	if err != nil {
		return err
	}

	if err := parseErrorResponse(resp, bodyBytes); err != nil {
		return err
	}

	if target == nil {
		return nil
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// decodeData decodes an {"message", "data"} envelope and returns its data.
func decodeData[T any](resp *http.Response) (T, error) {
	var env envelope[T]
	if err := decodeJSON(resp, &env); err != nil {
		var zero T
		return zero, err
	}
	return env.Data, nil
}

// checkStatus returns an *APIError if the response status is not 2xx.
func checkStatus(resp *http.Response) error {
	return decodeJSON(resp, nil)
}
