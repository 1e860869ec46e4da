package pizzasdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthenticated is returned when no access credential is stored.
	ErrUnauthenticated = errors.New("not signed in")

	// ErrNoRefreshCredential is returned when a renewal is needed but no
	// refresh credential is stored.
	ErrNoRefreshCredential = errors.New("access token expired and no refresh token available")

	// ErrRenewalFailed is returned when the renewal call did not produce a
	// new credential pair. When the server rejected the refresh credential,
	// the stored credentials have already been cleared.
	ErrRenewalFailed = errors.New("failed to renew credentials")

	// ErrForbidden is returned when the stored role does not permit an
	// operation. No request is sent.
	ErrForbidden = errors.New("operation requires admin role")
)

// APIError is a non-2xx response from the storefront.
type APIError struct {
	// StatusCode is the HTTP status code of the response
	StatusCode int

	// Detail is the server's explanation, taken from the "detail" field of
	// an error body or the "message" field of an envelope
	Detail string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("storefront: HTTP %d: %s", e.StatusCode, e.Detail)
}

// IsStatus reports whether err is an *APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// validationIssue is one entry of a request validation failure list.
type validationIssue struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// parseErrorResponse turns a non-2xx response body into an *APIError.
// Returns nil for 2xx status codes.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}

	var errResp struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		apiErr.Detail = detailText(errResp.Detail)
		if apiErr.Detail == "" {
			apiErr.Detail = errResp.Message
		}
	}

	if apiErr.Detail == "" {
		apiErr.Detail = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// detailText flattens the "detail" field, which is either a plain string or a
// list of validation issues.
func detailText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var issues []validationIssue
	if err := json.Unmarshal(raw, &issues); err != nil {
		return ""
	}

	msgs := make([]string, 0, len(issues))
	for _, issue := range issues {
		field := ""
		if n := len(issue.Loc); n > 0 {
			field = fmt.Sprint(issue.Loc[n-1])
		}
		if field != "" {
			msgs = append(msgs, field+": "+issue.Msg)
		} else {
			msgs = append(msgs, issue.Msg)
		}
	}
	return strings.Join(msgs, "; ")
}
