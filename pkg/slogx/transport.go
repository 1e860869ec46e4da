package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
)

// HeaderRequestID is stamped on every outbound request that lacks one.
const HeaderRequestID = "X-Request-ID"

// NewRequestID returns a lexicographically sortable ULID string.
func NewRequestID() string {
	return ulid.Make().String()
}

// Transport is an http.RoundTripper that tags outbound requests with a
// request ID and logs their outcome. The logger comes from the request
// context when Logger is nil.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	return &Transport{Base: base, Logger: logger}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	reqID := req.Header.Get(HeaderRequestID)
	if reqID == "" {
		reqID = NewRequestID()
		// RoundTrippers must not mutate the caller's request
		req = req.Clone(req.Context())
		req.Header.Set(HeaderRequestID, reqID)
	}

	logger := t.Logger
	if logger == nil {
		logger = FromContext(req.Context())
	}
	logger = logger.With(
		"req_id", reqID,
		"method", req.Method,
		"path", req.URL.Path,
	)

	resp, err := t.base().RoundTrip(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn("http_request_failed", "error", err, "duration_ms", duration)
		return nil, err
	}

	logger.Debug("http_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
