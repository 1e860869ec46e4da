package pizzasdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/pizzeria/pkg/cryptox"
	"golang.org/x/sync/singleflight"
)

// renewalKey is the single singleflight key; there is only ever one
// credential pair per Gateway.
const renewalKey = "renew"

// Gateway performs authenticated requests against the storefront. It attaches
// the stored access credential, renews it once on HTTP 401 and retries.
type Gateway struct {
	client *Client
	store  CredentialStore

	// renewals holds the pending renewal, if any. Concurrent callers that hit
	// a 401 join it instead of starting their own.
	renewals singleflight.Group

	onSessionExpired func(ctx context.Context, err error)
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithSessionExpiredHook registers fn to run after the server rejects the
// refresh credential and the stored credentials have been cleared.
func WithSessionExpiredHook(fn func(ctx context.Context, err error)) GatewayOption {
	return func(g *Gateway) { g.onSessionExpired = fn }
}

// Client returns the Client the Gateway sends through.
func (g *Gateway) Client() *Client {
	return g.client
}

// Call sends an authenticated request. body may be nil; it is kept as bytes
// so the request can be re-sent after a renewal.
//
// A 401 triggers one renewal and one retry. Any response to the retry, 401
// included, is returned as is. Every other status is returned unmodified;
// callers own closing the response body.
func (g *Gateway) Call(
	ctx context.Context,
	method, path string,
	body []byte,
	headers map[string]string,
) (*http.Response, error) {
	creds, err := g.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds.AccessToken == "" {
		return nil, ErrUnauthenticated
	}

	resp, err := g.send(ctx, method, path, body, headers, creds.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	discardBody(resp)

	g.client.Logger.DebugContext(ctx, "access credential rejected",
		"path", path,
		"access_fp", cryptox.Fingerprint(creds.AccessToken),
	)

	pair, err := g.renew(ctx, creds.AccessToken)
	if err != nil {
		return nil, err
	}

	return g.send(ctx, method, path, body, headers, pair.AccessToken)
}

// Renew forces a credential renewal, joining one already in flight.
func (g *Gateway) Renew(ctx context.Context) (TokenPair, error) {
	return g.renew(ctx, "")
}

// renew joins or starts the shared renewal. rejected is the access credential
// the server just refused; if the store already holds a different one, a
// renewal has completed since and no new call is made.
//
// The renewal itself is detached from ctx so one caller giving up does not
// fail the others; the HTTP client timeout bounds it. Each caller still stops
// waiting when its own ctx is done.
func (g *Gateway) renew(ctx context.Context, rejected string) (TokenPair, error) {
	ch := g.renewals.DoChan(renewalKey, func() (any, error) {
		return g.doRenew(context.WithoutCancel(ctx), rejected)
	})

	select {
	case <-ctx.Done():
		return TokenPair{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return TokenPair{}, res.Err
		}
		return res.Val.(TokenPair), nil
	}
}

func (g *Gateway) doRenew(ctx context.Context, rejected string) (TokenPair, error) {
	creds, err := g.store.Load(ctx)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to load credentials: %w", err)
	}

	if rejected != "" && creds.AccessToken != "" && creds.AccessToken != rejected {
		return TokenPair{AccessToken: creds.AccessToken, RefreshToken: creds.RefreshToken}, nil
	}

	if creds.RefreshToken == "" {
		return TokenPair{}, ErrNoRefreshCredential
	}

	logger := g.client.Logger.With("refresh_fp", cryptox.Fingerprint(creds.RefreshToken))

	pair, err := g.client.RefreshGrant(ctx, creds.RefreshToken)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			// Transport failure: the refresh credential may still be good
			logger.WarnContext(ctx, "credential renewal failed", "error", err)
			return TokenPair{}, fmt.Errorf("%w: %w", ErrRenewalFailed, err)
		}

		logger.WarnContext(ctx, "refresh credential rejected, clearing session",
			"status", apiErr.StatusCode,
		)
		if clearErr := g.store.Clear(ctx); clearErr != nil {
			logger.ErrorContext(ctx, "failed to clear credentials", "error", clearErr)
		}

		renewErr := fmt.Errorf("%w: %w", ErrRenewalFailed, err)
		if g.onSessionExpired != nil {
			g.onSessionExpired(ctx, renewErr)
		}
		return TokenPair{}, renewErr
	}

	if err := g.store.Save(ctx, Credentials{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Role:         creds.Role,
	}); err != nil {
		return TokenPair{}, fmt.Errorf("%w: failed to persist credentials: %w", ErrRenewalFailed, err)
	}

	logger.InfoContext(ctx, "credentials renewed",
		"access_fp", cryptox.Fingerprint(pair.AccessToken),
	)
	return pair, nil
}

// send issues one attempt with the given access credential.
func (g *Gateway) send(
	ctx context.Context,
	method, path string,
	body []byte,
	headers map[string]string,
	accessToken string,
) (*http.Response, error) {
	req, err := newRequest(ctx, method, g.client.url(path), body, headers)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.client.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// ============================================================================
// Identity
// ============================================================================

// Role returns the stored role, falling back to the access credential's
// claims when the store has none.
func (g *Gateway) Role(ctx context.Context) (string, error) {
	creds, err := g.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds.AccessToken == "" {
		return "", ErrUnauthenticated
	}
	if creds.Role != "" {
		return creds.Role, nil
	}

	claims, err := InspectToken(creds.AccessToken)
	if err != nil {
		return "", err
	}
	return claims.Role, nil
}

// Identity returns the claims of the stored access credential.
func (g *Gateway) Identity(ctx context.Context) (*Claims, error) {
	creds, err := g.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds.AccessToken == "" {
		return nil, ErrUnauthenticated
	}
	return InspectToken(creds.AccessToken)
}

// requireAdmin checks the stored role before an admin request.
func (g *Gateway) requireAdmin(ctx context.Context) error {
	if !g.client.CheckRoles {
		return nil
	}

	role, err := g.Role(ctx)
	if err != nil {
		return err
	}
	if role != RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// callData is Call for the common case: optional JSON body, enveloped reply.
func callData[T any](ctx context.Context, g *Gateway, method, path string, in any) (T, error) {
	var (
		body    []byte
		headers map[string]string
		zero    T
	)
	if in != nil {
		var err error
		body, headers, err = jsonBody(in)
		if err != nil {
			return zero, err
		}
	}

	resp, err := g.Call(ctx, method, path, body, headers)
	if err != nil {
		return zero, err
	}
	return decodeData[T](resp)
}

// callNoData is Call for requests whose reply carries nothing of interest.
func (g *Gateway) callNoData(ctx context.Context, method, path string) error {
	resp, err := g.Call(ctx, method, path, nil, nil)
	if err != nil {
		return err
	}
	return checkStatus(resp)
}
