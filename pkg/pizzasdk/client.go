package pizzasdk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/pizzeria/pkg/cryptox"
	"github.com/aussiebroadwan/pizzeria/pkg/httpx"
	"github.com/aussiebroadwan/pizzeria/pkg/slogx"
)

// DefaultTimeout bounds every request, including a shared renewal.
const DefaultTimeout = 10 * time.Second

// Client is a client for the pizzeria storefront.
// It provides access to unauthenticated operations and creates Gateways.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger

	// CheckRoles determines whether to perform client-side role validation
	// before admin requests. When true, the Gateway returns ErrForbidden if
	// the stored role is not admin, without contacting the server.
	// Set to false in tests that exercise the server-side check.
	// Default: true
	CheckRoles bool

	timeout   time.Duration
	rateLimit httpx.RateLimitConfig
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Timeout, rate limiting and
// request logging options are then the caller's responsibility.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithLogger sets the logger used for SDK and request logging.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.Logger = l }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRateLimit paces outbound requests of the default HTTP client.
func WithRateLimit(cfg httpx.RateLimitConfig) Option {
	return func(c *Client) { c.rateLimit = cfg }
}

// NewClient creates a new storefront client with role checking enabled.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		CheckRoles: true, // Enabled by default
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	if c.HTTPClient == nil {
		var rt http.RoundTripper = http.DefaultTransport
		if c.rateLimit.Enabled() {
			rt = httpx.NewLimitTransport(rt, c.rateLimit)
		}
		c.HTTPClient = &http.Client{
			Timeout:   c.timeout,
			Transport: slogx.NewTransport(rt, c.Logger),
		}
	}

	return c
}

// ============================================================================
// Authentication
// ============================================================================

// Login signs in with the password grant, persists the issued credentials to
// store and returns a Gateway over them.
func (c *Client) Login(
	ctx context.Context,
	store CredentialStore,
	username, password string,
	opts ...GatewayOption,
) (*Gateway, *LoginResponse, error) {
	data := url.Values{
		"username": {username},
		"password": {password},
	}

	resp, err := c.doRequest(
		ctx,
		http.MethodPost,
		"/auth/login",
		[]byte(data.Encode()),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
	)
	if err != nil {
		return nil, nil, err
	}

	var loginResp LoginResponse
	if err := decodeJSON(resp, &loginResp); err != nil {
		return nil, nil, err
	}
	if loginResp.AccessToken == "" {
		return nil, nil, fmt.Errorf("login response carried no access token")
	}

	role := loginResp.Role
	if role == "" {
		if claims, err := InspectToken(loginResp.AccessToken); err == nil {
			role = claims.Role
		}
	}

	creds := Credentials{
		AccessToken:  loginResp.AccessToken,
		RefreshToken: loginResp.RefreshToken,
		Role:         role,
	}
	if err := store.Save(ctx, creds); err != nil {
		return nil, nil, fmt.Errorf("failed to persist credentials: %w", err)
	}

	c.Logger.InfoContext(ctx, "signed in",
		"role", role,
		"access_fp", cryptox.Fingerprint(creds.AccessToken),
	)

	return c.NewGateway(store, opts...), &loginResp, nil
}

// Register creates a customer account. It does not sign in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	body, headers, err := jsonBody(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/register", body, headers)
	if err != nil {
		return nil, err
	}

	user, err := decodeData[User](resp)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// RefreshGrant exchanges a refresh credential for a new pair. When the server
// does not rotate the refresh credential, the one passed in is kept.
func (c *Client) RefreshGrant(ctx context.Context, refreshToken string) (TokenPair, error) {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.doRequest(
		ctx,
		http.MethodPost,
		"/auth/refresh",
		body,
		map[string]string{"Content-Type": "application/json"},
	)
	if err != nil {
		return TokenPair{}, err
	}

	var pair TokenPair
	if err := decodeJSON(resp, &pair); err != nil {
		return TokenPair{}, err
	}
	if pair.AccessToken == "" {
		return TokenPair{}, fmt.Errorf("refresh response carried no access token")
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}

	return pair, nil
}

// Logout forgets the stored credentials. The storefront has no revocation
// endpoint, so nothing is sent.
func (c *Client) Logout(ctx context.Context, store CredentialStore) error {
	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	c.Logger.InfoContext(ctx, "signed out")
	return nil
}

// NewGateway creates a Gateway over previously persisted credentials.
func (c *Client) NewGateway(store CredentialStore, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		client: c,
		store:  store,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ============================================================================
// Public catalog
// ============================================================================

// Welcome returns the storefront's greeting. It doubles as a reachability check.
func (c *Client) Welcome(ctx context.Context) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/", nil, nil)
	if err != nil {
		return "", err
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return "", err
	}
	return body.Message, nil
}

// ListPizzas returns the menu.
func (c *Client) ListPizzas(ctx context.Context) ([]Pizza, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/pizzas", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeData[[]Pizza](resp)
}

// GetPizza returns a single menu item.
func (c *Client) GetPizza(ctx context.Context, id int) (*Pizza, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/pizzas/%d", id), nil, nil)
	if err != nil {
		return nil, err
	}

	pizza, err := decodeData[Pizza](resp)
	if err != nil {
		return nil, err
	}
	return &pizza, nil
}

// ListToppings returns every available topping.
func (c *Client) ListToppings(ctx context.Context) ([]Topping, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/toppings", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeData[[]Topping](resp)
}

// GetTopping returns a single topping.
func (c *Client) GetTopping(ctx context.Context, id int) (*Topping, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/toppings/%d", id), nil, nil)
	if err != nil {
		return nil, err
	}

	topping, err := decodeData[Topping](resp)
	if err != nil {
		return nil, err
	}
	return &topping, nil
}
