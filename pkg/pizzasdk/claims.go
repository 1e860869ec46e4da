package pizzasdk

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the fields the storefront puts in its access credentials.
type Claims struct {
	Role     string `json:"role"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Email is the subject of the credential.
func (c *Claims) Email() string {
	return c.Subject
}

// ExpiresIn returns how long until the credential expires, or zero when it
// carries no expiry or has already expired.
func (c *Claims) ExpiresIn(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// InspectToken decodes the claims of an access credential without verifying
// its signature. The client never holds the signing key; the result is for
// display and role hints only, never for authorization decisions the server
// would not also make.
func InspectToken(token string) (*Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse token claims: %w", err)
	}
	return &claims, nil
}
