// Package credstore holds what the persistent credential store drivers share:
// the key names and the optional sealing of stored values.
package credstore

import (
	"encoding/base64"
	"fmt"

	"github.com/aussiebroadwan/pizzeria/pkg/cryptox"
	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
)

// Persisted keys. Nothing else is stored.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyRole         = "role"
)

// Keys lists every persisted key.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyRole}

// ToValues flattens creds into key/value pairs. Empty fields are omitted so
// that saving a partial pair deletes the missing keys.
func ToValues(creds pizzasdk.Credentials) map[string]string {
	out := make(map[string]string, len(Keys))
	if creds.AccessToken != "" {
		out[KeyAccessToken] = creds.AccessToken
	}
	if creds.RefreshToken != "" {
		out[KeyRefreshToken] = creds.RefreshToken
	}
	if creds.Role != "" {
		out[KeyRole] = creds.Role
	}
	return out
}

// FromValues is the inverse of ToValues. Missing keys load as empty strings.
func FromValues(values map[string]string) pizzasdk.Credentials {
	return pizzasdk.Credentials{
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
		Role:         values[KeyRole],
	}
}

// Codec transforms values on their way in and out of storage. The zero value
// stores plaintext.
type Codec struct {
	sealer *cryptox.Sealer
}

// NewCodec seals values with a key derived from masterKey and salt. An empty
// masterKey yields a plaintext codec.
func NewCodec(masterKey string, salt []byte) (Codec, error) {
	if masterKey == "" {
		return Codec{}, nil
	}
	sealer, err := cryptox.NewSealer([]byte(masterKey), salt)
	if err != nil {
		return Codec{}, fmt.Errorf("credstore: %w", err)
	}
	return Codec{sealer: sealer}, nil
}

// Sealed reports whether values are encrypted at rest.
func (c Codec) Sealed() bool { return c.sealer != nil }

func (c Codec) Encode(v string) (string, error) {
	if c.sealer == nil {
		return v, nil
	}
	sealed, err := c.sealer.Seal([]byte(v))
	if err != nil {
		return "", fmt.Errorf("credstore: seal: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c Codec) Decode(v string) (string, error) {
	if c.sealer == nil {
		return v, nil
	}
	raw, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return "", fmt.Errorf("credstore: decode: %w", err)
	}
	plain, err := c.sealer.Open(raw)
	if err != nil {
		return "", fmt.Errorf("credstore: open: %w", err)
	}
	return string(plain), nil
}
