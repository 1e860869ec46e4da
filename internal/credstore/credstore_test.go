package credstore_test

import (
	"testing"

	"github.com/aussiebroadwan/pizzeria/internal/credstore"
	"github.com/aussiebroadwan/pizzeria/pkg/cryptox"
	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
	"github.com/stretchr/testify/require"
)

func TestValues_RoundTrip(t *testing.T) {
	creds := pizzasdk.Credentials{AccessToken: "a", RefreshToken: "r", Role: pizzasdk.RoleAdmin}
	require.Equal(t, creds, credstore.FromValues(credstore.ToValues(creds)))

	partial := credstore.ToValues(pizzasdk.Credentials{AccessToken: "a"})
	require.Equal(t, map[string]string{credstore.KeyAccessToken: "a"}, partial)
	require.Equal(t, pizzasdk.Credentials{}, credstore.FromValues(nil))
}

func TestCodec(t *testing.T) {
	salt, err := cryptox.NewSalt()
	require.NoError(t, err)

	t.Run("plaintext without master key", func(t *testing.T) {
		c, err := credstore.NewCodec("", salt)
		require.NoError(t, err)
		require.False(t, c.Sealed())

		enc, err := c.Encode("token")
		require.NoError(t, err)
		require.Equal(t, "token", enc)
	})

	t.Run("sealed with master key", func(t *testing.T) {
		c, err := credstore.NewCodec("open sesame", salt)
		require.NoError(t, err)
		require.True(t, c.Sealed())

		enc, err := c.Encode("token")
		require.NoError(t, err)
		require.NotEqual(t, "token", enc)

		dec, err := c.Decode(enc)
		require.NoError(t, err)
		require.Equal(t, "token", dec)

		other, err := credstore.NewCodec("wrong", salt)
		require.NoError(t, err)
		_, err = other.Decode(enc)
		require.Error(t, err)

		_, err = c.Decode("%%%not base64")
		require.Error(t, err)
	})

	t.Run("short salt", func(t *testing.T) {
		_, err := credstore.NewCodec("k", []byte("short"))
		require.Error(t, err)
	})
}
