package auth

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const clientSecret = `{
  "installed": {
    "client_id": "piggyflow-test.apps.googleusercontent.com",
    "client_secret": "secret",
    "auth_uri": "https://accounts.google.com/o/oauth2/auth",
    "token_uri": "https://oauth2.googleapis.com/token",
    "redirect_uris": ["http://localhost"]
  }
}`

func writeCredentials(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(p, []byte(clientSecret), 0o600))
	return p
}

func TestLocal(t *testing.T) {
	acct, err := Local{}.Account(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "local", acct.ID)
}

func TestTokenFile_MissingTokenIsSignedOut(t *testing.T) {
	tf, err := NewTokenFile(writeCredentials(t), filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, err)

	_, err = tf.Account(context.Background())
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestTokenFile_EmptyTokenIsSignedOut(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(tokenPath, []byte(`{}`), 0o600))

	tf, err := NewTokenFile(writeCredentials(t), tokenPath)
	require.NoError(t, err)

	_, err = tf.Account(context.Background())
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestTokenFile_ValidToken(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	raw, err := json.Marshal(&oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(tokenPath, raw, 0o600))

	tf, err := NewTokenFile(writeCredentials(t), tokenPath)
	require.NoError(t, err)

	acct, err := tf.Account(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "piggyflow-test.apps.googleusercontent.com", acct.ID)

	src, err := tf.TokenSource(context.Background())
	require.NoError(t, err)
	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "access", tok.AccessToken)
}

func TestNewTokenFile_BadCredentials(t *testing.T) {
	_, err := NewTokenFile(filepath.Join(t.TempDir(), "missing.json"), "token.json")
	assert.Error(t, err)

	p := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"nope":true}`), 0o600))
	_, err = NewTokenFile(p, "token.json")
	assert.Error(t, err)
}

func TestTokenFile_LazyTokenSourcePicksUpLaterSignIn(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	tf, err := NewTokenFile(writeCredentials(t), tokenPath)
	require.NoError(t, err)

	src := tf.LazyTokenSource(context.Background())
	_, err = src.Token()
	assert.ErrorIs(t, err, ErrNotSignedIn)

	raw, err := json.Marshal(&oauth2.Token{AccessToken: "later", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(tokenPath, raw, 0o600))

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "later", tok.AccessToken)
}
