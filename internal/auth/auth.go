// Package auth answers "who is signed in" for the backup coordinator and
// hands credentials to the remote archive backends.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

// ErrNotSignedIn means no usable account is available.
var ErrNotSignedIn = errors.New("not signed in")

// Account identifies the signed-in user. Its contents are opaque to callers.
type Account struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Session reports the current account, or ErrNotSignedIn.
type Session interface {
	Account(ctx context.Context) (Account, error)
}

// Local is always signed in. It pairs with the directory backend.
type Local struct{}

func (Local) Account(ctx context.Context) (Account, error) {
	return Account{ID: "local"}, nil
}

// TokenFile reads an OAuth client secret and a previously saved user token.
// The token is refreshed on demand and refreshed tokens are written back.
// Acquiring the initial token is done outside this process.
type TokenFile struct {
	config    *oauth2.Config
	tokenPath string

	mu  sync.Mutex
	src oauth2.TokenSource
}

// NewTokenFile loads the client secret at credentialsPath. The token at
// tokenPath is read lazily so that a missing token means "signed out"
// rather than a startup failure.
func NewTokenFile(credentialsPath, tokenPath string) (*TokenFile, error) {
	raw, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials %q: %w", credentialsPath, err)
	}
	cfg, err := google.ConfigFromJSON(raw, drive.DriveAppdataScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials %q: %w", credentialsPath, err)
	}
	return &TokenFile{config: cfg, tokenPath: tokenPath}, nil
}

// Account implements Session.
func (t *TokenFile) Account(ctx context.Context) (Account, error) {
	src, err := t.source(ctx)
	if err != nil {
		return Account{}, err
	}
	tok, err := src.Token()
	if err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrNotSignedIn, err)
	}
	if !tok.Valid() {
		return Account{}, ErrNotSignedIn
	}
	return Account{ID: t.config.ClientID}, nil
}

// TokenSource returns the refreshing token source for API clients.
func (t *TokenFile) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	return t.source(ctx)
}

// LazyTokenSource defers reading the token until the first request, so an
// API client can be built before the user has signed in.
func (t *TokenFile) LazyTokenSource(ctx context.Context) oauth2.TokenSource {
	return lazySource{ctx: context.WithoutCancel(ctx), t: t}
}

type lazySource struct {
	ctx context.Context
	t   *TokenFile
}

func (l lazySource) Token() (*oauth2.Token, error) {
	src, err := l.t.source(l.ctx)
	if err != nil {
		return nil, err
	}
	return src.Token()
}

func (t *TokenFile) source(ctx context.Context) (oauth2.TokenSource, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.src != nil {
		return t.src, nil
	}

	tok, err := readToken(t.tokenPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotSignedIn
	}
	if err != nil {
		return nil, err
	}

	base := t.config.TokenSource(context.WithoutCancel(ctx), tok)
	t.src = &savingSource{base: base, path: t.tokenPath, last: tok.AccessToken}
	return t.src, nil
}

func readToken(path string) (*oauth2.Token, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token %q: %w", path, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("parse token %q: %w", path, err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, fmt.Errorf("token %q: %w", path, ErrNotSignedIn)
	}
	return &tok, nil
}

func writeToken(path string, tok *oauth2.Token) error {
	raw, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// savingSource persists a token whenever the wrapped source refreshes it.
type savingSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := writeToken(s.path, tok); err != nil {
			return nil, fmt.Errorf("save refreshed token: %w", err)
		}
	}
	return tok, nil
}

// DefaultCredentials uses Application Default Credentials
// (gcloud auth application-default login, or a service account).
type DefaultCredentials struct {
	scopes []string
}

// NewDefaultCredentials creates a session for the given scopes.
func NewDefaultCredentials(scopes ...string) *DefaultCredentials {
	return &DefaultCredentials{scopes: scopes}
}

// Account implements Session.
func (d *DefaultCredentials) Account(ctx context.Context) (Account, error) {
	creds, err := google.FindDefaultCredentials(ctx, d.scopes...)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrNotSignedIn, err)
	}
	return Account{ID: creds.ProjectID}, nil
}
