// Package auth acquires OAuth2 tokens for the mailbox and notes backends
// and keeps delegated tokens in a local cache file between runs.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

var ErrNoCachedToken = errors.New("no cached token")

// TokenFromFile loads a token saved by SaveToken.
func TokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCachedToken
	}
	if err != nil {
		return nil, fmt.Errorf("open token cache: %w", err)
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token cache: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, ErrNoCachedToken
	}
	return tok, nil
}

// SaveToken writes tok to path with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token cache dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open token cache for write: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("encode token cache: %w", err)
	}
	return nil
}

// cachingSource persists every newly minted token so refreshed credentials
// survive the process.
type cachingSource struct {
	mu     sync.Mutex
	base   oauth2.TokenSource
	path   string
	last   string
	onSave func(error)
}

// CachingTokenSource wraps base so refreshed tokens are written to path.
// onSave, if non-nil, receives the result of each write.
func CachingTokenSource(base oauth2.TokenSource, path string, initial *oauth2.Token, onSave func(error)) oauth2.TokenSource {
	src := &cachingSource{base: base, path: path, onSave: onSave}
	if initial != nil {
		src.last = initial.AccessToken
	}
	return oauth2.ReuseTokenSource(initial, src)
}

func (s *cachingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		err := SaveToken(s.path, tok)
		if s.onSave != nil {
			s.onSave(err)
		}
	}
	return tok, nil
}
