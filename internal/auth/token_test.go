package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/michellemayes/logseq-assistant/internal/logging"
)

func TestTokenFromFileMissing(t *testing.T) {
	_, err := TokenFromFile(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, ErrNoCachedToken) {
		t.Fatalf("expected ErrNoCachedToken, got %v", err)
	}
}

func TestSaveAndLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "token.json")
	want := &oauth2.Token{AccessToken: "abc", RefreshToken: "refresh", TokenType: "Bearer"}
	if err := SaveToken(path, want); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat token cache: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("token cache perm = %o, want 600", perm)
	}

	got, err := TokenFromFile(path)
	if err != nil {
		t.Fatalf("TokenFromFile() error = %v", err)
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken {
		t.Fatalf("TokenFromFile() = %+v", got)
	}
}

func TestTokenFromFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte("not-json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := TokenFromFile(path)
	if err == nil || errors.Is(err, ErrNoCachedToken) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

type countingSource struct {
	calls atomic.Int32
}

func (c *countingSource) Token() (*oauth2.Token, error) {
	n := c.calls.Add(1)
	return &oauth2.Token{AccessToken: fmt.Sprintf("tok-%d", n), Expiry: time.Now().Add(-time.Second)}, nil
}

func TestCachingTokenSourcePersistsNewTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	base := &countingSource{}
	var saves int
	src := CachingTokenSource(base, path, nil, func(err error) {
		if err != nil {
			t.Errorf("save error = %v", err)
		}
		saves++
	})

	tok, err := src.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != "tok-1" {
		t.Fatalf("AccessToken = %q", tok.AccessToken)
	}
	cached, err := TokenFromFile(path)
	if err != nil {
		t.Fatalf("TokenFromFile() error = %v", err)
	}
	if cached.AccessToken != "tok-1" {
		t.Fatalf("cached AccessToken = %q", cached.AccessToken)
	}

	// expired tokens force a second mint, which is also persisted
	if _, err := src.Token(); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if saves != 2 {
		t.Fatalf("saves = %d, want 2", saves)
	}
}

func TestDelegatedScopes(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{"default", nil, []string{"Mail.ReadWrite", "offline_access"}},
		{"adds offline", []string{"Mail.ReadWrite", " "}, []string{"Mail.ReadWrite", "offline_access"}},
		{"keeps offline", []string{"offline_access", "Mail.Read"}, []string{"offline_access", "Mail.Read"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := delegatedScopes(tc.in); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("delegatedScopes(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func newDeviceServer(t *testing.T, tokenBody string, tokenStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/device", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"device_code":"dev","user_code":"ABCD","verification_uri":"https://example.test/devicelogin","expires_in":600,"interval":1}`))
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(tokenStatus)
		_, _ = w.Write([]byte(tokenBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDelegatedTokenSourceDeviceFlow(t *testing.T) {
	srv := newDeviceServer(t, `{"access_token":"fresh","refresh_token":"r","token_type":"Bearer","expires_in":3600}`, http.StatusOK)
	cfg := &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{DeviceAuthURL: srv.URL + "/device", TokenURL: srv.URL + "/token"},
		Scopes:   []string{"Mail.ReadWrite", "offline_access"},
	}
	path := filepath.Join(t.TempDir(), "token.json")

	src, err := DelegatedTokenSource(context.Background(), cfg, path, logging.Discard())
	if err != nil {
		t.Fatalf("DelegatedTokenSource() error = %v", err)
	}
	tok, err := src.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != "fresh" {
		t.Fatalf("AccessToken = %q", tok.AccessToken)
	}
	cached, err := TokenFromFile(path)
	if err != nil || cached.AccessToken != "fresh" {
		t.Fatalf("expected cached token, got %+v (%v)", cached, err)
	}
}

func TestDelegatedTokenSourceUsesCache(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
		http.Error(w, "no", http.StatusTeapot)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "token.json")
	valid := &oauth2.Token{AccessToken: "cached", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}
	if err := SaveToken(path, valid); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	cfg := &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{DeviceAuthURL: srv.URL + "/device", TokenURL: srv.URL + "/token"},
	}

	src, err := DelegatedTokenSource(context.Background(), cfg, path, logging.Discard())
	if err != nil {
		t.Fatalf("DelegatedTokenSource() error = %v", err)
	}
	tok, err := src.Token()
	if err != nil || tok.AccessToken != "cached" {
		t.Fatalf("Token() = %+v, %v", tok, err)
	}
}

func TestExplainAzureErrorAddsHint(t *testing.T) {
	srv := newDeviceServer(t,
		`{"error":"invalid_client","error_description":"AADSTS7000218: The request body must contain client_assertion or client_secret."}`,
		http.StatusBadRequest)
	cfg := &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{DeviceAuthURL: srv.URL + "/device", TokenURL: srv.URL + "/token"},
	}

	_, err := DelegatedTokenSource(context.Background(), cfg, filepath.Join(t.TempDir(), "t.json"), logging.Discard())
	if err == nil {
		t.Fatal("expected device flow error")
	}
	if !strings.Contains(err.Error(), "Allow public client flows") {
		t.Fatalf("expected remediation hint, got %v", err)
	}
	var retrieve *oauth2.RetrieveError
	if !errors.As(err, &retrieve) {
		t.Fatalf("expected wrapped RetrieveError, got %T", err)
	}
}
