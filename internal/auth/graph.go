package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"
)

const graphAppScope = "https://graph.microsoft.com/.default"

// GraphSettings selects and configures the Microsoft identity flow.
type GraphSettings struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// Mode is "client_credentials" or "device_code".
	Mode       string
	Scopes     []string
	TokenCache string
}

// GraphClient returns an HTTP client that authenticates Graph requests.
// Client credentials use application permissions; device code signs a user
// in once and then refreshes silently from the token cache.
func GraphClient(ctx context.Context, s GraphSettings, logger logrus.FieldLogger) (*http.Client, error) {
	logger.Debugf("using microsoft graph auth mode: %s", s.Mode)
	if s.Mode == "client_credentials" {
		cfg := clientcredentials.Config{
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			TokenURL:     microsoft.AzureADEndpoint(s.TenantID).TokenURL,
			Scopes:       []string{graphAppScope},
		}
		if _, err := cfg.Token(ctx); err != nil {
			return nil, fmt.Errorf("acquire graph app token: %w", err)
		}
		return cfg.Client(ctx), nil
	}

	cfg := &oauth2.Config{
		ClientID: s.ClientID,
		Endpoint: microsoft.AzureADEndpoint(s.TenantID),
		Scopes:   delegatedScopes(s.Scopes),
	}
	src, err := DelegatedTokenSource(ctx, cfg, s.TokenCache, logger)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, src), nil
}

// DelegatedTokenSource restores a cached token or runs the device code flow
// and caches the result. The returned source refreshes and re-caches.
func DelegatedTokenSource(ctx context.Context, cfg *oauth2.Config, cachePath string, logger logrus.FieldLogger) (oauth2.TokenSource, error) {
	onSave := func(err error) {
		if err != nil {
			logger.WithError(err).Warn("failed to persist token cache")
		}
	}

	tok, err := TokenFromFile(cachePath)
	switch {
	case err == nil:
		logger.Debug("attempting silent token acquisition from cache")
		src := CachingTokenSource(cfg.TokenSource(ctx, tok), cachePath, nil, onSave)
		if _, err := src.Token(); err == nil {
			return src, nil
		}
		logger.WithError(err).Info("cached token could not be refreshed")
	case !errors.Is(err, ErrNoCachedToken):
		logger.WithError(err).Warn("ignoring unreadable token cache")
	}

	logger.Info("initiating device code flow for delegated graph access")
	device, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("start device flow: %w", explainAzureError(err))
	}
	logger.Warnf("To sign in, open %s and enter the code %s", device.VerificationURI, device.UserCode)

	tok, err = cfg.DeviceAccessToken(ctx, device)
	if err != nil {
		return nil, fmt.Errorf("acquire delegated token: %w", explainAzureError(err))
	}
	onSave(SaveToken(cachePath, tok))
	return CachingTokenSource(cfg.TokenSource(ctx, tok), cachePath, tok, onSave), nil
}

func delegatedScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes)+1)
	hasOffline := false
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if strings.EqualFold(scope, "offline_access") {
			hasOffline = true
		}
		out = append(out, scope)
	}
	if len(out) == 0 {
		out = append(out, "Mail.ReadWrite")
	}
	if !hasOffline {
		out = append(out, "offline_access")
	}
	return out
}

// explainAzureError adds remediation for the common "public client flows
// disabled" app registration mistake.
func explainAzureError(err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) && strings.Contains(retrieve.ErrorDescription, "AADSTS7000218") {
		return fmt.Errorf("%w: enable 'Allow public client flows' on the app registration, "+
			"or set MS_CLIENT_SECRET and MS_AUTH_MODE=client_credentials", err)
	}
	return err
}
