package auth

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
)

// DriveClient authenticates as a service account, impersonating
// delegatedUser when set (domain-wide delegation).
func DriveClient(ctx context.Context, credentialsFile, delegatedUser string) (*http.Client, error) {
	raw, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	cfg, err := google.JWTConfigFromJSON(raw, drive.DriveFileScope, drive.DriveMetadataScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account file: %w", err)
	}
	if delegatedUser = strings.TrimSpace(delegatedUser); delegatedUser != "" {
		cfg.Subject = delegatedUser
	}
	return cfg.Client(ctx), nil
}

// GmailClient authorizes with an installed-app OAuth client. Without a
// cached token the user is asked to visit a consent URL and paste the code
// back on prompt.
func GmailClient(ctx context.Context, credentialsFile, tokenFile string, prompt io.Reader, logger logrus.FieldLogger) (*http.Client, error) {
	raw, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read gmail client secret file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(raw, gmail.GmailModifyScope, gmail.GmailLabelsScope)
	if err != nil {
		return nil, fmt.Errorf("parse gmail client secret file: %w", err)
	}

	onSave := func(err error) {
		if err != nil {
			logger.WithError(err).Warn("failed to persist gmail token")
		}
	}

	tok, err := TokenFromFile(tokenFile)
	if err != nil {
		tok, err = tokenFromWeb(ctx, cfg, prompt, logger)
		if err != nil {
			return nil, err
		}
		onSave(SaveToken(tokenFile, tok))
	}
	src := CachingTokenSource(cfg.TokenSource(ctx, tok), tokenFile, tok, onSave)
	return oauth2.NewClient(ctx, src), nil
}

func tokenFromWeb(ctx context.Context, cfg *oauth2.Config, prompt io.Reader, logger logrus.FieldLogger) (*oauth2.Token, error) {
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	logger.Warnf("Go to the following link in your browser, then type the authorization code:\n%s", authURL)

	line, err := bufio.NewReader(prompt).ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}
	tok, err := cfg.Exchange(ctx, strings.TrimSpace(line))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}
