package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/michellemayes/logseq-assistant/internal/category"
	"github.com/michellemayes/logseq-assistant/internal/notes"
)

const (
	DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"
	graphSelect         = "id,subject,from,receivedDateTime,sentDateTime,categories,body,replyTo,toRecipients"
)

// Graph reads and re-labels Outlook messages through Microsoft Graph. The
// HTTP client is expected to attach bearer tokens (see internal/auth).
type Graph struct {
	client  *http.Client
	baseURL string
	userID  string
	logger  logrus.FieldLogger
}

// NewGraph builds a Graph source. An empty userID addresses the signed-in
// user (/me), which is what delegated tokens require.
func NewGraph(client *http.Client, baseURL, userID string, logger logrus.FieldLogger) *Graph {
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}
	return &Graph{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  strings.TrimSpace(userID),
		logger:  logger,
	}
}

type graphAddress struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

func (a graphAddress) person() notes.Person {
	return notes.Person{
		Name:    strings.TrimSpace(a.EmailAddress.Name),
		Address: strings.TrimSpace(a.EmailAddress.Address),
	}
}

type graphMessage struct {
	ID               string         `json:"id"`
	Subject          string         `json:"subject"`
	From             graphAddress   `json:"from"`
	ToRecipients     []graphAddress `json:"toRecipients"`
	ReceivedDateTime string         `json:"receivedDateTime"`
	SentDateTime     string         `json:"sentDateTime"`
	Categories       []string       `json:"categories"`
	Body             struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

func (m graphMessage) message() notes.Message {
	to := make([]notes.Person, 0, len(m.ToRecipients))
	for _, recipient := range m.ToRecipients {
		to = append(to, recipient.person())
	}
	return notes.Message{
		ID:         m.ID,
		Subject:    m.Subject,
		From:       m.From.person(),
		To:         to,
		Received:   m.ReceivedDateTime,
		Sent:       m.SentDateTime,
		Categories: category.NewSet(m.Categories...),
		Body:       m.Body.Content,
	}
}

type graphList struct {
	Value []graphMessage `json:"value"`
}

// FetchByCategory returns up to limit messages carrying label, newest first.
// When the server-side category filter finds nothing, the most recent
// messages are scanned locally with whitespace-insensitive matching.
func (g *Graph) FetchByCategory(ctx context.Context, label string, limit int) ([]notes.Message, error) {
	filtered, err := g.list(ctx, limit, fmt.Sprintf("categories/any(c:c eq '%s')", odataEscape(label)))
	if err != nil {
		return nil, err
	}
	if len(filtered) > 0 {
		g.logger.WithField("count", len(filtered)).Infof("found messages with category %q via graph filter", label)
		return toMessages(filtered), nil
	}

	g.logger.Debugf("graph filter returned no matches for %q; scanning recent messages locally", label)
	recent, err := g.list(ctx, limit, "")
	if err != nil {
		return nil, err
	}
	matched := make([]notes.Message, 0)
	for _, raw := range recent {
		msg := raw.message()
		g.logger.WithFields(logrus.Fields{
			"subject":    msg.Subject,
			"categories": msg.Categories.Values(),
			"received":   msg.Received,
		}).Debug("recent message candidate")
		if category.NeedsProcessing(msg.Categories, label) {
			matched = append(matched, msg)
		}
	}
	g.logger.WithFields(logrus.Fields{
		"count":   len(matched),
		"scanned": len(recent),
	}).Infof("found messages with category %q after local scan", label)
	return matched, nil
}

// SetCategories replaces the message's categories and marks it read.
func (g *Graph) SetCategories(ctx context.Context, messageID string, categories category.Set) error {
	payload := map[string]any{
		"categories": categories.Values(),
		"isRead":     true,
	}
	endpoint := g.mailboxURL() + "/messages/" + url.PathEscape(messageID)
	if err := g.do(ctx, http.MethodPatch, endpoint, payload, nil); err != nil {
		return fmt.Errorf("update categories for %s: %w", messageID, err)
	}
	return nil
}

func (g *Graph) list(ctx context.Context, limit int, filter string) ([]graphMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{}
	params.Set("$top", strconv.Itoa(limit))
	params.Set("$select", graphSelect)
	params.Set("$orderby", "receivedDateTime desc")
	if filter != "" {
		params.Set("$filter", filter)
	}

	var out graphList
	if err := g.do(ctx, http.MethodGet, g.mailboxURL()+"/messages?"+params.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out.Value, nil
}

func (g *Graph) mailboxURL() string {
	if g.userID == "" {
		return g.baseURL + "/me"
	}
	return g.baseURL + "/users/" + url.PathEscape(g.userID)
}

func (g *Graph) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	g.logger.Debugf("graph %s %s", method, endpoint)
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}

// StatusError is returned for non-2xx Graph responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("graph api call failed (%d): %s", e.StatusCode, e.Body)
}

func toMessages(raw []graphMessage) []notes.Message {
	out := make([]notes.Message, 0, len(raw))
	for _, item := range raw {
		out = append(out, item.message())
	}
	return out
}

func odataEscape(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}
