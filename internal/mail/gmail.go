package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/gmail/v1"

	"github.com/michellemayes/logseq-assistant/internal/category"
	"github.com/michellemayes/logseq-assistant/internal/notes"
)

const gmailUser = "me"

// Gmail treats user labels as categories. Processed messages are also
// marked read by dropping the UNREAD system label.
type Gmail struct {
	srv    *gmail.Service
	logger logrus.FieldLogger
}

func NewGmail(srv *gmail.Service, logger logrus.FieldLogger) *Gmail {
	return &Gmail{srv: srv, logger: logger}
}

// FetchByCategory lists messages carrying the label, newest first. When
// the label does not exist or matches nothing, recent messages are scanned
// and compared against trimmed label names.
func (g *Gmail) FetchByCategory(ctx context.Context, label string, limit int) ([]notes.Message, error) {
	if limit <= 0 {
		limit = 10
	}
	labels, err := g.labels(ctx)
	if err != nil {
		return nil, err
	}

	if id, ok := labels.byName[label]; ok {
		msgs, err := g.list(ctx, labels, limit, id)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			g.logger.WithField("count", len(msgs)).Infof("found messages with label %q", label)
			return msgs, nil
		}
	}

	g.logger.Debugf("label filter returned no matches for %q; scanning recent messages locally", label)
	recent, err := g.list(ctx, labels, limit, "")
	if err != nil {
		return nil, err
	}
	matched := make([]notes.Message, 0)
	for _, msg := range recent {
		if category.NeedsProcessing(msg.Categories, label) {
			matched = append(matched, msg)
		}
	}
	g.logger.WithFields(logrus.Fields{"count": len(matched), "scanned": len(recent)}).
		Infof("found messages with label %q after local scan", label)
	return matched, nil
}

// SetCategories makes the message's user labels equal to categories,
// creating missing labels, and marks the message read.
func (g *Gmail) SetCategories(ctx context.Context, messageID string, categories category.Set) error {
	labels, err := g.labels(ctx)
	if err != nil {
		return err
	}
	current, err := g.srv.Users.Messages.Get(gmailUser, messageID).Format("minimal").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get message %s: %w", messageID, err)
	}

	want := make(map[string]bool, categories.Len())
	add := make([]string, 0)
	for _, name := range categories.Values() {
		id, ok := labels.byName[name]
		if !ok {
			created, err := g.srv.Users.Labels.Create(gmailUser, &gmail.Label{
				Name:                  name,
				LabelListVisibility:   "labelShow",
				MessageListVisibility: "show",
			}).Context(ctx).Do()
			if err != nil {
				return fmt.Errorf("create label %q: %w", name, err)
			}
			id = created.Id
		}
		want[id] = true
		add = append(add, id)
	}

	remove := []string{"UNREAD"}
	for _, id := range current.LabelIds {
		if _, user := labels.byID[id]; user && !want[id] {
			remove = append(remove, id)
		}
	}

	_, err = g.srv.Users.Messages.Modify(gmailUser, messageID, &gmail.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("modify labels for %s: %w", messageID, err)
	}
	return nil
}

type labelIndex struct {
	byName map[string]string
	byID   map[string]string
}

// labels indexes the user-defined labels; system labels such as INBOX are
// not categories.
func (g *Gmail) labels(ctx context.Context) (labelIndex, error) {
	resp, err := g.srv.Users.Labels.List(gmailUser).Context(ctx).Do()
	if err != nil {
		return labelIndex{}, fmt.Errorf("list labels: %w", err)
	}
	idx := labelIndex{byName: map[string]string{}, byID: map[string]string{}}
	for _, label := range resp.Labels {
		if label.Type == "system" {
			continue
		}
		idx.byName[label.Name] = label.Id
		idx.byID[label.Id] = label.Name
	}
	return idx, nil
}

func (g *Gmail) list(ctx context.Context, labels labelIndex, limit int, labelID string) ([]notes.Message, error) {
	call := g.srv.Users.Messages.List(gmailUser).MaxResults(int64(limit)).Context(ctx)
	if labelID != "" {
		call = call.LabelIds(labelID)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	out := make([]notes.Message, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		full, err := g.srv.Users.Messages.Get(gmailUser, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get message %s: %w", ref.Id, err)
		}
		out = append(out, toNote(full, labels))
	}
	return out, nil
}

func toNote(msg *gmail.Message, labels labelIndex) notes.Message {
	out := notes.Message{ID: msg.Id}
	if msg.InternalDate > 0 {
		out.Received = time.UnixMilli(msg.InternalDate).UTC().Format(time.RFC3339)
	}
	names := make([]string, 0, len(msg.LabelIds))
	for _, id := range msg.LabelIds {
		if name, ok := labels.byID[id]; ok {
			names = append(names, name)
		}
	}
	out.Categories = category.NewSet(names...)

	if msg.Payload == nil {
		return out
	}
	for _, header := range msg.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "subject":
			out.Subject = header.Value
		case "from":
			if people := parsePeople(header.Value); len(people) > 0 {
				out.From = people[0]
			}
		case "to":
			out.To = parsePeople(header.Value)
		case "date":
			if parsed, err := netmail.ParseDate(header.Value); err == nil {
				out.Sent = parsed.UTC().Format(time.RFC3339)
			}
		}
	}
	out.Body = extractBody(msg.Payload)
	return out
}

func parsePeople(value string) []notes.Person {
	list, err := netmail.ParseAddressList(value)
	if err != nil {
		if value = strings.TrimSpace(value); value != "" {
			return []notes.Person{{Name: value}}
		}
		return nil
	}
	people := make([]notes.Person, 0, len(list))
	for _, addr := range list {
		people = append(people, notes.Person{Name: addr.Name, Address: addr.Address})
	}
	return people
}

// extractBody prefers the HTML part and falls back to plain text.
func extractBody(part *gmail.MessagePart) string {
	if html := findPart(part, "text/html"); html != "" {
		return html
	}
	return findPart(part, "text/plain")
}

func findPart(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	for _, child := range part.Parts {
		if found := findPart(child, mimeType); found != "" {
			return found
		}
	}
	return ""
}

func decodeBody(data string) string {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}
