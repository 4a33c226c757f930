// Package notes renders summarized messages into Logseq outline pages and
// folds new sections into existing pages without rewriting prior content.
package notes

import (
	"strings"

	"github.com/michellemayes/logseq-assistant/internal/category"
)

// Person is a sender or recipient identity. Either field may be empty.
type Person struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// Message is the subset of a mailbox message consumed by the renderer.
type Message struct {
	ID         string
	Subject    string
	From       Person
	To         []Person
	Received   string
	Sent       string
	Categories category.Set
	Body       string
}

// ReceivedAt returns the received timestamp, falling back to the sent one.
func (m Message) ReceivedAt() string {
	if received := strings.TrimSpace(m.Received); received != "" {
		return received
	}
	return strings.TrimSpace(m.Sent)
}

// Summary is the structured result produced by the summarizer.
type Summary struct {
	Summary      string   `json:"summary"`
	KeyPoints    []string `json:"key_points"`
	Todos        []string `json:"todos"`
	ContextNotes []string `json:"context_notes"`
	Topics       []string `json:"topics,omitempty"`
}

// NoSummaryPlaceholder is used when neither a summary nor key points exist.
const NoSummaryPlaceholder = "(No summary returned)"

// Normalized trims every field, drops empty list items and guarantees a
// non-empty Summary.
func (s Summary) Normalized() Summary {
	out := Summary{
		Summary:      strings.TrimSpace(s.Summary),
		KeyPoints:    cleanList(s.KeyPoints),
		Todos:        cleanList(s.Todos),
		ContextNotes: cleanList(s.ContextNotes),
		Topics:       dedupeFold(cleanList(s.Topics)),
	}
	if out.Summary == "" {
		head := out.KeyPoints
		if len(head) > 2 {
			head = head[:2]
		}
		out.Summary = strings.Join(head, "; ")
	}
	if out.Summary == "" {
		out.Summary = NoSummaryPlaceholder
	}
	return out
}

// Fallback builds the summary used when the summarizer reply could not be
// decoded: the raw reply becomes the summary text.
func Fallback(raw string) Summary {
	return Summary{Summary: strings.TrimSpace(raw)}.Normalized()
}

// Document is a persisted note page.
type Document struct {
	ID       string
	Folder   string
	Filename string
	Content  string
	WebURL   string
}

// Terms returns the linkable term set: internal domains, configured project
// terms and summary topics, de-duplicated case-insensitively.
func Terms(domains DomainSet, projects, topics []string) []string {
	all := make([]string, 0, len(domains)+len(projects)+len(topics))
	all = append(all, domains...)
	all = append(all, projects...)
	all = append(all, topics...)
	return dedupeFold(cleanList(all))
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func dedupeFold(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
