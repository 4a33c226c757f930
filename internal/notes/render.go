package notes

import (
	"regexp"
	"strings"
)

var taskMarker = regexp.MustCompile(`(?i)^todo(?:\s*:\s*|\s+)`)

// RenderInput carries everything a section needs. Terms and Domains may be
// empty, in which case nothing is linked and every person is external.
type RenderInput struct {
	Message   Message
	Summary   Summary
	DateLink  string
	Subject   string
	UpdatedAt string
	Terms     []string
	Domains   DomainSet
}

// RenderInitial renders the first section of a new page.
func RenderInitial(in RenderInput) string {
	lines := []string{
		"- " + in.DateLink,
		field("Subject", in.Subject),
	}
	lines = append(lines, metadata(in)...)
	lines = append(lines, summarySections(in.Summary, in.Terms)...)
	return finish(lines)
}

// RenderUpdate renders a section appended to an existing page.
func RenderUpdate(in RenderInput) string {
	lines := []string{
		"- " + in.DateLink,
		field("Update for", in.Subject),
	}
	lines = append(lines, metadata(in)...)
	if updated := strings.TrimSpace(in.UpdatedAt); updated != "" {
		lines = append(lines, field("Updated", updated))
	}
	lines = append(lines, summarySections(in.Summary, in.Terms)...)
	return finish(lines)
}

func metadata(in RenderInput) []string {
	lines := []string{field("From", FormatPerson(in.Message.From, in.Domains))}
	if to := FormatRecipients(in.Message.To, in.Domains); to != "" {
		lines = append(lines, field("To", to))
	}
	if received := in.Message.ReceivedAt(); received != "" {
		lines = append(lines, field("Received", received))
	}
	return lines
}

func summarySections(summary Summary, terms []string) []string {
	s := summary.Normalized()
	lines := []string{"\t- **Summary:** " + Link(singleLine(s.Summary), terms)}

	lines = appendList(lines, "Key Points", s.KeyPoints, terms, "")
	lines = appendList(lines, "Context", s.ContextNotes, terms, "")

	todos := make([]string, 0, len(s.Todos))
	for _, todo := range s.Todos {
		if todo = strings.TrimSpace(taskMarker.ReplaceAllString(strings.TrimSpace(todo), "")); todo != "" {
			todos = append(todos, todo)
		}
	}
	return appendList(lines, "Tasks", todos, terms, "TODO ")
}

func appendList(lines []string, heading string, items, terms []string, marker string) []string {
	if len(items) == 0 {
		return lines
	}
	lines = append(lines, "\t- **"+heading+":**")
	for _, item := range items {
		lines = append(lines, "\t\t- "+marker+Link(singleLine(item), terms))
	}
	return lines
}

func field(label, value string) string {
	return "\t- " + label + ": " + singleLine(value)
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func finish(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n")) + "\n"
}
