package notes

import (
	"fmt"
	"strings"
	"time"
)

// Merge appends section to existing content separated by a blank line.
// Existing content is only right-trimmed, never parsed or rewritten.
func Merge(existing, section string) string {
	return MergeWith(existing, section, "")
}

// MergeWith is Merge with an optional separator line (for example "---")
// placed between blank lines.
func MergeWith(existing, section, separator string) string {
	head := strings.TrimRight(existing, " \t\r\n")
	body := strings.TrimSpace(section)
	if strings.TrimSpace(head) == "" {
		return body + "\n"
	}
	if body == "" {
		return head + "\n"
	}
	if separator = strings.TrimSpace(separator); separator != "" {
		return head + "\n\n" + separator + "\n\n" + body + "\n"
	}
	return head + "\n\n" + body + "\n"
}

// PageHeader renders the page property block written at the top of new
// pages, e.g. "tags:: email". It is empty when no tags are given.
func PageHeader(tags []string) string {
	cleaned := cleanList(tags)
	if len(cleaned) == 0 {
		return ""
	}
	return "tags:: " + strings.Join(cleaned, ", ") + "\n"
}

// NewPage composes the content of a page that does not exist yet.
func NewPage(tags []string, section string) string {
	return Merge(PageHeader(tags), section)
}

// DateLink renders t as a journal page link such as "[[Oct 19th, 2026]]".
func DateLink(t time.Time) string {
	return fmt.Sprintf("[[%s %s, %d]]", t.Format("Jan"), ordinal(t.Day()), t.Year())
}

// RunTimestamp renders t to the second without a zone, e.g.
// "2026-10-19T08:30:00".
func RunTimestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05")
}

func ordinal(day int) string {
	suffix := "th"
	if day%100 < 11 || day%100 > 13 {
		switch day % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", day, suffix)
}
