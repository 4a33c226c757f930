package notes

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	NoSubject        = "No subject"
	untitled         = "untitled"
	maxFilenameRunes = 180
	// Extension is appended to every page filename.
	Extension = ".md"
	// most filesystems cap a name at 255 bytes
	maxFilenameBytes = 255 - len(Extension)
)

var (
	replyPrefix   = regexp.MustCompile(`(?i)^\s*(re|fw|fwd|aw|wg|sv|antw)\s*:\s*`)
	bracketPrefix = regexp.MustCompile(`^\s*\[[^\]]*\]\s*`)
)

// NormalizeSubject strips reply/forward prefixes and one bracketed tag
// (for example "[Ext]") from the start of a subject line. The cycle repeats
// until nothing changes so the result is stable under re-normalization.
func NormalizeSubject(raw string) string {
	cleaned := strings.TrimSpace(raw)
	for {
		before := cleaned
		for {
			next := replyPrefix.ReplaceAllString(cleaned, "")
			if next == cleaned {
				break
			}
			cleaned = next
		}
		cleaned = strings.TrimSpace(bracketPrefix.ReplaceAllString(cleaned, ""))
		if cleaned == before {
			break
		}
	}
	if cleaned == "" {
		return NoSubject
	}
	return cleaned
}

// SanitizeName makes a subject safe to use as a file or object name.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case strings.ContainsRune(`\/:*?"<>|`, r):
			b.WriteRune('-')
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsControl(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.Join(strings.Fields(b.String()), " ")
	if utf8.RuneCountInString(cleaned) > maxFilenameRunes {
		cleaned = string([]rune(cleaned)[:maxFilenameRunes])
	}
	if len(cleaned) > maxFilenameBytes {
		cut := maxFilenameBytes
		for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
			cut--
		}
		cleaned = cleaned[:cut]
	}
	return strings.TrimSpace(cleaned)
}

// ToFilename maps a normalized subject to its page filename: the sanitized
// subject plus Extension. It is a pure function, so repeated runs converge
// on one page per thread.
func ToFilename(subject string) string {
	base := SanitizeName(subject)
	if base == "" {
		base = untitled
	}
	return base + Extension
}
