package notes

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalizeSubject(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "reply and tag", raw: "RE: [Ext] Budget review", want: "Budget review"},
		{name: "prefix chain", raw: "Re: Re: Fwd: FW: Launch plan", want: "Launch plan"},
		{name: "localized prefixes", raw: "AW: WG: SV: Angebot", want: "Angebot"},
		{name: "prefix after tag", raw: "[Ext] RE: Budget", want: "Budget"},
		{name: "spaced colon", raw: "re : hello", want: "hello"},
		{name: "empty", raw: "", want: NoSubject},
		{name: "whitespace", raw: "   ", want: NoSubject},
		{name: "prefix only", raw: "Re: ", want: NoSubject},
		{name: "tag only", raw: "[External]", want: NoSubject},
		{name: "word starting with re", raw: "Request: access", want: "Request: access"},
		{name: "plain", raw: "Quarterly numbers", want: "Quarterly numbers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeSubject(tt.raw); got != tt.want {
				t.Fatalf("NormalizeSubject(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeSubjectIsIdempotent(t *testing.T) {
	inputs := []string{
		"RE: [Ext] Budget review",
		"[A] [B] Re: x",
		"Re: [Ext] Re: [Int] nested",
		"Fwd:",
		"  spaced   subject  ",
		"[unterminated bracket",
	}
	for _, input := range inputs {
		once := NormalizeSubject(input)
		if twice := NormalizeSubject(once); twice != once {
			t.Fatalf("NormalizeSubject not idempotent for %q: %q then %q", input, once, twice)
		}
	}
}

func TestToFilename(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		want    string
	}{
		{name: "scenario", subject: NormalizeSubject("RE: [Ext] Budget review"), want: "Budget review.md"},
		{name: "reserved characters", subject: `a\b/c:d*e?f"g<h>i|j`, want: "a-b-c-d-e-f-g-h-i-j.md"},
		{name: "whitespace runs", subject: "  many \t spaces\nhere ", want: "many spaces here.md"},
		{name: "empty", subject: "", want: "untitled.md"},
		{name: "subject ending in extension", subject: "Report.md", want: "Report.md.md"},
		{name: "multibyte subject fits a filesystem name", subject: strings.Repeat("予", 180), want: strings.Repeat("予", 84) + ".md"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToFilename(tt.subject); got != tt.want {
				t.Fatalf("ToFilename(%q) = %q, want %q", tt.subject, got, tt.want)
			}
		})
	}
}

func TestToFilenameBoundsAndIdempotence(t *testing.T) {
	inputs := []string{
		strings.Repeat("word ", 100),
		strings.Repeat("é", 400),
		strings.Repeat("a", 179) + "  b",
		`<<<>>>|||***`,
		"Re: status",
		strings.Repeat("日本語 ", 90),
		strings.Repeat("😀", 200),
	}
	for _, input := range inputs {
		name := ToFilename(input)
		base := strings.TrimSuffix(name, Extension)
		if n := utf8.RuneCountInString(base); n > maxFilenameRunes {
			t.Fatalf("filename base has %d runes, want <= %d", n, maxFilenameRunes)
		}
		if len(name) > 255 {
			t.Fatalf("filename is %d bytes, want <= 255", len(name))
		}
		if !utf8.ValidString(name) {
			t.Fatalf("filename %q is not valid UTF-8", name)
		}
		if strings.ContainsAny(name, `\/:*?"<>|`) {
			t.Fatalf("filename %q contains reserved characters", name)
		}
		if again := SanitizeName(base); again != base {
			t.Fatalf("SanitizeName not idempotent: %q then %q", base, again)
		}
	}
}
