package notes

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	linkOpen  = "[["
	linkClose = "]]"
)

type span struct {
	start, end int
}

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

// Link wraps every occurrence of a term in text with [[ ]] page-link
// brackets. Longer terms win over terms they contain, spans inside existing
// links are left alone, and the original casing of the match is kept.
// Linking already linked text with the same terms returns it unchanged.
func Link(text string, terms []string) string {
	if text == "" || len(terms) == 0 {
		return text
	}
	ordered := linkTerms(terms)
	if len(ordered) == 0 {
		return text
	}

	existing := linkRegions(text)
	accepted := make([]span, 0)
	for _, term := range ordered {
		pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(term))
		first, _ := utf8.DecodeRuneInString(term)
		last, _ := utf8.DecodeLastRuneInString(term)
		checkStart, checkEnd := isWordRune(first), isWordRune(last)

		for pos := 0; pos < len(text); {
			loc := pattern.FindStringIndex(text[pos:])
			if loc == nil {
				break
			}
			candidate := span{start: pos + loc[0], end: pos + loc[1]}
			if candidate.end == candidate.start {
				break
			}
			if acceptable(text, candidate, checkStart, checkEnd, existing, accepted) {
				accepted = append(accepted, candidate)
				pos = candidate.end
				continue
			}
			_, size := utf8.DecodeRuneInString(text[candidate.start:])
			pos = candidate.start + size
		}
	}
	if len(accepted) == 0 {
		return text
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].start > accepted[j].start })
	out := text
	for _, s := range accepted {
		out = out[:s.start] + linkOpen + out[s.start:s.end] + linkClose + out[s.end:]
	}
	return out
}

func acceptable(text string, s span, checkStart, checkEnd bool, existing, accepted []span) bool {
	if checkStart && s.start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:s.start])
		if isWordRune(prev) {
			return false
		}
	}
	if checkEnd && s.end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[s.end:])
		if isWordRune(next) {
			return false
		}
	}
	if strings.HasSuffix(text[:s.start], linkOpen) || strings.HasPrefix(text[s.end:], linkClose) {
		return false
	}
	for _, region := range existing {
		if s.overlaps(region) {
			return false
		}
	}
	for _, taken := range accepted {
		if s.overlaps(taken) {
			return false
		}
	}
	return true
}

// linkTerms cleans the term list and orders it longest first. Terms that
// contain brackets could never be linked safely and are dropped.
func linkTerms(terms []string) []string {
	cleaned := make([]string, 0, len(terms))
	for _, term := range dedupeFold(cleanList(terms)) {
		if strings.ContainsAny(term, "[]") {
			continue
		}
		cleaned = append(cleaned, term)
	}
	sort.SliceStable(cleaned, func(i, j int) bool {
		return utf8.RuneCountInString(cleaned[i]) > utf8.RuneCountInString(cleaned[j])
	})
	return cleaned
}

// linkRegions finds the [[...]] spans already present in text.
func linkRegions(text string) []span {
	regions := make([]span, 0)
	for pos := 0; pos < len(text); {
		open := strings.Index(text[pos:], linkOpen)
		if open < 0 {
			break
		}
		start := pos + open
		closing := strings.Index(text[start+len(linkOpen):], linkClose)
		if closing < 0 {
			break
		}
		end := start + len(linkOpen) + closing + len(linkClose)
		regions = append(regions, span{start: start, end: end})
		pos = end
	}
	return regions
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
