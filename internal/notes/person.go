package notes

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DomainSet is the lower-cased allow-list of internal mail domains.
type DomainSet []string

// NewDomainSet lower-cases and trims the given domains, dropping empties and
// leading "@" or "." characters.
func NewDomainSet(domains ...string) DomainSet {
	set := make(DomainSet, 0, len(domains))
	seen := make(map[string]struct{}, len(domains))
	for _, domain := range domains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		domain = strings.TrimLeft(domain, "@.")
		if domain == "" {
			continue
		}
		if _, ok := seen[domain]; ok {
			continue
		}
		seen[domain] = struct{}{}
		set = append(set, domain)
	}
	return set
}

// IsInternal reports whether address belongs to one of the domains or to a
// sub-domain of one of them. Addresses without a local part or domain never
// match.
func (d DomainSet) IsInternal(address string) bool {
	local, domain, ok := splitAddress(address)
	if !ok || local == "" || domain == "" {
		return false
	}
	domain = strings.ToLower(domain)
	for _, allowed := range d {
		if domain == allowed || strings.HasSuffix(domain, "."+allowed) {
			return true
		}
	}
	return false
}

// FormatPerson renders an identity as a "[[First L]]" page link for internal
// addresses, or as a plain label otherwise.
func FormatPerson(p Person, domains DomainSet) string {
	name := strings.TrimSpace(p.Name)
	address := strings.TrimSpace(p.Address)

	if domains.IsInternal(address) {
		return "[[" + internalLabel(name, address) + "]]"
	}

	switch {
	case name != "" && address != "" && !strings.EqualFold(name, address):
		return name + " (" + address + ")"
	case name != "":
		return name
	case address != "":
		return address
	default:
		return "Unknown"
	}
}

// FormatRecipients formats each recipient and joins them with ", ".
func FormatRecipients(people []Person, domains DomainSet) string {
	parts := make([]string, 0, len(people))
	for _, p := range people {
		parts = append(parts, FormatPerson(p, domains))
	}
	return strings.Join(parts, ", ")
}

func internalLabel(name, address string) string {
	local, _, _ := splitAddress(address)
	display := name
	if display == "" {
		display = local
	}

	tokens := strings.FieldsFunc(display, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})
	if len(tokens) >= 2 {
		return shortName(tokens[0], tokens[len(tokens)-1])
	}

	parts := make([]string, 0, 2)
	for _, part := range strings.Split(local, ".") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	switch len(parts) {
	case 0:
		return local
	case 1:
		return capitalize(parts[0])
	default:
		return shortName(parts[0], parts[len(parts)-1])
	}
}

func shortName(first, last string) string {
	initial, _ := utf8.DecodeRuneInString(last)
	return capitalize(first) + " " + string(unicode.ToUpper(initial))
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func splitAddress(address string) (local, domain string, ok bool) {
	at := strings.Index(address, "@")
	if at < 0 {
		return "", "", false
	}
	return address[:at], address[at+1:], true
}
