// Package category models mailbox category labels as a set and computes the
// trigger -> processed transition applied after a message is recorded.
package category

import "strings"

// Set is an insertion-ordered set of category labels. The zero value is an
// empty set ready to use. Add and Remove replace the backing storage rather
// than editing it, so a copied Set never observes mutations of the other.
type Set struct {
	items []string
	index map[string]struct{}
}

// NewSet builds a set from labels, dropping duplicates and blank labels.
func NewSet(labels ...string) Set {
	var s Set
	for _, label := range labels {
		s.Add(label)
	}
	return s
}

// Add inserts label unless it is blank or already present.
func (s *Set) Add(label string) {
	if strings.TrimSpace(label) == "" || s.Contains(label) {
		return
	}
	index := make(map[string]struct{}, len(s.index)+1)
	for item := range s.index {
		index[item] = struct{}{}
	}
	index[label] = struct{}{}
	items := make([]string, len(s.items), len(s.items)+1)
	copy(items, s.items)
	s.items = append(items, label)
	s.index = index
}

// Remove deletes label if present.
func (s *Set) Remove(label string) {
	if !s.Contains(label) {
		return
	}
	items := make([]string, 0, len(s.items)-1)
	index := make(map[string]struct{}, len(s.items)-1)
	for _, item := range s.items {
		if item != label {
			items = append(items, item)
			index[item] = struct{}{}
		}
	}
	s.items = items
	s.index = index
}

func (s Set) Contains(label string) bool {
	_, ok := s.index[label]
	return ok
}

// ContainsTrimmed reports whether any label equals label once surrounding
// whitespace is ignored on both sides.
func (s Set) ContainsTrimmed(label string) bool {
	want := strings.TrimSpace(label)
	for _, item := range s.items {
		if strings.TrimSpace(item) == want {
			return true
		}
	}
	return false
}

func (s Set) Len() int { return len(s.items) }

// Values returns the labels in insertion order. The slice is a copy and is
// never nil.
func (s Set) Values() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// Equal reports whether both sets hold the same labels, ignoring order.
func (s Set) Equal(o Set) bool {
	if s.Len() != o.Len() {
		return false
	}
	for _, item := range s.items {
		if !o.Contains(item) {
			return false
		}
	}
	return true
}
