package category

import "strings"

// Advance returns the categories a message should carry once it has been
// recorded: trigger removed and processed added exactly once. The input set
// is not modified, and advancing an already advanced set is a no-op.
func Advance(current Set, trigger, processed string) Set {
	next := NewSet()
	for _, label := range current.items {
		if strings.TrimSpace(label) == strings.TrimSpace(trigger) {
			continue
		}
		next.Add(label)
	}
	next.Add(processed)
	return next
}

// NeedsProcessing reports whether a message carrying current is still
// waiting to be summarized.
func NeedsProcessing(current Set, trigger string) bool {
	return current.ContainsTrimmed(trigger)
}
