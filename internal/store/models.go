package store

import "time"

// Journal outcomes.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeFailed  = "failed"
)

// JournalEntry is one row of the append-only processing log.
type JournalEntry struct {
	ID          int64     `json:"id"`
	RunID       string    `json:"runId"`
	MessageID   string    `json:"messageId"`
	Subject     string    `json:"subject"`
	Filename    string    `json:"filename"`
	Outcome     string    `json:"outcome"`
	Stage       string    `json:"stage,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	ProcessedAt time.Time `json:"processedAt"`
}
