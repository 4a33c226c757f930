// Package search indexes note pages for full-text lookup. Meilisearch is
// preferred; the Postgres notes table is the fallback when it is down.
package search

import (
	"crypto/sha256"
	"encoding/hex"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	Folder   string `json:"folder"`
	Filename string `json:"filename"`
	Snippet  string `json:"snippet"`
	WebURL   string `json:"webUrl,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Folder string // empty = all folders
	Limit  int
	Offset int
}

// Response is the envelope printed by the search command.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// NoteRecord is the data we index for a note page.
type NoteRecord struct {
	ID        string   `json:"id"`
	Folder    string   `json:"folder"`
	Filename  string   `json:"filename"`
	Subject   string   `json:"subject"`
	Content   string   `json:"content"`
	Topics    []string `json:"topics"`
	WebURL    string   `json:"webUrl,omitempty"`
	UpdatedAt int64    `json:"updatedAt"`
}

// RecordID derives a stable index key from folder and filename. Index keys
// only allow alphanumerics, '-' and '_', so the path is hashed.
func RecordID(folder, filename string) string {
	sum := sha256.Sum256([]byte(folder + "/" + filename))
	return hex.EncodeToString(sum[:16])
}
