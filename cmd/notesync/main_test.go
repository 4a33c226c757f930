package main

import (
	"testing"

	"github.com/michellemayes/logseq-assistant/internal/config"
	"github.com/michellemayes/logseq-assistant/internal/store"
)

func TestFullTextFallbackFollowsNotesBackend(t *testing.T) {
	pg := store.NewPostgresStore(nil)

	tests := []struct {
		name    string
		backend string
		pg      *store.PostgresStore
		want    bool
	}{
		{name: "postgres notes", backend: "postgres", pg: pg, want: true},
		{name: "drive notes", backend: "drive", pg: pg},
		{name: "git notes", backend: "git", pg: pg},
		{name: "s3 notes", backend: "s3", pg: pg},
		{name: "no database", backend: "postgres"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fullTextFallback(config.Config{NotesBackend: tt.backend}, tt.pg)
			if (got != nil) != tt.want {
				t.Fatalf("fullTextFallback() = %v, want backend %v", got, tt.want)
			}
		})
	}
}
