package store

import (
	"context"
	"fmt"
)

// AppendJournal records one processing outcome. The table rejects updates
// and deletes.
func (s *PostgresStore) AppendJournal(ctx context.Context, entry JournalEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_log (run_id, message_id, subject, filename, outcome, stage, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.RunID, entry.MessageID, entry.Subject, entry.Filename, entry.Outcome, entry.Stage, entry.Detail)
	if err != nil {
		return fmt.Errorf("insert processing log: %w", err)
	}
	return nil
}

// ListJournal returns the newest entries first. An empty runID lists
// across runs.
func (s *PostgresStore) ListJournal(ctx context.Context, runID string, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, message_id, subject, filename, outcome, stage, detail, processed_at
		FROM processing_log
		WHERE run_id=$1 OR $1=''
		ORDER BY processed_at DESC, id DESC
		LIMIT $2
	`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("list processing log: %w", err)
	}
	defer rows.Close()

	items := make([]JournalEntry, 0)
	for rows.Next() {
		var item JournalEntry
		if err := rows.Scan(
			&item.ID,
			&item.RunID,
			&item.MessageID,
			&item.Subject,
			&item.Filename,
			&item.Outcome,
			&item.Stage,
			&item.Detail,
			&item.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("scan processing log: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processing log: %w", err)
	}
	return items, nil
}
