package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS searches the Postgres notes table with full-text search.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; the notes backend fails first when Postgres
// is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks pages with plainto_tsquery and ts_rank and uses ts_headline
// for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "n.fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if q.Folder != "" {
		where += " AND n.folder = $2"
		args = append(args, q.Folder)
	}

	ctx := context.Background()
	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM notes n WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT n.id, n.folder, n.filename,
			ts_headline('english', n.content, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30,StartSel=**,StopSel=**') AS snippet
		FROM notes n
		WHERE %s
		ORDER BY ts_rank(n.fts, plainto_tsquery('english', $1)) DESC, n.updated_at DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Folder, &r.Filename, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgfts iterate: %w", err)
	}
	return results, total, nil
}
