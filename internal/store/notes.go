package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/michellemayes/logseq-assistant/internal/notes"
	"github.com/michellemayes/logseq-assistant/internal/util"
)

var ErrDocumentNotFound = errors.New("document not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) FindByName(ctx context.Context, folder, filename string) (notes.Document, bool, error) {
	doc := notes.Document{Folder: folder, Filename: filename}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, content FROM notes WHERE folder=$1 AND filename=$2
	`, folder, filename).Scan(&doc.ID, &doc.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return notes.Document{}, false, nil
	}
	if err != nil {
		return notes.Document{}, false, fmt.Errorf("find note %q: %w", filename, err)
	}
	return doc, true, nil
}

func (s *PostgresStore) Create(ctx context.Context, folder, filename, content string) (notes.Document, error) {
	doc := notes.Document{ID: util.NewID("note"), Folder: folder, Filename: filename, Content: content}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, folder, filename, content)
		VALUES ($1, $2, $3, $4)
	`, doc.ID, folder, filename, content)
	if err != nil {
		return notes.Document{}, fmt.Errorf("insert note %q: %w", filename, err)
	}
	return doc, nil
}

func (s *PostgresStore) Update(ctx context.Context, id, content string) (notes.Document, error) {
	doc := notes.Document{ID: id, Content: content}
	err := s.db.QueryRowContext(ctx, `
		UPDATE notes SET content=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING folder, filename
	`, id, content).Scan(&doc.Folder, &doc.Filename)
	if errors.Is(err, sql.ErrNoRows) {
		return notes.Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return notes.Document{}, fmt.Errorf("update note %s: %w", id, err)
	}
	return doc, nil
}

func (s *PostgresStore) ReadContent(ctx context.Context, id string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM notes WHERE id=$1`, id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrDocumentNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read note %s: %w", id, err)
	}
	return content, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
