// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides upload ledger persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout has a fixed-width fraction so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS uploads (
			upload_id        TEXT PRIMARY KEY,
			conversation_key TEXT NOT NULL,
			identifier       TEXT NOT NULL,
			image_ref        TEXT NOT NULL,
			filename         TEXT NOT NULL,
			location         TEXT NOT NULL,
			backend          TEXT NOT NULL,
			size_bytes       INTEGER NOT NULL DEFAULT 0,
			created_at       TEXT NOT NULL,

			CHECK (length(identifier) = 5)
		);

		CREATE INDEX IF NOT EXISTS idx_uploads_created ON uploads(created_at);
		CREATE INDEX IF NOT EXISTS idx_uploads_identifier ON uploads(identifier);
		CREATE INDEX IF NOT EXISTS idx_uploads_conversation ON uploads(conversation_key);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveUpload inserts a new upload record.
func (s *SQLiteStore) SaveUpload(ctx context.Context, upload *Upload) error {
	query := `
		INSERT INTO uploads (
			upload_id, conversation_key, identifier, image_ref,
			filename, location, backend, size_bytes, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		upload.ID,
		upload.ConversationKey,
		upload.Identifier,
		upload.ImageRef,
		upload.Filename,
		upload.Location,
		upload.Backend,
		upload.SizeBytes,
		upload.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateUpload
		}
		return fmt.Errorf("inserting upload: %w", err)
	}

	s.logger.Debug("saved upload",
		"upload_id", upload.ID,
		"identifier", upload.Identifier,
		"filename", upload.Filename,
	)
	return nil
}

// GetUpload retrieves an upload by id.
func (s *SQLiteStore) GetUpload(ctx context.Context, id string) (*Upload, error) {
	query := `
		SELECT upload_id, conversation_key, identifier, image_ref,
		       filename, location, backend, size_bytes, created_at
		FROM uploads
		WHERE upload_id = ?
	`

	upload, err := scanUpload(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return upload, nil
}

// filterClause returns the WHERE conditions for filter, ignoring Limit.
func filterClause(filter UploadFilter) (string, []any) {
	clause := " WHERE 1=1"
	args := []any{}

	if filter.Identifier != "" {
		clause += " AND identifier = ?"
		args = append(args, filter.Identifier)
	}
	if filter.ConversationKey != "" {
		clause += " AND conversation_key = ?"
		args = append(args, filter.ConversationKey)
	}
	return clause, args
}

// ListUploads returns uploads newest first, narrowed by filter.
func (s *SQLiteStore) ListUploads(ctx context.Context, filter UploadFilter) ([]*Upload, error) {
	where, args := filterClause(filter)
	query := `
		SELECT upload_id, conversation_key, identifier, image_ref,
		       filename, location, backend, size_bytes, created_at
		FROM uploads` + where

	query += " ORDER BY created_at DESC, upload_id DESC LIMIT ?"
	args = append(args, clampLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying uploads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var uploads []*Upload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating upload rows: %w", err)
	}

	return uploads, nil
}

// CountUploads returns the number of recorded uploads matching filter.
func (s *SQLiteStore) CountUploads(ctx context.Context, filter UploadFilter) (int, error) {
	where, args := filterClause(filter)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploads`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting uploads: %w", err)
	}
	return n, nil
}

// Ping checks that the database answers.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(row rowScanner) (*Upload, error) {
	var u Upload
	var createdAt string

	err := row.Scan(
		&u.ID,
		&u.ConversationKey,
		&u.Identifier,
		&u.ImageRef,
		&u.Filename,
		&u.Location,
		&u.Backend,
		&u.SizeBytes,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning upload: %w", err)
	}

	u.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}

	return &u, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
