package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	errs "mediakeeper/pkg/errors"
	"mediakeeper/pkg/logger"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexically
const timeLayout = "2006-01-02 15:04:05.000000000"

// Store persists media records and pending summary deletions in SQLite
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// Open opens (creating if needed) the database at path and migrates it
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer; also keeps an in-memory database on one connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	version, dirty, err := RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.DebugWithFields("Database ready", map[string]interface{}{
		"path":    path,
		"version": int(version),
		"dirty":   dirty,
	})

	return &Store{db: db, logger: log}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts rec or replaces the row sharing its filename or URL
func (s *Store) Upsert(ctx context.Context, kind Kind, rec *MediaRecord) error {
	table, err := kind.table()
	if err != nil {
		return err
	}
	if rec.Filename == "" || rec.URL == "" {
		return errs.New(errs.ErrorTypeMalformedItem, 0, "record requires filename and url")
	}
	if rec.SavedAt.IsZero() {
		rec.SavedAt = time.Now()
	}

	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (
			filename, url, thumbnail_url, origin_url, post_id, post_url,
			created_at, author_id, author_name, author_handle, caption,
			media_kind, saved_path, saved_at, is_exist
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, table)

	_, err = s.db.ExecContext(ctx, query,
		rec.Filename, rec.URL, rec.ThumbnailURL, rec.OriginURL, rec.PostID, rec.PostURL,
		formatTime(rec.CreatedAt), rec.AuthorID, rec.AuthorName, rec.AuthorHandle, rec.Caption,
		rec.MediaKind, rec.SavedPath, formatTime(rec.SavedAt), boolToInt(true),
	)
	if err != nil {
		if isConstraintError(err) {
			return errs.Wrap(errs.ErrorTypeStorageConflict, err, "record already stored: "+rec.Filename)
		}
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

const recordColumns = `id, filename, url, thumbnail_url, origin_url, post_id, post_url,
	created_at, author_id, author_name, author_handle, caption,
	media_kind, saved_path, saved_at, is_exist`

// SelectRecent returns up to limit records, newest saved first
func (s *Store) SelectRecent(ctx context.Context, kind Kind, limit int) ([]MediaRecord, error) {
	table, err := kind.table()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s ORDER BY saved_at DESC, id DESC LIMIT ?`, recordColumns, table), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []MediaRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// SelectByFilename returns the record for filename, or nil when none exists
func (s *Store) SelectByFilename(ctx context.Context, kind Kind, filename string) (*MediaRecord, error) {
	table, err := kind.table()
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE filename = ?`, recordColumns, table), filename)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// Count returns the number of records in a collection
func (s *Store) Count(ctx context.Context, kind Kind) (int, error) {
	table, err := kind.table()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// ClearExistFlags resets is_exist for every record of kind
func (s *Store) ClearExistFlags(ctx context.Context, kind Kind) error {
	table, err := kind.table()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET is_exist = 0`, table)); err != nil {
		return fmt.Errorf("failed to clear exist flags: %w", err)
	}
	return nil
}

// MarkExisting sets is_exist for the given filenames in one transaction
func (s *Store) MarkExisting(ctx context.Context, kind Kind, filenames []string) error {
	table, err := kind.table()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`UPDATE %s SET is_exist = 1 WHERE filename = ?`, table))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, name := range filenames {
		if _, err := stmt.ExecContext(ctx, name); err != nil {
			return fmt.Errorf("failed to mark %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// AddPending records a posted summary for later deletion
func (s *Store) AddPending(ctx context.Context, p PendingTarget) error {
	if p.PostID == "" {
		return errs.New(errs.ErrorTypeMalformedItem, 0, "pending target requires a post id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_deletions (post_id, created_at, body, added_count, removed_count, delete_done)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT (post_id) DO NOTHING`,
		p.PostID, formatTime(p.CreatedAt), p.Body, p.Added, p.Removed)
	if err != nil {
		return fmt.Errorf("failed to add pending deletion: %w", err)
	}
	return nil
}

// SelectDuePending returns open targets created strictly before cutoff
func (s *Store) SelectDuePending(ctx context.Context, cutoff time.Time) ([]PendingTarget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, created_at, deleted_at, body, added_count, removed_count, delete_done
		FROM pending_deletions
		WHERE delete_done = 0 AND created_at < ?
		ORDER BY created_at`, formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending deletions: %w", err)
	}
	defer rows.Close()

	var out []PendingTarget
	for rows.Next() {
		var (
			p         PendingTarget
			created   string
			deletedAt sql.NullString
			done      int
		)
		if err := rows.Scan(&p.PostID, &created, &deletedAt, &p.Body, &p.Added, &p.Removed, &done); err != nil {
			return nil, fmt.Errorf("failed to scan pending deletion: %w", err)
		}
		p.CreatedAt = parseTime(created)
		if deletedAt.Valid {
			t := parseTime(deletedAt.String)
			p.DeletedAt = &t
		}
		p.DeleteDone = done != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkPendingDeleted closes a target. Closing is one-way: an already closed
// target keeps its original deletion time.
func (s *Store) MarkPendingDeleted(ctx context.Context, postID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_deletions SET delete_done = 1, deleted_at = ?
		WHERE post_id = ? AND delete_done = 0`, formatTime(at), postID)
	if err != nil {
		return fmt.Errorf("failed to mark pending deletion: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*MediaRecord, error) {
	var (
		rec              MediaRecord
		created, savedAt string
		exists           int
	)
	err := row.Scan(&rec.ID, &rec.Filename, &rec.URL, &rec.ThumbnailURL, &rec.OriginURL,
		&rec.PostID, &rec.PostURL, &created, &rec.AuthorID, &rec.AuthorName, &rec.AuthorHandle,
		&rec.Caption, &rec.MediaKind, &rec.SavedPath, &savedAt, &exists)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	rec.CreatedAt = parseTime(created)
	rec.SavedAt = parseTime(savedAt)
	rec.Exists = exists != 0
	return &rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isConstraintError(err error) bool {
	return strings.Contains(err.Error(), "constraint failed")
}
