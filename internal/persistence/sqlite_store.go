package persistence

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/MimeLyc/skill-translator/internal/cache"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	recordsTable = "translation_records"
	// keeps IN (...) lists well under SQLite's bound-variable limit
	batchChunkSize = 500
)

var recordColumns = []string{
	"subject_id",
	"field",
	"target_lang",
	"engine_id",
	"engine_version",
	"source_hash",
	"translated_text",
	"status",
	"error",
	"created_at",
	"updated_at",
}

// SQLiteStore is a cache.Store backed by a single SQLite database file.
// DeleteAll swaps db, so every method holds mu.
type SQLiteStore struct {
	path string
	mu   sync.RWMutex
	db   *sql.DB
	sq   sq.StatementBuilderType
}

var _ cache.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := openDB(context.Background(), path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{path: path, db: db, sq: sq.StatementBuilder}, nil
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) conn() (*sql.DB, error) {
	if s.db == nil {
		return nil, fmt.Errorf("sqlite store is closed")
	}
	return s.db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) TryGet(ctx context.Context, key cache.Key) (cache.Record, bool, error) {
	query, args, err := s.sq.Select(recordColumns...).
		From(recordsTable).
		Where(sq.Eq{"cache_key": key.String()}).
		Limit(1).
		ToSql()
	if err != nil {
		return cache.Record{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.conn()
	if err != nil {
		return cache.Record{}, false, err
	}
	record, err := scanRecord(db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cache.Record{}, false, nil
		}
		return cache.Record{}, false, err
	}
	return record, true, nil
}

func (s *SQLiteStore) GetBatch(ctx context.Context, keys []cache.Key) (map[cache.Key]cache.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	ret := make(map[cache.Key]cache.Record, len(keys))
	for start := 0; start < len(keys); start += batchChunkSize {
		end := min(start+batchChunkSize, len(keys))

		cacheKeys := make([]string, 0, end-start)
		for _, key := range keys[start:end] {
			cacheKeys = append(cacheKeys, key.String())
		}

		query, args, err := s.sq.Select(recordColumns...).
			From(recordsTable).
			Where(sq.Eq{"cache_key": cacheKeys}).
			ToSql()
		if err != nil {
			return nil, err
		}
		if err := collect(ctx, db, query, args, ret); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func collect(ctx context.Context, db *sql.DB, query string, args []any, into map[cache.Key]cache.Record) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return err
		}
		into[record.Key()] = record
	}
	return rows.Err()
}

func (s *SQLiteStore) Upsert(ctx context.Context, record cache.Record) error {
	return s.UpsertMany(ctx, []cache.Record{record})
}

// UpsertMany writes all records in one transaction.
func (s *SQLiteStore) UpsertMany(ctx context.Context, records []cache.Record) error {
	for _, record := range records {
		if err := record.Validate(); err != nil {
			return err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, record := range records {
		query, args, err := s.sq.Insert(recordsTable).
			Columns(append([]string{"cache_key"}, recordColumns...)...).
			Values(
				record.Key().String(),
				record.SubjectID,
				record.Field,
				record.TargetLang,
				record.EngineID,
				record.EngineVersion,
				record.SourceHash,
				record.TranslatedText,
				string(record.Status),
				record.Error,
				record.CreatedAt.UTC(),
				record.UpdatedAt.UTC(),
			).
			Suffix(`ON CONFLICT(cache_key) DO UPDATE SET
				translated_text=excluded.translated_text,
				status=excluded.status,
				error=excluded.error,
				created_at=excluded.created_at,
				updated_at=excluded.updated_at`).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert %s: %w", record.Key(), err)
		}
	}
	return tx.Commit()
}

// DeleteAll removes the database file and its WAL sidecars, then recreates
// an empty, migrated database at the same path.
func (s *SQLiteStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("sqlite store is closed")
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	s.db = nil
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(s.path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", s.path+suffix, err)
		}
	}

	db, err := openDB(ctx, s.path)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (cache.Record, error) {
	var r cache.Record
	var status string
	if err := row.Scan(
		&r.SubjectID,
		&r.Field,
		&r.TargetLang,
		&r.EngineID,
		&r.EngineVersion,
		&r.SourceHash,
		&r.TranslatedText,
		&status,
		&r.Error,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		return cache.Record{}, err
	}
	r.Status = cache.Status(status)
	return r, nil
}
