package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "errtoast/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db   *sql.DB
	log  logx.Logger
	path string
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, path: path}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadIgnored(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT signature FROM ignored ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveIgnored(ctx context.Context, signatures []string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ignored`); err != nil {
		return err
	}
	for i, sig := range signatures {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ignored(position, signature) VALUES(?, ?)
			 ON CONFLICT(signature) DO NOTHING`, i, sig); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) LoadPinned(ctx context.Context, origin string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	var snap string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM pinned WHERE origin = ?`, origin).Scan(&snap)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(snap), nil
}

func (s *sqliteStore) SavePinned(ctx context.Context, origin string, blob []byte) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if len(blob) == 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM pinned WHERE origin = ?`, origin)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pinned(origin, snapshot, updated_at) VALUES(?,?,?)
		 ON CONFLICT(origin) DO UPDATE SET snapshot=excluded.snapshot, updated_at=excluded.updated_at`,
		origin, string(blob), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Watch observes the database and its WAL. Pinned writes also touch these
// files, so onChange may fire without an ignore-list change; callers reload
// idempotently.
func (s *sqliteStore) Watch(ctx context.Context, onChange func()) error {
	base := filepath.Base(s.path)
	return watchFiles(ctx, filepath.Dir(s.path), []string{base, base + "-wal"}, onChange, s.log)
}
