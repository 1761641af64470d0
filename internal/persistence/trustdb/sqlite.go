// Package trustdb stores the trust relation in SQLite.
package trustdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"gemcraft.ai/internal/gems/model"
)

type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

func OpenSQLite(path string, log zerolog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, log: log}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trust_edges (
			truster TEXT NOT NULL,
			trustee TEXT NOT NULL,
			PRIMARY KEY (truster, trustee)
		);`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key, value) VALUES ('schema_version', '1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Load reads every edge. Rows with unparseable ids are skipped.
func (s *SQLiteStore) Load(ctx context.Context) (map[model.ActorID][]model.ActorID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT truster, trustee FROM trust_edges ORDER BY truster, trustee`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[model.ActorID][]model.ActorID{}
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, err
		}
		truster, err1 := uuid.Parse(a)
		trustee, err2 := uuid.Parse(b)
		if err1 != nil || err2 != nil {
			s.log.Warn().Str("truster", a).Str("trustee", b).Msg("skipping invalid trust row")
			continue
		}
		out[truster] = append(out[truster], trustee)
	}
	return out, rows.Err()
}

// Save replaces the stored relation with edges in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, edges map[model.ActorID][]model.ActorID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trust_edges`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO trust_edges(truster, trustee) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for a, bs := range edges {
		for _, b := range bs {
			if _, err := stmt.ExecContext(ctx, a.String(), b.String()); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// Count returns the number of stored edges.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trust_edges`).Scan(&n)
	return n, err
}
