package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// SQLiteStore keeps revisions in a single SQLite file. ":memory:" is
// accepted for tests.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one connection keeps ":memory:" a single database
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(`
create table if not exists approval_revisions (
  request_id text not null,
  version integer not null,
  state text not null,
  verb text not null,
  actor text not null,
  comment text not null default '',
  created_at integer not null,
  primary key (request_id, version)
);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Commit(ctx context.Context, rev Revision) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	head, err := latestRevision(ctx, tx, `select version, state, verb, actor from approval_revisions
where request_id = ? order by version desc limit 1`, rev.RequestID)
	if err != nil {
		return err
	}
	if err := checkHead(rev, head); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `insert into approval_revisions (request_id, version, state, verb, actor, comment, created_at)
values (?, ?, ?, ?, ?, ?, ?)`,
		rev.RequestID, rev.Version, string(rev.State), string(rev.Verb), rev.Actor, rev.Comment, rev.CreatedAt.UTC().UnixMilli())
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: request %s version %d already committed", ErrStaleCard, rev.RequestID, rev.Version)
		}
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) History(ctx context.Context, requestID string) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx, `select request_id, version, state, verb, actor, comment, created_at
from approval_revisions where request_id = ? order by version`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Revision
	for rows.Next() {
		var rev Revision
		var state, verb string
		var millis int64
		if err := rows.Scan(&rev.RequestID, &rev.Version, &state, &verb, &rev.Actor, &rev.Comment, &millis); err != nil {
			return nil, err
		}
		rev.State = State(state)
		rev.Verb = Verb(verb)
		rev.CreatedAt = time.UnixMilli(millis).UTC()
		out = append(out, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
