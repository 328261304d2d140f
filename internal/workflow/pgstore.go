package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const pgUniqueViolation = "23505"

type PGStore struct {
	db *sql.DB
}

func NewPGStore(dsn string) (*PGStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PGStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return s, nil
}

func (s *PGStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
create table if not exists approval_revisions (
  request_id text not null,
  version int not null,
  state text not null,
  verb text not null,
  actor text not null,
  comment text not null default '',
  created_at timestamptz not null,
  primary key (request_id, version)
);
`)
	return err
}

func (s *PGStore) Commit(ctx context.Context, rev Revision) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	head, err := latestRevision(ctx, tx, `select version, state, verb, actor from approval_revisions
where request_id = $1 order by version desc limit 1`, rev.RequestID)
	if err != nil {
		return err
	}
	if err := checkHead(rev, head); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `insert into approval_revisions (request_id, version, state, verb, actor, comment, created_at)
values ($1,$2,$3,$4,$5,$6,$7)`,
		rev.RequestID, rev.Version, string(rev.State), string(rev.Verb), rev.Actor, rev.Comment, rev.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: request %s version %d already committed", ErrStaleCard, rev.RequestID, rev.Version)
		}
		return err
	}
	return tx.Commit()
}

func (s *PGStore) History(ctx context.Context, requestID string) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx, `select request_id, version, state, verb, actor, comment, created_at
from approval_revisions where request_id=$1 order by version`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Revision
	for rows.Next() {
		var rev Revision
		var state, verb string
		if err := rows.Scan(&rev.RequestID, &rev.Version, &state, &verb, &rev.Actor, &rev.Comment, &rev.CreatedAt); err != nil {
			return nil, err
		}
		rev.State = State(state)
		rev.Verb = Verb(verb)
		rev.CreatedAt = rev.CreatedAt.UTC()
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

func (s *PGStore) Close() error {
	return s.db.Close()
}
