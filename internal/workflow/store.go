package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ronappleton/teams-approval-bot/internal/config"
)

// Store records request revisions. Commit is a compare-and-swap: a revision
// is accepted only when it directly follows the latest committed version of
// its request, or when the request has never been seen.
type Store interface {
	Commit(ctx context.Context, rev Revision) error
	History(ctx context.Context, requestID string) ([]Revision, error)
	Close() error
}

// NewStore opens the store selected by cfg.Driver.
func NewStore(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres", "pgx":
		return NewPGStore(cfg.DSN)
	case "sqlite":
		return NewSQLiteStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// checkHead enforces the version sequence given the latest committed
// revision, a zero Version meaning none. A revision equal to the head is a
// replay of the click that produced it and reports ErrReplayed.
func checkHead(rev, head Revision) error {
	if rev.RequestID == "" {
		return fmt.Errorf("%w: request id is empty", ErrInvalidRequest)
	}
	if rev.Version < 1 {
		return fmt.Errorf("%w: version %d", ErrInvalidRequest, rev.Version)
	}
	if head.Version == 0 || rev.Version == head.Version+1 {
		return nil
	}
	if sameClick(rev, head) {
		return ErrReplayed
	}
	return fmt.Errorf("%w: card for request %s is based on version %d, latest is %d",
		ErrStaleCard, rev.RequestID, rev.Version-1, head.Version)
}

func sameClick(a, b Revision) bool {
	return a.Version == b.Version && a.Verb == b.Verb && a.Actor == b.Actor && a.State == b.State
}

// latestRevision reads the head revision with query, which selects
// version, state, verb and actor. No rows gives the zero Revision.
func latestRevision(ctx context.Context, tx *sql.Tx, query, requestID string) (Revision, error) {
	var head Revision
	var state, verb string
	err := tx.QueryRowContext(ctx, query, requestID).Scan(&head.Version, &state, &verb, &head.Actor)
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, nil
	}
	if err != nil {
		return Revision{}, err
	}
	head.RequestID = requestID
	head.State = State(state)
	head.Verb = Verb(verb)
	return head, nil
}

type MemoryStore struct {
	mu        sync.RWMutex
	revisions map[string][]Revision
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{revisions: map[string][]Revision{}}
}

func (s *MemoryStore) Commit(_ context.Context, rev Revision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.revisions[rev.RequestID]
	var head Revision
	if n := len(existing); n > 0 {
		head = existing[n-1]
	}
	if err := checkHead(rev, head); err != nil {
		return err
	}
	s.revisions[rev.RequestID] = append(existing, rev)
	return nil
}

func (s *MemoryStore) History(_ context.Context, requestID string) ([]Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	revs, ok := s.revisions[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	out := append([]Revision(nil), revs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
