package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Service applies transitions and records them. The card payload stays the
// source of truth; the store only guards versions and keeps history.
type Service struct {
	store    Store
	notifier *Notifier
	logger   *zap.Logger

	background sync.WaitGroup
}

func NewService(store Store, notifier *Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, notifier: notifier, logger: logger}
}

// Start registers a new request submitted from the compose form.
func (s *Service) Start(ctx context.Context, from, title, description string, approvers []string) (Request, error) {
	req, err := NewRequest(from, title, description, approvers)
	if err != nil {
		return Request{}, err
	}
	rev := revisionOf(req, VerbSubmit, from, "")
	if err := s.store.Commit(ctx, rev); err != nil {
		return Request{}, fmt.Errorf("commit request %s: %w", req.ID, err)
	}
	s.logger.Info("approval request started",
		zap.String("request_id", req.ID),
		zap.String("from", req.From),
		zap.Int("approvers", len(req.Approvers)))
	s.notify(ctx, req, rev)
	return req, nil
}

// Advance applies act to req. Refreshes are answered without touching the
// store; every other verb must win the version compare-and-swap.
func (s *Service) Advance(ctx context.Context, req Request, act Action) (Outcome, error) {
	out, err := Apply(req, act)
	if err != nil {
		return Outcome{}, err
	}
	if act.Verb == VerbRefresh {
		return out, nil
	}
	if out.Request.ID == "" {
		out.Request.ID = newID()
	}
	rev := revisionOf(out.Request, act.Verb, act.Actor, act.Comment)
	err = s.store.Commit(ctx, rev)
	if errors.Is(err, ErrReplayed) {
		s.logger.Info("approval click replayed",
			zap.String("request_id", rev.RequestID),
			zap.Int("version", rev.Version),
			zap.String("actor", act.Actor))
		return out, nil
	}
	if err != nil {
		if errors.Is(err, ErrStaleCard) {
			s.logger.Warn("stale approval card",
				zap.String("request_id", rev.RequestID),
				zap.Int("version", rev.Version),
				zap.String("actor", act.Actor))
		}
		return Outcome{}, fmt.Errorf("commit request %s: %w", rev.RequestID, err)
	}
	s.logger.Info("approval request advanced",
		zap.String("request_id", rev.RequestID),
		zap.String("verb", string(act.Verb)),
		zap.String("state", string(out.Request.State)),
		zap.Int("version", rev.Version))
	s.notify(ctx, out.Request, rev)
	return out, nil
}

// notify reports rev off the request path so a slow sink never delays the
// invoke answer.
func (s *Service) notify(ctx context.Context, req Request, rev Revision) {
	if s.notifier == nil {
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.notifier.Transition(context.WithoutCancel(ctx), req, rev)
	}()
}

// Wait blocks until pending transition events have been delivered or
// dropped.
func (s *Service) Wait() {
	s.background.Wait()
}

func (s *Service) History(ctx context.Context, requestID string) ([]Revision, error) {
	return s.store.History(ctx, requestID)
}
