package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ronappleton/teams-approval-bot/internal/config"
)

// Notifier posts transition events to the audit log and the event bus. A nil
// Notifier or an empty URL turns the matching sink off.
type Notifier struct {
	auditURL    string
	eventBusURL string
	client      *http.Client
	logger      *zap.Logger
}

func NewNotifier(cfg config.NotifyConfig, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		auditURL:    cfg.AuditURL,
		eventBusURL: cfg.EventBusURL,
		client:      &http.Client{Timeout: config.ParseDuration(cfg.Timeout, 5*time.Second)},
		logger:      logger,
	}
}

// Transition reports a committed revision of req.
func (n *Notifier) Transition(ctx context.Context, req Request, rev Revision) {
	if n == nil {
		return
	}
	payload := map[string]any{
		"event":      "approval." + string(rev.Verb),
		"request_id": req.ID,
		"version":    req.Version,
		"state":      req.State,
		"from":       req.From,
		"title":      req.Title,
		"actor":      rev.Actor,
		"remaining":  len(req.Approvers),
		"ts":         rev.CreatedAt.UTC().Format(time.RFC3339),
	}
	if n.auditURL != "" {
		n.post(ctx, n.auditURL+"/v1/events", payload)
	}
	if n.eventBusURL != "" {
		n.post(ctx, n.eventBusURL+"/v1/events", map[string]any{
			"topic":   payload["event"],
			"payload": payload,
		})
	}
}

func (n *Notifier) post(ctx context.Context, url string, body map[string]any) {
	if err := n.postJSON(ctx, url, body); err != nil {
		n.logger.Warn("transition event not delivered", zap.String("url", url), zap.Error(err))
	}
}

func (n *Notifier) postJSON(ctx context.Context, url string, body map[string]any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
