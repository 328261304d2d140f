package bot

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ronappleton/teams-approval-bot/internal/card"
	"github.com/ronappleton/teams-approval-bot/internal/teams"
)

const maxActivityBytes = 1 << 20

// ServeHTTP is the /api/messages endpoint.
func (b *Bot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var a teams.Activity
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActivityBytes)).Decode(&a); err != nil {
		b.writeError(w, teams.Activity{}, fmt.Errorf("%w: %v", ErrBadActivity, err))
		return
	}
	resp, err := b.Handle(r.Context(), a)
	if err != nil {
		b.writeError(w, a, err)
		return
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	if resp.Body == nil {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, resp.Body)
}

func (b *Bot) writeError(w http.ResponseWriter, a teams.Activity, err error) {
	status, code := StatusOf(err)
	b.metrics.ErrorsTotal.WithLabelValues(code).Inc()
	fields := []zap.Field{
		zap.String("type", a.Type),
		zap.String("name", a.Name),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		b.logger.Error("activity failed", fields...)
	} else {
		b.logger.Warn("activity rejected", fields...)
	}

	if a.Type == teams.ActivityInvoke && a.Name == invokeAdaptiveCardAction {
		writeJSON(w, status, card.ToError(status, code, err.Error()))
		return
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
