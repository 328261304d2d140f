// Package bot dispatches inbound Teams activities to the card flows and the
// approval workflow.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ronappleton/teams-approval-bot/internal/card"
	"github.com/ronappleton/teams-approval-bot/internal/config"
	"github.com/ronappleton/teams-approval-bot/internal/metrics"
	"github.com/ronappleton/teams-approval-bot/internal/teams"
	"github.com/ronappleton/teams-approval-bot/internal/workflow"
)

const (
	invokeAdaptiveCardAction = "adaptiveCard/action"
	invokeFetchTask          = "composeExtension/fetchTask"
	invokeSubmitAction       = "composeExtension/submitAction"
	invokeCardButtonClicked  = "composeExtension/onCardButtonClicked"
)

// Connector is the part of the Bot Connector API the bot calls.
type Connector interface {
	Members(ctx context.Context, serviceURL, conversationID string) ([]teams.Member, error)
	Send(ctx context.Context, serviceURL, conversationID string, activity teams.Activity) (string, error)
	Update(ctx context.Context, serviceURL, conversationID, activityID string, activity teams.Activity) error
	CreateConversation(ctx context.Context, serviceURL string, params teams.ConversationParameters) (teams.ConversationResource, error)
}

// Response is what the HTTP layer writes back for one activity. A nil Body
// is sent as an empty 200.
type Response struct {
	Status int
	Body   any
}

type Bot struct {
	cfg       config.BotConfig
	catalog   *card.Catalog
	workflow  *workflow.Service
	connector Connector
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
	actions   map[actionKey]actionHandler

	notifyTimeout time.Duration
	notifyLimit   int
	background    sync.WaitGroup
}

func New(cfg config.Config, catalog *card.Catalog, svc *workflow.Service, connector Connector, m *metrics.Metrics, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	limit := cfg.Bot.NotificationConcurrency
	if limit <= 0 {
		limit = 4
	}
	return &Bot{
		cfg:           cfg.Bot,
		catalog:       catalog,
		workflow:      svc,
		connector:     connector,
		metrics:       m,
		logger:        logger,
		tracer:        otel.Tracer("github.com/ronappleton/teams-approval-bot/internal/bot"),
		actions:       actionTable(),
		notifyTimeout: config.ParseDuration(cfg.Bot.NotificationTimeout, 30*time.Second),
		notifyLimit:   limit,
	}
}

// Handle routes one activity.
func (b *Bot) Handle(ctx context.Context, a teams.Activity) (Response, error) {
	b.metrics.ActivitiesTotal.WithLabelValues(a.Type).Inc()
	switch a.Type {
	case teams.ActivityMessage:
		return ok(nil), b.onMessage(ctx, a)
	case teams.ActivityConversationUpdate:
		return ok(nil), b.onMembersAdded(ctx, a)
	case teams.ActivityInvoke:
		return b.onInvoke(ctx, a)
	default:
		b.logger.Debug("activity ignored", zap.String("type", a.Type))
		return ok(nil), nil
	}
}

func (b *Bot) onInvoke(ctx context.Context, a teams.Activity) (resp Response, err error) {
	ctx, span := b.tracer.Start(ctx, "bot."+a.Name, trace.WithAttributes(
		attribute.String("teams.conversation_type", a.Conversation.ConversationType),
	))
	start := time.Now()
	defer func() {
		status := resp.Status
		if err != nil {
			status, _ = StatusOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		b.metrics.InvokesTotal.WithLabelValues(a.Name, fmt.Sprint(status)).Inc()
		b.metrics.InvokeDuration.WithLabelValues(a.Name).Observe(time.Since(start).Seconds())
		span.End()
	}()

	switch a.Name {
	case invokeAdaptiveCardAction:
		return b.onAdaptiveCardAction(ctx, a)
	case invokeFetchTask:
		return b.onFetchTask(ctx, a)
	case invokeSubmitAction:
		return b.onSubmitAction(ctx, a)
	case invokeCardButtonClicked:
		return ok(nil), b.onCardButtonClicked(ctx, a)
	default:
		return Response{}, fmt.Errorf("invoke %q: %w", a.Name, ErrNotImplemented)
	}
}

// Wait blocks until background notifications have finished.
func (b *Bot) Wait() {
	b.background.Wait()
}

func ok(body any) Response {
	return Response{Status: http.StatusOK, Body: body}
}

func (b *Bot) render(id card.ID, data any) (json.RawMessage, error) {
	out, err := b.catalog.Render(id, data)
	if err != nil {
		return nil, err
	}
	b.metrics.CardRendersTotal.WithLabelValues(string(id)).Inc()
	return out, nil
}

func (b *Bot) taskModule(rendered json.RawMessage) card.TaskModuleResponse {
	return card.ToTaskModule(card.Adaptive(rendered), card.TaskModuleSize{
		Title:  b.cfg.TaskModuleTitle,
		Height: b.cfg.TaskModuleHeight,
		Width:  b.cfg.TaskModuleWidth,
	})
}

// sendCard posts rendered into the conversation of a.
func (b *Bot) sendCard(ctx context.Context, a teams.Activity, rendered json.RawMessage, channelData *teams.ChannelData) error {
	_, err := b.connector.Send(ctx, a.ServiceURL, a.Conversation.ID, teams.Activity{
		Type:        teams.ActivityMessage,
		Attachments: []teams.Attachment{attachment(rendered)},
		ChannelData: channelData,
	})
	if err != nil {
		return fmt.Errorf("send card: %w", err)
	}
	return nil
}

func (b *Bot) sendText(ctx context.Context, serviceURL, conversationID, text string) error {
	_, err := b.connector.Send(ctx, serviceURL, conversationID, teams.Activity{Type: teams.ActivityMessage, Text: text})
	return err
}

func attachment(rendered json.RawMessage) teams.Attachment {
	return teams.Attachment{ContentType: card.ContentTypeAdaptiveCard, Content: rendered}
}
