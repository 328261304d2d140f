package bot

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ronappleton/teams-approval-bot/internal/teams"
)

// Deeplink points at the message a was triggered from.
func Deeplink(a teams.Activity) string {
	channelID := a.Conversation.ID
	if a.ChannelData != nil && a.ChannelData.Channel != nil && a.ChannelData.Channel.ID != "" {
		channelID = a.ChannelData.Channel.ID
	}
	q := url.Values{}
	q.Set("tenantId", teams.TenantOf(a))
	q.Set("parentMessageId", a.ReplyToID)
	return fmt.Sprintf("https://teams.microsoft.com/l/message/%s/%s?%s",
		url.PathEscape(channelID), url.PathEscape(a.ReplyToID), q.Encode())
}

// onCardButtonClicked pings every approver in a 1:1 chat. The pings run in
// the background so the invoke answers before Teams gives up on it.
func (b *Bot) onCardButtonClicked(ctx context.Context, a teams.Activity) error {
	value := gjson.ParseBytes(a.Value)
	title := value.Get("title").String()
	var approvers []string
	for _, v := range value.Get("approvers").Array() {
		approvers = append(approvers, v.String())
	}

	members, err := b.roster(ctx, a)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	targets := members.withEmails(approvers)
	text := fmt.Sprintf("Please approve %q. Click here for details: %s", title, Deeplink(a))

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.notifyTimeout)
	b.background.Add(1)
	go func() {
		defer b.background.Done()
		defer cancel()
		g, gctx := errgroup.WithContext(bg)
		g.SetLimit(b.notifyLimit)
		for _, m := range targets {
			g.Go(func() error {
				err := b.notifyApprover(gctx, a, m, text)
				if err != nil {
					b.metrics.NotificationsTotal.WithLabelValues("failed").Inc()
					b.logger.Warn("approver not notified", zap.String("member_id", m.ID), zap.Error(err))
					return nil
				}
				b.metrics.NotificationsTotal.WithLabelValues("sent").Inc()
				return nil
			})
		}
		_ = g.Wait()
	}()

	return b.sendText(ctx, a.ServiceURL, a.Conversation.ID, "Approvers are notified.")
}

func (b *Bot) notifyApprover(ctx context.Context, a teams.Activity, m teams.Member, text string) error {
	conv, err := b.connector.CreateConversation(ctx, a.ServiceURL, teams.ConversationParameters{
		IsGroup:     false,
		Bot:         a.Recipient,
		Members:     []teams.ChannelAccount{{ID: m.ID, Name: m.Name, AADObjectID: m.AADObjectID}},
		TenantID:    teams.TenantOf(a),
		ChannelData: &teams.ChannelData{},
	})
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	b.logger.Debug("notifying approver", zap.String("member_id", m.ID))
	return b.sendText(ctx, a.ServiceURL, conv.ID, text)
}
