package bot

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/ronappleton/teams-approval-bot/internal/card"
	"github.com/ronappleton/teams-approval-bot/internal/teams"
)

var findPart = regexp.MustCompile(`find\s+part`)

func (b *Bot) onMessage(ctx context.Context, a teams.Activity) error {
	cmd := teams.Command(a)
	switch {
	case cmd == "welcome":
		return b.sendWelcome(ctx, a)
	case findPart.MatchString(cmd):
		manufacturers := make([]map[string]string, 0, len(b.cfg.Manufacturers))
		for _, name := range b.cfg.Manufacturers {
			manufacturers = append(manufacturers, map[string]string{"name": name})
		}
		rendered, err := b.render(card.BotSearch, map[string]any{"manufacturers": manufacturers})
		if err != nil {
			return err
		}
		return b.sendCard(ctx, a, rendered, nil)
	default:
		b.logger.Debug("message ignored", zap.String("command", cmd))
		return nil
	}
}

func (b *Bot) onMembersAdded(ctx context.Context, a teams.Activity) error {
	for _, m := range a.MembersAdded {
		if m.ID != "" {
			return b.sendWelcome(ctx, a)
		}
	}
	return nil
}

func (b *Bot) sendWelcome(ctx context.Context, a teams.Activity) error {
	rendered, err := b.render(card.Welcome, nil)
	if err != nil {
		return err
	}
	return b.sendCard(ctx, a, rendered, nil)
}
