package teams

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ronappleton/teams-approval-bot/internal/config"
)

func Module() fx.Option {
	return fx.Provide(func(cfg config.Config, logger *zap.Logger) *Client {
		return NewClient(NewHTTPClient(cfg.Bot), cfg.Bot.RosterPageSize, logger)
	})
}
