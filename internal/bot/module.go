package bot

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ronappleton/teams-approval-bot/internal/card"
	"github.com/ronappleton/teams-approval-bot/internal/teams"
)

func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			card.NewCatalog,
			fx.Annotate(
				func(c *teams.Client) *teams.Client { return c },
				fx.As(new(Connector)),
			),
			New,
		),
		fx.Invoke(func(lc fx.Lifecycle, b *Bot, logger *zap.Logger) {
			lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
				done := make(chan struct{})
				go func() {
					b.Wait()
					close(done)
				}()
				select {
				case <-done:
				case <-ctx.Done():
					logger.Warn("approver notifications still running at shutdown")
				}
				return nil
			}})
		}),
	)
}
