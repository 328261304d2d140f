package workflow

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ronappleton/teams-approval-bot/internal/config"
)

func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			func(cfg config.Config, logger *zap.Logger) (Store, error) {
				store, err := NewStore(cfg.Store)
				if err != nil {
					return nil, err
				}
				logger.Info("revision store ready", zap.String("driver", cfg.Store.Driver))
				return store, nil
			},
			func(cfg config.Config, logger *zap.Logger) *Notifier {
				return NewNotifier(cfg.Notify, logger)
			},
			NewService,
		),
		fx.Invoke(func(lc fx.Lifecycle, store Store, svc *Service) {
			lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
				done := make(chan struct{})
				go func() {
					svc.Wait()
					close(done)
				}()
				select {
				case <-done:
				case <-ctx.Done():
				}
				return store.Close()
			}})
		}),
	)
}
