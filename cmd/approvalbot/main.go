package main

import (
	"os"

	"go.uber.org/fx"

	"github.com/ronappleton/teams-approval-bot/internal/bot"
	"github.com/ronappleton/teams-approval-bot/internal/cli"
	"github.com/ronappleton/teams-approval-bot/internal/config"
	grpcserver "github.com/ronappleton/teams-approval-bot/internal/grpc"
	"github.com/ronappleton/teams-approval-bot/internal/httpserver"
	"github.com/ronappleton/teams-approval-bot/internal/logging"
	"github.com/ronappleton/teams-approval-bot/internal/metrics"
	"github.com/ronappleton/teams-approval-bot/internal/otel"
	"github.com/ronappleton/teams-approval-bot/internal/teams"
	"github.com/ronappleton/teams-approval-bot/internal/workflow"
)

func main() {
	rootCmd := cli.NewRootCommand(func(configPath string) error {
		startServer(configPath)
		return nil
	})
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrln(err)
		os.Exit(1)
	}
}

func startServer(configPath string) {
	app := fx.New(
		config.Module(configPath),
		logging.Module(),
		otel.Module(),
		metrics.Module(),
		workflow.Module(),
		teams.Module(),
		bot.Module(),
		grpcserver.Module,
		httpserver.Module(),
	)

	app.Run()
}
