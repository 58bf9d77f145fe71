package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/anthropics/feishu-topic-monitor/internal/biz/usecase"
	"github.com/anthropics/feishu-topic-monitor/internal/conf"
	"github.com/anthropics/feishu-topic-monitor/internal/data"
	"github.com/anthropics/feishu-topic-monitor/internal/service"
	"github.com/anthropics/feishu-topic-monitor/mcpserver"
)

func main() {
	// Logs go to stderr; stdout is reserved for the MCP stdio transport.
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	cfg := conf.LoadFromEnv()
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	repos, err := data.NewRepositories(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create repositories")
	}
	defer repos.History.Close()

	classifier := usecase.NewClassifierUsecase(repos.Workspace, repos.Classifier, usecase.ClassifierParams{
		Topics:               cfg.Monitor.Topics,
		FetchLimit:           cfg.Monitor.FetchLimit,
		FirstRunEnabled:      cfg.Monitor.FirstRun.Enabled,
		FirstRunLimit:        cfg.Monitor.FirstRun.Limit,
		AssignAllOnAmbiguous: cfg.Monitor.Classifier.AssignAll(),
		Synonyms:             cfg.Monitor.Classifier.Synonyms,
	}, log)

	monitor := service.NewMonitorService(
		repos.Workspace, classifier, repos.State, repos.History, cfg.Monitor, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := monitor.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("monitor startup failed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if cfg.MCPControl {
		srv := mcpserver.NewServer(monitor)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Error().Err(err).Msg("mcp control server exited")
			}
		}()
	}

	log.Info().
		Strs("topics", cfg.Monitor.Topics).
		Strs("channels", cfg.Monitor.Channels).
		Msg("feishu-topic-monitor running")

	<-sigCh
	log.Info().Msg("shutting down")
	monitor.Stop()
}
