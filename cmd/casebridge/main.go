package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/casebridge/internal/archive"
	"github.com/gosuda/casebridge/internal/config"
	"github.com/gosuda/casebridge/internal/dispatch"
	"github.com/gosuda/casebridge/internal/domain"
	"github.com/gosuda/casebridge/internal/notify"
	"github.com/gosuda/casebridge/internal/retry"
	"github.com/gosuda/casebridge/internal/secrets"
	"github.com/gosuda/casebridge/internal/server"
	"github.com/gosuda/casebridge/internal/sla"
	"github.com/gosuda/casebridge/internal/store/postgres"
	redisstore "github.com/gosuda/casebridge/internal/store/redis"
	syncengine "github.com/gosuda/casebridge/internal/sync"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("CASEBRIDGE_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("CASEBRIDGE_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// SLA windows per category are required configuration.
	policies, err := sla.LoadPolicies(cfg.SLAPolicyPath)
	if err != nil {
		return err
	}

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked in config
	if err != nil {
		return err
	}
	defer store.Close()

	// Connect to Redis (change stream input + breach pub/sub).
	redisClient, err := redisstore.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	pubsub := redisstore.NewPubSub(redisClient)

	// Credential source with TTL-bounded cache.
	creds := secrets.NewCache(&secrets.EnvProvider{Prefix: cfg.SecretPrefix}, cfg.Sync.CredentialTTL)

	// Case-management client. The real client is deployment-specific; the
	// in-memory stub keeps local runs honest about the contract.
	var caseClient syncengine.CaseClient = syncengine.NewStubClient()
	log.Warn().Msg("no case-management client configured, using in-memory stub")

	engine := syncengine.NewEngine(store.Summaries(), caseClient, creds, cfg.Sync.SecretName)

	tracker := sla.NewTracker(store.Escalations(), policies, cfg.Scan.AgentStuckAfter)

	// Notification sinks: Redis pub/sub always, Slack when configured.
	sinks := []notify.Sink{notify.NewPubSubSink(pubsub, redisstore.EscalationChannel)}
	if cfg.Slack.BotToken != "" {
		sinks = append(sinks, notify.NewSlackSink(cfg.Slack.BotToken, cfg.Slack.Channel))
	}
	notifier := notify.New(sinks...)

	scanner := sla.NewScanner(store.Escalations(), notifier, cfg.Scan.Interval, cfg.Scan.BatchSize, cfg.Scan.NotifyPerSecond)

	// Dispatcher with per-entity handlers.
	policy := retry.Policy{
		MaxAttempts: cfg.Sync.MaxAttempts,
		BaseDelay:   cfg.Sync.BaseBackoff,
		MaxDelay:    cfg.Sync.MaxBackoff,
	}
	dispatcher := dispatch.New(store.Archive(), store.DeadLetters())
	dispatcher.Register(domain.KindCallSummary, dispatch.NewSummaryHandler(store.Summaries(), engine, tracker, policy))
	dispatcher.Register(domain.KindAgentState, dispatch.NewAgentStateHandler(store.AgentStates(), tracker))
	dispatcher.Register(domain.KindIVRJourney, dispatch.NewJourneyHandler(store.Journeys()))

	consumer := redisstore.NewConsumer(redisClient, cfg.Stream.Name, cfg.Stream.Group,
		cfg.Stream.Consumer, cfg.Stream.BatchSize, cfg.Stream.Block)
	if err := consumer.EnsureGroup(ctx); err != nil {
		return err
	}

	replayer := archive.NewReplayer(store.Archive(), dispatcher, cfg.Stream.BatchSize)

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go consumer.Run(ctx, dispatcher)
	go scanner.Run(ctx)
	go purgeLoop(ctx, store.AgentStates(), cfg.Retention.PurgeInterval)

	srv := server.New(cfg, store.DeadLetters(), store.Escalations(), replayer)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting ops server")
		if startErr := srv.Start(); startErr != nil {
			log.Error().Err(startErr).Msg("ops server error")
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

// purgeLoop enforces the agent-state retention window on a fixed cadence.
func purgeLoop(ctx context.Context, states domain.AgentStateRepository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := states.PurgeExpired(ctx, time.Now())
			if err != nil {
				log.Error().Err(err).Msg("agent state purge failed")
				continue
			}
			if purged > 0 {
				log.Info().Int64("purged", purged).Msg("expired agent states removed")
			}
		}
	}
}
