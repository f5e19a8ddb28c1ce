package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"tutorledger/internal/app"
	"tutorledger/internal/config"
	"tutorledger/internal/logger"
	"tutorledger/internal/notify"
	"tutorledger/internal/queue"
	"tutorledger/internal/syncer"
)

// Worker consumes sync requests from the queue and runs sync cycles.
func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config")
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty, File: cfg.LogFile})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open stores")
	}
	defer stores.Close()

	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	if stores.Redis != nil {
		pub := notify.NewRedisPublisher(stores.Redis.Client, log)
		defer pub.Close()
		notifiers = append(notifiers, pub)
	}
	coord := syncer.New(stores.Local, stores.Remote, syncer.WithNotifier(notifiers), syncer.WithLogger(log))

	if cfg.QueueBackend != "redis" {
		log.Warn().Msg("worker needs QUEUE_BACKEND=redis to receive requests from the api")
	}
	q := stores.NewQueue(cfg, log)
	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("queue consume init failed")
	}

	log.Info().Str("remote", coord.RemoteName()).Msg("worker started, waiting for messages")
	for msg := range messages {
		if msg.Type != queue.TypeSync || msg.UserID == "" {
			continue
		}
		trigger := syncer.Trigger(msg.Trigger)
		if trigger == "" {
			trigger = syncer.TriggerQueue
		}
		res := coord.Sync(context.WithoutCancel(ctx), msg.UserID, trigger)
		if res.Outcome == syncer.OutcomeInProgress {
			log.Debug().Str("user_id", msg.UserID).Msg("sync already running, request dropped")
		}
	}
	log.Info().Msg("worker stopped")
}
