package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/email"
	"github.com/example/storefront/internal/infrastructure/kafka"
	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/notification"
)

// Consumer group dedicated to settlement notices, so the notifier
// keeps its own offset independent of any other consumer.
const consumerGroup = "settlement-notifier"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zlog.Logger = zlog.With().Str("service", "storefront-notifier").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load configuration")
	}
	if len(cfg.KafkaBrokers) == 0 {
		zlog.Fatal().Msg("KAFKA_BROKERS is required for the notifier")
	}
	if cfg.SMTP.Host == "" || cfg.SMTP.From == "" || cfg.SMTP.To == "" {
		zlog.Fatal().Msg("SMTP_HOST, SMTP_FROM and SMTP_TO are required for the notifier")
	}

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer db.Close()

	pg := store.NewPostgresStore(db)
	emailSvc := email.NewService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From)
	handler := notification.NewHandler(emailSvc, pg, cfg.SMTP.To)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, consumerGroup)
	defer consumer.Close()

	go func() {
		zlog.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).
			Str("group", consumerGroup).Msg("consuming settlement events")
		if err := consumer.Consume(ctx, handler.HandleEvent); err != nil {
			if ctx.Err() == nil {
				zlog.Error().Err(err).Msg("consumer error")
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	zlog.Info().Msg("shutting down")
	cancel()
}
