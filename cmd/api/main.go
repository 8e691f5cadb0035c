package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/example/storefront/internal/api"
	"github.com/example/storefront/internal/auth"
	"github.com/example/storefront/internal/catalog"
	"github.com/example/storefront/internal/checkout"
	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/infrastructure/kafka"
	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/inventory"
	"github.com/example/storefront/internal/payment"
	"github.com/example/storefront/internal/payment/square"
	"github.com/example/storefront/internal/payment/stripe"
	"github.com/example/storefront/internal/ratelimit"
	"github.com/example/storefront/internal/settlement"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zlog.Logger = zlog.With().Str("service", "storefront-api").Logger()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.ValidateOperatorAuth(); err != nil {
		zlog.Fatal().Err(err).Msg("invalid operator auth configuration")
	}

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer db.Close()

	pg := store.NewPostgresStore(db)
	if err := pg.InitSchema(context.Background()); err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize schema")
	}
	zlog.Info().Msg("connected to postgres")

	// Settlement event fan-out is optional; without brokers the
	// reconciler just skips publishing.
	var publisher settlement.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer
		zlog.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).
			Msg("settlement events enabled")
	}

	provider := buildProvider(cfg)
	registry := payment.NewRegistry(provider)
	if provider != nil {
		zlog.Info().Str("provider", provider.Name()).Msg("payment provider configured")
	} else {
		zlog.Warn().Msg("no payment provider configured, checkout disabled")
	}

	engine := inventory.NewEngineWithTTL(pg, cfg.ReservationTTL)
	ledger := inventory.NewLedger(pg)
	cat := catalog.NewService(pg, ledger, cfg.Currency)
	orchestrator := checkout.NewOrchestrator(cat, engine, registry)
	reconciler := settlement.NewReconciler(engine, registry, publisher)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)

	var limiter ratelimit.Limiter = ratelimit.Unlimited{}
	if cfg.CheckoutRateLimit > 0 {
		if cfg.RedisAddr != "" {
			client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			defer client.Close()
			limiter = ratelimit.NewRedisLimiter(client, cfg.CheckoutRateLimit, cfg.CheckoutRateSpan)
			zlog.Info().Str("addr", cfg.RedisAddr).Msg("redis rate limiter enabled")
		} else {
			limiter = ratelimit.NewMemoryLimiter(cfg.CheckoutRateLimit, cfg.CheckoutRateSpan)
		}
	}

	handlers := api.NewHandlers(cat, orchestrator, reconciler, registry)
	authHandlers := api.NewAuthHandlers(jwtService, cfg.AdminEmail, cfg.AdminPasswordHash)
	admin := api.NewAdminHandlers(cat, engine, pg, reconciler, registry, cfg.ReservationTTL)
	router := api.NewRouter(handlers, authHandlers, admin, api.RouterConfig{
		JWTService:      jwtService,
		CheckoutLimiter: limiter,
	})

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	go func() {
		zlog.Info().Str("addr", cfg.Addr).Msg("server started")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	zlog.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("shutdown error")
	}
}

func buildProvider(cfg *config.Config) payment.Provider {
	switch cfg.PaymentProvider {
	case "stripe":
		return stripe.NewAdapter(stripe.Config{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
		})
	case "square":
		return square.NewAdapter(square.Config{
			AccessToken:     cfg.Square.AccessToken,
			SignatureKey:    cfg.Square.SignatureKey,
			LocationID:      cfg.Square.LocationID,
			NotificationURL: cfg.WebhookURL(),
		})
	default:
		return nil
	}
}
