package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/handlers"
	"storefront/internal/logger"
	"storefront/internal/middleware"
	"storefront/internal/repositories"
	"storefront/internal/server"
	"storefront/internal/services"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Setup("info", false, "storefront")
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Setup(cfg.Log.Level, cfg.IsProduction(), "storefront")

	ctx := context.Background()

	db, err := database.NewConnection(ctx, database.FromConfig(cfg.Database))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Str("host", cfg.Database.Host).Str("database", cfg.Database.DBName).Msg("Database connection established")

	if err := db.RunMigrations(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Repositories
	catalogRepo := repositories.NewCatalogRepository(db)
	cartRepo := repositories.NewCartRepository(db)
	orderRepo := repositories.NewOrderRepository(db)
	couponRepo := repositories.NewCouponRepository(db)
	eventRepo := repositories.NewPaymentEventRepository(db)

	// External services
	paystack := services.NewPaystackService(services.PaystackConfig{
		SecretKey:   cfg.Paystack.SecretKey,
		CallbackURL: cfg.Paystack.CallbackURL,
		MaxAttempts: cfg.Paystack.MaxAttempts,
		BaseTimeout: cfg.Paystack.BaseTimeout,
	})
	notifier := services.NewNotifier(services.ResendConfig{
		APIKey:     cfg.Resend.APIKey,
		FromEmail:  cfg.Resend.FromEmail,
		FromName:   cfg.Resend.FromName,
		AdminEmail: cfg.Resend.AdminEmail,
	})

	// Domain services
	pricer := services.NewPricer(cfg.Store.DomesticCountry)
	hub := services.NewStatusHub()
	reconciler := services.NewPaymentReconciler(db, orderRepo, cartRepo, catalogRepo, notifier, hub, pricer)
	cartService := services.NewCartService(db, cartRepo, catalogRepo, pricer)
	orderService := services.NewOrderService(services.OrderServiceDeps{
		Tx:         db,
		Orders:     orderRepo,
		Carts:      cartRepo,
		Catalog:    catalogRepo,
		Coupons:    couponRepo,
		Events:     eventRepo,
		Gateway:    paystack,
		Notifier:   notifier,
		Reconciler: reconciler,
		Pricer:     pricer,
		Currency:   cfg.Store.Currency,
		PendingTTL: cfg.Store.PendingOrderTTL,
	})
	webhookService := services.NewWebhookService(paystack, orderRepo, eventRepo, reconciler)

	limiter, closeLimiter := newRateLimiter(ctx, cfg)
	defer closeLimiter()

	trustedProxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid TRUSTED_PROXIES")
	}

	// Release stock held by checkouts that were never paid
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go orderService.RunExpirySweeper(sweepCtx, cfg.Store.ExpirySweepInterval)

	router := server.NewRouter(server.RouterConfig{
		Health:         handlers.NewHealthHandler(db),
		Cart:           handlers.NewCartHandler(cartService),
		Orders:         handlers.NewOrderHandler(orderService),
		Admin:          handlers.NewAdminHandler(orderService),
		Payments:       handlers.NewPaymentHandler(webhookService),
		Status:         handlers.NewStatusHandler(hub, orderService, cfg.Server.FrontendURL).WithMaxLifetime(cfg.Server.StatusSocketLifetime),
		Limiter:        limiter,
		TrustedProxies: trustedProxies,
		AdminToken:     cfg.Server.AdminToken,
		FrontendURL:    cfg.Server.FrontendURL,
		RequestTimeout: cfg.Server.WriteTimeout,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Server.Env).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}

// newRateLimiter uses Redis when configured so every instance shares one
// budget, falling back to an in-process limiter.
func newRateLimiter(ctx context.Context, cfg *config.Config) (middleware.RateLimiter, func()) {
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err == nil {
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Rate limiting backed by Redis")
			limiter := middleware.NewRedisRateLimiter(client, "storefront:ratelimit:", cfg.RateLimit.Requests, cfg.RateLimit.Window)
			return limiter, func() { _ = client.Close() }
		} else {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, using in-memory rate limiting")
			_ = client.Close()
		}
	}

	limiter := middleware.NewMemoryRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	return limiter, limiter.Close
}
