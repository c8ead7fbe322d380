package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/homestay-coupon-service/internal/cache"
	"github.com/fairyhunter13/homestay-coupon-service/internal/config"
	"github.com/fairyhunter13/homestay-coupon-service/internal/engine"
	"github.com/fairyhunter13/homestay-coupon-service/internal/events"
	"github.com/fairyhunter13/homestay-coupon-service/internal/handler"
	"github.com/fairyhunter13/homestay-coupon-service/internal/repository"
	"github.com/fairyhunter13/homestay-coupon-service/internal/service"
	"github.com/fairyhunter13/homestay-coupon-service/internal/validator"
	"github.com/fairyhunter13/homestay-coupon-service/pkg/database"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize zerolog based on configuration
	initLogger(cfg)

	ctx := context.Background()

	loc, err := cfg.Coupon.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid coupon timezone")
	}

	// Initialize database pool with retry
	pool, err := database.NewPool(ctx, cfg.DB.DSN(), cfg.DB.MaxRetries)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	if cfg.DB.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	couponRepo := repository.NewCouponRepository(pool)
	usageRepo := repository.NewUsageRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	opts := []service.Option{
		service.WithNewUserWindow(cfg.Coupon.NewUserWindow),
		service.WithMaxBestCodes(cfg.Coupon.MaxBestCodes),
	}

	// Optional coupon cache
	var redisClient *redis.Client
	var cachePinger handler.Pinger
	if cfg.Redis.Enabled() {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		opts = append(opts, service.WithCache(cache.NewCouponCache(redisClient, cfg.Redis.CouponTTL)))
		cachePinger = handler.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
		log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.CouponTTL).Msg("coupon cache enabled")
	}

	// Optional event publishing
	var publisher interface {
		service.EventPublisher
		Close() error
	} = events.NoopPublisher{}
	if cfg.Kafka.Enabled() {
		publisher = events.NewKafkaPublisher(cfg.Kafka)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.CouponTopic).Msg("event publishing enabled")
	}
	opts = append(opts, service.WithPublisher(publisher))

	eng := engine.New(cfg.Coupon.CurrencyScale, loc)
	couponService := service.NewCouponService(pool, couponRepo, usageRepo, userRepo, eng, opts...)

	// Booking events drive redemptions for paid bookings
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	var consumer *events.BookingConsumer
	if cfg.Kafka.Enabled() {
		consumer = events.NewBookingConsumer(cfg.Kafka, couponService, userRepo)
		go func() {
			defer close(consumerDone)
			consumer.Run(consumerCtx)
			log.Info().Msg("booking event consumer stopped")
		}()
	} else {
		close(consumerDone)
	}

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "Homestay Coupon Service",
		ReadTimeout:  30 * time.Second,  // Max time to read request
		WriteTimeout: 30 * time.Second,  // Max time to write response
		IdleTimeout:  120 * time.Second, // Max time for keep-alive connections
		BodyLimit:    1 * 1024 * 1024,   // 1MB body limit
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())

	validate := validator.New()
	couponHandler := handler.NewCouponHandler(couponService, validate)
	redemptionHandler := handler.NewRedemptionHandler(couponService, validate)
	healthHandler := handler.NewHealthHandler(pool, cachePinger)

	app.Get("/health", healthHandler.Check)

	api := app.Group("/api/coupons")
	api.Post("/validate/best", redemptionHandler.ValidateBest)
	api.Post("/validate", redemptionHandler.ValidateCoupon)
	api.Post("/redeem", redemptionHandler.RedeemCoupon)
	api.Post("/", couponHandler.CreateCoupon)
	api.Get("/", couponHandler.ListCoupons)
	api.Get("/code/:code", couponHandler.GetCouponByCode)
	api.Get("/:id", couponHandler.GetCoupon)
	api.Patch("/:id", couponHandler.UpdateCoupon)
	api.Delete("/:id", couponHandler.DeleteCoupon)
	api.Get("/:id/usages", couponHandler.ListUsages)

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// Stop consuming before the pool goes away
	stopConsumer()
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("booking event consumer did not stop in time")
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Error().Err(err).Msg("error closing booking event consumer")
		}
	}

	if err := publisher.Close(); err != nil {
		log.Error().Err(err).Msg("error closing event publisher")
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error().Err(err).Msg("error closing Redis client")
		}
	}

	// Close database pool last
	log.Info().Msg("closing database connections...")
	pool.Close()
	log.Info().Msg("database connections closed")
	log.Info().Msg("server stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
