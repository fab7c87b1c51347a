package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"parktayo/api/routes"
	"parktayo/internal/approach"
	"parktayo/internal/auth"
	"parktayo/internal/bookings"
	"parktayo/internal/eta"
	"parktayo/internal/noshow"
	"parktayo/internal/realtime"
	"parktayo/internal/sessions"
	"parktayo/internal/shared/config"
	"parktayo/internal/shared/database"
	"parktayo/internal/spaces"
	"parktayo/internal/users"
	"parktayo/internal/wallet"
	"parktayo/pkg/cache"
	"parktayo/pkg/logger"
	"parktayo/pkg/ratelimit"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	// Smart environment loading
	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("failed to connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Preload the live-counter Lua scripts so the first booking does not pay
	// the script-load round trip.
	counters := spaces.NewLiveCounters(db.Redis)
	if db.Redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := counters.PreloadScripts(ctx); err != nil {
			appLogger.Error("Failed to preload Redis Lua scripts", slog.Any("error", err))
			// Scripts load lazily on first use; keep going.
		}
		cancel()
	}

	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = ratelimit.NewRateLimiter(db.GetRedis(), &ratelimit.Config{
			Enabled:          cfg.RateLimit.Enabled,
			WindowDuration:   cfg.RateLimit.WindowDuration,
			DefaultRequests:  cfg.RateLimit.DefaultRequests,
			PublicRequests:   cfg.RateLimit.PublicRequests,
			BookingRequests:  cfg.RateLimit.BookingRequests,
			LocationRequests: cfg.RateLimit.LocationRequests,
			WalletRequests:   cfg.RateLimit.WalletRequests,
			QRRequests:       cfg.RateLimit.QRRequests,
			InternalRequests: cfg.RateLimit.InternalRequests,
			HealthRequests:   cfg.RateLimit.HealthRequests,
			WhitelistedIPs:   cfg.RateLimit.WhitelistedIPs,
		})
		appLogger.Info("Rate limiter initialized",
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("default_requests", cfg.RateLimit.DefaultRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	platformAccountID, err := uuid.Parse(cfg.Wallet.PlatformAccountID)
	if err != nil {
		appLogger.Error("invalid PLATFORM_ACCOUNT_ID", slog.Any("error", err))
		os.Exit(1)
	}

	// Real-time bus. Without Kafka the core still works; events are dropped.
	var publisher realtime.Publisher = realtime.NopPublisher{}
	var relayer realtime.Relayer
	if cfg.Kafka.Enabled {
		producerConfig := realtime.DefaultProducerConfig()
		producerConfig.Brokers = cfg.Kafka.Brokers
		producerConfig.UserTopic = cfg.Kafka.UserTopic
		producerConfig.LandlordTopic = cfg.Kafka.LandlordTopic

		kafkaPublisher, err := realtime.NewKafkaPublisher(producerConfig)
		if err != nil {
			appLogger.Error("Failed to initialize Kafka publisher, events will be dropped", slog.Any("error", err))
		} else {
			publisher = kafkaPublisher
			defer kafkaPublisher.Close()

			relayerConfig := realtime.DefaultRelayerConfig()
			relayerConfig.Brokers = cfg.Kafka.Brokers
			relayerConfig.GroupID = cfg.Kafka.RelayGroupID
			relayerConfig.Topics = []string{cfg.Kafka.UserTopic, cfg.Kafka.LandlordTopic}

			relayer, err = realtime.NewKafkaRelayer(relayerConfig, realtime.NewLogSink())
			if err != nil {
				appLogger.Error("Failed to initialize event relayer", slog.Any("error", err))
				relayer = nil
			}
		}
	}

	// Repositories and services.
	pg := db.GetPostgreSQL()
	usersRepo := users.NewRepository(pg)
	authService := auth.NewService(auth.NewRepository(pg), cfg)
	walletService := wallet.NewService(wallet.NewRepository(pg), platformAccountID)
	spacesService := spaces.NewService(spaces.NewRepository(pg), cache.NewService(db.Redis), counters)

	oracle, err := eta.NewOracle(eta.Config{
		APIKey:          cfg.Maps.APIKey,
		Timeout:         cfg.Maps.Timeout,
		Region:          cfg.Maps.Region,
		FallbackMinutes: cfg.Booking.FallbackETAMinutes,
	})
	if err != nil {
		appLogger.Error("failed to initialize ETA oracle", slog.Any("error", err))
		os.Exit(1)
	}

	bookingsRepo := bookings.NewRepository(pg)
	bookingService := bookings.NewService(
		bookingsRepo,
		usersRepo,
		bookings.NewWalletAdapter(walletService),
		spacesService,
		oracle,
		publisher,
		bookings.Policy{
			GracePeriodMinutes:  cfg.Booking.GracePeriodMinutes,
			FallbackETAMinutes:  cfg.Booking.FallbackETAMinutes,
			NoShowPenaltyRate:   cfg.Booking.NoShowPenaltyRate,
			PlatformFeeRate:     cfg.Booking.PlatformFeeRate,
			SurgePlatformShare:  cfg.Booking.SurgePlatformShare,
			MaxOvertimeCeilingH: int(cfg.Booking.MaxOvertimeCeiling.Hours()),
		},
	)

	noShowPolicy := noshow.DefaultPolicy()
	noShowPolicy.TickInterval = cfg.Booking.SchedulerTick
	noShowPolicy.EvaluationBudget = cfg.Booking.SchedulerBudget
	scheduler := noshow.NewScheduler(noshow.NewRepository(pg), bookingService, db.Redis, noShowPolicy)
	bookingService.SetScheduler(scheduler)

	trackerConfig := approach.DefaultConfig()
	trackerConfig.ZoneRadiusMeters = cfg.Booking.ApproachRadiusMeters
	trackerConfig.StaleAfter = cfg.Booking.StalePresenceAfter
	tracker := approach.NewTracker(bookingService, spacesService, scheduler, publisher, trackerConfig)

	sessionService := sessions.NewService(
		bookingsRepo,
		sessions.NewWalletAdapter(walletService),
		spacesService,
		sessions.NewRedisNonceStore(db.Redis),
		publisher,
		sessions.Policy{MaxOvertimeCeiling: cfg.Booking.MaxOvertimeCeiling},
	)
	sweeper := sessions.NewSweeper(sessionService, cfg.Booking.ExpirySweepTick)

	// Background lifecycles.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	if err := scheduler.Start(runCtx); err != nil {
		appLogger.Error("failed to start no-show scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	defer scheduler.Stop()

	if err := tracker.Rehydrate(runCtx); err != nil {
		appLogger.Error("approach tracker rehydration failed", slog.Any("error", err))
	}
	tracker.StartProbe(runCtx)
	defer tracker.StopProbe()

	if err := sweeper.Start(runCtx); err != nil {
		appLogger.Error("failed to start expiry sweeper", slog.Any("error", err))
		os.Exit(1)
	}
	defer sweeper.Stop()

	if relayer != nil {
		if err := relayer.Start(runCtx); err != nil {
			appLogger.Error("failed to start event relayer", slog.Any("error", err))
		} else {
			defer relayer.Stop()
		}
	}

	router := setupRouter(cfg, db, rateLimiter, routes.Dependencies{
		Auth:     authService,
		Users:    usersRepo,
		Spaces:   spacesService,
		Wallet:   walletService,
		Bookings: bookingService,
		Sessions: sessionService,
		Tracker:  tracker,
		NoShow:   scheduler,
	})

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("🚀 Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("version", cfg.APIVersion),
			slog.Bool("kafka", cfg.Kafka.Enabled),
			slog.Bool("rate_limiting", cfg.RateLimit.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

func setupRouter(cfg *config.Config, db *database.DB, rateLimiter *ratelimit.RateLimiter, deps routes.Dependencies) *gin.Engine {
	engine := gin.New()
	appLogger := logger.GetDefault()

	// Built-in middleware: logs requests + recovers from panics
	engine.Use(RequestLoggerMiddleware(appLogger), gin.Recovery())

	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true // allow every origin dynamically
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-RateLimit-*"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter))
	}

	appRouter := routes.NewRouter(cfg, db, deps)
	appRouter.SetupRoutes(engine)

	return engine
}

func RequestLoggerMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		l.LogHTTPRequest(c, duration)
	}
}
