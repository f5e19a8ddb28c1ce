package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tutorledger/internal/app"
	"tutorledger/internal/auth"
	"tutorledger/internal/config"
	"tutorledger/internal/handler"
	"tutorledger/internal/httpmiddleware"
	"tutorledger/internal/ledger"
	"tutorledger/internal/logger"
	"tutorledger/internal/notify"
	"tutorledger/internal/queue"
	"tutorledger/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config")
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty, File: cfg.LogFile})

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	board := notify.NewBoard()
	notifiers := notify.Multi{board, notify.NewLogNotifier(log)}
	if stores.Redis != nil {
		pub := notify.NewRedisPublisher(stores.Redis.Client, log)
		defer pub.Close()
		notifiers = append(notifiers, pub)
		// Worker-run cycles reach the board through pub/sub; our own
		// statuses are skipped there since the board already has them.
		pub.Follow(ctx, board)
	}

	coord := syncer.New(stores.Local, stores.Remote,
		syncer.WithNotifier(notifiers),
		syncer.WithLogger(log),
		syncer.WithMetrics(syncer.NewMetrics(prometheus.DefaultRegisterer)),
	)
	auto := syncer.NewAutoSync(coord, cfg.AutoSync, board.SetAutoSync)
	defer auto.Stop()

	// An in-memory queue has no consumer in this process, so sign-in syncs
	// run inline unless a redis worker is deployed.
	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = stores.NewQueue(cfg, log)
	}

	h := handler.New(handler.Deps{
		Ledger:       ledger.NewService(stores.Local, log),
		Sync:         coord,
		Auto:         auto,
		Board:        board,
		Issuer:       auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Log:          log,
		Queue:        q,
		AutoOnSignIn: cfg.AutoSyncDefault,
		HealthChecks: stores.HealthChecks(),
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:   []string{"Content-Disposition"},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	h.Register(r, limiter.GinMiddleware(auth.UserID))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("remote", coord.RemoteName()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced shutdown")
	}
	log.Info().Msg("server exited")
	return nil
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
