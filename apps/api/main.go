package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	prospectshandler "github.com/leadpilot-crm/leadpilot-saas/domains/prospects/be/handler"
	prospectsrepo "github.com/leadpilot-crm/leadpilot-saas/domains/prospects/be/repo"
	prospectsservice "github.com/leadpilot-crm/leadpilot-saas/domains/prospects/be/service"
	segmentshandler "github.com/leadpilot-crm/leadpilot-saas/domains/segments/be/handler"
	segmentsrepo "github.com/leadpilot-crm/leadpilot-saas/domains/segments/be/repo"
	segmentsservice "github.com/leadpilot-crm/leadpilot-saas/domains/segments/be/service"
	platformauth "github.com/leadpilot-crm/leadpilot-saas/platform/go/auth"
	platformcache "github.com/leadpilot-crm/leadpilot-saas/platform/go/cache"
	platformlogging "github.com/leadpilot-crm/leadpilot-saas/platform/go/logging"
	platformmiddleware "github.com/leadpilot-crm/leadpilot-saas/platform/go/middleware"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/persistence"
	platformscope "github.com/leadpilot-crm/leadpilot-saas/platform/go/scope"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	AuthSecret      string        `env:"AUTH_SECRET,required"`
	RedisURL        string        `env:"REDIS_URL"` // empty disables the apply summary cache
	SummaryCacheTTL time.Duration `env:"SUMMARY_CACHE_TTL" envDefault:"24h"`
	CascadeOffers   bool          `env:"SEGMENT_DELETE_CASCADE_OFFERS" envDefault:"false"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	segmentStore, err := persistence.NewSegmentStore(ctx, pool)
	if err != nil {
		logger.Fatal("init segment store", zap.Error(err))
	}
	prospectStore, err := persistence.NewProspectStore(ctx, pool)
	if err != nil {
		logger.Fatal("init prospect store", zap.Error(err))
	}
	offerStore, err := persistence.NewOfferStore(ctx, pool)
	if err != nil {
		logger.Fatal("init offer store", zap.Error(err))
	}
	membershipStore, err := persistence.NewMembershipStore(ctx, pool)
	if err != nil {
		logger.Fatal("init membership store", zap.Error(err))
	}

	var summaryCache *platformcache.SummaryCache
	if cfg.RedisURL != "" {
		summaryCache, err = platformcache.NewSummaryCache(ctx, cfg.RedisURL, cfg.SummaryCacheTTL)
		if err != nil {
			logger.Fatal("init apply summary cache", zap.Error(err))
		}
		defer func() {
			_ = summaryCache.Close()
		}()
	} else {
		logger.Warn("apply summary cache disabled, REDIS_URL not set")
	}

	segmentRepo := segmentsrepo.NewPostgresRepository(segmentStore)
	segmentService := segmentsservice.New(
		segmentRepo,
		prospectStore,
		offerStore,
		summaryCache,
		segmentsservice.DeletePolicy{CascadeOffers: cfg.CascadeOffers},
		logger,
	)
	segmentHTTPHandler := segmentshandler.New(segmentService, logger)

	prospectRepo := prospectsrepo.NewPostgresRepository(prospectStore)
	prospectService := prospectsservice.New(prospectRepo, logger)
	prospectHTTPHandler := prospectshandler.New(prospectService, logger)

	authMiddleware := platformauth.Bearer(
		platformauth.NewHS256Verifier([]byte(cfg.AuthSecret)),
		platformauth.DefaultCredentialExtractor,
	)
	scopeResolver := platformscope.NewResolver(membershipStore)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Handle("/metrics", promhttp.Handler())

	apiRouter := chi.NewRouter()
	apiRouter.Use(authMiddleware)
	apiRouter.Use(platformscope.Require(scopeResolver, logger))
	apiRouter.Route("/segments", segmentHTTPHandler.Routes)
	apiRouter.Route("/prospects", prospectHTTPHandler.Routes)

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
