package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/flagkit/pkg/bus"
	"github.com/dmitrymomot/flagkit/pkg/cache"
	"github.com/dmitrymomot/flagkit/pkg/config"
	"github.com/dmitrymomot/flagkit/pkg/httpapi"
	"github.com/dmitrymomot/flagkit/pkg/httpserver"
	"github.com/dmitrymomot/flagkit/pkg/logger"
	"github.com/dmitrymomot/flagkit/pkg/pg"
	"github.com/dmitrymomot/flagkit/pkg/ratelimit"
	"github.com/dmitrymomot/flagkit/pkg/recorder"
	"github.com/dmitrymomot/flagkit/pkg/redis"
	"github.com/dmitrymomot/flagkit/pkg/requestid"
	"github.com/dmitrymomot/flagkit/pkg/service"
	"github.com/dmitrymomot/flagkit/pkg/store"
)

type appConfig struct {
	Name string `env:"APP_NAME" envDefault:"flagd"`
	Env  string `env:"APP_ENV" envDefault:"development"`
}

func main() {
	var (
		appCfg   appConfig
		pgCfg    pg.Config
		redisCfg redis.Config
		cacheCfg cache.Config
		httpCfg  httpserver.Config
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&cacheCfg)
	config.MustLoad(&httpCfg)

	log := logger.New(
		logger.WithEnvironment(appCfg.Env, appCfg.Name),
		logger.WithContextExtractors(requestid.LoggerExtractor()))
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		log.Error("postgres connection failed", logger.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		log.Error("migrations failed", logger.Error(err))
		os.Exit(1)
	}

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		log.Error("redis connection failed", logger.Error(err))
		os.Exit(1)
	}
	defer redisClient.Close()

	ruleStore := store.NewPostgresStore(pool, log)
	flagCache := cache.NewFlagCache(redisClient, cache.WithConfig(cacheCfg), cache.WithLogger(log))

	invalidations := bus.NewRedisBus(redisClient, bus.WithLogger(log))
	defer invalidations.Close()
	go flagCache.Listen(ctx, invalidations)

	usage := recorder.NewBufferedRecorder(
		recorder.NewPostgresSink(pool),
		recorder.WithRecorderLogger(log),
	)
	usage.Start()
	defer usage.Stop()

	svc := service.New(ruleStore,
		service.WithCache(flagCache),
		service.WithRecorder(usage),
		service.WithLogger(log))

	rlStore := ratelimit.NewMemoryStore()
	defer rlStore.Close()
	evalLimiter, err := ratelimit.NewSlidingWindow(rlStore, 1000, time.Minute)
	if err != nil {
		log.Error("rate limiter setup failed", logger.Error(err))
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log))
	r.Get("/readyz", httpserver.HealthCheckHandler(ctx, log,
		pg.Healthcheck(pool),
		redis.Healthcheck(redisClient)))
	r.With(ratelimit.Middleware(evalLimiter, ratelimit.Composite(ratelimit.ByAPIKey(), ratelimit.ByClientIP()))).
		Mount("/evaluate", httpapi.Router(svc, ruleStore,
			httpapi.WithLogger(log),
			httpapi.WithHealthcheck(redis.Healthcheck(redisClient))))

	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))
	if err := srv.Run(ctx, r); err != nil {
		log.Error("server stopped", logger.Error(err))
		os.Exit(1)
	}
}
