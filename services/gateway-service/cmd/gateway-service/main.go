package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/edusched/school/libs/config"
	"github.com/edusched/school/libs/httpx"
	otelx "github.com/edusched/school/libs/otel"
	"github.com/edusched/school/libs/runtime"
)

type settings struct {
	Service        string        `envconfig:"SERVICE_NAME" default:"gateway-service"`
	Port           uint16        `envconfig:"PORT" default:"8000" validate:"port"`
	BodyLimit      int64         `envconfig:"REQUEST_BODY_LIMIT_BYTES" default:"1048576"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	CORSOrigins    string        `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	RateLimitPerMinute int    `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	RateLimitPrefix    string `envconfig:"RATE_LIMIT_PREFIX" default:"rl"`
	RateLimitFailOpen  bool   `envconfig:"RATE_LIMIT_FAIL_OPEN" default:"true"`
	RedisAddr          string `envconfig:"REDIS_ADDR"`
	RedisPassword      string `envconfig:"REDIS_PASSWORD"`
	RedisDB            int    `envconfig:"REDIS_DB" default:"0"`

	Upstreams
}

func main() {
	if err := runtime.LoadDotEnv(); err != nil {
		panic(err)
	}
	var cfg settings
	if err := config.Process(&cfg); err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var (
		rateLimitMW httpx.Middleware
		checks      []runtime.ReadyCheck
	)
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, cfg.RateLimitPrefix)
		rateLimitMW = rl.Middleware(logger, cfg.RateLimitFailOpen)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: rl.Ping})
		logger.Info("rate limiting enabled (redis)", "per_minute", cfg.RateLimitPerMinute, "redis_addr", addr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", cfg.RateLimitPerMinute)
	}

	router, err := newRouter(cfg.Service, cfg.Upstreams, logger)
	if err != nil {
		logger.Error("invalid upstream configuration", "err", err)
		panic(err)
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/", router)

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSFromList(cfg.CORSOrigins)),
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(cfg.BodyLimit),
		httpx.WithTimeout(cfg.RequestTimeout),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              config.ListenAddr(cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := runtime.Serve(ctx, logger, srv); err != nil {
		logger.Error("http server error", "err", err)
	}
}
