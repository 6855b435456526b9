package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/edusched/school/libs/auth"
	"github.com/edusched/school/libs/config"
	"github.com/edusched/school/libs/db"
	"github.com/edusched/school/libs/httpx"
	otelx "github.com/edusched/school/libs/otel"
	"github.com/edusched/school/libs/runtime"
	"github.com/edusched/school/libs/storage"
	"github.com/edusched/school/services/rooms-service/internal/handlers"
)

type settings struct {
	Service     string `envconfig:"SERVICE_NAME" default:"rooms-service"`
	Env         string `envconfig:"APP_ENV" default:"development"`
	Port        uint16 `envconfig:"PORT" default:"3004" validate:"port"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret   string `envconfig:"JWT_SECRET"`
	JWTIssuer   string `envconfig:"JWT_ISSUER" default:"school-auth"`
	db.PoolConfig
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

	secret, err := auth.ResolveSecret(cfg.JWTSecret, cfg.Env)
	if err != nil {
		panic(err)
	}
	signer, err := auth.NewSigner(secret, cfg.JWTIssuer, 0)
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, cfg.PoolConfig)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	mux := runtime.NewBaseMuxWithReady(runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	r := chi.NewRouter()
	r.Use(httpx.WithMetrics(cfg.Service))
	r.Handle("/metrics", httpx.MetricsHandler())
	handlers.NewRoomHandler(storage.New(pool), logger).Routes(r, signer)
	mux.Handle("/", r)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "rooms")
	srv := &http.Server{
		Addr:              config.ListenAddr(cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := runtime.Serve(ctx, logger, srv); err != nil {
		logger.Error("http server error", "err", err)
	}
}
