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
	"github.com/edusched/school/services/auth-service/internal/handlers"
	userstore "github.com/edusched/school/services/auth-service/internal/storage"
)

type settings struct {
	Service     string        `envconfig:"SERVICE_NAME" default:"auth-service"`
	Env         string        `envconfig:"APP_ENV" default:"development"`
	Port        uint16        `envconfig:"PORT" default:"3007" validate:"port"`
	DatabaseURL string        `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret   string        `envconfig:"JWT_SECRET"`
	JWTIssuer   string        `envconfig:"JWT_ISSUER" default:"school-auth"`
	JWTTTL      time.Duration `envconfig:"JWT_TTL" default:"24h"`
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
	if secret == auth.DevSecret {
		logger.Warn("JWT_SECRET not set, using development secret")
	}
	signer, err := auth.NewSigner(secret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		logger.Error("failed to init jwt signer", "err", err)
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
	handlers.NewAuthHandler(userstore.NewUserRepository(pool), storage.New(pool), signer, logger).Routes(r)
	mux.Handle("/", r)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(64<<10),
	)
	handler = otelhttp.NewHandler(handler, "auth")
	srv := &http.Server{
		Addr:              config.ListenAddr(cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := runtime.Serve(ctx, logger, srv); err != nil {
		logger.Error("http server error", "err", err)
	}
}
