package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/edusched/school/libs/auth"
	"github.com/edusched/school/libs/config"
	"github.com/edusched/school/libs/db"
	"github.com/edusched/school/libs/grpcx"
	"github.com/edusched/school/libs/httpx"
	"github.com/edusched/school/libs/kafkax"
	otelx "github.com/edusched/school/libs/otel"
	"github.com/edusched/school/libs/outbox"
	"github.com/edusched/school/libs/runtime"
	"github.com/edusched/school/libs/storage"
	"github.com/edusched/school/services/bookings-service/internal/grpcserver"
	"github.com/edusched/school/services/bookings-service/internal/handlers"
)

type settings struct {
	Service      string        `envconfig:"SERVICE_NAME" default:"bookings-service"`
	Env          string        `envconfig:"APP_ENV" default:"development"`
	Port         uint16        `envconfig:"PORT" default:"3005" validate:"port"`
	GRPCPort     uint16        `envconfig:"GRPC_PORT" default:"50051" validate:"port"`
	DatabaseURL  string        `envconfig:"DATABASE_URL" required:"true"`
	KafkaBrokers string        `envconfig:"KAFKA_BROKERS"`
	OutboxPoll   time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"2s"`
	OutboxBatch  int           `envconfig:"OUTBOX_BATCH_SIZE" default:"50"`
	JWTSecret    string        `envconfig:"JWT_SECRET"`
	JWTIssuer    string        `envconfig:"JWT_ISSUER" default:"school-auth"`
	RequestLimit int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
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

	store := storage.New(pool)

	publisher := outbox.NewPublisher(pool, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: cfg.OutboxPoll,
		BatchSize: cfg.OutboxBatch,
	})
	go publisher.Run(ctx)

	grpcServer := grpcx.NewServer()
	grpcserver.Register(grpcServer, store, logger)
	lis, err := net.Listen("tcp", config.ListenAddr(cfg.GRPCPort))
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	defer grpcServer.GracefulStop()

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)

	r := chi.NewRouter()
	r.Use(httpx.WithMetrics(cfg.Service))
	r.Handle("/metrics", httpx.MetricsHandler())
	handlers.NewBookingHandler(store, logger).Routes(r, signer)
	mux.Handle("/", r)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(cfg.RequestLimit),
	)
	handler = otelhttp.NewHandler(handler, "bookings")
	srv := &http.Server{
		Addr:              config.ListenAddr(cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := runtime.Serve(ctx, logger, srv); err != nil {
		logger.Error("http server error", "err", err)
	}
}
