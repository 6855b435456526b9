package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/edusched/school/libs/kafkax"
	otelx "github.com/edusched/school/libs/otel"
)

// TxBeginner is implemented by *db.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// MessageWriter is implemented by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
}

// Publisher relays committed outbox rows to Kafka. Delivery is at least once:
// a crash between write and commit republishes the batch.
type Publisher struct {
	db        TxBeginner
	logger    *slog.Logger
	brokers   []string
	pollEvery time.Duration
	batchSize int

	fetch func(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error)
	mark  func(ctx context.Context, tx pgx.Tx, ids []int64) error
}

func NewPublisher(db TxBeginner, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		db:        db,
		logger:    logger,
		brokers:   kafkax.SplitBrokers(cfg.Brokers),
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
		fetch:     FetchUnpublished,
		mark:      MarkPublished,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PublishBatch(ctx, writer)
			if err != nil {
				p.logger.Error("outbox publish failed", "err", err)
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox batch published", "count", n)
			}
		}
	}
}

// PublishBatch ships one batch and marks it published, returning how many
// events went out.
func (p *Publisher) PublishBatch(ctx context.Context, w MessageWriter) (int, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.fetch(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
		msgs = append(msgs, kafkax.NewMessage(msgCtx, r.EventType, r.AggregateID,
			kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType}, r.Payload))
		ids = append(ids, r.ID)
	}
	if err := w.WriteMessages(ctx, msgs...); err != nil {
		return 0, err
	}
	if err := p.mark(ctx, tx, ids); err != nil {
		return 0, err
	}
	return len(records), tx.Commit(ctx)
}
