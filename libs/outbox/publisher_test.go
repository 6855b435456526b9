package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusched/school/libs/kafkax"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { t.rolledBack = true; return nil }

type fakeDB struct{ tx *fakeTx }

func (d *fakeDB) Begin(context.Context) (pgx.Tx, error) { return d.tx, nil }

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func newTestPublisher(db *fakeDB, records []Record, marked *[]int64) *Publisher {
	p := NewPublisher(db, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{})
	p.fetch = func(context.Context, pgx.Tx, int) ([]Record, error) { return records, nil }
	p.mark = func(_ context.Context, _ pgx.Tx, ids []int64) error {
		*marked = append(*marked, ids...)
		return nil
	}
	return p
}

func TestPublishBatch(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{}}
	var marked []int64
	p := newTestPublisher(db, []Record{
		{ID: 1, EventID: "e-1", AggregateID: "10", EventType: "bookings.booking.created.v1", Payload: []byte(`{"id":10}`)},
		{ID: 2, EventID: "e-2", AggregateID: "10", EventType: "bookings.booking.updated.v1", Payload: []byte(`{"id":10}`)},
	}, &marked)
	w := &fakeWriter{}

	n, err := p.PublishBatch(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, marked)
	assert.True(t, db.tx.committed)

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "bookings.booking.created.v1", w.msgs[0].Topic)
	assert.Equal(t, "10", string(w.msgs[0].Key))
	assert.Equal(t, "e-2", kafkax.HeaderValue(w.msgs[1].Headers, "event_id"))
}

func TestPublishBatchWriteFailureLeavesRowsPending(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{}}
	var marked []int64
	p := newTestPublisher(db, []Record{{ID: 7, EventType: "bookings.booking.deleted.v1"}}, &marked)

	_, err := p.PublishBatch(context.Background(), &fakeWriter{err: errors.New("broker down")})
	require.Error(t, err)
	assert.Empty(t, marked)
	assert.False(t, db.tx.committed)
	assert.True(t, db.tx.rolledBack)
}

func TestPublishBatchEmpty(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{}}
	var marked []int64
	p := newTestPublisher(db, nil, &marked)
	w := &fakeWriter{}

	n, err := p.PublishBatch(context.Background(), w)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.msgs)
	assert.True(t, db.tx.committed)
}

func TestRunWithoutBrokersReturns(t *testing.T) {
	p := NewPublisher(&fakeDB{}, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{})
	p.Run(context.Background())
}
