package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/DanielPopoola/ficmart-checkout/internal/worker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutbox struct {
	records []domain.OutboxRecord
	sent    []int64
}

func (f *fakeOutbox) FetchPending(ctx context.Context, limit int) ([]domain.OutboxRecord, error) {
	var out []domain.OutboxRecord
	for _, r := range f.records {
		if r.SentAt == nil && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeOutbox) MarkSent(ctx context.Context, id int64) error {
	now := time.Now()
	for i := range f.records {
		if f.records[i].ID == id {
			f.records[i].SentAt = &now
		}
	}
	f.sent = append(f.sent, id)
	return nil
}

type fakeWriter struct {
	keys   []string
	failAt int
}

func (w *fakeWriter) Write(ctx context.Context, key string, payload []byte) error {
	if w.failAt > 0 && len(w.keys)+1 == w.failAt {
		return errors.New("broker unreachable")
	}
	w.keys = append(w.keys, key)
	return nil
}

func seededOutbox(n int) *fakeOutbox {
	f := &fakeOutbox{}
	for i := 1; i <= n; i++ {
		f.records = append(f.records, domain.OutboxRecord{
			ID:      int64(i),
			EventID: uuid.New(),
			Key:     "temp-" + string(rune('0'+i)),
			Payload: []byte(`{}`),
		})
	}
	return f
}

func TestOutboxRelay_RelaysInOrder(t *testing.T) {
	outbox := seededOutbox(3)
	writer := &fakeWriter{}
	relay := worker.NewOutboxRelay(outbox, writer, time.Second, 10, discardLogger())

	sent, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.Equal(t, []string{"temp-1", "temp-2", "temp-3"}, writer.keys)
	assert.Equal(t, []int64{1, 2, 3}, outbox.sent)

	sent, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestOutboxRelay_StopsAtFirstFailure(t *testing.T) {
	outbox := seededOutbox(3)
	writer := &fakeWriter{failAt: 2}
	relay := worker.NewOutboxRelay(outbox, writer, time.Second, 10, discardLogger())

	sent, err := relay.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []int64{1}, outbox.sent)
}
