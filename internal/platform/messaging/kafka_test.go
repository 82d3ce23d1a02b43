package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/meridian-books/meridian/internal/ledger/journals"
)

type capturedWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *capturedWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *capturedWriter) Close() error { return nil }

func TestJournalPostedPublishesEvent(t *testing.T) {
	writer := &capturedWriter{}
	p := &JournalEvents{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		writer: writer,
		topic:  "ledger.journals",
	}

	p.JournalPosted(context.Background(), journals.Journal{
		ID:        42,
		TenantID:  1,
		CompanyID: 2,
		Number:    "ACME-JE-000042",
		PeriodID:  7,
		Currency:  "USD",
		PostedBy:  9,
		PostedAt:  time.Date(2025, 9, 2, 10, 0, 0, 0, time.UTC),
	})

	require.Len(t, writer.msgs, 1)
	require.Equal(t, "1:2", string(writer.msgs[0].Key))

	var payload journalPostedPayload
	require.NoError(t, json.Unmarshal(writer.msgs[0].Value, &payload))
	require.Equal(t, "journal.posted", payload.Event)
	require.Equal(t, int64(42), payload.JournalID)
	require.Equal(t, "ACME-JE-000042", payload.Number)
	require.Equal(t, int64(9), payload.PostedBy)
}

func TestJournalPostedSwallowsBrokerErrors(t *testing.T) {
	writer := &capturedWriter{err: errors.New("broker down")}
	p := &JournalEvents{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		writer: writer,
		topic:  "ledger.journals",
	}

	p.JournalPosted(context.Background(), journals.Journal{ID: 1, Number: "ACME-JE-000001"})

	var nilPublisher *JournalEvents
	nilPublisher.JournalPosted(context.Background(), journals.Journal{ID: 2})
	require.NoError(t, nilPublisher.Close())
}
