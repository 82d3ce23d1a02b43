// Package messaging publishes ledger events to Kafka for downstream
// consumers such as reporting warehouses and reconciliation feeds.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/meridian-books/meridian/internal/ledger/journals"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// JournalEvents implements the journals event port. Publishing is
// fire-and-forget: a broker outage must never roll back a posting, so
// failures are logged and dropped. A nil *JournalEvents is a valid no-op
// publisher.
type JournalEvents struct {
	logger *slog.Logger
	writer kafkaWriter
	topic  string
}

func NewJournalEvents(brokers, topic string, logger *slog.Logger) *JournalEvents {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
	}
	return &JournalEvents{logger: logger, writer: writer, topic: topic}
}

type journalPostedPayload struct {
	Event        string    `json:"event"`
	JournalID    int64     `json:"journal_id"`
	TenantID     int64     `json:"tenant_id"`
	CompanyID    int64     `json:"company_id"`
	Number       string    `json:"number"`
	PeriodID     int64     `json:"period_id"`
	Date         time.Time `json:"date"`
	Currency     string    `json:"currency"`
	SourceModule string    `json:"source_module,omitempty"`
	Memo         string    `json:"memo,omitempty"`
	PostedBy     int64     `json:"posted_by"`
	PostedAt     time.Time `json:"posted_at,omitempty"`
}

func (p *JournalEvents) JournalPosted(ctx context.Context, journal journals.Journal) {
	if p == nil {
		return
	}

	payload := journalPostedPayload{
		Event:        "journal.posted",
		JournalID:    journal.ID,
		TenantID:     journal.TenantID,
		CompanyID:    journal.CompanyID,
		Number:       journal.Number,
		PeriodID:     journal.PeriodID,
		Date:         journal.Date,
		Currency:     journal.Currency,
		SourceModule: journal.SourceModule,
		Memo:         journal.Memo,
		PostedBy:     journal.PostedBy,
		PostedAt:     journal.PostedAt,
	}

	value, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("marshal journal event", "journal", journal.Number, "error", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d:%d", journal.TenantID, journal.CompanyID)),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("publish journal event",
			"topic", p.topic,
			"journal", journal.Number,
			"error", err,
		)
		return
	}
	p.logger.Debug("published journal event", "topic", p.topic, "journal", journal.Number)
}

func (p *JournalEvents) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
