// Package publish mirrors the engine's notification events to NATS
// JetStream for external observers (indexers, UIs, bots). Publishing is
// best-effort: a failed publish is logged and counted, never retried by the
// engine. Consumers that need completeness read the Postgres event log.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"RangeMarket/internal/event"
	"RangeMarket/internal/observability"
)

const (
	// StreamName is the JetStream stream carrying all engine events.
	StreamName = "RANGEMARKET_EVENTS"

	subjectPrefix = "rangemarket.events"
)

// Publisher drains an event channel and publishes each record to
// rangemarket.events.{type}.{marketId}.
type Publisher struct {
	js      jetstream.JetStream
	records <-chan event.Record
	log     zerolog.Logger
	metrics *observability.Metrics // nil disables metrics
}

func NewPublisher(
	js jetstream.JetStream,
	records <-chan event.Record,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Publisher {
	return &Publisher{
		js:      js,
		records: records,
		log:     logger,
		metrics: metrics,
	}
}

// Run blocks until ctx is cancelled or the record channel closes.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case rec, ok := <-p.records:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, rec); err != nil {
				p.log.Warn().Err(err).Uint64("sequence", rec.Sequence).Msg("outbound publish failed")
				if p.metrics != nil {
					p.metrics.PublishErrors.Inc()
				}
				continue
			}
			if p.metrics != nil {
				p.metrics.PublishWritten.Inc()
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, rec event.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s.%d", subjectPrefix, rec.Type, rec.MarketID)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureStream creates the outbound events stream if it does not exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{subjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
