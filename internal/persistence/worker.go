package persistence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"RangeMarket/internal/event"
	"RangeMarket/internal/observability"
)

// BatchWriter persists a batch of event rows.
type BatchWriter interface {
	WriteBatch(ctx context.Context, rows []EventRow) error
}

// Worker drains an event channel and batch-writes to Postgres. It flushes
// when the batch fills or the flush timeout expires, and retries failed
// writes with exponential backoff until the context is cancelled.
type Worker struct {
	writer       BatchWriter
	records      <-chan event.Record
	batchSize    int
	flushTimeout time.Duration
	log          zerolog.Logger
	metrics      *observability.Metrics // nil disables metrics
}

func NewWorker(
	writer BatchWriter,
	records <-chan event.Record,
	batchSize int,
	flushTimeout time.Duration,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       writer,
		records:      records,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		log:          logger,
		metrics:      metrics,
	}
}

// Run blocks until ctx is cancelled or the record channel closes, flushing
// any remaining batch on the way out.
func (w *Worker) Run(ctx context.Context) error {
	batch := make([]EventRow, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				w.finalFlush(batch)
			}
			return ctx.Err()

		case rec, ok := <-w.records:
			if !ok {
				if len(batch) > 0 {
					if err := w.writer.WriteBatch(context.Background(), batch); err != nil {
						w.log.Error().Err(err).Int("events", len(batch)).Msg("final flush failed")
					}
				}
				return nil
			}

			row, err := RowFromRecord(rec)
			if err != nil {
				w.log.Error().Err(err).Uint64("sequence", rec.Sequence).Msg("drop unmarshalable event")
				continue
			}
			batch = append(batch, row)

			if len(batch) >= w.batchSize {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never drops a
// batch on write failure: it retries until the write succeeds or the
// context is cancelled, and on cancellation attempts one last write with a
// detached context so an in-flight batch still reaches the database.
func (w *Worker) flushWithRetry(ctx context.Context, batch []EventRow) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).
				Int("events", len(batch)).Msg("persistence retry")
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				w.finalFlush(batch)
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.writer.WriteBatch(ctx, batch)
		if err == nil {
			if w.metrics != nil {
				w.metrics.PersistWritten.Add(float64(len(batch)))
			}
			return
		}
		if w.metrics != nil {
			w.metrics.PersistErrors.Inc()
		}
		w.log.Error().Err(err).Int("events", len(batch)).Msg("batch write failed")

		select {
		case <-ctx.Done():
			w.finalFlush(batch)
			return
		default:
		}
	}
}

// finalFlush makes one last write attempt with a bounded background context.
func (w *Worker) finalFlush(batch []EventRow) {
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.writer.WriteBatch(flushCtx, batch); err != nil {
		w.log.Error().Err(err).Int("events", len(batch)).Msg("final flush failed")
		return
	}
	if w.metrics != nil {
		w.metrics.PersistWritten.Add(float64(len(batch)))
	}
}
