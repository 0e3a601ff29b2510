// Package engine orchestrates market creation, batched buys and sells
// against the pricing curve, sequential market resolution, and proportional
// reward claims.
//
// The execution model is strictly serialized, atomic, single-writer: one
// mutex covers the whole engine (the sequential-close ordering spans all
// markets), every operation validates fully before mutating anything, and an
// admitted operation runs to completion with no suspension point. The
// pricing formulas are path-dependent on the live (q, T) values, so any
// interleaving would corrupt the market invariants.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"RangeMarket/internal/collateral"
	"RangeMarket/internal/event"
	"RangeMarket/internal/market"
	"RangeMarket/internal/observability"
	"RangeMarket/internal/position"
)

// Engine is the single-writer market manager. All exported methods are safe
// for concurrent use; internally they serialize on one mutex.
type Engine struct {
	mu sync.Mutex

	// Markets indexed by id; ids are assigned sequentially from 0.
	markets []*market.Market

	// Number of markets closed so far. Markets close strictly in id order,
	// so this doubles as the id of the next market eligible to close.
	closedCount uint64

	// Event sequence, monotonically assigned to emitted records.
	sequence uint64

	positions position.Ledger
	vault     collateral.Vault
	sink      event.Sink

	log     zerolog.Logger
	metrics *observability.Metrics // nil disables metrics
}

// New creates an engine wired to its two external collaborators and an event
// sink. Pass event.NopSink{} and a nil metrics to run bare.
func New(
	positions position.Ledger,
	vault collateral.Vault,
	sink event.Sink,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Engine {
	return &Engine{
		positions: positions,
		vault:     vault,
		sink:      sink,
		log:       logger,
		metrics:   metrics,
	}
}

// CreateMarket validates the tick configuration, assigns the next sequential
// id and opens the market for trading. scheduledClose is inert metadata.
func (e *Engine) CreateMarket(tickSpacing, minTick, maxTick, scheduledClose int64) (uint64, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := market.ValidateConfig(tickSpacing, minTick, maxTick); err != nil {
		e.reject("create_market", err)
		return 0, err
	}

	id := e.createLocked(tickSpacing, minTick, maxTick, scheduledClose)
	e.applied("create_market", start)
	return id, nil
}

// CreateMarkets creates N markets atomically from parallel slices. Every
// element is validated before the first market is created; any invalid
// element or a length mismatch fails the whole batch.
func (e *Engine) CreateMarkets(tickSpacings, minTicks, maxTicks, scheduledCloses []int64) ([]uint64, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(tickSpacings)
	if len(minTicks) != n || len(maxTicks) != n || len(scheduledCloses) != n {
		err := fmt.Errorf("%w: got %d/%d/%d/%d elements", market.ErrArrayLengthMismatch,
			n, len(minTicks), len(maxTicks), len(scheduledCloses))
		e.reject("create_markets", err)
		return nil, err
	}

	for i := 0; i < n; i++ {
		if err := market.ValidateConfig(tickSpacings[i], minTicks[i], maxTicks[i]); err != nil {
			err = fmt.Errorf("batch element %d: %w", i, err)
			e.reject("create_markets", err)
			return nil, err
		}
	}

	ids := make([]uint64, n)
	for i := 0; i < n; i++ {
		ids[i] = e.createLocked(tickSpacings[i], minTicks[i], maxTicks[i], scheduledCloses[i])
	}
	e.applied("create_markets", start)
	return ids, nil
}

func (e *Engine) createLocked(tickSpacing, minTick, maxTick, scheduledClose int64) uint64 {
	id := uint64(len(e.markets))
	m := market.New(id, tickSpacing, minTick, maxTick, time.Now().UTC(), scheduledClose)
	e.markets = append(e.markets, m)

	if e.metrics != nil {
		e.metrics.MarketsCreated.Inc()
		e.metrics.MarketsOpen.Inc()
	}
	e.log.Info().
		Uint64("market_id", id).
		Int64("tick_spacing", tickSpacing).
		Int64("min_tick", minTick).
		Int64("max_tick", maxTick).
		Msg("market created")

	e.emitLocked(event.TypeMarketCreated, id, event.MarketCreated{
		MarketID:       id,
		TickSpacing:    tickSpacing,
		MinTick:        minTick,
		MaxTick:        maxTick,
		OpenedAt:       m.OpenedAt,
		ScheduledClose: scheduledClose,
	})
	return id
}

// SetMarketActive toggles the enabled flag gating new buys and sells. Legal
// only while the market is not closed; setting the current value is an
// idempotent no-op.
func (e *Engine) SetMarketActive(marketID uint64, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.marketLocked(marketID)
	if err != nil {
		e.reject("set_market_active", err)
		return err
	}
	if m.Closed {
		err := fmt.Errorf("market %d: %w", marketID, market.ErrMarketAlreadyClosed)
		e.reject("set_market_active", err)
		return err
	}
	if m.Active == active {
		return nil
	}
	m.Active = active

	e.log.Info().Uint64("market_id", marketID).Bool("active", active).Msg("market activation changed")
	e.emitLocked(event.TypeMarketActivation, marketID, event.MarketActivation{
		MarketID: marketID,
		Active:   active,
	})
	return nil
}

// marketLocked resolves a market id; the caller holds the mutex.
func (e *Engine) marketLocked(marketID uint64) (*market.Market, error) {
	if marketID >= uint64(len(e.markets)) {
		return nil, fmt.Errorf("market %d: %w", marketID, market.ErrMarketNotFound)
	}
	return e.markets[marketID], nil
}

// tradable resolves a market and checks it accepts buys and sells.
func (e *Engine) tradableLocked(marketID uint64) (*market.Market, error) {
	m, err := e.marketLocked(marketID)
	if err != nil {
		return nil, err
	}
	if m.Closed {
		return nil, fmt.Errorf("market %d: %w", marketID, market.ErrMarketAlreadyClosed)
	}
	if !m.Active {
		return nil, fmt.Errorf("market %d: %w", marketID, market.ErrMarketNotActive)
	}
	return m, nil
}

// emitLocked assigns the next sequence and hands the record to the sink.
// Called after state is committed; the caller holds the mutex.
func (e *Engine) emitLocked(t event.Type, marketID uint64, payload any) {
	e.sequence++
	rec := event.Record{
		Sequence:  e.sequence,
		Type:      t,
		MarketID:  marketID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	e.sink.Emit(rec)
	if e.metrics != nil {
		e.metrics.EventsEmitted.WithLabelValues(t.String()).Inc()
		e.metrics.EngineSequence.Set(float64(e.sequence))
	}
}

func (e *Engine) applied(op string, start time.Time) {
	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(op).Inc()
		e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (e *Engine) reject(op string, err error) {
	if e.metrics != nil {
		e.metrics.OpsRejected.WithLabelValues(op, rejectReason(err)).Inc()
	}
	e.log.Debug().Str("op", op).Err(err).Msg("operation rejected")
}

// rejectReason unwraps an error to its sentinel name for metric labels.
func rejectReason(err error) string {
	for _, sentinel := range []error{
		market.ErrInvalidTickConfig,
		market.ErrArrayLengthMismatch,
		market.ErrMarketNotFound,
		market.ErrMarketNotActive,
		market.ErrMarketAlreadyClosed,
		market.ErrMarketNotClosed,
		market.ErrBinOutOfRange,
		market.ErrBinMisaligned,
		market.ErrCostExceedsBudget,
		market.ErrRevenueBelowMinimum,
		market.ErrInsufficientPositionBalance,
		market.ErrInsufficientBinLiquidity,
		market.ErrNoMoreMarketsToClose,
		market.ErrPriceOutsideMarketRange,
		market.ErrNoTokensToClaim,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "other"
}
