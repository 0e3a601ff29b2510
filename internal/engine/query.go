package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/holiman/uint256"

	"RangeMarket/internal/market"
	"RangeMarket/internal/pricing"
)

// MarketInfo is a consistent snapshot of one market's public state.
type MarketInfo struct {
	ID                uint64
	Active            bool
	Closed            bool
	TickSpacing       int64
	MinTick           int64
	MaxTick           int64
	Total             *uint256.Int
	CollateralBalance *uint256.Int
	TotalRewardPool   *uint256.Int // nil until closed
	WinningBin        int64        // valid only when Closed
	FinalPrice        int64        // valid only when Closed
	OpenedAt          time.Time
	ScheduledClose    int64
}

// BinQuantityEntry pairs a bin with its outstanding quantity.
type BinQuantityEntry struct {
	Bin      int64
	Quantity *uint256.Int
}

// MarketInfo returns a snapshot of the market's state.
func (e *Engine) MarketInfo(marketID uint64) (MarketInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.marketLocked(marketID)
	if err != nil {
		return MarketInfo{}, err
	}
	info := MarketInfo{
		ID:                m.ID,
		Active:            m.Active,
		Closed:            m.Closed,
		TickSpacing:       m.TickSpacing,
		MinTick:           m.MinTick,
		MaxTick:           m.MaxTick,
		Total:             new(uint256.Int).Set(m.Total),
		CollateralBalance: new(uint256.Int).Set(m.CollateralBalance),
		WinningBin:        m.WinningBin,
		FinalPrice:        m.FinalPrice,
		OpenedAt:          m.OpenedAt,
		ScheduledClose:    m.ScheduledClose,
	}
	if m.TotalRewardPool != nil {
		info.TotalRewardPool = new(uint256.Int).Set(m.TotalRewardPool)
	}
	return info, nil
}

// MarketCount returns the number of markets created so far.
func (e *Engine) MarketCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint64(len(e.markets))
}

// BinQuantity returns the quantity outstanding in one bin.
func (e *Engine) BinQuantity(marketID uint64, bin int64) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.marketLocked(marketID)
	if err != nil {
		return nil, err
	}
	if err := m.ValidateBin(bin); err != nil {
		return nil, err
	}
	return m.BinQuantity(bin), nil
}

// BinQuantitiesInRange returns the quantity of every bin in [from, to],
// including untouched (zero) bins, in ascending bin order. Both bounds must
// be valid bins of the market.
func (e *Engine) BinQuantitiesInRange(marketID uint64, from, to int64) ([]BinQuantityEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.marketLocked(marketID)
	if err != nil {
		return nil, err
	}
	if err := m.ValidateBin(from); err != nil {
		return nil, err
	}
	if err := m.ValidateBin(to); err != nil {
		return nil, err
	}
	if from > to {
		return nil, fmt.Errorf("%w: from %d above to %d", market.ErrBinOutOfRange, from, to)
	}

	out := make([]BinQuantityEntry, 0, (to-from)/m.TickSpacing+1)
	for bin := from; bin <= to; bin += m.TickSpacing {
		out = append(out, BinQuantityEntry{Bin: bin, Quantity: m.BinQuantity(bin)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bin < out[j].Bin })
	return out, nil
}

// LastClosedMarketID returns the id of the most recently closed market.
// ok is false while no market has been closed yet.
func (e *Engine) LastClosedMarketID() (id uint64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closedCount == 0 {
		return 0, false
	}
	return e.closedCount - 1, true
}

// CalculateBinCost quotes the cost of buying amount units in a bin at the
// market's current state, without mutating anything.
func (e *Engine) CalculateBinCost(marketID uint64, bin int64, amount *uint256.Int) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.marketLocked(marketID)
	if err != nil {
		return nil, err
	}
	if err := m.ValidateBin(bin); err != nil {
		return nil, err
	}
	return pricing.Cost(amount, m.BinQuantity(bin), m.Total)
}

// CalculateXForBin quotes the quantity purchasable in a bin for the given
// budget at the market's current state.
func (e *Engine) CalculateXForBin(marketID uint64, bin int64, budget *uint256.Int) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.marketLocked(marketID)
	if err != nil {
		return nil, err
	}
	if err := m.ValidateBin(bin); err != nil {
		return nil, err
	}
	return pricing.XForCost(budget, m.BinQuantity(bin), m.Total)
}

// CalculateBinSellCost quotes the revenue of selling amount units from a bin
// at the market's current state.
func (e *Engine) CalculateBinSellCost(marketID uint64, bin int64, amount *uint256.Int) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.marketLocked(marketID)
	if err != nil {
		return nil, err
	}
	if err := m.ValidateBin(bin); err != nil {
		return nil, err
	}
	q := m.BinQuantity(bin)
	if q.Lt(amount) {
		return nil, fmt.Errorf("%w: bin %d holds %s, quoting %s", market.ErrInsufficientBinLiquidity,
			bin, q.Dec(), amount.Dec())
	}
	return pricing.SellCost(amount, q, m.Total)
}

// PriceToBinIndex maps a price to its containing bin for a given spacing.
// Pure helper, exported for API symmetry with the engine's other getters.
func PriceToBinIndex(price, tickSpacing int64) (int64, error) {
	if tickSpacing <= 0 {
		return 0, fmt.Errorf("%w: tick spacing %d must be positive", market.ErrInvalidTickConfig, tickSpacing)
	}
	return market.PriceToBin(price, tickSpacing), nil
}
