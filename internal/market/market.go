// Package market holds the per-market mutable record and its validation
// rules: tick alignment, range membership, price-to-bin bucketing and the
// bookkeeping mutations over bin quantities, total supply and collateral.
//
// Invariants maintained here (the engine orders checks before mutation):
//
//	Total == Σ bins[*]
//	0 <= bins[b] <= Total for every bin b
//	CollateralBalance >= 0
//
// Bins are sparse: the map holds only touched bins and absent entries read
// as zero.
package market

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
)

// Market is the mutable state of one prediction market. A bin is identified
// by its lower tick boundary, an integer multiple of TickSpacing inside
// [MinTick, MaxTick]. Timestamps are inert metadata and never drive logic.
type Market struct {
	ID          uint64
	Active      bool
	Closed      bool
	TickSpacing int64
	MinTick     int64
	MaxTick     int64

	// Total outstanding position units across all bins (T).
	Total *uint256.Int

	// Collateral currently held for this market.
	CollateralBalance *uint256.Int

	// Snapshot of CollateralBalance taken at close time; the fixed numerator
	// for every subsequent reward claim. Never changes after close.
	TotalRewardPool *uint256.Int

	// Snapshot of the winning bin's quantity taken at close time; the fixed
	// denominator for every subsequent reward claim.
	WinningBinTotal *uint256.Int

	WinningBin int64 // valid only after close
	FinalPrice int64 // raw settlement value, valid only after close

	OpenedAt       time.Time
	ScheduledClose int64 // metadata only

	bins map[int64]*uint256.Int
}

// New creates an active, open market. Tick parameters must already have been
// validated with ValidateConfig.
func New(id uint64, tickSpacing, minTick, maxTick int64, openedAt time.Time, scheduledClose int64) *Market {
	return &Market{
		ID:                id,
		Active:            true,
		TickSpacing:       tickSpacing,
		MinTick:           minTick,
		MaxTick:           maxTick,
		Total:             new(uint256.Int),
		CollateralBalance: new(uint256.Int),
		OpenedAt:          openedAt,
		ScheduledClose:    scheduledClose,
		bins:              make(map[int64]*uint256.Int),
	}
}

// ValidateConfig checks a market's tick parameters: positive spacing,
// min/max aligned to the spacing, and min strictly below max.
func ValidateConfig(tickSpacing, minTick, maxTick int64) error {
	if tickSpacing <= 0 {
		return fmt.Errorf("%w: tick spacing %d must be positive", ErrInvalidTickConfig, tickSpacing)
	}
	if minTick%tickSpacing != 0 {
		return fmt.Errorf("%w: min tick %d not a multiple of spacing %d", ErrInvalidTickConfig, minTick, tickSpacing)
	}
	if maxTick%tickSpacing != 0 {
		return fmt.Errorf("%w: max tick %d not a multiple of spacing %d", ErrInvalidTickConfig, maxTick, tickSpacing)
	}
	if minTick >= maxTick {
		return fmt.Errorf("%w: min tick %d must be below max tick %d", ErrInvalidTickConfig, minTick, maxTick)
	}
	return nil
}

// ValidateBin checks that bin is a multiple of the tick spacing and lies
// within [MinTick, MaxTick].
func (m *Market) ValidateBin(bin int64) error {
	if bin%m.TickSpacing != 0 {
		return fmt.Errorf("%w: bin %d not a multiple of spacing %d", ErrBinMisaligned, bin, m.TickSpacing)
	}
	if bin < m.MinTick || bin > m.MaxTick {
		return fmt.Errorf("%w: bin %d outside [%d, %d]", ErrBinOutOfRange, bin, m.MinTick, m.MaxTick)
	}
	return nil
}

// PriceToBin maps a settlement price to the bin containing it: the largest
// multiple of tickSpacing that is <= price. This is floor division, not
// truncation: negative prices round toward negative infinity.
func PriceToBin(price, tickSpacing int64) int64 {
	q := price / tickSpacing
	if price%tickSpacing != 0 && price < 0 {
		q--
	}
	return q * tickSpacing
}

// BinQuantity returns a copy of the quantity held in bin. Absent bins are
// zero.
func (m *Market) BinQuantity(bin int64) *uint256.Int {
	if q, ok := m.bins[bin]; ok {
		return new(uint256.Int).Set(q)
	}
	return new(uint256.Int)
}

// CreditBin adds amount to a bin and to the market total.
func (m *Market) CreditBin(bin int64, amount *uint256.Int) {
	q, ok := m.bins[bin]
	if !ok {
		q = new(uint256.Int)
		m.bins[bin] = q
	}
	q.Add(q, amount)
	m.Total.Add(m.Total, amount)
}

// DebitBin removes amount from a bin and from the market total. The caller
// must have verified the bin covers the amount; a shortfall here means the
// bookkeeping invariants were already broken.
func (m *Market) DebitBin(bin int64, amount *uint256.Int) error {
	q, ok := m.bins[bin]
	if !ok || q.Lt(amount) {
		return fmt.Errorf("%w: bin %d holds %s, debit %s", ErrInsufficientBinLiquidity,
			bin, m.BinQuantity(bin).Dec(), amount.Dec())
	}
	q.Sub(q, amount)
	m.Total.Sub(m.Total, amount)
	return nil
}

// AddCollateral increases the market's collateral balance.
func (m *Market) AddCollateral(amount *uint256.Int) {
	m.CollateralBalance.Add(m.CollateralBalance, amount)
}

// SubCollateral decreases the market's collateral balance, failing rather
// than letting it go negative.
func (m *Market) SubCollateral(amount *uint256.Int) error {
	if m.CollateralBalance.Lt(amount) {
		return fmt.Errorf("collateral balance %s below debit %s",
			m.CollateralBalance.Dec(), amount.Dec())
	}
	m.CollateralBalance.Sub(m.CollateralBalance, amount)
	return nil
}

// Bins returns the touched bins in no particular order, as (bin, quantity)
// pairs with copied quantities.
func (m *Market) Bins() map[int64]*uint256.Int {
	out := make(map[int64]*uint256.Int, len(m.bins))
	for bin, q := range m.bins {
		out[bin] = new(uint256.Int).Set(q)
	}
	return out
}
