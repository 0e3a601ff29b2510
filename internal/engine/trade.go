package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"RangeMarket/internal/event"
	"RangeMarket/internal/fixedpoint"
	"RangeMarket/internal/market"
	"RangeMarket/internal/position"
	"RangeMarket/internal/pricing"
)

// stagedEntry is one validated (bin, amount) pair, priced against the
// running totals, waiting for commit.
type stagedEntry struct {
	bin     int64
	amount  *uint256.Int
	tokenID *uint256.Int
}

// BuyTokens purchases amounts[i] units in bins[i], pricing each entry
// against the running market total so multiple bins in one call compound
// correctly. Zero-amount entries are skipped. The whole call is
// rejected, with no mutation, if any entry fails validation or the total
// cost exceeds maxCollateral.
//
// On success the collateral is pulled from the buyer, state is committed and
// all position mints execute in one batch. Returns the total cost.
func (e *Engine) BuyTokens(buyer uuid.UUID, marketID uint64, bins []int64, amounts []*uint256.Int, maxCollateral *uint256.Int) (*uint256.Int, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(bins) != len(amounts) {
		err := fmt.Errorf("%w: %d bins, %d amounts", market.ErrArrayLengthMismatch, len(bins), len(amounts))
		e.reject("buy_tokens", err)
		return nil, err
	}

	m, err := e.tradableLocked(marketID)
	if err != nil {
		e.reject("buy_tokens", err)
		return nil, err
	}

	// Stage: price every entry against scratch copies of q and T. Nothing
	// below mutates the market until all validation has passed.
	runningT := new(uint256.Int).Set(m.Total)
	scratch := make(map[int64]*uint256.Int)
	totalCost := new(uint256.Int)
	var staged []stagedEntry

	for i, bin := range bins {
		amount := amounts[i]
		if amount == nil || amount.IsZero() {
			continue
		}
		if err := m.ValidateBin(bin); err != nil {
			e.reject("buy_tokens", err)
			return nil, err
		}
		tokenID, err := position.TokenID(marketID, bin)
		if err != nil {
			e.reject("buy_tokens", err)
			return nil, err
		}

		q, ok := scratch[bin]
		if !ok {
			q = m.BinQuantity(bin)
			scratch[bin] = q
		}

		cost, err := pricing.Cost(amount, q, runningT)
		if err != nil {
			e.reject("buy_tokens", err)
			return nil, fmt.Errorf("price bin %d: %w", bin, err)
		}
		if totalCost, err = fixedpoint.Add(totalCost, cost); err != nil {
			e.reject("buy_tokens", err)
			return nil, err
		}

		q.Add(q, amount)
		if runningT, err = fixedpoint.Add(runningT, amount); err != nil {
			e.reject("buy_tokens", err)
			return nil, err
		}
		staged = append(staged, stagedEntry{bin: bin, amount: amount, tokenID: tokenID})
	}

	if maxCollateral != nil && totalCost.Gt(maxCollateral) {
		err := fmt.Errorf("%w: cost %s, budget %s", market.ErrCostExceedsBudget,
			totalCost.Dec(), maxCollateral.Dec())
		e.reject("buy_tokens", err)
		return nil, err
	}
	if len(staged) == 0 {
		// Every entry was a zero-amount skip.
		return new(uint256.Int), nil
	}

	// Pull the collateral first: a failed pull rejects the call before any
	// state changes.
	if err := e.vault.Withdraw(buyer, totalCost); err != nil {
		e.reject("buy_tokens", err)
		return nil, fmt.Errorf("pull collateral: %w", err)
	}

	// Commit.
	for _, s := range staged {
		m.CreditBin(s.bin, s.amount)
	}
	m.AddCollateral(totalCost)

	// External mints after all state mutation. The ledger is non-reentrant
	// by construction; a mint failure after commit means the collaborators
	// and the engine have diverged, which is unrecoverable.
	for _, s := range staged {
		if err := e.positions.Mint(buyer, s.tokenID, s.amount); err != nil {
			panic(fmt.Sprintf("FATAL: mint after commit failed: %v", err))
		}
	}

	evtBins, evtAmounts := entriesForEvent(staged)
	e.log.Info().
		Uint64("market_id", marketID).
		Str("buyer", buyer.String()).
		Int("bins", len(staged)).
		Str("total_cost", totalCost.Dec()).
		Msg("tokens bought")
	if e.metrics != nil {
		e.metrics.BinsBought.Add(float64(len(staged)))
	}
	e.emitLocked(event.TypeTokensBought, marketID, event.TokensBought{
		MarketID:  marketID,
		Buyer:     buyer,
		Bins:      evtBins,
		Amounts:   evtAmounts,
		TotalCost: totalCost.Dec(),
	})

	e.applied("buy_tokens", start)
	return totalCost, nil
}

// SellTokens liquidates amounts[i] units from bins[i], the mirror of
// BuyTokens: each entry is priced against the running total, the seller's
// position balance and the bin's liquidity are verified per entry, and the
// whole call is rejected if the total revenue falls below minRevenue.
//
// On success state is committed, the positions are burned and the collateral
// is pushed to the seller. Returns the total revenue.
func (e *Engine) SellTokens(seller uuid.UUID, marketID uint64, bins []int64, amounts []*uint256.Int, minRevenue *uint256.Int) (*uint256.Int, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(bins) != len(amounts) {
		err := fmt.Errorf("%w: %d bins, %d amounts", market.ErrArrayLengthMismatch, len(bins), len(amounts))
		e.reject("sell_tokens", err)
		return nil, err
	}

	m, err := e.tradableLocked(marketID)
	if err != nil {
		e.reject("sell_tokens", err)
		return nil, err
	}

	runningT := new(uint256.Int).Set(m.Total)
	scratch := make(map[int64]*uint256.Int)
	spent := make(map[int64]*uint256.Int) // staged sells per bin, for balance checks
	totalRevenue := new(uint256.Int)
	var staged []stagedEntry

	for i, bin := range bins {
		amount := amounts[i]
		if amount == nil || amount.IsZero() {
			continue
		}
		if err := m.ValidateBin(bin); err != nil {
			e.reject("sell_tokens", err)
			return nil, err
		}
		tokenID, err := position.TokenID(marketID, bin)
		if err != nil {
			e.reject("sell_tokens", err)
			return nil, err
		}

		// The seller's external balance must cover this entry plus any
		// earlier entries staged against the same bin.
		balance := e.positions.BalanceOf(seller, tokenID)
		alreadyStaged, ok := spent[bin]
		if !ok {
			alreadyStaged = new(uint256.Int)
			spent[bin] = alreadyStaged
		}
		needed, err := fixedpoint.Add(alreadyStaged, amount)
		if err != nil {
			e.reject("sell_tokens", err)
			return nil, err
		}
		if balance.Lt(needed) {
			err := fmt.Errorf("%w: bin %d balance %s, selling %s", market.ErrInsufficientPositionBalance,
				bin, balance.Dec(), needed.Dec())
			e.reject("sell_tokens", err)
			return nil, err
		}

		q, qStaged := scratch[bin]
		if !qStaged {
			q = m.BinQuantity(bin)
			scratch[bin] = q
		}
		if q.Lt(amount) {
			err := fmt.Errorf("%w: bin %d holds %s, selling %s", market.ErrInsufficientBinLiquidity,
				bin, q.Dec(), amount.Dec())
			e.reject("sell_tokens", err)
			return nil, err
		}

		revenue, err := pricing.SellCost(amount, q, runningT)
		if err != nil {
			e.reject("sell_tokens", err)
			return nil, fmt.Errorf("price bin %d: %w", bin, err)
		}
		if totalRevenue, err = fixedpoint.Add(totalRevenue, revenue); err != nil {
			e.reject("sell_tokens", err)
			return nil, err
		}

		q.Sub(q, amount)
		runningT.Sub(runningT, amount)
		alreadyStaged.Add(alreadyStaged, amount)
		staged = append(staged, stagedEntry{bin: bin, amount: amount, tokenID: tokenID})
	}

	if minRevenue != nil && totalRevenue.Lt(minRevenue) {
		err := fmt.Errorf("%w: revenue %s, minimum %s", market.ErrRevenueBelowMinimum,
			totalRevenue.Dec(), minRevenue.Dec())
		e.reject("sell_tokens", err)
		return nil, err
	}
	if len(staged) == 0 {
		return new(uint256.Int), nil
	}

	// Commit. The collateral debit cannot fail unless the market invariants
	// were already broken: revenue never exceeds the collateral the curve
	// collected for these positions.
	for _, s := range staged {
		if err := m.DebitBin(s.bin, s.amount); err != nil {
			panic(fmt.Sprintf("FATAL: debit after validation failed: %v", err))
		}
	}
	if err := m.SubCollateral(totalRevenue); err != nil {
		panic(fmt.Sprintf("FATAL: %v", err))
	}

	// External burns and the payout after all state mutation.
	for _, s := range staged {
		if err := e.positions.Burn(seller, s.tokenID, s.amount); err != nil {
			panic(fmt.Sprintf("FATAL: burn after commit failed: %v", err))
		}
	}
	if err := e.vault.Deposit(seller, totalRevenue); err != nil {
		panic(fmt.Sprintf("FATAL: payout after commit failed: %v", err))
	}

	evtBins, evtAmounts := entriesForEvent(staged)
	e.log.Info().
		Uint64("market_id", marketID).
		Str("seller", seller.String()).
		Int("bins", len(staged)).
		Str("total_revenue", totalRevenue.Dec()).
		Msg("tokens sold")
	if e.metrics != nil {
		e.metrics.BinsSold.Add(float64(len(staged)))
	}
	e.emitLocked(event.TypeTokensSold, marketID, event.TokensSold{
		MarketID:     marketID,
		Seller:       seller,
		Bins:         evtBins,
		Amounts:      evtAmounts,
		TotalRevenue: totalRevenue.Dec(),
	})

	e.applied("sell_tokens", start)
	return totalRevenue, nil
}

func entriesForEvent(staged []stagedEntry) ([]int64, []string) {
	bins := make([]int64, len(staged))
	amounts := make([]string, len(staged))
	for i, s := range staged {
		bins[i] = s.bin
		amounts[i] = s.amount.Dec()
	}
	return bins, amounts
}
