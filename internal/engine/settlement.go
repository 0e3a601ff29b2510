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
)

// CloseMarket resolves the next unclosed market in strict id order. The
// settlement price is mapped to its containing bin; a price outside the
// market's range fails the close. On success the market stops trading, the
// reward pool and the winning bin's supply are snapshotted as the fixed
// basis for every subsequent claim, and the close cursor advances.
//
// Returns the id of the market that was closed and its winning bin.
func (e *Engine) CloseMarket(actualPrice int64) (uint64, int64, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.closedCount
	if id >= uint64(len(e.markets)) {
		err := market.ErrNoMoreMarketsToClose
		e.reject("close_market", err)
		return 0, 0, err
	}
	m := e.markets[id]
	if m.Closed {
		panic(fmt.Sprintf("FATAL: market %d behind the close cursor is already closed", id))
	}
	if !m.Active {
		err := fmt.Errorf("market %d: %w", id, market.ErrMarketNotActive)
		e.reject("close_market", err)
		return 0, 0, err
	}

	bin := market.PriceToBin(actualPrice, m.TickSpacing)
	if bin < m.MinTick || bin > m.MaxTick {
		err := fmt.Errorf("%w: price %d maps to bin %d, range [%d, %d]",
			market.ErrPriceOutsideMarketRange, actualPrice, bin, m.MinTick, m.MaxTick)
		e.reject("close_market", err)
		return 0, 0, err
	}

	m.Closed = true
	m.Active = false
	m.WinningBin = bin
	m.FinalPrice = actualPrice
	m.TotalRewardPool = new(uint256.Int).Set(m.CollateralBalance)
	m.WinningBinTotal = m.BinQuantity(bin)
	e.closedCount++

	e.log.Info().
		Uint64("market_id", id).
		Int64("final_price", actualPrice).
		Int64("winning_bin", bin).
		Str("reward_pool", m.TotalRewardPool.Dec()).
		Msg("market closed")
	if e.metrics != nil {
		e.metrics.MarketsClosed.Inc()
		e.metrics.MarketsOpen.Dec()
	}
	e.emitLocked(event.TypeMarketClosed, id, event.MarketClosed{
		MarketID:        id,
		FinalPrice:      actualPrice,
		WinningBin:      bin,
		TotalRewardPool: m.TotalRewardPool.Dec(),
		WinningBinTotal: m.WinningBinTotal.Dec(),
	})

	e.applied("close_market", start)
	return id, bin, nil
}

// ClaimReward pays out a holder of the winning bin on a closed market. A
// zero (or nil) amount claims the claimant's full balance. The reward is
//
//	claim * totalRewardPool / winningBinTotal
//
// over the snapshots taken at close time, so later claims draining the live
// collateral balance never change anyone's rate. Partial claims compose: any
// split of a balance yields the same total reward as a single claim, up to
// fixed-point truncation. Returns the reward paid.
func (e *Engine) ClaimReward(claimant uuid.UUID, marketID uint64, amount *uint256.Int) (*uint256.Int, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.marketLocked(marketID)
	if err != nil {
		e.reject("claim_reward", err)
		return nil, err
	}
	if !m.Closed {
		err := fmt.Errorf("market %d: %w", marketID, market.ErrMarketNotClosed)
		e.reject("claim_reward", err)
		return nil, err
	}

	tokenID, err := position.TokenID(marketID, m.WinningBin)
	if err != nil {
		e.reject("claim_reward", err)
		return nil, err
	}
	balance := e.positions.BalanceOf(claimant, tokenID)
	if balance.IsZero() {
		err := fmt.Errorf("market %d: %w", marketID, market.ErrNoTokensToClaim)
		e.reject("claim_reward", err)
		return nil, err
	}

	claim := new(uint256.Int)
	if amount == nil || amount.IsZero() {
		claim.Set(balance)
	} else if amount.Gt(balance) {
		err := fmt.Errorf("%w: balance %s, claiming %s", market.ErrInsufficientPositionBalance,
			balance.Dec(), amount.Dec())
		e.reject("claim_reward", err)
		return nil, err
	} else {
		claim.Set(amount)
	}

	if m.WinningBinTotal.IsZero() {
		// A positive external balance against a zero winning-bin supply
		// means the ledger and the engine have diverged.
		panic(fmt.Sprintf("FATAL: market %d has winning-bin holders but zero winning-bin supply", marketID))
	}
	reward, err := fixedpoint.MulDiv(claim, m.TotalRewardPool, m.WinningBinTotal)
	if err != nil {
		e.reject("claim_reward", err)
		return nil, err
	}
	if err := m.SubCollateral(reward); err != nil {
		// Truncation keeps the sum of all claims within the snapshot, so
		// this is only reachable after an out-of-band collateral sweep.
		err = fmt.Errorf("claim reward: %w", err)
		e.reject("claim_reward", err)
		return nil, err
	}

	if err := e.positions.Burn(claimant, tokenID, claim); err != nil {
		panic(fmt.Sprintf("FATAL: burn after commit failed: %v", err))
	}
	if err := e.vault.Deposit(claimant, reward); err != nil {
		panic(fmt.Sprintf("FATAL: payout after commit failed: %v", err))
	}

	e.log.Info().
		Uint64("market_id", marketID).
		Str("claimant", claimant.String()).
		Str("amount", claim.Dec()).
		Str("reward", reward.Dec()).
		Msg("reward claimed")
	if e.metrics != nil {
		e.metrics.RewardClaims.Inc()
	}
	e.emitLocked(event.TypeRewardClaimed, marketID, event.RewardClaimed{
		MarketID: marketID,
		Claimant: claimant,
		Amount:   claim.Dec(),
		Reward:   reward.Dec(),
	})

	e.applied("claim_reward", start)
	return reward, nil
}

// WithdrawCollateral sweeps a closed market's residual collateral (rounding
// dust after claims, or unclaimed funds) to the given account. Claims after
// a sweep fail on the drained balance rather than minting value.
func (e *Engine) WithdrawCollateral(to uuid.UUID, marketID uint64) (*uint256.Int, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.marketLocked(marketID)
	if err != nil {
		e.reject("withdraw_collateral", err)
		return nil, err
	}
	if !m.Closed {
		err := fmt.Errorf("market %d: %w", marketID, market.ErrMarketNotClosed)
		e.reject("withdraw_collateral", err)
		return nil, err
	}

	amount := new(uint256.Int).Set(m.CollateralBalance)
	if err := m.SubCollateral(amount); err != nil {
		panic(fmt.Sprintf("FATAL: %v", err))
	}
	if err := e.vault.Deposit(to, amount); err != nil {
		panic(fmt.Sprintf("FATAL: payout after commit failed: %v", err))
	}

	e.log.Info().
		Uint64("market_id", marketID).
		Str("to", to.String()).
		Str("amount", amount.Dec()).
		Msg("collateral withdrawn")
	e.emitLocked(event.TypeCollateralWithdrawn, marketID, event.CollateralWithdrawn{
		MarketID: marketID,
		To:       to,
		Amount:   amount.Dec(),
	})

	e.applied("withdraw_collateral", start)
	return amount, nil
}
