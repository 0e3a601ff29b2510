// Package event defines the notification events the engine emits to external
// observers. Each event carries the full set of parameters needed to
// reconstruct the state change without re-reading engine state. Events are
// observational: core correctness never depends on a sink consuming them.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminates event payloads.
type Type int32

const (
	TypeUnknown Type = iota
	TypeMarketCreated
	TypeMarketActivation
	TypeTokensBought
	TypeTokensSold
	TypeMarketClosed
	TypeRewardClaimed
	TypeCollateralWithdrawn
)

func (t Type) String() string {
	switch t {
	case TypeMarketCreated:
		return "MarketCreated"
	case TypeMarketActivation:
		return "MarketActivation"
	case TypeTokensBought:
		return "TokensBought"
	case TypeTokensSold:
		return "TokensSold"
	case TypeMarketClosed:
		return "MarketClosed"
	case TypeRewardClaimed:
		return "RewardClaimed"
	case TypeCollateralWithdrawn:
		return "CollateralWithdrawn"
	default:
		return "Unknown"
	}
}

// Record wraps every emitted event with its engine-assigned sequence.
type Record struct {
	Sequence  uint64    `json:"sequence"`
	Type      Type      `json:"type"`
	MarketID  uint64    `json:"market_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Amounts cross the boundary as 18-decimal fixed-point values rendered in
// decimal strings, so observers never lose precision to JSON numbers.

type MarketCreated struct {
	MarketID       uint64    `json:"market_id"`
	TickSpacing    int64     `json:"tick_spacing"`
	MinTick        int64     `json:"min_tick"`
	MaxTick        int64     `json:"max_tick"`
	OpenedAt       time.Time `json:"opened_at"`
	ScheduledClose int64     `json:"scheduled_close"`
}

type MarketActivation struct {
	MarketID uint64 `json:"market_id"`
	Active   bool   `json:"active"`
}

type TokensBought struct {
	MarketID  uint64    `json:"market_id"`
	Buyer     uuid.UUID `json:"buyer"`
	Bins      []int64   `json:"bins"`
	Amounts   []string  `json:"amounts"`
	TotalCost string    `json:"total_cost"`
}

type TokensSold struct {
	MarketID     uint64    `json:"market_id"`
	Seller       uuid.UUID `json:"seller"`
	Bins         []int64   `json:"bins"`
	Amounts      []string  `json:"amounts"`
	TotalRevenue string    `json:"total_revenue"`
}

type MarketClosed struct {
	MarketID        uint64 `json:"market_id"`
	FinalPrice      int64  `json:"final_price"`
	WinningBin      int64  `json:"winning_bin"`
	TotalRewardPool string `json:"total_reward_pool"`
	WinningBinTotal string `json:"winning_bin_total"`
}

type RewardClaimed struct {
	MarketID uint64    `json:"market_id"`
	Claimant uuid.UUID `json:"claimant"`
	Amount   string    `json:"amount"`
	Reward   string    `json:"reward"`
}

type CollateralWithdrawn struct {
	MarketID uint64    `json:"market_id"`
	To       uuid.UUID `json:"to"`
	Amount   string    `json:"amount"`
}
