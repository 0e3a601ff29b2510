package market

import "errors"

// Sentinel errors for the market domain. The engine wraps these with
// operation context; the HTTP layer maps them to status codes. Every
// validation failure aborts the whole operation with no partial mutation.
var (
	ErrInvalidTickConfig   = errors.New("invalid_tick_config")
	ErrArrayLengthMismatch = errors.New("array_length_mismatch")
	ErrMarketNotFound      = errors.New("market_not_found")
	ErrMarketNotActive     = errors.New("market_not_active")
	ErrMarketAlreadyClosed = errors.New("market_already_closed")
	ErrMarketNotClosed     = errors.New("market_not_closed")
	ErrBinOutOfRange       = errors.New("bin_out_of_range")
	ErrBinMisaligned       = errors.New("bin_misaligned")

	ErrCostExceedsBudget           = errors.New("cost_exceeds_budget")
	ErrRevenueBelowMinimum         = errors.New("revenue_below_minimum")
	ErrInsufficientPositionBalance = errors.New("insufficient_position_balance")
	ErrInsufficientBinLiquidity    = errors.New("insufficient_bin_liquidity")

	ErrNoMoreMarketsToClose    = errors.New("no_more_markets_to_close")
	ErrPriceOutsideMarketRange = errors.New("price_outside_market_range")
	ErrNoTokensToClaim         = errors.New("no_tokens_to_claim")
)
