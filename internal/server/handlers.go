package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"RangeMarket/internal/engine"
)

type createMarketRequest struct {
	TickSpacing    int64 `json:"tick_spacing"`
	MinTick        int64 `json:"min_tick"`
	MaxTick        int64 `json:"max_tick"`
	ScheduledClose int64 `json:"scheduled_close"`
}

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	id, err := s.engine.CreateMarket(req.TickSpacing, req.MinTick, req.MaxTick, req.ScheduledClose)
	if err != nil {
		WriteEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]uint64{"market_id": id})
}

type createMarketsRequest struct {
	TickSpacings    []int64 `json:"tick_spacings"`
	MinTicks        []int64 `json:"min_ticks"`
	MaxTicks        []int64 `json:"max_ticks"`
	ScheduledCloses []int64 `json:"scheduled_closes"`
}

func (s *Server) handleCreateMarkets(w http.ResponseWriter, r *http.Request) {
	var req createMarketsRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ids, err := s.engine.CreateMarkets(req.TickSpacings, req.MinTicks, req.MaxTicks, req.ScheduledCloses)
	if err != nil {
		WriteEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string][]uint64{"market_ids": ids})
}

type closeMarketRequest struct {
	ActualPrice int64 `json:"actual_price"`
}

func (s *Server) handleCloseMarket(w http.ResponseWriter, r *http.Request) {
	var req closeMarketRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	id, winningBin, err := s.engine.CloseMarket(req.ActualPrice)
	if err != nil {
		WriteEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"market_id":   id,
		"winning_bin": winningBin,
	})
}

type activationRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleActivation(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "market_id must be an unsigned integer")
		return
	}
	var req activationRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := s.engine.SetMarketActive(marketID, req.Active); err != nil {
		WriteEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

type tradeRequest struct {
	Account string   `json:"account"`
	Bins    []int64  `json:"bins"`
	Amounts []string `json:"amounts"`

	// Slippage guards. MaxCollateral applies to buys, MinRevenue to sells.
	MaxCollateral string `json:"max_collateral,omitempty"`
	MinRevenue    string `json:"min_revenue,omitempty"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "market_id must be an unsigned integer")
		return
	}
	var req tradeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	buyer, err := uuid.Parse(req.Account)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "account must be a UUID")
		return
	}
	amounts, err := parseAmounts(req.Amounts)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	var maxCollateral *uint256.Int
	if req.MaxCollateral != "" {
		if maxCollateral, err = parseAmount(req.MaxCollateral); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	cost, err := s.engine.BuyTokens(buyer, marketID, req.Bins, amounts, maxCollateral)
	if err != nil {
		WriteEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"total_cost": cost.Dec()})
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "market_id must be an unsigned integer")
		return
	}
	var req tradeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	seller, err := uuid.Parse(req.Account)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "account must be a UUID")
		return
	}
	amounts, err := parseAmounts(req.Amounts)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	var minRevenue *uint256.Int
	if req.MinRevenue != "" {
		if minRevenue, err = parseAmount(req.MinRevenue); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	revenue, err := s.engine.SellTokens(seller, marketID, req.Bins, amounts, minRevenue)
	if err != nil {
		WriteEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"total_revenue": revenue.Dec()})
}

type claimRequest struct {
	Account string `json:"account"`

	// Amount "0" (or omitted) claims the full balance.
	Amount string `json:"amount,omitempty"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "market_id must be an unsigned integer")
		return
	}
	var req claimRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	claimant, err := uuid.Parse(req.Account)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "account must be a UUID")
		return
	}
	var amount *uint256.Int
	if req.Amount != "" {
		if amount, err = parseAmount(req.Amount); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	reward, err := s.engine.ClaimReward(claimant, marketID, amount)
	if err != nil {
		WriteEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"reward": reward.Dec()})
}

type withdrawRequest struct {
	Account string `json:"account"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "market_id must be an unsigned integer")
		return
	}
	var req withdrawRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	to, err := uuid.Parse(req.Account)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "account must be a UUID")
		return
	}

	amount, err := s.engine.WithdrawCollateral(to, marketID)
	if err != nil {
		WriteEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"amount": amount.Dec()})
}

type marketResponse struct {
	MarketID          uint64 `json:"market_id"`
	Active            bool   `json:"active"`
	Closed            bool   `json:"closed"`
	TickSpacing       int64  `json:"tick_spacing"`
	MinTick           int64  `json:"min_tick"`
	MaxTick           int64  `json:"max_tick"`
	Total             string `json:"total"`
	CollateralBalance string `json:"collateral_balance"`
	TotalRewardPool   string `json:"total_reward_pool,omitempty"`
	WinningBin        *int64 `json:"winning_bin,omitempty"`
	FinalPrice        *int64 `json:"final_price,omitempty"`
	OpenedAt          string `json:"opened_at"`
	ScheduledClose    int64  `json:"scheduled_close"`
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "market_id must be an unsigned integer")
		return
	}

	info, err := s.engine.MarketInfo(marketID)
	if err != nil {
		WriteEngineError(w, err)
		return
	}

	resp := marketResponse{
		MarketID:          info.ID,
		Active:            info.Active,
		Closed:            info.Closed,
		TickSpacing:       info.TickSpacing,
		MinTick:           info.MinTick,
		MaxTick:           info.MaxTick,
		Total:             info.Total.Dec(),
		CollateralBalance: info.CollateralBalance.Dec(),
		OpenedAt:          info.OpenedAt.Format(time.RFC3339Nano),
		ScheduledClose:    info.ScheduledClose,
	}
	if info.Closed {
		resp.TotalRewardPool = info.TotalRewardPool.Dec()
		resp.WinningBin = &info.WinningBin
		resp.FinalPrice = &info.FinalPrice
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLastClosed(w http.ResponseWriter, r *http.Request) {
	id, ok := s.engine.LastClosedMarketID()
	if !ok {
		WriteJSON(w, http.StatusOK, map[string]any{"closed_any": false})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"closed_any": true, "market_id": id})
}

func (s *Server) handleBinQuantity(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "market_id must be an unsigned integer")
		return
	}
	bin, err := strconv.ParseInt(chi.URLParam(r, "bin"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "bin must be an integer")
		return
	}

	q, err := s.engine.BinQuantity(marketID, bin)
	if err != nil {
		WriteEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"quantity": q.Dec()})
}

type binEntryResponse struct {
	Bin      int64  `json:"bin"`
	Quantity string `json:"quantity"`
}

func (s *Server) handleBinRange(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "market_id must be an unsigned integer")
		return
	}
	from, err1 := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	to, err2 := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
	if err1 != nil || err2 != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "from and to must be integers")
		return
	}

	entries, err := s.engine.BinQuantitiesInRange(marketID, from, to)
	if err != nil {
		WriteEngineError(w, err)
		return
	}
	out := make([]binEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = binEntryResponse{Bin: e.Bin, Quantity: e.Quantity.Dec()}
	}
	WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleQuoteCost(w http.ResponseWriter, r *http.Request) {
	s.handleQuote(w, r, "amount", s.engine.CalculateBinCost, "cost")
}

func (s *Server) handleQuoteAmount(w http.ResponseWriter, r *http.Request) {
	s.handleQuote(w, r, "budget", s.engine.CalculateXForBin, "amount")
}

func (s *Server) handleQuoteSell(w http.ResponseWriter, r *http.Request) {
	s.handleQuote(w, r, "amount", s.engine.CalculateBinSellCost, "revenue")
}

func (s *Server) handleQuote(
	w http.ResponseWriter,
	r *http.Request,
	param string,
	quote func(uint64, int64, *uint256.Int) (*uint256.Int, error),
	field string,
) {
	marketID, err := marketIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "market_id must be an unsigned integer")
		return
	}
	bin, err := strconv.ParseInt(r.URL.Query().Get("bin"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "bin must be an integer")
		return
	}
	value, err := parseAmount(r.URL.Query().Get(param))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := quote(marketID, bin, value)
	if err != nil {
		WriteEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{field: result.Dec()})
}

func (s *Server) handleBinIndex(w http.ResponseWriter, r *http.Request) {
	price, err1 := strconv.ParseInt(r.URL.Query().Get("price"), 10, 64)
	spacing, err2 := strconv.ParseInt(r.URL.Query().Get("tick_spacing"), 10, 64)
	if err1 != nil || err2 != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "price and tick_spacing must be integers")
		return
	}

	bin, err := engine.PriceToBinIndex(price, spacing)
	if err != nil {
		WriteEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int64{"bin": bin})
}

type fundRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "account_id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "account_id must be a UUID")
		return
	}
	var req fundRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := s.faucet.Fund(account, amount); err != nil {
		WriteError(w, http.StatusUnprocessableEntity, "fund_failed", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"balance": s.faucet.Balance(account).Dec()})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "account_id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "account_id must be a UUID")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"balance": s.faucet.Balance(account).Dec()})
}
