package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"RangeMarket/internal/collateral"
	"RangeMarket/internal/engine"
	"RangeMarket/internal/event"
	"RangeMarket/internal/fixedpoint"
	"RangeMarket/internal/position"
	"RangeMarket/internal/server"
)

func wad(u uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(u), fixedpoint.One)
}

func newTestServer(t *testing.T) (*httptest.Server, *collateral.MemoryVault) {
	t.Helper()
	vault := collateral.NewMemoryVault()
	eng := engine.New(position.NewMemoryLedger(), vault, event.NopSink{}, zerolog.Nop(), nil)
	srv := server.New(eng, vault, zerolog.Nop(), nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, vault
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

// ============================================================================
// Test: full trading flow over HTTP
// ============================================================================

func TestAPI_TradingFlow(t *testing.T) {
	ts, vault := newTestServer(t)
	trader := uuid.New()
	if err := vault.Fund(trader, wad(1000)); err != nil {
		t.Fatalf("fund: %v", err)
	}

	// Create a market.
	resp, body := postJSON(t, ts.URL+"/api/markets", map[string]any{
		"tick_spacing": 60, "min_tick": -360, "max_tick": 360, "scheduled_close": 0,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create market: status %d, body %v", resp.StatusCode, body)
	}
	marketID := fmt.Sprintf("%.0f", body["market_id"].(float64))

	// Buy 100 units of bin 0 at face value.
	resp, body = postJSON(t, ts.URL+"/api/markets/"+marketID+"/buy", map[string]any{
		"account": trader.String(),
		"bins":    []int64{0},
		"amounts": []string{wad(100).Dec()},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("buy: status %d, body %v", resp.StatusCode, body)
	}
	if got := body["total_cost"]; got != wad(100).Dec() {
		t.Errorf("total_cost: got %v, want %s", got, wad(100).Dec())
	}

	// Market state reflects the buy.
	resp, body = getJSON(t, ts.URL+"/api/markets/"+marketID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get market: status %d", resp.StatusCode)
	}
	if got := body["total"]; got != wad(100).Dec() {
		t.Errorf("total: got %v, want %s", got, wad(100).Dec())
	}
	if body["closed"].(bool) {
		t.Error("market should not be closed")
	}

	// Bin query.
	resp, body = getJSON(t, ts.URL+"/api/markets/"+marketID+"/bins/0")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bin quantity: status %d", resp.StatusCode)
	}
	if got := body["quantity"]; got != wad(100).Dec() {
		t.Errorf("quantity: got %v, want %s", got, wad(100).Dec())
	}

	// Quote then sell 40 units.
	resp, body = getJSON(t, ts.URL+"/api/markets/"+marketID+"/quotes/sell?bin=0&amount="+wad(40).Dec())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("quote sell: status %d, body %v", resp.StatusCode, body)
	}
	if got := body["revenue"]; got != wad(40).Dec() {
		t.Errorf("at-par quote: got %v, want %s", got, wad(40).Dec())
	}
	resp, body = postJSON(t, ts.URL+"/api/markets/"+marketID+"/sell", map[string]any{
		"account":     trader.String(),
		"bins":        []int64{0},
		"amounts":     []string{wad(40).Dec()},
		"min_revenue": wad(40).Dec(),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sell: status %d, body %v", resp.StatusCode, body)
	}

	// Close at price 30 and claim.
	resp, body = postJSON(t, ts.URL+"/api/markets/close", map[string]any{"actual_price": 30})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close: status %d, body %v", resp.StatusCode, body)
	}
	if got := body["winning_bin"].(float64); got != 0 {
		t.Errorf("winning bin: got %v, want 0", got)
	}
	resp, body = postJSON(t, ts.URL+"/api/markets/"+marketID+"/claim", map[string]any{
		"account": trader.String(),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("claim: status %d, body %v", resp.StatusCode, body)
	}
	if got := body["reward"]; got != wad(60).Dec() {
		t.Errorf("reward: got %v, want %s", got, wad(60).Dec())
	}

	// Everything flowed back to the trader.
	if got := vault.Balance(trader); !got.Eq(wad(1000)) {
		t.Errorf("final balance: got %s, want %s", got.Dec(), wad(1000).Dec())
	}
}

// ============================================================================
// Test: error mapping
// ============================================================================

func TestAPI_ErrorStatuses(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := getJSON(t, ts.URL+"/api/markets/99")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown market: status %d, want 404", resp.StatusCode)
	}
	if got := body["error"]; got != "market_not_found" {
		t.Errorf("error code: got %v, want market_not_found", got)
	}

	resp, body = postJSON(t, ts.URL+"/api/markets", map[string]any{
		"tick_spacing": 0, "min_tick": -360, "max_tick": 360, "scheduled_close": 0,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid config: status %d, want 400", resp.StatusCode)
	}
	if got := body["error"]; got != "invalid_tick_config" {
		t.Errorf("error code: got %v, want invalid_tick_config", got)
	}

	resp, _ = postJSON(t, ts.URL+"/api/markets/close", map[string]any{"actual_price": 0})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("nothing to close: status %d, want 409", resp.StatusCode)
	}

	// Unknown fields are rejected.
	resp, _ = postJSON(t, ts.URL+"/api/markets", map[string]any{
		"tick_spacing": 60, "min_tick": -360, "max_tick": 360, "scheduled_close": 0,
		"bogus": true,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown field: status %d, want 400", resp.StatusCode)
	}
}

func TestAPI_ValidationErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := postJSON(t, ts.URL+"/api/markets", map[string]any{
		"tick_spacing": 60, "min_tick": -360, "max_tick": 360, "scheduled_close": 0,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create market: status %d", resp.StatusCode)
	}

	// Malformed account.
	resp, _ = postJSON(t, ts.URL+"/api/markets/0/buy", map[string]any{
		"account": "not-a-uuid",
		"bins":    []int64{0},
		"amounts": []string{"1"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad account: status %d, want 400", resp.StatusCode)
	}

	// Malformed amount.
	resp, _ = postJSON(t, ts.URL+"/api/markets/0/buy", map[string]any{
		"account": uuid.New().String(),
		"bins":    []int64{0},
		"amounts": []string{"12.5"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad amount: status %d, want 400", resp.StatusCode)
	}

	// Misaligned bin surfaces the domain error.
	resp, body := postJSON(t, ts.URL+"/api/markets/0/buy", map[string]any{
		"account": uuid.New().String(),
		"bins":    []int64{30},
		"amounts": []string{wad(1).Dec()},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("misaligned bin: status %d, want 400", resp.StatusCode)
	}
	if got := body["error"]; got != "bin_misaligned" {
		t.Errorf("error code: got %v, want bin_misaligned", got)
	}
}

// ============================================================================
// Test: faucet endpoints
// ============================================================================

func TestAPI_Faucet(t *testing.T) {
	ts, _ := newTestServer(t)
	account := uuid.New()

	resp, body := postJSON(t, ts.URL+"/api/accounts/"+account.String()+"/fund", map[string]any{
		"amount": wad(500).Dec(),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fund: status %d, body %v", resp.StatusCode, body)
	}
	if got := body["balance"]; got != wad(500).Dec() {
		t.Errorf("balance after fund: got %v, want %s", got, wad(500).Dec())
	}

	resp, body = getJSON(t, ts.URL+"/api/accounts/"+account.String()+"/balance")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("balance: status %d", resp.StatusCode)
	}
	if got := body["balance"]; got != wad(500).Dec() {
		t.Errorf("balance: got %v, want %s", got, wad(500).Dec())
	}
}

// ============================================================================
// Test: bin helpers
// ============================================================================

func TestAPI_BinIndex(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := getJSON(t, ts.URL+"/api/bins/index?price=-30&tick_spacing=60")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bin index: status %d", resp.StatusCode)
	}
	if got := body["bin"].(float64); got != -60 {
		t.Errorf("bin: got %v, want -60", got)
	}
}
