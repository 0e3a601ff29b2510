package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/holiman/uint256"

	"RangeMarket/internal/market"
)

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{Error: errorCode, Message: message})
}

// WriteEngineError maps domain sentinel errors to HTTP status codes.
func WriteEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"

	for sentinel, s := range map[error]int{
		market.ErrMarketNotFound:              http.StatusNotFound,
		market.ErrInvalidTickConfig:           http.StatusBadRequest,
		market.ErrArrayLengthMismatch:         http.StatusBadRequest,
		market.ErrBinOutOfRange:               http.StatusBadRequest,
		market.ErrBinMisaligned:               http.StatusBadRequest,
		market.ErrMarketNotActive:             http.StatusConflict,
		market.ErrMarketAlreadyClosed:         http.StatusConflict,
		market.ErrMarketNotClosed:             http.StatusConflict,
		market.ErrNoMoreMarketsToClose:        http.StatusConflict,
		market.ErrPriceOutsideMarketRange:     http.StatusUnprocessableEntity,
		market.ErrCostExceedsBudget:           http.StatusUnprocessableEntity,
		market.ErrRevenueBelowMinimum:         http.StatusUnprocessableEntity,
		market.ErrInsufficientPositionBalance: http.StatusUnprocessableEntity,
		market.ErrInsufficientBinLiquidity:    http.StatusUnprocessableEntity,
		market.ErrNoTokensToClaim:             http.StatusUnprocessableEntity,
	} {
		if errors.Is(err, sentinel) {
			status = s
			code = sentinel.Error()
			break
		}
	}

	WriteError(w, status, code, err.Error())
}

// ParseJSON decodes the request body as JSON into v, requiring an
// application/json Content-Type and rejecting unknown fields.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("request body must be JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("malformed JSON request body")
	}
	return nil
}

// parseAmount parses an 18-decimal fixed-point amount from its decimal
// string form.
func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("amount must be a decimal string")
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", s, err)
	}
	return v, nil
}

// parseAmounts parses a slice of decimal strings.
func parseAmounts(ss []string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(ss))
	for i, s := range ss {
		v, err := parseAmount(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
