// Package server exposes the engine's operations and read-only queries over
// HTTP/JSON. Amounts cross the wire as 18-decimal fixed-point values in
// decimal strings; accounts are UUIDs.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"RangeMarket/internal/engine"
	"RangeMarket/internal/observability"
)

// Faucet funds and inspects collateral accounts. The in-process vault
// implements it; a deployment backed by a real asset bridge leaves it nil
// and the account endpoints are not mounted.
type Faucet interface {
	Fund(account uuid.UUID, amount *uint256.Int) error
	Balance(account uuid.UUID) *uint256.Int
}

// Server is the HTTP front of the engine.
type Server struct {
	engine  *engine.Engine
	faucet  Faucet // nil disables the account endpoints
	log     zerolog.Logger
	metrics *observability.Metrics // nil disables metrics
}

func New(eng *engine.Engine, faucet Faucet, logger zerolog.Logger, metrics *observability.Metrics) *Server {
	return &Server{engine: eng, faucet: faucet, log: logger, metrics: metrics}
}

// Router builds the chi router with all routes registered.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestLogging)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/markets", s.handleCreateMarket)
		r.Post("/markets/batch", s.handleCreateMarkets)
		r.Post("/markets/close", s.handleCloseMarket)
		r.Get("/markets/last-closed", s.handleLastClosed)

		r.Route("/markets/{market_id}", func(r chi.Router) {
			r.Get("/", s.handleGetMarket)
			r.Post("/activation", s.handleActivation)
			r.Post("/buy", s.handleBuy)
			r.Post("/sell", s.handleSell)
			r.Post("/claim", s.handleClaim)
			r.Post("/withdraw", s.handleWithdraw)
			r.Get("/bins", s.handleBinRange)
			r.Get("/bins/{bin}", s.handleBinQuantity)
			r.Get("/quotes/cost", s.handleQuoteCost)
			r.Get("/quotes/amount", s.handleQuoteAmount)
			r.Get("/quotes/sell", s.handleQuoteSell)
		})

		r.Get("/bins/index", s.handleBinIndex)

		if s.faucet != nil {
			r.Post("/accounts/{account_id}/fund", s.handleFund)
			r.Get("/accounts/{account_id}/balance", s.handleBalance)
		}
	})

	return r
}

// requestLogging records each request's route, status and latency.
func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		s.log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			s.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func marketIDParam(r *http.Request) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, "market_id"), 10, 64)
}

func accountParam(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}
