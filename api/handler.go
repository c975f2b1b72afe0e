package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"arbiter/debug"
	"arbiter/eth"
	"arbiter/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-kit/log"
	"github.com/gorilla/mux"
)

// Guard is the slice of the participation guard the API needs.
type Guard interface {
	CanParticipate(ctx context.Context, solver eth.Address) (bool, error)
}

// Handler is the read-only operational HTTP surface: competition records,
// solver eligibility, and a health check. It never mutates state.
type Handler struct {
	router *mux.Router
	logger log.Logger
	store  store.Store
	guard  Guard
}

func NewHandler(s store.Store, g Guard, logger log.Logger) *Handler {
	h := &Handler{
		router: mux.NewRouter(),
		logger: logger,
		store:  s,
		guard:  g,
	}

	h.router.Methods("GET").Path("/api/v0/ping").HandlerFunc(h.handleGetPing)
	h.router.Methods("GET").Path("/api/v0/competitions/{id}").HandlerFunc(h.handleGetCompetition)
	h.router.Methods("GET").Path("/api/v0/solvers/{addr}/eligibility").HandlerFunc(h.handleGetEligibility)

	h.router.Methods("GET").Path("/-/panic").HandlerFunc(h.handleGetPanic)

	h.router.Use(
		requestIDMiddleware,
		debug.LoggingMiddleware(logger),
		debug.MetricsMiddleware,
		debug.GZipMiddleware,
		panicRecoveryMiddleware(logger), // should be after observability middlewares
		// the handler executes here
	)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

//
//
//

func (h *Handler) handleGetPing(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		respondError(w, r, fmt.Errorf("ping store: %w", err), http.StatusInternalServerError, h.logger)
		return
	}
	respondOK(w, r, struct{}{})
}

func (h *Handler) handleGetPanic(w http.ResponseWriter, r *http.Request) {
	panic("requested panic")
}

//
//
//

type competitionResponse struct {
	AuctionID      int64                        `json:"auction_id"`
	Winner         string                       `json:"winner"`
	WinnerScore    string                       `json:"winner_score"`
	ReferenceScore string                       `json:"reference_score,omitempty"`
	Deadline       uint64                       `json:"deadline"`
	Prices         map[string]string            `json:"prices,omitempty"`
	FeePolicies    map[string][]store.FeePolicy `json:"fee_policies,omitempty"`
	Participants   []string                     `json:"participants,omitempty"`
	Outcomes       []outcomeResponse            `json:"outcomes,omitempty"`
}

type outcomeResponse struct {
	BlockNumber uint64   `json:"block_number"`
	LogIndex    uint64   `json:"log_index"`
	Solver      string   `json:"solver"`
	Score       string   `json:"score,omitempty"`
	Violations  []string `json:"violations,omitempty"`
}

func (h *Handler) handleGetCompetition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	auctionID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, r, fmt.Errorf("parse auction id: %w", err), http.StatusBadRequest, h.logger)
		return
	}

	c, err := h.store.SelectCompetition(ctx, auctionID)
	if err != nil {
		respondError(w, r, fmt.Errorf("select competition %d: %w", auctionID, err), http.StatusInternalServerError, h.logger)
		return
	}

	outcomes, err := h.store.ListSettlementOutcomes(ctx, auctionID)
	if err != nil {
		respondError(w, r, fmt.Errorf("list settlement outcomes %d: %w", auctionID, err), http.StatusInternalServerError, h.logger)
		return
	}

	resp := competitionResponse{
		AuctionID:      c.AuctionID,
		Winner:         c.Winner,
		WinnerScore:    c.WinnerScore,
		ReferenceScore: c.ReferenceScore,
		Deadline:       c.Deadline,
		Prices:         c.Prices,
		FeePolicies:    c.FeePolicies,
		Participants:   c.Participants,
	}
	for _, o := range outcomes {
		resp.Outcomes = append(resp.Outcomes, outcomeResponse{
			BlockNumber: o.BlockNumber,
			LogIndex:    o.LogIndex,
			Solver:      o.Solver,
			Score:       o.Score,
			Violations:  o.Violations,
		})
	}

	respondOK(w, r, resp)
}

//
//
//

type eligibilityResponse struct {
	Solver   string `json:"solver"`
	Eligible bool   `json:"eligible"`
}

func (h *Handler) handleGetEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr := mux.Vars(r)["addr"]
	if !common.IsHexAddress(addr) {
		respondError(w, r, fmt.Errorf("%q: %w", addr, errInvalidAddress), http.StatusBadRequest, h.logger)
		return
	}
	solver := common.HexToAddress(addr)

	ok, err := h.guard.CanParticipate(ctx, solver)
	if err != nil {
		respondError(w, r, fmt.Errorf("check eligibility of %s: %w", solver, err), http.StatusInternalServerError, h.logger)
		return
	}

	respondOK(w, r, eligibilityResponse{
		Solver:   solver.Hex(),
		Eligible: ok,
	})
}
