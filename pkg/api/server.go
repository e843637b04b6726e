// Package api exposes the matching core over REST and WebSocket.
package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/fairlend/fairlend/pkg/core"
	"github.com/fairlend/fairlend/pkg/core/attest"
	"github.com/fairlend/fairlend/pkg/core/engine"
	"github.com/fairlend/fairlend/pkg/core/position"
)

type Server struct {
	engine *engine.Engine
	router *mux.Router
	hub    *Hub
	log    *zap.Logger
}

func NewServer(eng *engine.Engine, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		engine: eng,
		router: mux.NewRouter(),
		hub:    NewHub(),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Order endpoints
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")

	// Position endpoints
	api.HandleFunc("/positions/{id}", s.handleGetPosition).Methods("GET")
	api.HandleFunc("/positions/{id}/repay", s.handleRepay).Methods("POST")
	api.HandleFunc("/positions/{id}/liquidate", s.handleLiquidate).Methods("POST")
	api.HandleFunc("/accounts/{address}/positions", s.handleAccountPositions).Methods("GET")

	// Attestation endpoints
	api.HandleFunc("/attestor", s.handleGetAttestor).Methods("GET")
	api.HandleFunc("/attestations/verify", s.handleVerify).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the WebSocket hub and serves HTTP until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Info("api_listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// BroadcastMatch pushes a committed match to "matches" subscribers. Wired as
// the engine's OnMatch hook.
func (s *Server) BroadcastMatch(res engine.MatchResult) {
	s.hub.BroadcastToChannel("matches", WSMatchEvent{
		Channel: "matches",
		Data:    matchInfo(res),
	})
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	order := core.Order{
		Owner:            common.HexToAddress(req.Owner),
		Side:             core.Side(req.Side),
		Asset:            req.Asset,
		Amount:           req.Amount,
		RateBps:          req.RateBps,
		LTV:              req.LTV,
		TermDays:         req.TermDays,
		Hidden:           req.Hidden,
		CollateralAsset:  req.CollateralAsset,
		CollateralAmount: req.CollateralAmount,
	}

	id, res, err := s.engine.SubmitOrder(r.Context(), order)
	if err != nil {
		if errors.Is(err, core.ErrInvalidOrder) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, core.ErrEnclaveUnavailable) {
			// Order accepted and resting; the match attempt could not be
			// attested. Caller may retry matching later.
			writeJSON(w, http.StatusAccepted, SubmitOrderResponse{
				OrderID: id,
				Warning: "attestation unavailable, order resting",
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := SubmitOrderResponse{OrderID: id}
	if res != nil && res.Matched {
		mi := matchInfo(*res)
		resp.Match = &mi
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.engine.CancelOrder(req.OrderID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	o, err := s.engine.GetOrder(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	// Hidden orders stay withheld until matched.
	if o.Hidden && o.Status == core.StatusPending {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, orderInfo(o))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	side := core.Side(r.URL.Query().Get("side"))
	asset := r.URL.Query().Get("asset")
	if (side != core.SideLend && side != core.SideBorrow) || asset == "" {
		writeError(w, http.StatusBadRequest, "side and asset query parameters required")
		return
	}

	out := []OrderInfo{}
	for o := range s.engine.Ledger().Pending(side, asset) {
		if o.Hidden {
			continue
		}
		out = append(out, orderInfo(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := s.engine.GetPosition(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.positionInfo(p))
}

func (s *Server) handleAccountPositions(w http.ResponseWriter, r *http.Request) {
	addr := common.HexToAddress(mux.Vars(r)["address"])
	out := []PositionInfo{}
	for _, p := range s.engine.PositionsByOwner(addr) {
		out = append(out, s.positionInfo(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.engine.RepayPosition(id); err != nil {
		switch {
		case errors.Is(err, core.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, position.ErrNotActive):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.engine.LiquidatePosition(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, core.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, core.ErrStalePrice):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, engine.ErrNotLiquidatable), errors.Is(err, position.ErrNotActive):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "liquidated"})
}

func (s *Server) handleGetAttestor(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AttestorInfo{
		PublicKey: hex.EncodeToString(s.engine.AttestorPublicKey()),
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	msg, err1 := hex.DecodeString(req.Message)
	sig, err2 := hex.DecodeString(req.Signature)
	pub, err3 := hex.DecodeString(req.PublicKey)
	if err1 != nil || err2 != nil || err3 != nil {
		// Malformed input verifies false, it does not error.
		writeJSON(w, http.StatusOK, VerifyResponse{Valid: false})
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Valid: attest.Verify(msg, sig, pub)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ==============================
// Helpers
// ==============================

func orderInfo(o core.Order) OrderInfo {
	info := OrderInfo{
		ID:            o.ID,
		Owner:         o.Owner.Hex(),
		Side:          string(o.Side),
		Asset:         o.Asset,
		Amount:        o.Amount,
		RateBps:       o.RateBps,
		LTV:           o.LTV,
		TermDays:      o.TermDays,
		Status:        string(o.Status),
		Hidden:        o.Hidden,
		CreatedAt:     o.CreatedAt.UnixMilli(),
		FairnessScore: o.FairnessScore,
	}
	if len(o.ProofRef) > 0 {
		info.ProofRef = hex.EncodeToString(o.ProofRef)
	}
	return info
}

func matchInfo(res engine.MatchResult) MatchInfo {
	mi := MatchInfo{
		LendOrderID:   res.LendOrderID,
		BorrowOrderID: res.BorrowOrderID,
		Score:         res.Score,
		FinalRateBps:  res.FinalRateBps,
		Breakdown:     res.Breakdown,
		Message:       hex.EncodeToString(res.Attestation.Message),
		Signature:     hex.EncodeToString(res.Attestation.Signature),
		AttestedAt:    res.Attestation.Timestamp,
	}
	if res.Lending != nil {
		mi.LendingID = res.Lending.ID
	}
	if res.Borrowing != nil {
		mi.BorrowingID = res.Borrowing.ID
	}
	return mi
}

func (s *Server) positionInfo(p position.Position) PositionInfo {
	now := s.engine.Now()
	info := PositionInfo{
		ID:                        p.ID,
		CounterpartID:             p.CounterpartID,
		OrderID:                   p.OrderID,
		Owner:                     p.Owner.Hex(),
		Role:                      string(p.Role),
		Asset:                     p.Asset,
		Amount:                    p.Amount,
		RateBps:                   p.RateBps,
		TermDays:                  p.TermDays,
		StartDate:                 p.StartDate.UnixMilli(),
		EndDate:                   p.EndDate.UnixMilli(),
		Status:                    string(p.Status),
		AccruedInterest:           p.AccruedInterest(now),
		Overdue:                   p.Overdue(now),
		LiquidationThresholdPrice: p.LiquidationThresholdPrice,
	}
	for _, c := range p.Collateral {
		info.Collateral = append(info.Collateral, CollateralInfo{Asset: c.Asset, Amount: c.Amount})
	}
	return info
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
