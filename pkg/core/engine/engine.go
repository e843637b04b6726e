// Package engine drives a match to completion: scan the ledger for a
// compatible counter-order, score the pair, obtain an attestation, commit
// the status flip, and materialize positions. A failure anywhere before the
// commit leaves both orders pending and the ledger untouched.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/fairlend/fairlend/pkg/core"
	"github.com/fairlend/fairlend/pkg/core/attest"
	"github.com/fairlend/fairlend/pkg/core/fairness"
	"github.com/fairlend/fairlend/pkg/core/ledger"
	"github.com/fairlend/fairlend/pkg/core/position"
	"github.com/fairlend/fairlend/pkg/oracle"
	"github.com/fairlend/fairlend/pkg/util"
)

// ErrNotLiquidatable rejects a liquidation attempt on a position that is
// neither overdue nor under-collateralized.
var ErrNotLiquidatable = errors.New("position not liquidation eligible")

// MatchResult reports the outcome of one matching attempt. Matched=false
// with a nil error is the normal "no compatible counter-order" outcome, not
// a failure.
type MatchResult struct {
	Matched       bool               `json:"matched"`
	LendOrderID   string             `json:"lendOrderId,omitempty"`
	BorrowOrderID string             `json:"borrowOrderId,omitempty"`
	Score         int64              `json:"score,omitempty"`
	FinalRateBps  int64              `json:"finalRateBps,omitempty"`
	Breakdown     fairness.Breakdown `json:"breakdown,omitempty"`
	Attestation   attest.Attestation `json:"attestation,omitempty"`
	Lending       *position.Position `json:"lending,omitempty"`
	Borrowing     *position.Position `json:"borrowing,omitempty"`
}

// VestingRegistry answers whether a counterparty carries an active
// priority/vesting flag. External collaborator; a nil registry means nobody
// is priority-eligible.
type VestingRegistry interface {
	IsPriorityEligible(addr common.Address) bool
}

// Settlement consumes an attested match. The engine fires and forgets: once
// the match is committed locally, settlement failures are the collaborator's
// concern and never flow back into ledger state.
type Settlement interface {
	SubmitAttested(ctx context.Context, lendOrderID, borrowOrderID string, att attest.Attestation)
}

// Archive persists committed matches. Best-effort from the engine's point of
// view: an archive error is logged, the match stands.
type Archive interface {
	SaveMatchedOrder(o core.Order) error
	SavePosition(p position.Position) error
}

// Config wires the engine's collaborators. Only Ledger and Attestor carry
// hard requirements; everything else defaults to an inert implementation.
type Config struct {
	Fairness     fairness.Options
	SignTimeout  time.Duration
	OracleMaxAge time.Duration
	Clock        util.Clock
	Logger       *zap.Logger
	Vesting      VestingRegistry
	Settlement   Settlement
	Archive      Archive
	Oracle       oracle.Source
	// OnMatch is invoked after each committed match, e.g. to broadcast over
	// websocket. Called synchronously from the match path; it must not call
	// back into the engine.
	OnMatch func(MatchResult)
}

type Engine struct {
	// mu serializes match attempts and position mutations. The ledger has
	// its own lock for status atomicity; this one guarantees at most one
	// scan-and-commit in flight.
	mu sync.Mutex

	ledger   *ledger.Ledger
	attestor *attest.Attestor
	factory  *position.Factory

	positions map[string]*position.Position

	cfg Config
}

func New(led *ledger.Ledger, att *attest.Attestor, cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.SignTimeout <= 0 {
		cfg.SignTimeout = 2 * time.Second
	}
	if cfg.OracleMaxAge <= 0 {
		cfg.OracleMaxAge = 30 * time.Second
	}
	if (cfg.Fairness == fairness.Options{}) {
		cfg.Fairness = fairness.DefaultOptions()
	}
	return &Engine{
		ledger:    led,
		attestor:  att,
		factory:   position.NewFactory(cfg.Clock),
		positions: make(map[string]*position.Position),
		cfg:       cfg,
	}
}

func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Now exposes the engine clock so read paths (accrued interest, overdue
// flags) share the same time source as the match path.
func (e *Engine) Now() time.Time { return e.cfg.Clock.Now() }

// AttestorPublicKey is the verification key settlement registers out of
// band. Nil when the enclave is unprovisioned.
func (e *Engine) AttestorPublicKey() []byte { return e.attestor.PublicKey() }

// SubmitOrder inserts the order and immediately attempts one match, the
// single-writer flow: one insertion, at most one synchronous matching
// attempt. An attestation failure surfaces to the caller while the order
// stays pending, so the id is returned alongside the error.
func (e *Engine) SubmitOrder(ctx context.Context, o core.Order) (string, *MatchResult, error) {
	id, err := e.ledger.Insert(o)
	if err != nil {
		return "", nil, err
	}
	e.cfg.Logger.Info("order_accepted",
		zap.String("id", id),
		zap.String("side", string(o.Side)),
		zap.String("asset", o.Asset),
		zap.Int64("amount", o.Amount),
		zap.Int64("rate_bps", o.RateBps),
		zap.Bool("hidden", o.Hidden),
	)
	res, err := e.AttemptMatch(ctx, id)
	return id, res, err
}

// CancelOrder is idempotent; cancelling a matched order is a no-op.
func (e *Engine) CancelOrder(id string) error {
	return e.ledger.Cancel(id)
}

func (e *Engine) GetOrder(id string) (core.Order, error) {
	return e.ledger.Get(id)
}

// AttemptMatch finds at most one compatible counter-order for the given
// order and drives the match to completion. Outcomes:
//
//   - match committed: result with Matched=true
//   - no compatible candidate, or the race lost to a concurrent cancel:
//     Matched=false, nil error
//   - order unknown / not pending: ErrNotFound / ErrOrderNotPending
//   - attestation failure: ErrEnclaveUnavailable, nothing committed
func (e *Engine) AttemptMatch(ctx context.Context, orderID string) (*MatchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := e.ledger.Get(orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != core.StatusPending {
		return nil, fmt.Errorf("order %s: %w", orderID, core.ErrOrderNotPending)
	}

	counter, found := e.selectCounter(o)
	if !found {
		return &MatchResult{Matched: false}, nil
	}

	lend, borrow := orient(o, counter)

	resp := fairness.Score(fairness.Request{
		LendAmount:             lend.Amount,
		BorrowAmount:           borrow.Amount,
		LendRateBps:            lend.RateBps,
		BorrowRateBps:          borrow.RateBps,
		DistinctCounterparties: lend.Owner != borrow.Owner,
		PriorityEligible:       e.priorityEligible(lend.Owner, borrow.Owner),
	}, e.cfg.Fairness)

	// The enclave boundary. Bounded by the caller's timeout; on failure the
	// match is abandoned with both orders still pending.
	signCtx, cancel := context.WithTimeout(ctx, e.cfg.SignTimeout)
	defer cancel()
	ts := e.cfg.Clock.Now().UnixMilli()
	att, err := e.attestor.Sign(signCtx, lend.ID, borrow.ID, resp.Score, ts)
	if err != nil {
		e.cfg.Logger.Warn("attestation_failed",
			zap.String("lend", lend.ID),
			zap.String("borrow", borrow.ID),
			zap.Error(err),
		)
		return nil, err
	}

	// Commit point. A cancel that slipped in between selection and here
	// makes MarkMatched fail both-or-neither; the attempt aborts quietly.
	if err := e.ledger.MarkMatched(lend.ID, borrow.ID, resp.Score); err != nil {
		if errors.Is(err, core.ErrOrderNotPending) {
			e.cfg.Logger.Info("match_aborted_stale",
				zap.String("lend", lend.ID),
				zap.String("borrow", borrow.ID),
			)
			return &MatchResult{Matched: false}, nil
		}
		return nil, err
	}

	lending, borrowing := e.factory.Materialize(lend, borrow)
	e.positions[lending.ID] = &lending
	e.positions[borrowing.ID] = &borrowing

	result := MatchResult{
		Matched:       true,
		LendOrderID:   lend.ID,
		BorrowOrderID: borrow.ID,
		Score:         resp.Score,
		FinalRateBps:  resp.FinalRateBps,
		Breakdown:     resp.Breakdown,
		Attestation:   att,
		Lending:       &lending,
		Borrowing:     &borrowing,
	}

	e.archiveMatch(lend.ID, borrow.ID, lending, borrowing)

	e.cfg.Logger.Info("match_committed",
		zap.String("lend", lend.ID),
		zap.String("borrow", borrow.ID),
		zap.Int64("score", resp.Score),
		zap.Int64("final_rate_bps", resp.FinalRateBps),
		zap.Int64("amount", lending.Amount),
	)

	if e.cfg.Settlement != nil {
		e.cfg.Settlement.SubmitAttested(ctx, lend.ID, borrow.ID, att)
	}
	if e.cfg.OnMatch != nil {
		e.cfg.OnMatch(result)
	}
	return &result, nil
}

// selectCounter scans the opposite (side, asset) bucket oldest-first and
// returns the first candidate passing the compatibility predicate.
func (e *Engine) selectCounter(o core.Order) (core.Order, bool) {
	for cand := range e.ledger.Pending(o.Side.Counter(), o.Asset) {
		lend, borrow := orient(o, cand)
		if compatible(lend, borrow) {
			return cand, true
		}
	}
	return core.Order{}, false
}

// compatible is the asymmetric predicate: the borrower's rate meets the
// lender's minimum, the borrower's leverage stays within the lender's risk
// ceiling, and the lender's horizon covers the loan.
func compatible(lend, borrow core.Order) bool {
	return borrow.RateBps >= lend.RateBps &&
		borrow.LTV <= lend.LTV &&
		lend.TermDays >= borrow.TermDays
}

func orient(a, b core.Order) (lend, borrow core.Order) {
	if a.Side == core.SideLend {
		return a, b
	}
	return b, a
}

func (e *Engine) priorityEligible(owners ...common.Address) bool {
	if e.cfg.Vesting == nil {
		return false
	}
	for _, addr := range owners {
		if e.cfg.Vesting.IsPriorityEligible(addr) {
			return true
		}
	}
	return false
}

func (e *Engine) archiveMatch(lendID, borrowID string, lending, borrowing position.Position) {
	if e.cfg.Archive == nil {
		return
	}
	for _, id := range []string{lendID, borrowID} {
		o, err := e.ledger.Get(id)
		if err == nil {
			err = e.cfg.Archive.SaveMatchedOrder(o)
		}
		if err != nil {
			e.cfg.Logger.Warn("archive_order_failed", zap.String("id", id), zap.Error(err))
		}
	}
	for _, p := range []position.Position{lending, borrowing} {
		if err := e.cfg.Archive.SavePosition(p); err != nil {
			e.cfg.Logger.Warn("archive_position_failed", zap.String("id", p.ID), zap.Error(err))
		}
	}
}
