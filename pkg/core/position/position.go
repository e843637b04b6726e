// Package position turns a matched order pair into lending and borrowing
// position records and owns their lifecycle: interest accrual, repayment,
// and liquidation eligibility.
package position

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/fairlend/fairlend/pkg/core"
	"github.com/fairlend/fairlend/pkg/util"
)

type Role string

const (
	RoleLending   Role = "lending"
	RoleBorrowing Role = "borrowing"
)

type Status string

// Transitions are active -> completed or active -> liquidated; nothing
// returns to active.
const (
	StatusActive     Status = "active"
	StatusCompleted  Status = "completed"
	StatusLiquidated Status = "liquidated"
)

var ErrNotActive = errors.New("position not active")

// PriceScale is the fixed-point scale of oracle prices and liquidation
// thresholds: 1_000_000 ticks per quote unit.
const PriceScale int64 = 1_000_000

const msPerYear = 365 * 24 * 3600 * 1000

// CollateralLine is one asset posted as collateral against a borrowing
// position.
type CollateralLine struct {
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

type Position struct {
	ID            string
	CounterpartID string // the other leg of the same match
	OrderID       string
	Owner         common.Address
	Role          Role
	Asset         string
	Amount        int64 // min of the two matched order amounts
	RateBps       int64 // the side's own requested rate, not the clearing midpoint
	TermDays      int64
	StartDate     time.Time
	EndDate       time.Time
	Status        Status

	// Borrowing side only.
	Collateral []CollateralLine
	// LiquidationThresholdPrice is the collateral price (in PriceScale ticks)
	// at which collateralValue * LTV% covers exactly the debt. Zero when no
	// collateral line was posted.
	LiquidationThresholdPrice int64
}

// AccruedInterest is simple non-compounding pro-rata interest, recomputed on
// read:
//
//	floor(amount * rateBps * elapsedMs / (10000 * msPerYear))
//
// Accrual keeps running past EndDate while the position stays active; an
// overdue borrower owes interest until repaid or liquidated.
func (p *Position) AccruedInterest(now time.Time) int64 {
	elapsedMs := now.Sub(p.StartDate).Milliseconds()
	if elapsedMs <= 0 {
		return 0
	}
	// The triple product exceeds int64 at realistic base-unit amounts, so it
	// runs through big.Int before the floor division.
	n := new(big.Int).SetInt64(p.Amount)
	n.Mul(n, big.NewInt(p.RateBps))
	n.Mul(n, big.NewInt(elapsedMs))
	n.Quo(n, big.NewInt(10000*msPerYear))
	return n.Int64()
}

// Overdue reports whether the term has expired.
func (p *Position) Overdue(now time.Time) bool {
	return now.After(p.EndDate)
}

// LiquidationEligible is the time-based overdue check. Collateral-value
// eligibility against a live price is layered on top by the engine, which
// owns the oracle.
func (p *Position) LiquidationEligible(now time.Time) bool {
	return p.Role == RoleBorrowing && p.Status == StatusActive && p.Overdue(now)
}

// Complete marks voluntary full repayment.
func (p *Position) Complete() error {
	if p.Status != StatusActive {
		return fmt.Errorf("%w: %s is %s", ErrNotActive, p.ID, p.Status)
	}
	p.Status = StatusCompleted
	return nil
}

// Liquidate marks the position seized. Eligibility is the caller's check.
func (p *Position) Liquidate() error {
	if p.Status != StatusActive {
		return fmt.Errorf("%w: %s is %s", ErrNotActive, p.ID, p.Status)
	}
	p.Status = StatusLiquidated
	return nil
}

// Factory materializes position pairs from matched orders.
type Factory struct {
	clock util.Clock
}

func NewFactory(clock util.Clock) *Factory {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Factory{clock: clock}
}

// Materialize builds the lending and borrowing positions for a committed
// match. The realized amount is min(lend, borrow); each side keeps its own
// requested rate; the position term is the borrower's term (the
// compatibility predicate already guarantees the lender's horizon covers
// it).
func (f *Factory) Materialize(lend, borrow core.Order) (Position, Position) {
	amount := min(lend.Amount, borrow.Amount)
	start := f.clock.Now()
	end := start.AddDate(0, 0, int(borrow.TermDays))

	lending := Position{
		ID:        uuid.NewString(),
		OrderID:   lend.ID,
		Owner:     lend.Owner,
		Role:      RoleLending,
		Asset:     lend.Asset,
		Amount:    amount,
		RateBps:   lend.RateBps,
		TermDays:  borrow.TermDays,
		StartDate: start,
		EndDate:   end,
		Status:    StatusActive,
	}
	borrowing := Position{
		ID:        uuid.NewString(),
		OrderID:   borrow.ID,
		Owner:     borrow.Owner,
		Role:      RoleBorrowing,
		Asset:     borrow.Asset,
		Amount:    amount,
		RateBps:   borrow.RateBps,
		TermDays:  borrow.TermDays,
		StartDate: start,
		EndDate:   end,
		Status:    StatusActive,
	}
	if borrow.CollateralAmount > 0 {
		borrowing.Collateral = []CollateralLine{{Asset: borrow.CollateralAsset, Amount: borrow.CollateralAmount}}
		borrowing.LiquidationThresholdPrice = liquidationThreshold(amount, borrow.LTV, borrow.CollateralAmount)
	}

	lending.CounterpartID = borrowing.ID
	borrowing.CounterpartID = lending.ID
	return lending, borrowing
}

// liquidationThreshold solves price * collateral * ltv% == debt for price,
// in PriceScale ticks. Below this price the posted collateral no longer
// covers the debt at the agreed LTV.
func liquidationThreshold(debt, ltv, collateral int64) int64 {
	if ltv <= 0 || collateral <= 0 {
		return 0
	}
	// debt * 100 * PriceScale exceeds int64 for large debts.
	n := new(big.Int).SetInt64(debt)
	n.Mul(n, big.NewInt(100*PriceScale))
	n.Quo(n, new(big.Int).Mul(big.NewInt(ltv), big.NewInt(collateral)))
	return n.Int64()
}
