package core

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

type Side string

const (
	SideLend   Side = "lend"
	SideBorrow Side = "borrow"
)

// Counter returns the opposite side.
func (s Side) Counter() Side {
	if s == SideLend {
		return SideBorrow
	}
	return SideLend
}

type OrderStatus string

// Status transitions are one-way: pending -> matched or pending -> cancelled.
const (
	StatusPending   OrderStatus = "pending"
	StatusMatched   OrderStatus = "matched"
	StatusCancelled OrderStatus = "cancelled"
)

// Order is a lend or borrow intent. All economic fields are integer
// fixed-point: amounts in asset base units, rates in annualized basis points,
// LTV in whole percent.
type Order struct {
	ID        string
	Owner     common.Address
	Side      Side
	Asset     string // e.g. "USDC"
	Amount    int64  // asset base units, > 0
	RateBps   int64  // annualized bps, > 0 (lend: minimum acceptable, borrow: maximum acceptable)
	LTV       int64  // percent, 0..100 (lend: risk ceiling, borrow: requested leverage)
	TermDays  int64  // > 0 (lend: commitment horizon, borrow: loan duration)
	Status    OrderStatus
	CreatedAt time.Time

	// Hidden orders are withheld from public listing until matched. ProofRef
	// is set at match time so the withheld terms can be checked later.
	Hidden   bool
	ProofRef []byte

	// Collateral intent, borrow side only.
	CollateralAsset  string
	CollateralAmount int64

	// FairnessScore is set once the order is matched.
	FairnessScore int64
}

// Validate checks the economic fields. Errors wrap ErrInvalidOrder.
func (o *Order) Validate() error {
	switch o.Side {
	case SideLend, SideBorrow:
	default:
		return fmt.Errorf("%w: side %q", ErrInvalidOrder, o.Side)
	}
	if o.Asset == "" {
		return fmt.Errorf("%w: empty asset", ErrInvalidOrder)
	}
	if o.Amount <= 0 {
		return fmt.Errorf("%w: amount %d", ErrInvalidOrder, o.Amount)
	}
	if o.RateBps <= 0 {
		return fmt.Errorf("%w: rate %d bps", ErrInvalidOrder, o.RateBps)
	}
	if o.LTV < 0 || o.LTV > 100 {
		return fmt.Errorf("%w: ltv %d", ErrInvalidOrder, o.LTV)
	}
	if o.TermDays <= 0 {
		return fmt.Errorf("%w: term %d days", ErrInvalidOrder, o.TermDays)
	}
	if o.CollateralAmount < 0 {
		return fmt.Errorf("%w: collateral amount %d", ErrInvalidOrder, o.CollateralAmount)
	}
	return nil
}

// Terminal reports whether the order left the pending state.
func (o *Order) Terminal() bool {
	return o.Status == StatusMatched || o.Status == StatusCancelled
}

// TermsDigest is the keccak256 commitment over the order's economic terms.
// For hidden orders it becomes the public ProofRef once matched, letting a
// reader verify later-revealed terms against the match record.
func (o *Order) TermsDigest() []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(o.Owner.Bytes())
	h.Write([]byte(o.Side))
	h.Write([]byte(o.Asset))
	writeU64(h, uint64(o.Amount))
	writeU64(h, uint64(o.RateBps))
	writeU64(h, uint64(o.LTV))
	writeU64(h, uint64(o.TermDays))
	return h.Sum(nil)
}

// NewOrderID derives an order identifier from the terms digest and creation
// time. Hex without 0x prefix, 32 bytes.
func NewOrderID(o *Order, nonce uint64) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(o.TermsDigest())
	writeU64(h, uint64(o.CreatedAt.UnixNano()))
	writeU64(h, nonce)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func writeU64(h interface{ Write([]byte) (int, error) }, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	h.Write(b[:])
}
