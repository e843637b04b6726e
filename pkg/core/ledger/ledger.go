// Package ledger is the in-memory store of active orders. It is the only
// mutable shared structure in the matching core: every status transition goes
// through its single mutex, which is what makes markMatched atomic across
// both legs.
package ledger

import (
	"fmt"
	"iter"
	"sync"

	"github.com/fairlend/fairlend/pkg/core"
	"github.com/fairlend/fairlend/pkg/util"
)

type bucketKey struct {
	side  core.Side
	asset string
}

type Ledger struct {
	mu     sync.RWMutex
	orders map[string]*core.Order

	// Insertion-ordered id queues per (side, asset). Scan order here is the
	// first-come-first-served tie break, so it must never be a map iteration.
	queues map[bucketKey][]string

	seq   uint64 // insertion counter, doubles as the id-derivation nonce
	clock util.Clock
}

func New(clock util.Clock) *Ledger {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Ledger{
		orders: make(map[string]*core.Order),
		queues: make(map[bucketKey][]string),
		clock:  clock,
	}
}

// Insert validates the order, assigns an id if none was given, and appends it
// to its (side, asset) bucket with status pending. Malformed orders are
// rejected with ErrInvalidOrder and never enter the ledger.
func (l *Ledger) Insert(o core.Order) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	if o.CreatedAt.IsZero() {
		o.CreatedAt = l.clock.Now()
	}
	if o.ID == "" {
		o.ID = core.NewOrderID(&o, l.seq)
	}
	if _, exists := l.orders[o.ID]; exists {
		return "", fmt.Errorf("%w: duplicate id %s", core.ErrInvalidOrder, o.ID)
	}
	o.Status = core.StatusPending
	o.ProofRef = nil
	o.FairnessScore = 0

	stored := o
	l.orders[o.ID] = &stored
	k := bucketKey{side: o.Side, asset: o.Asset}
	l.queues[k] = append(l.queues[k], o.ID)
	return o.ID, nil
}

// Get returns a copy of the order.
func (l *Ledger) Get(id string) (core.Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.orders[id]
	if !ok {
		return core.Order{}, fmt.Errorf("order %s: %w", id, core.ErrNotFound)
	}
	return *o, nil
}

// Cancel sets the order to cancelled. Already-terminal orders are left
// untouched and no error is returned, so the call is idempotent.
func (l *Ledger) Cancel(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, core.ErrNotFound)
	}
	if o.Terminal() {
		return nil
	}
	o.Status = core.StatusCancelled
	return nil
}

// MarkMatched transitions both legs to matched, both-or-neither. It fails
// with ErrOrderNotPending if either leg already left the pending state, in
// which case neither order is touched. Hidden legs get their ProofRef stamped
// here so the commitment lands in the same critical section as the status
// flip.
func (l *Ledger) MarkMatched(lendID, borrowID string, score int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lend, ok := l.orders[lendID]
	if !ok {
		return fmt.Errorf("lend order %s: %w", lendID, core.ErrNotFound)
	}
	borrow, ok := l.orders[borrowID]
	if !ok {
		return fmt.Errorf("borrow order %s: %w", borrowID, core.ErrNotFound)
	}
	if lend.Side != core.SideLend || borrow.Side != core.SideBorrow {
		return fmt.Errorf("%w: sides %s/%s", core.ErrInvalidOrder, lend.Side, borrow.Side)
	}
	if lend.Asset != borrow.Asset {
		return fmt.Errorf("%w: assets %s/%s", core.ErrInvalidOrder, lend.Asset, borrow.Asset)
	}
	if lend.Status != core.StatusPending {
		return fmt.Errorf("lend order %s: %w", lendID, core.ErrOrderNotPending)
	}
	if borrow.Status != core.StatusPending {
		return fmt.Errorf("borrow order %s: %w", borrowID, core.ErrOrderNotPending)
	}

	for _, o := range []*core.Order{lend, borrow} {
		o.Status = core.StatusMatched
		o.FairnessScore = score
		if o.Hidden {
			o.ProofRef = o.TermsDigest()
		}
	}
	return nil
}

// Pending returns a restartable sequence of the pending orders for a side and
// asset, oldest insertion first. Each iteration works off a snapshot taken
// under the read lock; orders that leave the pending state mid-iteration are
// simply skipped on the next restart.
func (l *Ledger) Pending(side core.Side, asset string) iter.Seq[core.Order] {
	k := bucketKey{side: side, asset: asset}
	return func(yield func(core.Order) bool) {
		l.mu.RLock()
		snapshot := make([]core.Order, 0, len(l.queues[k]))
		for _, id := range l.queues[k] {
			if o := l.orders[id]; o.Status == core.StatusPending {
				snapshot = append(snapshot, *o)
			}
		}
		l.mu.RUnlock()

		for _, o := range snapshot {
			if !yield(o) {
				return
			}
		}
	}
}
