package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fairlend/fairlend/pkg/core"
	"github.com/fairlend/fairlend/pkg/util"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func lendOrder(amount int64) core.Order {
	return core.Order{
		Owner:    alice,
		Side:     core.SideLend,
		Asset:    "USDC",
		Amount:   amount,
		RateBps:  500,
		LTV:      70,
		TermDays: 30,
	}
}

func borrowOrder(amount int64) core.Order {
	return core.Order{
		Owner:    bob,
		Side:     core.SideBorrow,
		Asset:    "USDC",
		Amount:   amount,
		RateBps:  700,
		LTV:      60,
		TermDays: 20,
	}
}

func TestInsertValidation(t *testing.T) {
	l := New(util.RealClock{})

	cases := []struct {
		name   string
		mutate func(*core.Order)
	}{
		{"zero amount", func(o *core.Order) { o.Amount = 0 }},
		{"negative amount", func(o *core.Order) { o.Amount = -5 }},
		{"zero rate", func(o *core.Order) { o.RateBps = 0 }},
		{"ltv above 100", func(o *core.Order) { o.LTV = 101 }},
		{"negative ltv", func(o *core.Order) { o.LTV = -1 }},
		{"zero term", func(o *core.Order) { o.TermDays = 0 }},
		{"bad side", func(o *core.Order) { o.Side = "short" }},
		{"empty asset", func(o *core.Order) { o.Asset = "" }},
	}
	for _, tc := range cases {
		o := lendOrder(1000)
		tc.mutate(&o)
		if _, err := l.Insert(o); !errors.Is(err, core.ErrInvalidOrder) {
			t.Errorf("%s: want ErrInvalidOrder, got %v", tc.name, err)
		}
	}

	id, err := l.Insert(lendOrder(1000))
	if err != nil {
		t.Fatalf("valid order rejected: %v", err)
	}
	got, err := l.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != core.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.CreatedAt.IsZero() {
		t.Error("createdAt not stamped")
	}
}

func TestCancelIdempotent(t *testing.T) {
	l := New(util.RealClock{})
	id, _ := l.Insert(lendOrder(1000))

	if err := l.Cancel(id); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if err := l.Cancel(id); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	o, _ := l.Get(id)
	if o.Status != core.StatusCancelled {
		t.Errorf("status = %s, want cancelled", o.Status)
	}

	if err := l.Cancel("nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("cancel unknown: want ErrNotFound, got %v", err)
	}
}

func TestCancelDoesNotRevertMatched(t *testing.T) {
	l := New(util.RealClock{})
	lendID, _ := l.Insert(lendOrder(1000))
	borrowID, _ := l.Insert(borrowOrder(1000))

	if err := l.MarkMatched(lendID, borrowID, 80); err != nil {
		t.Fatalf("markMatched: %v", err)
	}
	if err := l.Cancel(lendID); err != nil {
		t.Fatalf("cancel matched: %v", err)
	}
	o, _ := l.Get(lendID)
	if o.Status != core.StatusMatched {
		t.Errorf("status = %s, cancel must not touch matched orders", o.Status)
	}
}

func TestMarkMatchedBothOrNeither(t *testing.T) {
	l := New(util.RealClock{})
	lendID, _ := l.Insert(lendOrder(1000))
	borrowID, _ := l.Insert(borrowOrder(1000))

	if err := l.Cancel(borrowID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	err := l.MarkMatched(lendID, borrowID, 80)
	if !errors.Is(err, core.ErrOrderNotPending) {
		t.Fatalf("want ErrOrderNotPending, got %v", err)
	}

	// The healthy leg must be untouched.
	lend, _ := l.Get(lendID)
	if lend.Status != core.StatusPending {
		t.Errorf("lend status = %s, want pending after failed match", lend.Status)
	}
}

func TestMarkMatchedStampsScoreAndProof(t *testing.T) {
	l := New(util.RealClock{})
	hidden := lendOrder(1000)
	hidden.Hidden = true
	lendID, _ := l.Insert(hidden)
	borrowID, _ := l.Insert(borrowOrder(1000))

	if err := l.MarkMatched(lendID, borrowID, 73); err != nil {
		t.Fatalf("markMatched: %v", err)
	}
	lend, _ := l.Get(lendID)
	borrow, _ := l.Get(borrowID)
	if lend.FairnessScore != 73 || borrow.FairnessScore != 73 {
		t.Errorf("fairness scores = %d/%d, want 73/73", lend.FairnessScore, borrow.FairnessScore)
	}
	if len(lend.ProofRef) == 0 {
		t.Error("hidden lend leg missing proofRef")
	}
	if len(borrow.ProofRef) != 0 {
		t.Error("visible borrow leg must not carry proofRef")
	}

	// One-way transitions: a second match on the same legs must fail.
	if err := l.MarkMatched(lendID, borrowID, 73); !errors.Is(err, core.ErrOrderNotPending) {
		t.Errorf("double match: want ErrOrderNotPending, got %v", err)
	}
}

func TestPendingOrderAndRestart(t *testing.T) {
	clock := util.NewManualClock(time.Unix(1_700_000_000, 0))
	l := New(clock)

	var ids []string
	for i := int64(1); i <= 3; i++ {
		id, err := l.Insert(borrowOrder(i * 100))
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		ids = append(ids, id)
		clock.Advance(time.Second)
	}
	// Different asset must not leak into the bucket.
	other := borrowOrder(999)
	other.Asset = "DAI"
	if _, err := l.Insert(other); err != nil {
		t.Fatalf("insert other asset: %v", err)
	}

	collect := func() []string {
		var got []string
		for o := range l.Pending(core.SideBorrow, "USDC") {
			got = append(got, o.ID)
		}
		return got
	}

	got := collect()
	if len(got) != 3 {
		t.Fatalf("pending count = %d, want 3", len(got))
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Errorf("pending[%d] = %s, want %s (insertion order)", i, got[i], ids[i])
		}
	}

	// The sequence is restartable and reflects interim cancellations.
	if err := l.Cancel(ids[1]); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got = collect()
	if len(got) != 2 || got[0] != ids[0] || got[1] != ids[2] {
		t.Errorf("pending after cancel = %v, want [%s %s]", got, ids[0], ids[2])
	}

	// Early break must not wedge the ledger.
	for range l.Pending(core.SideBorrow, "USDC") {
		break
	}
	if got = collect(); len(got) != 2 {
		t.Errorf("pending after early break = %d items, want 2", len(got))
	}
}
