package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fairlend/fairlend/pkg/core"
	"github.com/fairlend/fairlend/pkg/core/position"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMatchedOrderRoundTrip(t *testing.T) {
	s := newTestStore(t)

	o := core.Order{
		ID:            "ord-1",
		Owner:         common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Side:          core.SideLend,
		Asset:         "USDC",
		Amount:        1000,
		RateBps:       500,
		LTV:           70,
		TermDays:      30,
		Status:        core.StatusMatched,
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		FairnessScore: 80,
	}
	if err := s.SaveMatchedOrder(o); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetMatchedOrder("ord-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != o.ID || got.Amount != o.Amount || got.FairnessScore != 80 || got.Status != core.StatusMatched {
		t.Errorf("round trip mangled order: %+v", got)
	}

	if _, err := s.GetMatchedOrder("missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestPositionPersistenceAndList(t *testing.T) {
	s := newTestStore(t)

	mk := func(id string, status position.Status) position.Position {
		return position.Position{
			ID:        id,
			Role:      position.RoleBorrowing,
			Asset:     "USDC",
			Amount:    500,
			RateBps:   700,
			TermDays:  20,
			StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC),
			Status:    status,
		}
	}

	for _, p := range []position.Position{mk("p-1", position.StatusActive), mk("p-2", position.StatusCompleted)} {
		if err := s.SavePosition(p); err != nil {
			t.Fatalf("save %s: %v", p.ID, err)
		}
	}

	got, err := s.GetPosition("p-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != position.StatusActive || got.Amount != 500 {
		t.Errorf("round trip mangled position: %+v", got)
	}

	// Overwriting with a new status sticks, used when legs complete.
	if err := s.SavePosition(mk("p-1", position.StatusLiquidated)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = s.GetPosition("p-1")
	if got.Status != position.StatusLiquidated {
		t.Errorf("status = %s after overwrite, want liquidated", got.Status)
	}

	all, err := s.ListPositions()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("listed %d positions, want 2", len(all))
	}
}
