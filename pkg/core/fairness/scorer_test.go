package fairness

import (
	"math/rand"
	"testing"
)

func TestScoreReferenceCase(t *testing.T) {
	// lend 5000, borrow 5000, distinct counterparties, no priority:
	// retail boost = floor(20*(1-5000/10000)) + floor(10*(1-5000/10000)) = 10+5 = 15
	// diversity = 15, priority = 0, volume 10000 below threshold
	// score = 50 + 15 + 15 = 80
	resp := Score(Request{
		LendAmount:             5000,
		BorrowAmount:           5000,
		LendRateBps:            500,
		BorrowRateBps:          700,
		DistinctCounterparties: true,
	}, DefaultOptions())

	if resp.Score != 80 {
		t.Errorf("score = %d, want 80", resp.Score)
	}
	if resp.Breakdown.RetailBoost != 15 {
		t.Errorf("retail boost = %d, want 15", resp.Breakdown.RetailBoost)
	}
	if resp.Breakdown.DiversityBonus != 15 {
		t.Errorf("diversity bonus = %d, want 15", resp.Breakdown.DiversityBonus)
	}
	if resp.Breakdown.PriorityBonus != 0 {
		t.Errorf("priority bonus = %d, want 0", resp.Breakdown.PriorityBonus)
	}
	if resp.Breakdown.ConcentrationPenalty != 0 {
		t.Errorf("concentration penalty = %d, want 0", resp.Breakdown.ConcentrationPenalty)
	}
	if resp.FinalRateBps != 600 {
		t.Errorf("final rate = %d bps, want midpoint 600", resp.FinalRateBps)
	}
}

func TestRetailBoostMonotone(t *testing.T) {
	opt := DefaultOptions()
	prev := int64(-1)
	// Walking the lend amount down toward zero must never decrease the boost.
	for amount := opt.RetailCeiling + 1000; amount >= 0; amount -= 250 {
		resp := Score(Request{LendAmount: amount, BorrowAmount: opt.RetailCeiling, LendRateBps: 500, BorrowRateBps: 500}, opt)
		if prev >= 0 && resp.Breakdown.RetailBoost < prev {
			t.Fatalf("retail boost decreased from %d to %d at amount %d", prev, resp.Breakdown.RetailBoost, amount)
		}
		prev = resp.Breakdown.RetailBoost
	}
}

func TestRetailBoostCapped(t *testing.T) {
	opt := DefaultOptions()
	opt.RetailWeightLend = 40
	opt.RetailWeightBorrow = 40
	resp := Score(Request{LendAmount: 1, BorrowAmount: 1, LendRateBps: 500, BorrowRateBps: 500}, opt)
	if resp.Breakdown.RetailBoost != opt.RetailCapMax {
		t.Errorf("retail boost = %d, want cap %d", resp.Breakdown.RetailBoost, opt.RetailCapMax)
	}
}

func TestConcentrationPenalty(t *testing.T) {
	opt := DefaultOptions()

	// volume = 150_000, threshold 100_000, step 10_000 -> penalty 5
	resp := Score(Request{LendAmount: 75_000, BorrowAmount: 75_000, LendRateBps: 500, BorrowRateBps: 500}, opt)
	if resp.Breakdown.ConcentrationPenalty != 5 {
		t.Errorf("penalty = %d, want 5", resp.Breakdown.ConcentrationPenalty)
	}

	// Far above threshold the penalty hits its cap.
	resp = Score(Request{LendAmount: 5_000_000, BorrowAmount: 5_000_000, LendRateBps: 500, BorrowRateBps: 500}, opt)
	if resp.Breakdown.ConcentrationPenalty != opt.ConcentrationCapMax {
		t.Errorf("penalty = %d, want cap %d", resp.Breakdown.ConcentrationPenalty, opt.ConcentrationCapMax)
	}
}

func TestPriorityBonus(t *testing.T) {
	resp := Score(Request{
		LendAmount:             50_000,
		BorrowAmount:           50_000,
		LendRateBps:            500,
		BorrowRateBps:          500,
		DistinctCounterparties: true,
		PriorityEligible:       true,
	}, DefaultOptions())
	// 50 + 0 retail + 15 diversity + 25 priority - 0 = 90
	if resp.Score != 90 {
		t.Errorf("score = %d, want 90", resp.Score)
	}
}

func TestScoreBounds(t *testing.T) {
	opt := DefaultOptions()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 10_000; i++ {
		resp := Score(Request{
			LendAmount:             rng.Int63n(10_000_000) + 1,
			BorrowAmount:           rng.Int63n(10_000_000) + 1,
			LendRateBps:            rng.Int63n(5000) + 1,
			BorrowRateBps:          rng.Int63n(5000) + 1,
			DistinctCounterparties: rng.Intn(2) == 0,
			PriorityEligible:       rng.Intn(2) == 0,
		}, opt)
		if resp.Score < 0 || resp.Score > 100 {
			t.Fatalf("score %d out of [0,100] at iteration %d", resp.Score, i)
		}
	}
}

func TestDeterminism(t *testing.T) {
	req := Request{LendAmount: 123, BorrowAmount: 45_678, LendRateBps: 321, BorrowRateBps: 654, DistinctCounterparties: true}
	opt := DefaultOptions()
	first := Score(req, opt)
	for i := 0; i < 10; i++ {
		if got := Score(req, opt); got != first {
			t.Fatalf("scorer not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestMidpointRateFloors(t *testing.T) {
	resp := Score(Request{LendAmount: 1000, BorrowAmount: 1000, LendRateBps: 500, BorrowRateBps: 701}, DefaultOptions())
	if resp.FinalRateBps != 600 {
		t.Errorf("final rate = %d, want floor((500+701)/2) = 600", resp.FinalRateBps)
	}
}
