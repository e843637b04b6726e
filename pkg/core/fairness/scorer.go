// Package fairness computes the 0-100 priority score attached to every match
// decision. The scorer is a pure function: same request and options, same
// score, so it is freely callable from concurrent match attempts and its
// output can be attested and recomputed by an external verifier.
package fairness

import "github.com/fairlend/fairlend/params"

// Options carries the score weights and thresholds. Policy lives in
// configuration, not in code.
type Options struct {
	RetailCeiling          int64
	RetailWeightLend       int64
	RetailWeightBorrow     int64
	RetailCapMax           int64
	DiversityBonus         int64
	PriorityBonus          int64
	ConcentrationThreshold int64
	ConcentrationStep      int64
	ConcentrationCapMax    int64
}

// FromParams adapts the node configuration into scorer options.
func FromParams(f params.Fairness) Options {
	return Options{
		RetailCeiling:          f.RetailCeiling,
		RetailWeightLend:       f.RetailWeightLend,
		RetailWeightBorrow:     f.RetailWeightBorrow,
		RetailCapMax:           f.RetailCapMax,
		DiversityBonus:         f.DiversityBonus,
		PriorityBonus:          f.PriorityBonus,
		ConcentrationThreshold: f.ConcentrationThreshold,
		ConcentrationStep:      f.ConcentrationStep,
		ConcentrationCapMax:    f.ConcentrationCapMax,
	}
}

func DefaultOptions() Options {
	return FromParams(params.Default().Fairness)
}

// Request carries the economic terms of a match candidate plus the two
// contextual signals the score depends on.
type Request struct {
	LendAmount    int64
	BorrowAmount  int64
	LendRateBps   int64
	BorrowRateBps int64

	// DistinctCounterparties is false when one party is on both sides.
	DistinctCounterparties bool
	// PriorityEligible is true when either counterparty carries an active
	// vesting/priority flag.
	PriorityEligible bool
}

// Breakdown names every component that went into the score.
type Breakdown struct {
	Base                 int64 `json:"base"`
	RetailBoost          int64 `json:"retailBoost"`
	DiversityBonus       int64 `json:"diversityBonus"`
	PriorityBonus        int64 `json:"priorityBonus"`
	ConcentrationPenalty int64 `json:"concentrationPenalty"`
}

type Response struct {
	Score        int64     `json:"score"` // 0..100
	FinalRateBps int64     `json:"finalRateBps"`
	Breakdown    Breakdown `json:"breakdown"`
}

const base = 50

// Score evaluates the documented formula:
//
//	score = clamp(50 + retailBoost + diversityBonus + priorityBonus - concentrationPenalty, 0, 100)
//
// retailBoost sums, per side, floor(W_side * (1 - amount/ceiling)) for
// amounts below the retail ceiling, clamped to RetailCapMax. The
// concentration penalty kicks in when combined volume exceeds the threshold:
// min(capMax, floor((volume - threshold) / step)).
//
// The clearing rate is the midpoint of the two requested rates, floored.
func Score(req Request, opt Options) Response {
	b := Breakdown{Base: base}

	b.RetailBoost = retailBoost(req.LendAmount, opt.RetailWeightLend, opt.RetailCeiling) +
		retailBoost(req.BorrowAmount, opt.RetailWeightBorrow, opt.RetailCeiling)
	if b.RetailBoost > opt.RetailCapMax {
		b.RetailBoost = opt.RetailCapMax
	}

	if req.DistinctCounterparties {
		b.DiversityBonus = opt.DiversityBonus
	}
	if req.PriorityEligible {
		b.PriorityBonus = opt.PriorityBonus
	}

	if volume := req.LendAmount + req.BorrowAmount; volume > opt.ConcentrationThreshold && opt.ConcentrationStep > 0 {
		b.ConcentrationPenalty = (volume - opt.ConcentrationThreshold) / opt.ConcentrationStep
		if b.ConcentrationPenalty > opt.ConcentrationCapMax {
			b.ConcentrationPenalty = opt.ConcentrationCapMax
		}
	}

	score := b.Base + b.RetailBoost + b.DiversityBonus + b.PriorityBonus - b.ConcentrationPenalty
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return Response{
		Score:        score,
		FinalRateBps: (req.LendRateBps + req.BorrowRateBps) / 2,
		Breakdown:    b,
	}
}

// retailBoost is floor(weight * (1 - amount/ceiling)) in integer arithmetic,
// zero at or above the ceiling. Smaller orders earn strictly larger boosts.
func retailBoost(amount, weight, ceiling int64) int64 {
	if ceiling <= 0 || amount >= ceiling {
		return 0
	}
	return weight * (ceiling - amount) / ceiling
}
