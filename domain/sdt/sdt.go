// Package sdt computes signal-detection measures from old/new recognition tallies.
//
// Formulas follow Stanislaw & Todorov (1999), "Calculation of signal detection
// theory measures", Behavior Research Methods, Instruments, & Computers 31(1).
package sdt

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrDegenerateTally is returned when a count pair sums to zero and its rate is undefined.
	ErrDegenerateTally = errors.New("degenerate tally")
	// ErrInvalidTally is returned for negative counts.
	ErrInvalidTally = errors.New("invalid tally")
)

// Tally holds the four outcome counts for one subject/condition/test cell.
type Tally struct {
	Hits              int `json:"hits"`
	Misses            int `json:"misses"`
	FalseAlarms       int `json:"false_alarms"`
	CorrectRejections int `json:"correct_rejections"`
}

// Old returns the number of studied items in the cell.
func (t Tally) Old() int { return t.Hits + t.Misses }

// New returns the number of lure items in the cell.
func (t Tally) New() int { return t.FalseAlarms + t.CorrectRejections }

// Validate checks the tally preconditions.
func (t Tally) Validate() error {
	if t.Hits < 0 || t.Misses < 0 || t.FalseAlarms < 0 || t.CorrectRejections < 0 {
		return fmt.Errorf("%w: negative count in %+v", ErrInvalidTally, t)
	}
	if t.Old() == 0 {
		return fmt.Errorf("%w: hits + misses = 0", ErrDegenerateTally)
	}
	if t.New() == 0 {
		return fmt.Errorf("%w: false alarms + correct rejections = 0", ErrDegenerateTally)
	}
	return nil
}

// RateKind names which rate a correction applies to.
type RateKind string

const (
	HitRate        RateKind = "hit"
	FalseAlarmRate RateKind = "false_alarm"
)

// CorrectionKind says whether a rate was pulled down from 1 or up from 0.
type CorrectionKind string

const (
	Ceiling CorrectionKind = "ceiling"
	Floor   CorrectionKind = "floor"
)

// Correction records one boundary-rate substitution.
type Correction struct {
	Rate     RateKind       `json:"rate"`
	Kind     CorrectionKind `json:"kind"`
	Raw      float64        `json:"raw"`
	Adjusted float64        `json:"adjusted"`
}

// Message renders the correction as a human-readable warning.
func (c Correction) Message() string {
	label := "Hit rate"
	if c.Rate == FalseAlarmRate {
		label = "FA rate"
	}
	if c.Kind == Ceiling {
		return fmt.Sprintf("%s = 1 and was replaced with 1 - 0.5/n (%.4f)", label, c.Adjusted)
	}
	return fmt.Sprintf("%s = 0 and was replaced with 0.5/n (%.4f)", label, c.Adjusted)
}

// Result holds the derived measures for one tally. Rates are the corrected rates
// the measures were computed from.
type Result struct {
	HitRate      float64      `json:"hit_rate"`
	FARate       float64      `json:"fa_rate"`
	DPrime       float64      `json:"d_prime"`
	Beta         float64      `json:"beta"`
	Criterion    float64      `json:"criterion"`
	Az           float64      `json:"az"` // area under the ROC estimated from d'
	APrime       float64      `json:"a_prime"`
	BDoublePrime float64      `json:"b_double_prime"`
	Corrections  []Correction `json:"corrections,omitempty"`
}

// Corrected reports whether any boundary correction fired.
func (r Result) Corrected() bool { return len(r.Corrections) > 0 }

// Compute converts a tally into parametric (d', beta, c, Az) and non-parametric
// (A', B'') measures. Rates of exactly 0 or 1 are replaced by 0.5/n and 1-0.5/n,
// and each replacement is recorded on the result.
//
// A negative count returns ErrInvalidTally. A count pair summing to zero returns
// ErrDegenerateTally with every measure that depends on the undefined rate set to NaN
// and no corrections, since none of the corrected rates reach a measure.
func Compute(t Tally) (Result, error) {
	if t.Hits < 0 || t.Misses < 0 || t.FalseAlarms < 0 || t.CorrectRejections < 0 {
		return nanResult(), fmt.Errorf("%w: negative count in %+v", ErrInvalidTally, t)
	}

	var res Result
	h := boundedRate(t.Hits, t.Old(), HitRate, &res.Corrections)
	f := boundedRate(t.FalseAlarms, t.New(), FalseAlarmRate, &res.Corrections)
	res.HitRate, res.FARate = h, f

	zh, zf := probit(h), probit(f)

	res.DPrime = zh - zf
	res.Az = distuv.UnitNormal.CDF(res.DPrime / math.Sqrt2)
	res.Beta = math.Exp((zf*zf - zh*zh) / 2)
	res.Criterion = -(zh + zf) / 2

	diff := h - f
	s := sign(diff)
	res.APrime = 0.5 + s*((diff*diff+math.Abs(diff))/(4*math.Max(h, f)-4*h*f))
	res.BDoublePrime = s * ((h*(1-h) - f*(1-f)) / (h*(1-h) + f*(1-f)))

	if err := t.Validate(); err != nil {
		res.Corrections = nil
		return res, err
	}
	return res, nil
}

// boundedRate returns num/den, nudging exact 0 and 1 half a trial inward.
// A zero denominator yields NaN, which propagates through every measure.
func boundedRate(num, den int, kind RateKind, corrections *[]Correction) float64 {
	if den == 0 {
		return math.NaN()
	}
	half := 0.5 / float64(den)
	rate := float64(num) / float64(den)
	switch rate {
	case 1:
		*corrections = append(*corrections, Correction{Rate: kind, Kind: Ceiling, Raw: rate, Adjusted: 1 - half})
		return 1 - half
	case 0:
		*corrections = append(*corrections, Correction{Rate: kind, Kind: Floor, Raw: rate, Adjusted: half})
		return half
	}
	return rate
}

func probit(p float64) float64 {
	if math.IsNaN(p) {
		return p
	}
	return distuv.UnitNormal.Quantile(p)
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	case x == 0:
		return 0
	}
	return math.NaN()
}

func nanResult() Result {
	nan := math.NaN()
	return Result{
		HitRate: nan, FARate: nan, DPrime: nan, Beta: nan,
		Criterion: nan, Az: nan, APrime: nan, BDoublePrime: nan,
	}
}
