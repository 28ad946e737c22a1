package app

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"emcon/domain/experiment"
	"emcon/domain/sdt"
	"emcon/internal/config"
	"emcon/internal/errors"
	"emcon/internal/logging"
	"emcon/internal/table"
)

// Retrieval log columns after dot normalization
const (
	colMemCond = "mem_cond"
	colOldNew  = "oldnew_resp_keys"
	colRK      = "rk_resp_keys"
)

// MemoryMeasures lists the per-cell memory columns in output order
var MemoryMeasures = []string{
	"Old_N", "New_N", "HitRate", "FARate", "dprime", "beta", "Az", "criterion",
	"A", "B", "K_HitRate", "R_HitRate", "K_FARate", "R_FARate",
}

// MemoryColumns returns the memory summary header (without sub_id). Trial
// counts are only reported for single valences.
func MemoryColumns() []string {
	var cols []string
	for _, m := range MemoryMeasures {
		for _, t := range experiment.Tests {
			for _, v := range experiment.MemoryValences {
				if v == experiment.AllValences && (m == "Old_N" || m == "New_N") {
					continue
				}
				cols = append(cols, experiment.MemoryColumn(v, t, m))
			}
		}
	}
	return cols
}

// RecognitionTally is the old/new tally of one cell split by remember/know
type RecognitionTally struct {
	sdt.Tally
	KnowHits, RememberHits int
	KnowFAs, RememberFAs   int
}

// TallyRetrieval counts responses to the trials of one valence
func TallyRetrieval(ret *table.Table, v experiment.Valence) (RecognitionTally, error) {
	var t RecognitionTally
	if err := ret.Require(colValence, colMemCond, colOldNew, colRK); err != nil {
		return t, errors.WithCode(errors.CodeInvalidInput, err)
	}

	for r := range ret.Rows {
		if !v.Includes(ret.Get(r, colValence)) {
			continue
		}
		old := ret.Get(r, colMemCond) == "Old"
		isNew := ret.Get(r, colMemCond) == "New"
		key, answered := responseKey(ret.Get(r, colOldNew))
		rk := rememberKnow(ret.Get(r, colRK))

		switch {
		case old && answered && key == experiment.KeyOld:
			t.Hits++
		case old && answered && key == experiment.KeyNew:
			t.Misses++
		case isNew && answered && key == experiment.KeyOld:
			t.FalseAlarms++
		case isNew && answered && key == experiment.KeyNew:
			t.CorrectRejections++
		}

		switch {
		case old && rk == experiment.KeyKnow:
			t.KnowHits++
		case old && rk == experiment.KeyRemember:
			t.RememberHits++
		case isNew && rk == experiment.KeyKnow:
			t.KnowFAs++
		case isNew && rk == experiment.KeyRemember:
			t.RememberFAs++
		}
	}

	if t.Hits != t.KnowHits+t.RememberHits {
		return t, errors.DataIntegrity(fmt.Sprintf("%d hits but %d know + %d remember responses",
			t.Hits, t.KnowHits, t.RememberHits))
	}
	if t.FalseAlarms != t.KnowFAs+t.RememberFAs {
		return t, errors.DataIntegrity(fmt.Sprintf("%d false alarms but %d know + %d remember responses",
			t.FalseAlarms, t.KnowFAs, t.RememberFAs))
	}
	return t, nil
}

// rememberKnow returns the remember/know key of a cell as psychopy writes it,
// so "5.0" reads as "5". Missing responses give "".
func rememberKnow(cell string) string {
	key, ok := responseKey(cell)
	if !ok {
		return ""
	}
	return strconv.Itoa(key)
}

// MemoryService derives recognition memory measures from retrieval logs
type MemoryService struct {
	policy config.DegeneratePolicy
	logger *slog.Logger
}

// NewMemoryService creates a memory service
func NewMemoryService(policy config.DegeneratePolicy, logger *slog.Logger) *MemoryService {
	return &MemoryService{policy: policy, logger: logging.OrDiscard(logger)}
}

// Summarize writes every valence cell of one test into out and returns the
// boundary corrections applied along the way
func (s *MemoryService) Summarize(sub experiment.SubjectID, test experiment.Test, ret *table.Table, out *table.Summary) ([]CellCorrection, error) {
	var corrections []CellCorrection
	id := string(sub)
	col := func(v experiment.Valence, m string) string { return experiment.MemoryColumn(v, test, m) }

	for _, v := range experiment.MemoryValences {
		tally, err := TallyRetrieval(ret, v)
		if err != nil {
			return nil, errors.Wrapf(err, "%s %s test, %s words", sub, test.Name(), v)
		}

		res, err := sdt.Compute(tally.Tally)
		switch {
		case errors.Is(err, sdt.ErrDegenerateTally):
			if s.policy == config.DegenerateAbort {
				return nil, errors.WithCode(errors.CodeDataIntegrity,
					errors.Wrapf(err, "%s %s test, %s words", sub, test.Name(), v))
			}
			s.logger.Warn("undefined rate, signal detection measures left empty",
				"sub_id", sub, "test", test, "valence", v,
				"old", tally.Old(), "new", tally.New())
		case err != nil:
			return nil, errors.Wrapf(err, "%s %s test, %s words", sub, test.Name(), v)
		}

		for _, c := range res.Corrections {
			cc := CellCorrection{Subject: sub, Test: test, Valence: v, Correction: c}
			corrections = append(corrections, cc)
			s.logger.Warn(c.Message(), "sub_id", sub, "test", test, "valence", v,
				"rate", c.Rate, "raw", c.Raw, "adjusted", c.Adjusted)
		}

		if v != experiment.AllValences {
			out.Set(id, col(v, "Old_N"), float64(tally.Old()))
			out.Set(id, col(v, "New_N"), float64(tally.New()))
		}
		out.Set(id, col(v, "HitRate"), ratio(tally.Hits, tally.Old()))
		out.Set(id, col(v, "FARate"), ratio(tally.FalseAlarms, tally.New()))
		out.Set(id, col(v, "dprime"), res.DPrime)
		out.Set(id, col(v, "beta"), res.Beta)
		out.Set(id, col(v, "Az"), res.Az)
		out.Set(id, col(v, "criterion"), res.Criterion)
		out.Set(id, col(v, "A"), res.APrime)
		out.Set(id, col(v, "B"), res.BDoublePrime)
		out.Set(id, col(v, "K_HitRate"), ratio(tally.KnowHits, tally.Old()))
		out.Set(id, col(v, "R_HitRate"), ratio(tally.RememberHits, tally.Old()))
		out.Set(id, col(v, "K_FARate"), ratio(tally.KnowFAs, tally.New()))
		out.Set(id, col(v, "R_FARate"), ratio(tally.RememberFAs, tally.New()))
	}
	return corrections, nil
}

// CellCorrection locates a boundary correction in the memory summary
type CellCorrection struct {
	Subject experiment.SubjectID
	Test    experiment.Test
	Valence experiment.Valence
	sdt.Correction
}

// MemoryLong reshapes the wide memory summary to one row per
// (subject, delay, valence). Cells with no value for any measure are dropped.
func MemoryLong(mem *table.Summary) *table.Table {
	long := table.New(append([]string{"sub_id", "delay", "valence"}, MemoryMeasures...)...)
	for _, id := range mem.IDs() {
		for _, t := range experiment.Tests {
			for _, v := range experiment.MemoryValences {
				row := []string{id, string(t), string(v)}
				present := false
				for _, m := range MemoryMeasures {
					val, ok := mem.Get(id, experiment.MemoryColumn(v, t, m))
					if ok {
						present = true
					}
					row = append(row, table.FormatFloat(val))
				}
				if present {
					long.Append(row)
				}
			}
		}
	}
	return long
}

func ratio(num, den int) float64 {
	if den == 0 {
		return math.NaN()
	}
	return float64(num) / float64(den)
}
