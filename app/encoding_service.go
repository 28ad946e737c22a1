package app

import (
	"log/slog"
	"math"
	"strings"

	"emcon/domain/experiment"
	"emcon/internal/config"
	"emcon/internal/errors"
	"emcon/internal/logging"
	"emcon/internal/profiling"
	"emcon/internal/table"
)

// Encoding log columns after dot normalization
const (
	colRepN       = "block_loop_thisRepN"
	colValence    = "valence"
	colAnimalHand = "animal_hand"
	colEncKeys    = "gamepad_resp_keys"
	colEncRT      = "gamepad_resp_rt"
)

// EncodingMeasures lists the per-condition encoding columns in output order
var EncodingMeasures = []string{"N", "acc", "meanRT", "medianRT", "tmeanRT"}

// EncodingColumns returns the encoding summary header (without sub_id)
func EncodingColumns() []string {
	var cols []string
	for _, m := range EncodingMeasures {
		for _, v := range experiment.TrialValences {
			cols = append(cols, experiment.EncodingColumn(v, m))
		}
	}
	return cols
}

// EncodingService computes accuracy and reaction time from an encoding log
type EncodingService struct {
	cfg    config.ProcessingConfig
	logger *slog.Logger
}

// NewEncodingService creates an encoding service
func NewEncodingService(cfg config.ProcessingConfig, logger *slog.Logger) *EncodingService {
	return &EncodingService{cfg: cfg, logger: logging.OrDiscard(logger)}
}

// Summarize writes one subject's encoding measures into out. Practice rows
// (block_loop_thisRepN != 1) are ignored and every RT is shifted by the
// configured gamepad offset before scaling to the reporting unit.
func (s *EncodingService) Summarize(sub experiment.SubjectID, enc *table.Table, out *table.Summary) error {
	if err := enc.Require(colRepN, colValence, colAnimalHand, colEncKeys, colEncRT); err != nil {
		return errors.WithCode(errors.CodeInvalidInput, errors.Wrapf(err, "%s encoding log", sub))
	}

	trials := enc.Where(func(r int) bool {
		rep, ok := enc.Float(r, colRepN)
		return ok && rep == 1
	})
	if len(trials) == 0 {
		return errors.DataIntegrity(string(sub) + " encoding log has no experimental trials")
	}

	hand := experiment.Hand(strings.TrimSpace(enc.Get(trials[0], colAnimalHand)))
	id := string(sub)

	for _, v := range experiment.TrialValences {
		correct, err := experiment.CorrectKey(v, hand)
		if err != nil {
			return errors.WithCode(errors.CodeInvalidInput, errors.Wrapf(err, "%s encoding log", sub))
		}

		var rows []int
		for _, r := range trials {
			if enc.Get(r, colValence) == string(v) {
				rows = append(rows, r)
			}
		}

		responded, hits := 0, 0
		var rts []float64
		for _, r := range rows {
			key, ok := responseKey(enc.Get(r, colEncKeys))
			if ok {
				responded++
				if key == correct {
					hits++
				}
			}
			if rt, ok := enc.Float(r, colEncRT); ok {
				rts = append(rts, s.cfg.RTUnit.Scale(rt+s.cfg.RTOffset))
			}
		}

		acc := math.NaN()
		if len(rows) > 0 {
			acc = float64(hits) / float64(len(rows))
		}
		tmean, err := profiling.TrimMean(rts, s.cfg.TrimProportion)
		if err != nil {
			return errors.WithCode(errors.CodeConfigInvalid, err)
		}

		out.Set(id, experiment.EncodingColumn(v, "N"), float64(responded))
		out.Set(id, experiment.EncodingColumn(v, "acc"), acc)
		out.Set(id, experiment.EncodingColumn(v, "meanRT"), profiling.Mean(rts))
		out.Set(id, experiment.EncodingColumn(v, "medianRT"), profiling.Median(rts))
		out.Set(id, experiment.EncodingColumn(v, "tmeanRT"), tmean)

		s.logger.Debug("encoding condition summarized",
			"sub_id", sub, "valence", v, "trials", len(rows), "responses", responded)
	}
	return nil
}

// responseKey parses a gamepad key cell; psychopy leaves it empty or writes
// "None" when there was no response
func responseKey(cell string) (int, bool) {
	v, ok := table.ParseFloat(cell)
	if !ok {
		return 0, false
	}
	return int(v), v == math.Trunc(v)
}
