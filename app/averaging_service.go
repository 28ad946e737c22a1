package app

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"emcon/adapters/excel"
	"emcon/domain/experiment"
	"emcon/internal/config"
	"emcon/internal/errors"
	"emcon/internal/logging"
	"emcon/internal/profiling"
	"emcon/internal/table"
)

// Averaged ERP file names under the ERP data directory
const (
	SingleTrialFile      = "EmCon_SingleTrial.csv"
	WordAveragedLongFile = "EmCon_WordAveraged_long.csv"
	WordAveragedWideFile = "EmCon_WordAveraged_wide.csv"
	SubAveragedLongFile  = "EmCon_SubAveraged_long.csv"
	SubAveragedWideFile  = "EmCon_SubAveraged_wide.csv"
)

// Single-trial columns
const (
	colSubID   = "sub_id"
	colWord    = "word"
	colWordID  = "word_id"
	colDelay   = "delay"
	colLPP     = "LPP"
	colCLPP    = "cLPP"
	colZLPP    = "ZLPP"
	colBias    = "sub_bias"
	colArtRej  = "art_rej"
	colAcc     = "acc"
	colNTrials = "N_trials"
)

// AveragingService prepares single-trial ERP data and averages it by word and by subject
type AveragingService struct {
	paths  config.PathConfig
	logger *slog.Logger
}

// AveragingResult holds the four averaged tables
type AveragingResult struct {
	SingleTrial *table.Table
	WordLong    *table.Table
	WordWide    *table.Table
	SubLong     *table.Table
	SubWide     *table.Table
	Files       []string
}

// NewAveragingService creates an averaging service
func NewAveragingService(paths config.PathConfig, logger *slog.Logger) *AveragingService {
	return &AveragingService{paths: paths, logger: logging.OrDiscard(logger)}
}

// Run updates the single-trial file in place and writes the averaged tables
func (s *AveragingService) Run() (*AveragingResult, error) {
	stPath := filepath.Join(s.paths.ERPDir, SingleTrialFile)
	st, err := s.readSingleTrial(stPath)
	if err != nil {
		return nil, err
	}
	memPath := filepath.Join(s.paths.BehavioralDir, MemorySummaryFile)
	mem, err := table.LoadSummary(memPath, "sub_id")
	if err != nil {
		return nil, errors.IOError(memPath, err)
	}
	if mem == nil {
		return nil, errors.NotFound("memory summary " + memPath)
	}

	if err := s.UpdateSingleTrial(st, mem); err != nil {
		return nil, err
	}

	res := &AveragingResult{SingleTrial: st}
	if res.WordLong, res.WordWide, err = WordAveraged(st); err != nil {
		return nil, err
	}
	if res.SubLong, res.SubWide, err = SubjectAveraged(st); err != nil {
		return nil, err
	}

	outputs := []struct {
		path string
		tbl  *table.Table
	}{
		{stPath, res.SingleTrial},
		{filepath.Join(s.paths.ERPDir, WordAveragedLongFile), res.WordLong},
		{filepath.Join(s.paths.ERPDir, WordAveragedWideFile), res.WordWide},
		{filepath.Join(s.paths.ERPDir, SubAveragedLongFile), res.SubLong},
		{filepath.Join(s.paths.ERPDir, SubAveragedWideFile), res.SubWide},
	}
	for _, o := range outputs {
		if err := o.tbl.WriteCSV(o.path); err != nil {
			return nil, errors.IOError(o.path, err)
		}
		res.Files = append(res.Files, o.path)
	}
	s.logger.Info("averaged data written", "dir", s.paths.ERPDir, "trials", st.Len())
	return res, nil
}

// readSingleTrial reads the single-trial CSV, or the workbook of the same name
// when only that exists. Run writes the result back as CSV either way.
func (s *AveragingService) readSingleTrial(path string) (*table.Table, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		book := strings.TrimSuffix(path, filepath.Ext(path)) + ".xlsx"
		if _, err := os.Stat(book); err == nil {
			s.logger.Info("reading single trials from workbook", "path", book)
			path = book
		}
	}
	return excel.NewDataReader(path, s.logger).ReadTable()
}

// UpdateSingleTrial adds cLPP (LPP centered on the subject's NEU mean), ZLPP
// (cLPP over the pooled NEU/NEG standard deviation) and sub_bias (the memory
// criterion for the trial's valence and delay)
func (s *AveragingService) UpdateSingleTrial(st *table.Table, mem *table.Summary) error {
	if err := st.Require(colSubID, colValence, colDelay, colLPP); err != nil {
		return errors.WithCode(errors.CodeInvalidInput, errors.Wrap(err, "single-trial data"))
	}
	st.AddColumn(colCLPP)
	st.AddColumn(colZLPP)
	st.AddColumn(colBias)

	for _, g := range st.GroupBy(colSubID) {
		sub := g.Key[0]
		var neu, neg []float64
		for _, r := range g.Rows {
			v, ok := st.Float(r, colLPP)
			if !ok {
				continue
			}
			switch st.Get(r, colValence) {
			case string(experiment.Neutral):
				neu = append(neu, v)
			case string(experiment.Negative):
				neg = append(neg, v)
			}
		}
		center := profiling.Mean(neu)
		sp := profiling.PooledSD(neu, neg)

		if !mem.HasRow(sub) {
			return errors.NotFound("memory summary row for " + sub)
		}

		for _, r := range g.Rows {
			clpp := math.NaN()
			if v, ok := st.Float(r, colLPP); ok {
				clpp = v - center
			}
			st.SetFloat(r, colCLPP, clpp)
			st.SetFloat(r, colZLPP, clpp/sp)

			bias := math.NaN()
			if test, err := experiment.ParseDelay(st.Get(r, colDelay)); err == nil {
				v := experiment.Valence(st.Get(r, colValence))
				bias = mem.Value(sub, experiment.MemoryColumn(v, test, "criterion"))
			}
			st.SetFloat(r, colBias, bias)
		}
		s.logger.Debug("single trials updated", "sub_id", sub, "trials", len(g.Rows), "pooled_sd", sp)
	}
	return nil
}

// analyzed keeps artifact-free trials with a correct response
func analyzed(st *table.Table) (*table.Table, error) {
	if err := st.Require(colArtRej, colAcc, colLPP); err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, errors.Wrap(err, "single-trial data"))
	}
	return st.Filter(func(r int) bool {
		rej, ok1 := st.Float(r, colArtRej)
		acc, ok2 := st.Float(r, colAcc)
		return ok1 && ok2 && rej == 0 && acc == 1
	}), nil
}

// groupMeans averages every numeric column by keys and appends N_trials, the
// LPP count of each group's rows by countKeys
func groupMeans(t *table.Table, keys, countKeys []string) *table.Table {
	exclude := append(append([]string{}, keys...), colSubID, colWord)
	numeric := t.NumericColumns(exclude...)

	counts := make(map[string]int)
	for _, g := range t.GroupBy(countKeys...) {
		counts[joinKey(g.Key)] = len(t.Floats(colLPP, g.Rows))
	}

	out := table.New(append(append(append([]string{}, keys...), numeric...), colNTrials)...)
	for _, g := range t.GroupBy(keys...) {
		row := append([]string{}, g.Key...)
		for _, c := range numeric {
			row = append(row, table.FormatFloat(profiling.Mean(t.Floats(c, g.Rows))))
		}
		countKey := make([]string, len(countKeys))
		for i, k := range countKeys {
			countKey[i] = t.Get(g.Rows[0], k)
		}
		row = append(row, table.FormatFloat(float64(counts[joinKey(countKey)])))
		out.Append(row)
	}
	return out
}

// WordAveraged averages analyzed trials by (word, valence, delay). The wide
// form has one row per word and <column>_<delay> columns.
func WordAveraged(st *table.Table) (long, wide *table.Table, err error) {
	trials, err := analyzed(st)
	if err != nil {
		return nil, nil, err
	}
	if err := trials.Require(colWord, colValence, colDelay); err != nil {
		return nil, nil, errors.WithCode(errors.CodeInvalidInput, errors.Wrap(err, "single-trial data"))
	}

	long = groupMeans(trials, []string{colWord, colValence, colDelay}, []string{colWord, colDelay})
	if long.Has(colWordID) {
		for r := range long.Rows {
			if v, ok := long.Float(r, colWordID); ok {
				long.SetFloat(r, colWordID, math.Round(v))
			}
		}
	}

	wide = pivot(long, []string{colWord}, []string{colDelay}, []string{colValence, colWordID})
	return long, wide, nil
}

// SubjectAveraged averages analyzed trials by (sub_id, valence, delay). The
// wide form has one row per subject and <column>_<valence>_<delay> columns.
func SubjectAveraged(st *table.Table) (long, wide *table.Table, err error) {
	trials, err := analyzed(st)
	if err != nil {
		return nil, nil, err
	}
	if err := trials.Require(colSubID, colValence, colDelay); err != nil {
		return nil, nil, errors.WithCode(errors.CodeInvalidInput, errors.Wrap(err, "single-trial data"))
	}

	// word IDs mean nothing once words are pooled
	trials.DropColumns(colWordID)
	keys := []string{colSubID, colValence, colDelay}
	long = groupMeans(trials, keys, keys)
	wide = pivot(long, []string{colSubID}, []string{colValence, colDelay}, nil)
	return long, wide, nil
}

// pivot spreads long rows into one row per index key. Each value column
// becomes <column>_<spread levels...> for every spread combination, levels
// sorted. Columns named in constant are carried once under their own name
// instead of being spread.
func pivot(long *table.Table, index, spread, constant []string) *table.Table {
	isKey := make(map[string]bool)
	for _, c := range append(append([]string{}, index...), spread...) {
		isKey[c] = true
	}
	isConst := make(map[string]bool)
	var constCols []string
	for _, c := range constant {
		if long.Has(c) {
			isConst[c] = true
			constCols = append(constCols, c)
		}
	}
	var values []string
	for _, c := range long.Columns {
		if !isKey[c] && !isConst[c] {
			values = append(values, c)
		}
	}

	var levels [][]string
	seen := make(map[string]bool)
	for _, g := range long.GroupBy(spread...) {
		if k := joinKey(g.Key); !seen[k] {
			seen[k] = true
			levels = append(levels, g.Key)
		}
	}

	header := append(append([]string{}, index...), constCols...)
	for _, v := range values {
		for _, lv := range levels {
			header = append(header, v+"_"+joinName(lv))
		}
	}
	out := table.New(header...)

	groups := long.GroupBy(index...)
	sort.SliceStable(groups, func(i, j int) bool { return joinKey(groups[i].Key) < joinKey(groups[j].Key) })
	for _, g := range groups {
		record := make(map[string]string)
		for i, k := range index {
			record[k] = g.Key[i]
		}
		for _, r := range g.Rows {
			for _, c := range constCols {
				if record[c] == "" {
					record[c] = long.Get(r, c)
				}
			}
			lv := make([]string, len(spread))
			for i, s := range spread {
				lv[i] = long.Get(r, s)
			}
			for _, v := range values {
				record[v+"_"+joinName(lv)] = long.Get(r, v)
			}
		}
		out.AppendRecord(record)
	}
	return out
}

func joinKey(key []string) string { return strings.Join(key, "\x00") }

func joinName(levels []string) string { return strings.Join(levels, "_") }
