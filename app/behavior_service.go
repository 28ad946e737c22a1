package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"emcon/adapters/excel"
	"emcon/adapters/psychopy"
	"emcon/domain/experiment"
	"emcon/internal/config"
	"emcon/internal/errors"
	"emcon/internal/logging"
	"emcon/internal/table"
	"emcon/ports"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Output file names under the behavioral directory
const (
	EncodingSummaryFile = "EmCon_EncBehav_summary.csv"
	MemorySummaryFile   = "EmCon_Memory_summary.csv"
	MemoryLongFile      = "EmCon_Memory_long.csv"
	BehaviorWorkbook    = "EmCon_behavioral.xlsx"

	// Store table names
	EncodingSummaryName = "encoding"
	MemorySummaryName   = "memory"
)

// BehaviorService turns psychopy logs into the encoding and memory summaries
type BehaviorService struct {
	cfg      *config.Config
	encoding *EncodingService
	memory   *MemoryService
	store    ports.SummaryStore
	logger   *slog.Logger
}

// BehaviorResult is the outcome of one processing run
type BehaviorResult struct {
	RunID       uuid.UUID
	Subjects    []experiment.SubjectID
	Encoding    *table.Summary
	Memory      *table.Summary
	MemoryLong  *table.Table
	Corrections []CellCorrection
	Files       []string
	RuntimeMs   int64
}

// NewBehaviorService creates a behavior service. store may be nil.
func NewBehaviorService(cfg *config.Config, store ports.SummaryStore, logger *slog.Logger) *BehaviorService {
	logger = logging.OrDiscard(logger)
	return &BehaviorService{
		cfg:      cfg,
		encoding: NewEncodingService(cfg.Processing, logger),
		memory:   NewMemoryService(cfg.Processing.DegeneratePolicy, logger),
		store:    store,
		logger:   logger,
	}
}

type subjectSummary struct {
	encoding    *table.Summary
	memory      *table.Summary
	corrections []CellCorrection
}

// ProcessSubject computes one subject and merges it into the saved summaries,
// leaving every other subject's rows untouched
func (s *BehaviorService) ProcessSubject(ctx context.Context, sub experiment.SubjectID) (*BehaviorResult, error) {
	start := time.Now()
	res, err := s.computeSubject(ctx, sub)
	if err != nil {
		return nil, err
	}

	encoding, err := s.loadSummary(EncodingSummaryFile, EncodingColumns())
	if err != nil {
		return nil, err
	}
	memory, err := s.loadSummary(MemorySummaryFile, MemoryColumns())
	if err != nil {
		return nil, err
	}
	encoding.Upsert(res.encoding)
	memory.Upsert(res.memory)

	result := &BehaviorResult{
		RunID:       uuid.New(),
		Subjects:    []experiment.SubjectID{sub},
		Encoding:    encoding,
		Memory:      memory,
		MemoryLong:  MemoryLong(memory),
		Corrections: res.corrections,
	}
	if err := s.save(ctx, "behav "+string(sub), result); err != nil {
		return nil, err
	}
	result.RuntimeMs = time.Since(start).Milliseconds()
	return result, nil
}

// ProcessAll rebuilds both summaries from every subject in the psychopy
// directory. Subjects are computed concurrently and merged in ID order.
func (s *BehaviorService) ProcessAll(ctx context.Context) (*BehaviorResult, error) {
	start := time.Now()
	subjects, err := psychopy.ListSubjects(s.cfg.Paths.PsychopyDir, s.cfg.Processing.SubjectIDLength)
	if err != nil {
		return nil, err
	}
	if len(subjects) == 0 {
		return nil, errors.NotFound("subject files in " + s.cfg.Paths.PsychopyDir)
	}

	results := make([]*subjectSummary, len(subjects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Processing.Workers)
	for i, sub := range subjects {
		g.Go(func() error {
			res, err := s.computeSubject(gctx, sub)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &BehaviorResult{
		RunID:    uuid.New(),
		Subjects: subjects,
		Encoding: table.NewSummary("sub_id", EncodingColumns()...),
		Memory:   table.NewSummary("sub_id", MemoryColumns()...),
	}
	for _, res := range results {
		result.Encoding.Upsert(res.encoding)
		result.Memory.Upsert(res.memory)
		result.Corrections = append(result.Corrections, res.corrections...)
	}
	result.MemoryLong = MemoryLong(result.Memory)

	if err := s.save(ctx, "behav all", result); err != nil {
		return nil, err
	}
	result.RuntimeMs = time.Since(start).Milliseconds()
	return result, nil
}

func (s *BehaviorService) computeSubject(ctx context.Context, sub experiment.SubjectID) (*subjectSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := s.cfg.Paths.PsychopyDir
	res := &subjectSummary{
		encoding: table.NewSummary("sub_id"),
		memory:   table.NewSummary("sub_id"),
	}

	encPath, err := psychopy.FindSession(dir, sub, experiment.SessionEncoding)
	if err != nil {
		return nil, err
	}
	enc, err := psychopy.ReadSession(encPath)
	if err != nil {
		return nil, err
	}
	if err := s.encoding.Summarize(sub, enc, res.encoding); err != nil {
		return nil, err
	}

	for _, test := range experiment.Tests {
		var path string
		if test == experiment.Immediate {
			path, err = psychopy.FindSession(dir, sub, test.Session())
		} else {
			path, err = psychopy.FindOptionalSession(dir, sub, test.Session())
		}
		if err != nil {
			return nil, err
		}
		if path == "" {
			s.logger.Info("no delayed test file, skipping", "sub_id", sub)
			continue
		}

		ret, err := psychopy.ReadSession(path)
		if err != nil {
			return nil, err
		}
		corrections, err := s.memory.Summarize(sub, test, ret, res.memory)
		if err != nil {
			return nil, err
		}
		res.corrections = append(res.corrections, corrections...)
	}

	s.logger.Info("subject processed", "sub_id", sub, "corrections", len(res.corrections))
	return res, nil
}

func (s *BehaviorService) loadSummary(name string, columns []string) (*table.Summary, error) {
	path := filepath.Join(s.cfg.Paths.BehavioralDir, name)
	loaded, err := table.LoadSummary(path, "sub_id")
	if err != nil {
		return nil, errors.IOError(path, err)
	}
	summary := table.NewSummary("sub_id", columns...)
	if loaded != nil {
		summary.Upsert(loaded)
	}
	return summary, nil
}

func (s *BehaviorService) save(ctx context.Context, command string, result *BehaviorResult) error {
	dir := s.cfg.Paths.BehavioralDir
	outputs := []struct {
		file string
		tbl  *table.Table
	}{
		{EncodingSummaryFile, result.Encoding.ToTable()},
		{MemorySummaryFile, result.Memory.ToTable()},
		{MemoryLongFile, result.MemoryLong},
	}
	for _, o := range outputs {
		path := filepath.Join(dir, o.file)
		if err := o.tbl.WriteCSV(path); err != nil {
			return errors.IOError(path, err)
		}
		result.Files = append(result.Files, path)
	}

	if s.store == nil {
		return nil
	}
	runID, err := s.store.BeginRun(ctx, command)
	if err != nil {
		return err
	}
	result.RunID = runID

	status := ports.RunCompleted
	defer func() {
		if err := s.store.FinishRun(ctx, runID, status, len(result.Subjects)); err != nil {
			s.logger.Error("failed to close run", "run_id", runID, "error", err)
		}
	}()

	if err := s.store.SaveSummary(ctx, runID, EncodingSummaryName, result.Encoding); err != nil {
		status = ports.RunFailed
		return err
	}
	if err := s.store.SaveSummary(ctx, runID, MemorySummaryName, result.Memory); err != nil {
		status = ports.RunFailed
		return err
	}
	s.logger.Info("summaries stored", "run_id", runID, "subjects", len(result.Subjects))
	return nil
}

// Export writes the saved summaries into one workbook and returns its path.
// With a store configured the summaries are read from the store.
func (s *BehaviorService) Export(ctx context.Context, path string) (string, error) {
	if path == "" {
		path = filepath.Join(s.cfg.Paths.BehavioralDir, BehaviorWorkbook)
	}

	var encoding, memory *table.Summary
	var err error
	if s.store != nil {
		if encoding, err = s.store.LoadSummary(ctx, EncodingSummaryName); err != nil {
			return "", err
		}
		if memory, err = s.store.LoadSummary(ctx, MemorySummaryName); err != nil {
			return "", err
		}
	} else {
		if encoding, err = s.loadSummary(EncodingSummaryFile, nil); err != nil {
			return "", err
		}
		if memory, err = s.loadSummary(MemorySummaryFile, nil); err != nil {
			return "", err
		}
	}
	if len(encoding.IDs()) == 0 && len(memory.IDs()) == 0 {
		return "", errors.NotFound("behavioral summaries in " + s.cfg.Paths.BehavioralDir)
	}

	err = excel.WriteWorkbook(path,
		excel.Sheet{Name: "Encoding", Table: encoding.ToTable()},
		excel.Sheet{Name: "Memory", Table: memory.ToTable()},
		excel.Sheet{Name: "Memory_long", Table: MemoryLong(memory)},
	)
	if err != nil {
		return "", err
	}
	s.logger.Info("workbook written", "path", path)
	return path, nil
}
