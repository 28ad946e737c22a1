package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"emcon/adapters/excel"
	"emcon/adapters/report"
	"emcon/domain/experiment"
	"emcon/internal/config"
	"emcon/internal/errors"
	"emcon/internal/logging"
	"emcon/internal/profiling"
	"emcon/internal/table"
	"emcon/ports"
)

// FigureDV is one plotted dependent variable
type FigureDV struct {
	Name  string
	Label string
	Ticks ports.Ticks
}

// FigureDVs are the memory measures plotted, in report order
var FigureDVs = []FigureDV{
	{Name: "HitRate", Label: "hit rate", Ticks: ports.Ticks{Min: 0, Max: 1, Step: 0.2}},
	{Name: "FARate", Label: "false alarm rate", Ticks: ports.Ticks{Min: 0, Max: 1, Step: 0.2}},
	{Name: "dprime", Label: "d' (discriminability)", Ticks: ports.Ticks{Min: -0.5, Max: 3, Step: 0.5}},
	{Name: "criterion", Label: "c (response bias)", Ticks: ports.Ticks{Min: -1, Max: 2, Step: 0.5}},
}

var figureHues = []ports.Hue{
	{Name: string(experiment.Neutral), R: 105, G: 105, B: 105, A: 255}, // dimgray
	{Name: string(experiment.Negative), R: 178, G: 34, B: 34, A: 255},  // firebrick
}

// CellDescriptives summarizes one DV in one (delay, valence) cell
type CellDescriptives struct {
	DV      string
	Delay   string
	Valence string
	profiling.Descriptives
}

// FiguresResult lists what a figures run produced
type FiguresResult struct {
	Subjects     []string
	Plots        []string
	Markdown     string
	HTML         string
	Descriptives []CellDescriptives
}

// FiguresService plots the memory measures and writes their descriptives
type FiguresService struct {
	paths    config.PathConfig
	figures  config.FigureConfig
	renderer ports.FigureRenderer
	reporter ports.ReportRenderer
	logger   *slog.Logger
}

// NewFiguresService creates a figures service
func NewFiguresService(paths config.PathConfig, figures config.FigureConfig, renderer ports.FigureRenderer, reporter ports.ReportRenderer, logger *slog.Logger) *FiguresService {
	return &FiguresService{
		paths:    paths,
		figures:  figures,
		renderer: renderer,
		reporter: reporter,
		logger:   logging.OrDiscard(logger),
	}
}

// Run reads the long memory table and writes one plot per DV plus a
// descriptives report in markdown and HTML
func (s *FiguresService) Run(ctx context.Context) (*FiguresResult, error) {
	path := filepath.Join(s.paths.BehavioralDir, MemoryLongFile)
	long, err := excel.NewDataReader(path, s.logger).ReadTable()
	if err != nil {
		return nil, err
	}
	data, subjects, err := s.prepare(long)
	if err != nil {
		return nil, err
	}

	result := &FiguresResult{Subjects: subjects}
	categories := []string{experiment.Immediate.Name(), experiment.Delayed.Name()}

	var doc report.Document
	doc.Heading(1, "EmCon memory descriptives")
	doc.Paragraph(fmt.Sprintf("%d subjects. Excluded: %s.", len(subjects), excludedList(s.figures.DropSubjects)))

	for _, dv := range FigureDVs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := data.Require(dv.Name); err != nil {
			return nil, errors.WithCode(errors.CodeInvalidInput, errors.Wrap(err, path))
		}

		figure := ports.Figure{
			Title:      dv.Name,
			YLabel:     dv.Label,
			Categories: categories,
			Hues:       figureHues,
			YTicks:     dv.Ticks,
		}
		var rows [][]string
		for _, delay := range categories {
			for _, hue := range figureHues {
				cell := data.Where(func(r int) bool {
					return data.Get(r, colDelay) == delay && data.Get(r, colValence) == hue.Name
				})
				values := data.Floats(dv.Name, cell)
				figure.Series = append(figure.Series, ports.Series{Category: delay, Hue: hue.Name, Values: values})

				d := profiling.Describe(values)
				result.Descriptives = append(result.Descriptives, CellDescriptives{
					DV: dv.Name, Delay: delay, Valence: hue.Name, Descriptives: d,
				})
				rows = append(rows, []string{
					delay, hue.Name, fmt.Sprint(d.N),
					report.Number(d.Mean, 3), report.Number(d.SD, 3), report.Number(d.Median, 3),
					report.Number(d.Min, 3), report.Number(d.Max, 3),
					report.Number(d.Skewness, 3), report.Number(d.Kurtosis, 3),
				})
			}
		}

		doc.Heading(2, fmt.Sprintf("%s (%s)", dv.Name, dv.Label))
		doc.Table([]string{"delay", "valence", "n", "mean", "SD", "median", "min", "max", "skew", "kurtosis"}, rows)

		plotPath := filepath.Join(s.paths.PlotsDir, dv.Name+"."+s.format())
		if err := s.renderer.Render(figure, plotPath); err != nil {
			return nil, errors.Wrapf(err, "failed to render %s", dv.Name)
		}
		result.Plots = append(result.Plots, plotPath)
		s.logger.Info("figure written", "dv", dv.Name, "path", plotPath)
	}

	if err := os.MkdirAll(s.paths.PlotsDir, 0o755); err != nil {
		return nil, errors.IOError(s.paths.PlotsDir, err)
	}
	result.Markdown = filepath.Join(s.paths.PlotsDir, "descriptives.md")
	if err := os.WriteFile(result.Markdown, doc.Bytes(), 0o644); err != nil {
		return nil, errors.IOError(result.Markdown, err)
	}
	result.HTML = filepath.Join(s.paths.PlotsDir, "descriptives.html")
	if err := os.WriteFile(result.HTML, s.reporter.RenderHTML(doc.Bytes()), 0o644); err != nil {
		return nil, errors.IOError(result.HTML, err)
	}
	return result, nil
}

// prepare keeps NEU and NEG rows of retained subjects and spells out delays
func (s *FiguresService) prepare(long *table.Table) (*table.Table, []string, error) {
	if err := long.Require(colSubID, colDelay, colValence); err != nil {
		return nil, nil, errors.WithCode(errors.CodeInvalidInput, errors.Wrap(err, MemoryLongFile))
	}
	drop := make(map[string]bool)
	for _, sub := range s.figures.DropSubjects {
		drop[sub] = true
	}

	data := long.Filter(func(r int) bool {
		v := long.Get(r, colValence)
		return !drop[long.Get(r, colSubID)] &&
			(v == string(experiment.Neutral) || v == string(experiment.Negative))
	})
	for r := range data.Rows {
		if test, err := experiment.ParseDelay(data.Get(r, colDelay)); err == nil {
			data.Set(r, colDelay, test.Name())
		}
	}

	var subjects []string
	for _, g := range data.GroupBy(colSubID) {
		subjects = append(subjects, g.Key[0])
	}
	if n := s.figures.ExpectedSubjects; n > 0 && len(subjects) != n {
		return nil, nil, errors.Newf(errors.CodeDataIntegrity,
			"expected %d subjects after exclusions, found %d", n, len(subjects))
	}
	return data, subjects, nil
}

func (s *FiguresService) format() string {
	if s.figures.Format == "" {
		return "png"
	}
	return strings.TrimPrefix(strings.ToLower(s.figures.Format), ".")
}

func excludedList(subs []string) string {
	if len(subs) == 0 {
		return "none"
	}
	return strings.Join(subs, ", ")
}
