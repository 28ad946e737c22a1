package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"emcon/adapters/figures"
	"emcon/adapters/report"
	"emcon/internal/config"
	"emcon/internal/errors"
	"emcon/internal/testkit"
	"emcon/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRenderer struct {
	figures []ports.Figure
	paths   []string
	err     error
}

func (r *recordingRenderer) Render(f ports.Figure, path string) error {
	r.figures = append(r.figures, f)
	r.paths = append(r.paths, path)
	return r.err
}

func writeMemoryLong(t *testing.T, lab *testkit.Lab) {
	t.Helper()
	content := "sub_id,delay,valence,HitRate,FARate,dprime,criterion\n"
	for i, sub := range []string{"01_EmCon", "02_EmCon", "03_EmCon"} {
		for _, delay := range []string{"I", "D"} {
			for _, v := range []string{"ALL", "NEU", "NEG", "animal"} {
				hr := 0.5 + 0.1*float64(i)
				if delay == "D" {
					hr -= 0.2
				}
				content += fmt.Sprintf("%s,%s,%s,%g,0.2,1.1,0.3\n", sub, delay, v, hr)
			}
		}
	}
	lab.WriteFile("stats/behavioral/"+MemoryLongFile, content)
}

func TestFiguresService_Run(t *testing.T) {
	lab := testkit.NewLab(t)
	writeMemoryLong(t, lab)
	cfg := lab.Config()
	cfg.Figures = config.FigureConfig{Format: "SVG", DropSubjects: []string{"03_EmCon"}, ExpectedSubjects: 2}

	renderer := &recordingRenderer{}
	svc := NewFiguresService(cfg.Paths, cfg.Figures, renderer, report.HTMLRenderer{Title: "EmCon"}, nil)
	res, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"01_EmCon", "02_EmCon"}, res.Subjects)
	require.Len(t, renderer.figures, len(FigureDVs))
	assert.Equal(t, filepath.Join(cfg.Paths.PlotsDir, "HitRate.svg"), renderer.paths[0])
	assert.Equal(t, renderer.paths, res.Plots)

	hit := renderer.figures[0]
	assert.Equal(t, []string{"immediate", "delayed"}, hit.Categories)
	assert.Equal(t, ports.Ticks{Min: 0, Max: 1, Step: 0.2}, hit.YTicks)
	require.Len(t, hit.Series, 4)
	assert.Equal(t, ports.Series{Category: "immediate", Hue: "NEU", Values: []float64{0.5, 0.6}}, hit.Series[0])
	assert.Equal(t, "NEG", hit.Series[1].Hue)
	assert.InDeltaSlice(t, []float64{0.3, 0.4}, hit.Series[2].Values, 1e-12)

	require.Len(t, res.Descriptives, 4*len(FigureDVs))
	assert.Equal(t, 2, res.Descriptives[0].N)
	assert.InDelta(t, 0.55, res.Descriptives[0].Mean, 1e-12)

	md, err := os.ReadFile(res.Markdown)
	require.NoError(t, err)
	assert.Contains(t, string(md), "2 subjects. Excluded: 03_EmCon.")
	assert.Contains(t, string(md), "| immediate | NEU | 2 | 0.550 |")

	html, err := os.ReadFile(res.HTML)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<title>EmCon</title>")
	assert.Contains(t, string(html), "<table>")
}

func TestFiguresService_Errors(t *testing.T) {
	lab := testkit.NewLab(t)
	cfg := lab.Config()
	svc := NewFiguresService(cfg.Paths, cfg.Figures, &recordingRenderer{}, report.HTMLRenderer{}, nil)

	_, err := svc.Run(context.Background())
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))

	writeMemoryLong(t, lab)
	cfg.Figures.ExpectedSubjects = 29
	svc = NewFiguresService(cfg.Paths, cfg.Figures, &recordingRenderer{}, report.HTMLRenderer{}, nil)
	_, err = svc.Run(context.Background())
	assert.Equal(t, errors.CodeDataIntegrity, errors.GetCode(err))

	cfg.Figures.ExpectedSubjects = 0
	failing := &recordingRenderer{err: errors.InvalidInput("no hues")}
	svc = NewFiguresService(cfg.Paths, cfg.Figures, failing, report.HTMLRenderer{}, nil)
	_, err = svc.Run(context.Background())
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	assert.Contains(t, err.Error(), "HitRate")
}

func TestFiguresService_RendersPNG(t *testing.T) {
	lab := testkit.NewLab(t)
	writeMemoryLong(t, lab)
	cfg := lab.Config()

	svc := NewFiguresService(cfg.Paths, cfg.Figures, figures.NewBoxStripRenderer(), report.HTMLRenderer{}, nil)
	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	for _, p := range res.Plots {
		assert.FileExists(t, p)
	}
}
