package app

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"emcon/adapters/excel"
	"emcon/adapters/psychopy"
	"emcon/internal/errors"
	"emcon/internal/logging"
	"emcon/internal/table"

	"gopkg.in/yaml.v3"
)

const duplicatedStudyName = "EmCon_EmCon"

// RepairManifest describes how raw psychopy files are copied and corrected
// into the psychopy directory. Source paths are relative to SourceDir, outputs
// relative to the psychopy directory.
type RepairManifest struct {
	SourceDir string          `yaml:"source_dir"`
	Rename    []RenameRule    `yaml:"rename"`
	Skip      []SkipRule      `yaml:"skip"`
	SetColumn []SetColumnStep `yaml:"set_column"`
	Merge     []MergeStep     `yaml:"merge"`
	Relabel   []RelabelStep   `yaml:"relabel_test_cond"`
}

// RenameRule rewrites a substring of copied file names
type RenameRule struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// SkipRule keeps a source file out of the copy step. Every non-empty field must match.
type SkipRule struct {
	Prefix   string `yaml:"prefix"`
	Suffix   string `yaml:"suffix"`
	Contains string `yaml:"contains"`
}

// Matches reports whether name satisfies the rule
func (r SkipRule) Matches(name string) bool {
	if r.Prefix == "" && r.Suffix == "" && r.Contains == "" {
		return false
	}
	return strings.HasPrefix(name, r.Prefix) &&
		strings.HasSuffix(name, r.Suffix) &&
		strings.Contains(name, r.Contains)
}

// SetColumnStep writes a copy of Source with Column set to Value on every row
type SetColumnStep struct {
	Source string `yaml:"source"`
	Output string `yaml:"output"`
	Column string `yaml:"column"`
	Value  string `yaml:"value"`
}

// MergeStep concatenates Parts, keeping rows where RequireColumn is non-empty
type MergeStep struct {
	Parts         []string `yaml:"parts"`
	Output        string   `yaml:"output"`
	RequireColumn string   `yaml:"require_column"`
}

// RelabelStep rewrites test_cond of encoding trials from the words that
// actually appeared in each recognition test
type RelabelStep struct {
	Encoding       string `yaml:"encoding"`
	Immediate      string `yaml:"immediate"`
	Delayed        string `yaml:"delayed"`
	Output         string `yaml:"output"`
	ExpectedTrials int    `yaml:"expected_trials"`
}

// LoadRepairManifest reads a YAML manifest
func LoadRepairManifest(path string) (*RepairManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IOError(path, err)
	}
	var m RepairManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, errors.Wrapf(err, "invalid repair manifest %s", path))
	}
	if m.SourceDir == "" {
		return nil, errors.InvalidInput("repair manifest " + path + " has no source_dir")
	}
	if !filepath.IsAbs(m.SourceDir) {
		m.SourceDir = filepath.Join(filepath.Dir(path), m.SourceDir)
	}
	return &m, nil
}

// RepairReport lists what a repair pass did
type RepairReport struct {
	Copied   []string
	Skipped  []string
	Existing []string
	Written  []string
}

// RepairService fixes known problems in raw psychopy files. Existing files in
// the psychopy directory are never overwritten.
type RepairService struct {
	psychopyDir string
	logger      *slog.Logger
}

// NewRepairService creates a repair service for a psychopy directory
func NewRepairService(psychopyDir string, logger *slog.Logger) *RepairService {
	return &RepairService{psychopyDir: psychopyDir, logger: logging.OrDiscard(logger)}
}

// RenameDuplicated renames files whose name repeats the study name
// ("05_EmCon_EmCon_enc.csv" becomes "05_EmCon_enc.csv"). A file whose
// corrected name is taken is left alone and reported.
func (s *RepairService) RenameDuplicated() (*RepairReport, error) {
	entries, err := os.ReadDir(s.psychopyDir)
	if err != nil {
		return nil, errors.IOError(s.psychopyDir, err)
	}

	report := &RepairReport{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.Contains(name, duplicatedStudyName) {
			continue
		}
		target := filepath.Join(s.psychopyDir, strings.ReplaceAll(name, duplicatedStudyName, "EmCon"))
		if exists(target) {
			s.logger.Warn("corrected name already exists, not renaming", "file", name, "target", target)
			report.Existing = append(report.Existing, target)
			continue
		}
		if err := os.Rename(filepath.Join(s.psychopyDir, name), target); err != nil {
			return report, errors.IOError(target, err)
		}
		s.logger.Info("renamed", "from", name, "to", filepath.Base(target))
		report.Written = append(report.Written, target)
	}
	return report, nil
}

// Apply runs every step of the manifest: copy, set_column, merge, relabel
func (s *RepairService) Apply(m *RepairManifest) (*RepairReport, error) {
	report := &RepairReport{}
	if err := os.MkdirAll(s.psychopyDir, 0o755); err != nil {
		return nil, errors.IOError(s.psychopyDir, err)
	}
	if err := s.copySources(m, report); err != nil {
		return report, err
	}
	for _, step := range m.SetColumn {
		if err := s.setColumn(m.SourceDir, step, report); err != nil {
			return report, err
		}
	}
	for _, step := range m.Merge {
		if err := s.merge(m.SourceDir, step, report); err != nil {
			return report, err
		}
	}
	for _, step := range m.Relabel {
		if err := s.relabel(m.SourceDir, step, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (s *RepairService) copySources(m *RepairManifest, report *RepairReport) error {
	entries, err := os.ReadDir(m.SourceDir)
	if err != nil {
		return errors.IOError(m.SourceDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if skipped(m.Skip, name) {
			report.Skipped = append(report.Skipped, name)
			continue
		}
		target := name
		for _, r := range m.Rename {
			target = strings.ReplaceAll(target, r.From, r.To)
		}
		dst := filepath.Join(s.psychopyDir, target)
		if exists(dst) {
			report.Existing = append(report.Existing, dst)
			continue
		}
		if err := copyFile(filepath.Join(m.SourceDir, name), dst); err != nil {
			return err
		}
		s.logger.Info("added", "file", dst)
		report.Copied = append(report.Copied, dst)
	}
	return nil
}

func (s *RepairService) setColumn(sourceDir string, step SetColumnStep, report *RepairReport) error {
	out := filepath.Join(s.psychopyDir, step.Output)
	if exists(out) {
		report.Existing = append(report.Existing, out)
		return nil
	}
	t, err := s.readRaw(filepath.Join(sourceDir, step.Source))
	if err != nil {
		return err
	}
	for r := range t.Rows {
		t.Set(r, step.Column, step.Value)
	}
	return s.write(t, out, report)
}

func (s *RepairService) merge(sourceDir string, step MergeStep, report *RepairReport) error {
	out := filepath.Join(s.psychopyDir, step.Output)
	if exists(out) {
		report.Existing = append(report.Existing, out)
		return nil
	}
	if len(step.Parts) < 2 {
		return errors.InvalidInput("merge into " + step.Output + " needs at least two parts")
	}

	parts := make([]*table.Table, 0, len(step.Parts))
	for _, p := range step.Parts {
		t, err := s.readRaw(filepath.Join(sourceDir, p))
		if err != nil {
			return err
		}
		if step.RequireColumn != "" {
			if err := t.Require(step.RequireColumn); err != nil {
				return errors.WithCode(errors.CodeInvalidInput, errors.Wrapf(err, "merge part %s", p))
			}
			src := t
			t = src.Filter(func(r int) bool { return strings.TrimSpace(src.Get(r, step.RequireColumn)) != "" })
		}
		parts = append(parts, t)
	}
	return s.write(table.Concat(parts...), out, report)
}

func (s *RepairService) relabel(sourceDir string, step RelabelStep, report *RepairReport) error {
	out := filepath.Join(s.psychopyDir, step.Output)
	if exists(out) {
		report.Existing = append(report.Existing, out)
		return nil
	}

	enc, err := s.readRaw(filepath.Join(sourceDir, step.Encoding))
	if err != nil {
		return err
	}
	immediate, err := wordSet(filepath.Join(sourceDir, step.Immediate))
	if err != nil {
		return err
	}
	delayed, err := wordSet(filepath.Join(sourceDir, step.Delayed))
	if err != nil {
		return err
	}
	if err := enc.Require("stim_word", "valence"); err != nil {
		return errors.WithCode(errors.CodeInvalidInput, errors.Wrapf(err, "encoding file %s", step.Encoding))
	}

	var trials int
	for r := range enc.Rows {
		switch enc.Get(r, "valence") {
		case "NEU", "NEG", "animal":
		default:
			continue
		}
		trials++
		word := enc.Get(r, "stim_word")
		switch {
		case immediate[word] && delayed[word]:
			enc.Set(r, "test_cond", "both")
		case immediate[word]:
			enc.Set(r, "test_cond", "immediate")
		case delayed[word]:
			enc.Set(r, "test_cond", "delayed")
		default:
			enc.Set(r, "test_cond", "neither")
		}
	}
	if step.ExpectedTrials > 0 && trials != step.ExpectedTrials {
		return errors.Newf(errors.CodeDataIntegrity, "%s has %d trials, expected %d",
			step.Encoding, trials, step.ExpectedTrials)
	}
	return s.write(enc, out, report)
}

func (s *RepairService) write(t *table.Table, path string, report *RepairReport) error {
	if err := t.WriteCSV(path); err != nil {
		return errors.IOError(path, err)
	}
	s.logger.Info("written", "file", path, "rows", t.Len())
	report.Written = append(report.Written, path)
	return nil
}

// readRaw loads a raw log; exports saved from Excel are read as workbooks
func (s *RepairService) readRaw(path string) (*table.Table, error) {
	return excel.NewDataReader(path, s.logger).ReadTable()
}

func wordSet(path string) (map[string]bool, error) {
	t, err := psychopy.ReadSession(path)
	if err != nil {
		return nil, err
	}
	words := make(map[string]bool)
	for _, w := range t.Column("stim_word") {
		if w != "" {
			words[w] = true
		}
	}
	return words, nil
}

func skipped(rules []SkipRule, name string) bool {
	for _, r := range rules {
		if r.Matches(name) {
			return true
		}
	}
	return false
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.IOError(src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.IOError(src, err)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return errors.IOError(dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.IOError(dst, err)
	}
	if err := out.Close(); err != nil {
		return errors.IOError(dst, err)
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
