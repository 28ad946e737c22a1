package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"emcon/adapters/excel"
	"emcon/internal/errors"
	"emcon/internal/table"
	"emcon/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const repairManifest = `source_dir: ../raw
rename:
  - from: EmCon_EmCon
    to: EmCon
skip:
  - suffix: .log
  - prefix: "11_"
    contains: _enc_
set_column:
  - source: 12_EmCon_enc_part.csv
    output: 12_EmCon_enc_fixed.csv
    column: animal_hand
    value: R
merge:
  - parts: [13_EmCon_ret1_a.csv, 13_EmCon_ret1_b.csv]
    output: 13_EmCon_ret1_merged.csv
    require_column: stim_word
relabel_test_cond:
  - encoding: 14_EmCon_enc_raw.csv
    immediate: 14_EmCon_ret1_raw.csv
    delayed: 14_EmCon_ret2_raw.csv
    output: 14_EmCon_enc_relabeled.csv
    expected_trials: 4
`

func writeRepairLab(t *testing.T) *testkit.Lab {
	t.Helper()
	lab := testkit.NewLab(t)
	lab.WriteFile("psychopy/repairs.yaml", repairManifest)
	lab.WriteFile("raw/10_EmCon_EmCon_enc.csv", "stim_word\nchair\n")
	lab.WriteFile("raw/10_EmCon_EmCon_enc.log", "log")
	lab.WriteFile("raw/11_EmCon_enc_crashed.csv", "stim_word\n")
	lab.WriteFile("raw/11_EmCon_ret1.csv", "stim_word\n")
	lab.WriteFile("raw/12_EmCon_enc_part.csv", "stim_word,animal_hand\nchair,\nknife,\n")
	lab.WriteFile("raw/13_EmCon_ret1_a.csv", "stim_word,mem_cond\nchair,Old\n,\n")
	lab.WriteFile("raw/13_EmCon_ret1_b.csv", "stim_word,mem_cond,rk_resp.keys\nknife,New,4\n")
	lab.WriteFile("raw/14_EmCon_enc_raw.csv",
		"stim_word,valence,test_cond\nchair,NEU,both\nknife,NEG,both\ncat,animal,both\nlamp,NEU,both\npractice,,\n")
	lab.WriteFile("raw/14_EmCon_ret1_raw.csv", "stim_word\nchair\nknife\n")
	lab.WriteFile("raw/14_EmCon_ret2_raw.csv", "stim_word\nknife\ncat\n")
	return lab
}

func TestLoadRepairManifest(t *testing.T) {
	lab := writeRepairLab(t)
	m, err := LoadRepairManifest(filepath.Join(lab.PsychopyDir(), "repairs.yaml"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(lab.Dir, "raw"), m.SourceDir)
	assert.Equal(t, []RenameRule{{From: "EmCon_EmCon", To: "EmCon"}}, m.Rename)
	require.Len(t, m.Skip, 2)
	assert.True(t, m.Skip[1].Matches("11_EmCon_enc_crashed.csv"))
	assert.False(t, m.Skip[1].Matches("11_EmCon_ret1.csv"))
	assert.False(t, SkipRule{}.Matches("anything"))
	assert.Equal(t, 4, m.Relabel[0].ExpectedTrials)

	lab.WriteFile("bad.yaml", "rename: [")
	_, err = LoadRepairManifest(filepath.Join(lab.Dir, "bad.yaml"))
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	lab.WriteFile("empty.yaml", "rename: []\n")
	_, err = LoadRepairManifest(filepath.Join(lab.Dir, "empty.yaml"))
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestRepairService_Apply(t *testing.T) {
	lab := writeRepairLab(t)
	m, err := LoadRepairManifest(filepath.Join(lab.PsychopyDir(), "repairs.yaml"))
	require.NoError(t, err)

	old := time.Date(2023, 10, 27, 16, 36, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(m.SourceDir, "10_EmCon_EmCon_enc.csv"), old, old))

	svc := NewRepairService(lab.PsychopyDir(), nil)
	report, err := svc.Apply(m)
	require.NoError(t, err)

	assert.Equal(t, []string{"10_EmCon_EmCon_enc.log", "11_EmCon_enc_crashed.csv"}, report.Skipped)
	copied := filepath.Join(lab.PsychopyDir(), "10_EmCon_enc.csv")
	assert.Contains(t, report.Copied, copied)
	assert.Contains(t, report.Copied, filepath.Join(lab.PsychopyDir(), "11_EmCon_ret1.csv"))
	info, err := os.Stat(copied)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old), "copy keeps the source timestamp")

	fixed, err := table.ReadCSV(filepath.Join(lab.PsychopyDir(), "12_EmCon_enc_fixed.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{"R", "R"}, fixed.Column("animal_hand"))

	merged, err := table.ReadCSV(filepath.Join(lab.PsychopyDir(), "13_EmCon_ret1_merged.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{"stim_word", "mem_cond", "rk_resp.keys"}, merged.Columns)
	assert.Equal(t, []string{"chair", "knife"}, merged.Column("stim_word"))

	relabeled, err := table.ReadCSV(filepath.Join(lab.PsychopyDir(), "14_EmCon_enc_relabeled.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{"immediate", "both", "delayed", "neither", ""}, relabeled.Column("test_cond"))
	assert.Len(t, report.Written, 3)
}

func TestRepairService_ApplyNeverOverwrites(t *testing.T) {
	lab := writeRepairLab(t)
	m, err := LoadRepairManifest(filepath.Join(lab.PsychopyDir(), "repairs.yaml"))
	require.NoError(t, err)
	svc := NewRepairService(lab.PsychopyDir(), nil)

	_, err = svc.Apply(m)
	require.NoError(t, err)

	hand := lab.WriteFile("psychopy/12_EmCon_enc_fixed.csv", "stim_word,animal_hand\nchair,L\n")
	second, err := svc.Apply(m)
	require.NoError(t, err)
	assert.Empty(t, second.Copied)
	assert.Empty(t, second.Written)
	assert.Contains(t, second.Existing, hand)

	content, err := os.ReadFile(hand)
	require.NoError(t, err)
	assert.Equal(t, "stim_word,animal_hand\nchair,L\n", string(content))
}

func TestRepairService_RelabelTrialCountMismatch(t *testing.T) {
	lab := writeRepairLab(t)
	m, err := LoadRepairManifest(filepath.Join(lab.PsychopyDir(), "repairs.yaml"))
	require.NoError(t, err)
	m.Relabel[0].ExpectedTrials = 240

	_, err = NewRepairService(lab.PsychopyDir(), nil).Apply(m)
	assert.Equal(t, errors.CodeDataIntegrity, errors.GetCode(err))
	assert.NoFileExists(t, filepath.Join(lab.PsychopyDir(), "14_EmCon_enc_relabeled.csv"))
}

func TestRepairService_RenameDuplicated(t *testing.T) {
	lab := testkit.NewLab(t)
	lab.WriteFile("psychopy/05_EmCon_EmCon_enc_2023.csv", "new")
	lab.WriteFile("psychopy/06_EmCon_EmCon_ret1_2023.csv", "dup")
	lab.WriteFile("psychopy/06_EmCon_ret1_2023.csv", "kept")
	lab.WriteFile("psychopy/07_EmCon_enc_2023.csv", "fine")

	report, err := NewRepairService(lab.PsychopyDir(), nil).RenameDuplicated()
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(lab.PsychopyDir(), "05_EmCon_enc_2023.csv")}, report.Written)
	assert.Equal(t, []string{filepath.Join(lab.PsychopyDir(), "06_EmCon_ret1_2023.csv")}, report.Existing)
	assert.NoFileExists(t, filepath.Join(lab.PsychopyDir(), "05_EmCon_EmCon_enc_2023.csv"))

	content, err := os.ReadFile(filepath.Join(lab.PsychopyDir(), "06_EmCon_ret1_2023.csv"))
	require.NoError(t, err)
	assert.Equal(t, "kept", string(content))
}

func TestRepairService_SetColumnFromWorkbook(t *testing.T) {
	lab := testkit.NewLab(t)
	raw := table.New("stim_word", "animal_hand")
	raw.Append([]string{"chair", ""})
	raw.Append([]string{"cat", ""})
	src := filepath.Join(lab.Dir, "raw")
	require.NoError(t, excel.WriteWorkbook(filepath.Join(src, "12_EmCon_enc_part.xlsx"), excel.Sheet{Name: "trials", Table: raw}))

	m := &RepairManifest{
		SourceDir: src,
		SetColumn: []SetColumnStep{{Source: "12_EmCon_enc_part.xlsx", Output: "12_EmCon_enc_fixed.csv", Column: "animal_hand", Value: "L"}},
	}
	_, err := NewRepairService(lab.PsychopyDir(), nil).Apply(m)
	require.NoError(t, err)

	fixed, err := table.ReadCSV(filepath.Join(lab.PsychopyDir(), "12_EmCon_enc_fixed.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{"stim_word", "animal_hand"}, fixed.Columns)
	assert.Equal(t, []string{"L", "L"}, fixed.Column("animal_hand"))
}
