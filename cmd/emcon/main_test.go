package main

import (
	"path/filepath"
	"testing"

	"emcon/domain/experiment"
	"emcon/internal/errors"
	"emcon/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	t.Setenv("EMCON_STORE_DRIVER", "")
	t.Setenv("EMCON_DATA_DIR", "")
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestBehavAllAndExport(t *testing.T) {
	lab := testkit.NewLab(t)
	gen := testkit.NewSubjectGenerator(testkit.DefaultSubjectGeneratorConfig())
	lab.WriteSubject(gen.Generate("01_EmCon", experiment.RightHand))
	lab.WriteSubject(gen.Generate("02_EmCon", experiment.LeftHand))

	require.NoError(t, runCLI(t, "--data-dir", lab.Dir, "--rt-unit", "s", "--log-level", "error", "behav", "all"))
	assert.FileExists(t, filepath.Join(lab.BehavioralDir(), "EmCon_Memory_long.csv"))

	require.NoError(t, runCLI(t, "--data-dir", lab.Dir, "--log-level", "error", "export"))
	assert.FileExists(t, filepath.Join(lab.BehavioralDir(), "EmCon_behavioral.xlsx"))
}

func TestInvalidFlags(t *testing.T) {
	err := runCLI(t, "--data-dir", t.TempDir(), "--rt-unit", "minutes", "behav", "all")
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))

	err = runCLI(t, "--data-dir", t.TempDir(), "--degenerate", "ignore", "behav", "all")
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestRunsRequiresStore(t *testing.T) {
	err := runCLI(t, "--data-dir", t.TempDir(), "runs")
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestDataDirKeepsEnvDirectories(t *testing.T) {
	lab := testkit.NewLab(t)
	gen := testkit.NewSubjectGenerator(testkit.DefaultSubjectGeneratorConfig())
	lab.WriteSubject(gen.Generate("01_EmCon", experiment.RightHand))

	out := t.TempDir()
	t.Setenv("EMCON_PSYCHOPY_DIR", lab.PsychopyDir())
	require.NoError(t, runCLI(t, "--data-dir", out, "--log-level", "error", "behav", "all"))
	assert.FileExists(t, filepath.Join(out, "stats", "behavioral", "EmCon_Memory_long.csv"))
}

func TestFlagsOverrideInvalidEnv(t *testing.T) {
	lab := testkit.NewLab(t)
	gen := testkit.NewSubjectGenerator(testkit.DefaultSubjectGeneratorConfig())
	lab.WriteSubject(gen.Generate("01_EmCon", experiment.LeftHand))

	t.Setenv("EMCON_WORKERS", "0")
	err := runCLI(t, "--data-dir", lab.Dir, "--log-level", "error", "behav", "all")
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))

	require.NoError(t, runCLI(t, "--data-dir", lab.Dir, "--workers", "2", "--log-level", "error", "behav", "all"))
}
