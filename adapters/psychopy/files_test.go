package psychopy

import (
	"os"
	"path/filepath"
	"testing"

	"emcon/adapters/excel"
	"emcon/domain/experiment"
	"emcon/internal/errors"
	"emcon/internal/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestListSubjects(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "05_EmCon_enc_2023-10-27_16h36.07.964.csv", "a\n")
	touch(t, dir, "05_EmCon_ret1_2023-10-27_17h10.00.000.csv", "a\n")
	touch(t, dir, "02_EmCon_enc_2023-10-20.csv", "a\n")
	touch(t, dir, "02_EmCon_enc_2023-10-20.log", "")
	touch(t, dir, "pilot_enc.csv", "a\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "07_EmCon_orig.csv"), 0o755))

	ids, err := ListSubjects(dir, 8)
	require.NoError(t, err)
	assert.Equal(t, []experiment.SubjectID{"02_EmCon", "05_EmCon"}, ids)
}

func TestListSubjects_MissingDir(t *testing.T) {
	_, err := ListSubjects(filepath.Join(t.TempDir(), "nope"), 8)
	assert.Equal(t, errors.CodeIOError, errors.GetCode(err))
}

func TestFindSession(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "05_EmCon_enc_a.csv", "x\n")
	touch(t, dir, "06_EmCon_enc_a.csv", "x\n")
	touch(t, dir, "06_EmCon_enc_b.csv", "x\n")

	path, err := FindSession(dir, "05_EmCon", experiment.SessionEncoding)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "05_EmCon_enc_a.csv"), path)

	_, err = FindSession(dir, "06_EmCon", experiment.SessionEncoding)
	assert.Equal(t, errors.CodeDataIntegrity, errors.GetCode(err))
	assert.Contains(t, err.Error(), "06_EmCon has 2 enc files")

	_, err = FindSession(dir, "05_EmCon", experiment.SessionImmediate)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))

	path, err = FindOptionalSession(dir, "05_EmCon", experiment.SessionDelayed)
	assert.NoError(t, err)
	assert.Empty(t, path)
}

func TestReadSession_NormalizesColumns(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "05_EmCon_enc.csv", "gamepad_resp.rt,block_loop.thisRepN,valence\n0.61,1,NEU\n")

	tbl, err := ReadSession(filepath.Join(dir, "05_EmCon_enc.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{"gamepad_resp_rt", "block_loop_thisRepN", "valence"}, tbl.Columns)

	v, ok := tbl.Float(0, "gamepad_resp_rt")
	assert.True(t, ok)
	assert.Equal(t, 0.61, v)
}

func TestWorkbookSessions(t *testing.T) {
	dir := t.TempDir()
	log := table.New("stim_word", "gamepad_resp.rt")
	log.Append([]string{"chair", "0.734"})
	log.Append([]string{"knife", ""})

	// a run saved both ways counts once, as its CSV
	touch(t, dir, "05_EmCon_enc_a.csv", "stim_word,gamepad_resp.rt\nchair,0.734\n")
	require.NoError(t, excel.WriteWorkbook(filepath.Join(dir, "05_EmCon_enc_a.xlsx"), excel.Sheet{Name: "trials", Table: log}))
	require.NoError(t, excel.WriteWorkbook(filepath.Join(dir, "06_EmCon_enc_a.xlsx"), excel.Sheet{Name: "trials", Table: log}))

	ids, err := ListSubjects(dir, 8)
	require.NoError(t, err)
	assert.Equal(t, []experiment.SubjectID{"05_EmCon", "06_EmCon"}, ids)

	path, err := FindSession(dir, "05_EmCon", experiment.SessionEncoding)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "05_EmCon_enc_a.csv"), path)

	path, err = FindSession(dir, "06_EmCon", experiment.SessionEncoding)
	require.NoError(t, err)
	enc, err := ReadSession(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"stim_word", "gamepad_resp_rt"}, enc.Columns)
	assert.Equal(t, 2, enc.Len())
	assert.Equal(t, "0.734", enc.Get(0, "gamepad_resp_rt"))
	assert.Equal(t, "", enc.Get(1, "gamepad_resp_rt"))
}

func TestReadSession_Missing(t *testing.T) {
	_, err := ReadSession(filepath.Join(t.TempDir(), "05_EmCon_enc.csv"))
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}
