// Package psychopy locates and reads the per-session logs PsychoPy writes
// for each subject, as CSV or as an Excel workbook.
package psychopy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"emcon/adapters/excel"
	"emcon/domain/experiment"
	"emcon/internal/errors"
	"emcon/internal/table"
)

// Session log extensions, preferred first
var logExts = []string{".csv", ".xlsx"}

func logExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range logExts {
		if ext == e {
			return ext
		}
	}
	return ""
}

// ListSubjects returns the sorted, unique subject IDs found in dir. A subject
// file is a .csv or .xlsx log whose name starts with two digits; the ID is its
// first idLen characters.
func ListSubjects(dir string, idLen int) ([]experiment.SubjectID, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.IOError(dir, err)
	}

	seen := make(map[experiment.SubjectID]bool)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || logExt(name) == "" || len(name) < idLen || !leadingDigits(name, 2) {
			continue
		}
		seen[experiment.SubjectID(name[:idLen])] = true
	}

	ids := make([]experiment.SubjectID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// FindSession returns the one log named <sub>_<session>*. A workbook saved
// next to the CSV of the same run is not counted separately.
func FindSession(dir string, sub experiment.SubjectID, session experiment.Session) (string, error) {
	matches, err := sessionFiles(dir, sub, session)
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", errors.NotFound(fmt.Sprintf("%s %s file", sub, session))
	}
	return "", errors.Newf(errors.CodeDataIntegrity, "%s has %d %s files", sub, len(matches), session)
}

// FindOptionalSession is FindSession for sessions that may not have happened.
// It returns "" without error when no file exists.
func FindOptionalSession(dir string, sub experiment.SubjectID, session experiment.Session) (string, error) {
	path, err := FindSession(dir, sub, session)
	if errors.HasCode(err, errors.CodeNotFound) {
		return "", nil
	}
	return path, err
}

func sessionFiles(dir string, sub experiment.SubjectID, session experiment.Session) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.IOError(dir, err)
	}
	prefix := string(sub) + "_" + string(session)
	byRun := make(map[string]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || logExt(name) == "" {
			continue
		}
		run := strings.TrimSuffix(name, filepath.Ext(name))
		if prev, ok := byRun[run]; ok && logExt(prev) == ".csv" {
			continue
		}
		byRun[run] = name
	}
	matches := make([]string, 0, len(byRun))
	for _, name := range byRun {
		matches = append(matches, filepath.Join(dir, name))
	}
	sort.Strings(matches)
	return matches, nil
}

// ReadSession loads a PsychoPy log (CSV or the first sheet of a workbook) and
// replaces dots in column names with underscores ("gamepad_resp.rt" becomes
// "gamepad_resp_rt").
func ReadSession(path string) (*table.Table, error) {
	t, err := excel.NewDataReader(path, nil).ReadTable()
	if err != nil {
		return nil, err
	}
	t.RenameColumns(NormalizeColumn)
	return t, nil
}

// NormalizeColumn maps a PsychoPy column name to its underscore form
func NormalizeColumn(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

func leadingDigits(s string, n int) bool {
	if len(s) < n {
		return false
	}
	for _, r := range s[:n] {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
