// Package testkit lays out synthetic lab data directories for tests: psychopy
// session logs, behavioral summaries and single-trial ERP tables.
package testkit

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"emcon/domain/experiment"
	"emcon/domain/sdt"
	"emcon/internal/config"
	"emcon/internal/table"
)

// EncodingTrial is one row of an encoding log
type EncodingTrial struct {
	Word    string
	Valence experiment.Valence
	Rep     int    // block_loop.thisRepN; 0 marks practice
	Key     string // "" when the subject did not respond
	RT      string // seconds, "" when the subject did not respond
}

// RetrievalTrial is one row of a recognition test log
type RetrievalTrial struct {
	Word    string
	Valence experiment.Valence
	MemCond string // "Old" or "New"
	OldNew  string // "4" new, "5" old
	RK      string // "4" know, "5" remember, "None" after a new response
}

// Subject is everything psychopy logged for one participant
type Subject struct {
	ID         experiment.SubjectID
	AnimalHand experiment.Hand
	Encoding   []EncodingTrial
	Immediate  []RetrievalTrial
	Delayed    []RetrievalTrial // nil means no ret2 file
}

// Lab is a temporary data directory with the lab's folder layout
type Lab struct {
	Dir string
	t   testing.TB
}

// NewLab creates an empty data directory under t.TempDir()
func NewLab(t testing.TB) *Lab {
	t.Helper()
	l := &Lab{Dir: t.TempDir(), t: t}
	for _, dir := range []string{l.PsychopyDir(), l.BehavioralDir(), l.ERPDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
	}
	return l
}

// Config returns the default configuration rooted at the lab directory
func (l *Lab) Config() *config.Config {
	return config.Default(l.Dir)
}

func (l *Lab) PsychopyDir() string   { return filepath.Join(l.Dir, "psychopy") }
func (l *Lab) BehavioralDir() string { return filepath.Join(l.Dir, "stats", "behavioral") }
func (l *Lab) ERPDir() string        { return filepath.Join(l.Dir, "stats", "erp", "avg", "data") }

// WriteFile writes content to a path relative to the lab directory
func (l *Lab) WriteFile(rel, content string) string {
	l.t.Helper()
	path := filepath.Join(l.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		l.t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		l.t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// WriteTable writes a table to a path relative to the lab directory
func (l *Lab) WriteTable(rel string, tbl *table.Table) string {
	l.t.Helper()
	path := filepath.Join(l.Dir, rel)
	if err := tbl.WriteCSV(path); err != nil {
		l.t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// WriteSubject writes the enc, ret1 and (when present) ret2 logs for a subject
func (l *Lab) WriteSubject(s Subject) {
	l.t.Helper()
	l.WriteTable(l.sessionPath(s.ID, experiment.SessionEncoding), EncodingTable(s.AnimalHand, s.Encoding))
	l.WriteTable(l.sessionPath(s.ID, experiment.SessionImmediate), RetrievalTable(s.Immediate))
	if s.Delayed != nil {
		l.WriteTable(l.sessionPath(s.ID, experiment.SessionDelayed), RetrievalTable(s.Delayed))
	}
}

func (l *Lab) sessionPath(id experiment.SubjectID, session experiment.Session) string {
	return filepath.Join("psychopy", fmt.Sprintf("%s_%s_2023-10-27_16h36.07.964.csv", id, session))
}

// EncodingTable renders encoding trials with psychopy's dotted column names
func EncodingTable(hand experiment.Hand, trials []EncodingTrial) *table.Table {
	tbl := table.New("stim_word", "valence", "test_cond", "animal_hand",
		"block_loop.thisRepN", "gamepad_resp.keys", "gamepad_resp.rt")
	for _, tr := range trials {
		tbl.Append([]string{tr.Word, string(tr.Valence), "both", string(hand),
			strconv.Itoa(tr.Rep), tr.Key, tr.RT})
	}
	return tbl
}

// RetrievalTable renders recognition trials with psychopy's dotted column names
func RetrievalTable(trials []RetrievalTrial) *table.Table {
	tbl := table.New("stim_word", "valence", "mem_cond", "oldnew_resp.keys", "rk_resp.keys")
	for _, tr := range trials {
		tbl.Append([]string{tr.Word, string(tr.Valence), tr.MemCond, tr.OldNew, tr.RK})
	}
	return tbl
}

// EncodingTrials builds one answered trial per RT, all with the same key
func EncodingTrials(v experiment.Valence, key int, rts ...float64) []EncodingTrial {
	trials := make([]EncodingTrial, len(rts))
	for i, rt := range rts {
		trials[i] = EncodingTrial{
			Word:    fmt.Sprintf("%s_word%02d", v, i),
			Valence: v,
			Rep:     1,
			Key:     strconv.Itoa(key),
			RT:      strconv.FormatFloat(rt, 'f', -1, 64),
		}
	}
	return trials
}

// RetrievalTrials builds trials for one valence that realize tally. The first
// rememberHits hits and rememberFAs false alarms get a remember response; the
// rest get know.
func RetrievalTrials(v experiment.Valence, tally sdt.Tally, rememberHits, rememberFAs int) []RetrievalTrial {
	var trials []RetrievalTrial
	add := func(n int, memCond, oldNew string, remember int) {
		for i := 0; i < n; i++ {
			rk := "None"
			if oldNew == "5" {
				rk = experiment.KeyKnow
				if i < remember {
					rk = experiment.KeyRemember
				}
			}
			trials = append(trials, RetrievalTrial{
				Word:    fmt.Sprintf("%s_%s%02d_%s", v, memCond, len(trials), oldNew),
				Valence: v,
				MemCond: memCond,
				OldNew:  oldNew,
				RK:      rk,
			})
		}
	}
	add(tally.Hits, "Old", "5", rememberHits)
	add(tally.Misses, "Old", "4", 0)
	add(tally.FalseAlarms, "New", "5", rememberFAs)
	add(tally.CorrectRejections, "New", "4", 0)
	return trials
}
