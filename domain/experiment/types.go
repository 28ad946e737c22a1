package experiment

import (
	"fmt"
	"strings"
)

// SubjectID identifies a participant, e.g. "05_EmCon"
type SubjectID string

// Valence is the emotional condition of a word
type Valence string

const (
	Neutral  Valence = "NEU"
	Negative Valence = "NEG"
	Animal   Valence = "animal"
	// AllValences pools NEU, NEG and animal trials
	AllValences Valence = "ALL"
)

// TrialValences are the valences that appear on individual trials
var TrialValences = []Valence{Neutral, Negative, Animal}

// MemoryValences are the conditions reported in the memory summary
var MemoryValences = []Valence{AllValences, Neutral, Negative, Animal}

// Includes reports whether a trial labelled with trial matches this condition
func (v Valence) Includes(trial string) bool {
	if v == AllValences {
		for _, tv := range TrialValences {
			if string(tv) == trial {
				return true
			}
		}
		return false
	}
	return string(v) == trial
}

// Test is a retention interval of the recognition test
type Test string

const (
	Immediate Test = "I"
	Delayed   Test = "D"
)

// Tests lists retention intervals in reporting order
var Tests = []Test{Immediate, Delayed}

// Session returns the psychopy session tag for the test
func (t Test) Session() Session {
	if t == Delayed {
		return SessionDelayed
	}
	return SessionImmediate
}

// Name returns the long delay label used in ERP and figure tables
func (t Test) Name() string {
	if t == Delayed {
		return "delayed"
	}
	return "immediate"
}

// ParseDelay accepts either the short ("I"/"D") or long ("immediate"/"delayed") label
func ParseDelay(s string) (Test, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "i", "immediate":
		return Immediate, nil
	case "d", "delayed":
		return Delayed, nil
	}
	return "", fmt.Errorf("unknown delay %q", s)
}

// Session is the task tag embedded in psychopy file names
type Session string

const (
	SessionEncoding  Session = "enc"
	SessionImmediate Session = "ret1"
	SessionDelayed   Session = "ret2"
)

// Gamepad button codes
const (
	KeyLeft  = 4
	KeyRight = 5

	// Old/new judgement
	KeyNew = KeyLeft
	KeyOld = KeyRight

	// Remember/know judgement, stored as text by psychopy
	KeyKnow     = "4"
	KeyRemember = "5"
)

// Hand is the hand assigned to animal responses during encoding
type Hand string

const (
	RightHand Hand = "R"
	LeftHand  Hand = "L"
)

// CorrectKey returns the button that is correct for a valence given the animal hand.
// Animal words are answered with the animal hand; all other words with the other hand.
func CorrectKey(v Valence, hand Hand) (int, error) {
	var animalKey, otherKey int
	switch hand {
	case RightHand:
		animalKey, otherKey = KeyRight, KeyLeft
	case LeftHand:
		animalKey, otherKey = KeyLeft, KeyRight
	default:
		return 0, fmt.Errorf("unknown animal hand %q", hand)
	}
	if v == Animal {
		return animalKey, nil
	}
	return otherKey, nil
}

// RTUnit is the unit reaction times are reported in
type RTUnit string

const (
	Milliseconds RTUnit = "ms"
	Seconds      RTUnit = "s"
)

// ParseRTUnit validates a unit string
func ParseRTUnit(s string) (RTUnit, error) {
	switch RTUnit(strings.ToLower(strings.TrimSpace(s))) {
	case Milliseconds, "msec", "milliseconds":
		return Milliseconds, nil
	case Seconds, "sec", "seconds":
		return Seconds, nil
	}
	return "", fmt.Errorf("unknown reaction time unit %q (expected ms|s)", s)
}

// Scale converts a value in seconds to the unit
func (u RTUnit) Scale(seconds float64) float64 {
	if u == Milliseconds {
		return seconds * 1000
	}
	return seconds
}

// MemoryColumn builds a memory summary column name such as "NEG_I_dprime"
func MemoryColumn(v Valence, t Test, measure string) string {
	return fmt.Sprintf("%s_%s_%s", v, t, measure)
}

// EncodingColumn builds an encoding summary column name such as "NEU_meanRT"
func EncodingColumn(v Valence, measure string) string {
	return fmt.Sprintf("%s_%s", v, measure)
}
