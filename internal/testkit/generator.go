package testkit

import (
	"fmt"
	"math/rand"

	"emcon/domain/experiment"
)

// SubjectGeneratorConfig controls synthetic subject generation
type SubjectGeneratorConfig struct {
	WordsPerValence int
	HitRate         float64
	FARate          float64
	RememberRate    float64
	AccuracyRate    float64
	MeanRT          float64 // seconds
	PracticeTrials  int
	WithDelayed     bool
	Seed            int64
}

// DefaultSubjectGeneratorConfig returns a small, well-behaved subject
func DefaultSubjectGeneratorConfig() SubjectGeneratorConfig {
	return SubjectGeneratorConfig{
		WordsPerValence: 20,
		HitRate:         0.75,
		FARate:          0.2,
		RememberRate:    0.5,
		AccuracyRate:    0.9,
		MeanRT:          0.65,
		PracticeTrials:  4,
		WithDelayed:     true,
		Seed:            42,
	}
}

// SubjectGenerator produces random but reproducible subjects
type SubjectGenerator struct {
	config SubjectGeneratorConfig
	rng    *rand.Rand
}

// NewSubjectGenerator creates a generator seeded from config
func NewSubjectGenerator(config SubjectGeneratorConfig) *SubjectGenerator {
	return &SubjectGenerator{config: config, rng: rand.New(rand.NewSource(config.Seed))}
}

// Generate builds one subject. Half the studied words go to each test.
func (g *SubjectGenerator) Generate(id experiment.SubjectID, hand experiment.Hand) Subject {
	s := Subject{ID: id, AnimalHand: hand}

	for i := 0; i < g.config.PracticeTrials; i++ {
		s.Encoding = append(s.Encoding, EncodingTrial{
			Word: fmt.Sprintf("practice%02d", i), Valence: experiment.Neutral, Rep: 0, Key: "4", RT: "0.5",
		})
	}

	for _, v := range experiment.TrialValences {
		correct, _ := experiment.CorrectKey(v, hand)
		wrong := experiment.KeyLeft + experiment.KeyRight - correct
		for i := 0; i < g.config.WordsPerValence; i++ {
			word := fmt.Sprintf("%s%03d", v, i)
			key := correct
			if g.rng.Float64() > g.config.AccuracyRate {
				key = wrong
			}
			rt := g.config.MeanRT + g.rng.NormFloat64()*0.1
			s.Encoding = append(s.Encoding, EncodingTrial{
				Word: word, Valence: v, Rep: 1,
				Key: fmt.Sprint(key), RT: fmt.Sprintf("%.4f", rt),
			})

			trial := g.retrieval(word, v, "Old", g.config.HitRate)
			if i%2 == 0 || !g.config.WithDelayed {
				s.Immediate = append(s.Immediate, trial)
			} else {
				s.Delayed = append(s.Delayed, trial)
			}
		}
		for i := 0; i < g.config.WordsPerValence; i++ {
			trial := g.retrieval(fmt.Sprintf("%s_lure%03d", v, i), v, "New", g.config.FARate)
			if i%2 == 0 || !g.config.WithDelayed {
				s.Immediate = append(s.Immediate, trial)
			} else {
				s.Delayed = append(s.Delayed, trial)
			}
		}
	}
	return s
}

func (g *SubjectGenerator) retrieval(word string, v experiment.Valence, memCond string, oldRate float64) RetrievalTrial {
	tr := RetrievalTrial{Word: word, Valence: v, MemCond: memCond, OldNew: "4", RK: "None"}
	if g.rng.Float64() < oldRate {
		tr.OldNew = "5"
		tr.RK = experiment.KeyKnow
		if g.rng.Float64() < g.config.RememberRate {
			tr.RK = experiment.KeyRemember
		}
	}
	return tr
}
