package sdt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestCompute_KnownValues(t *testing.T) {
	res, err := Compute(Tally{Hits: 40, Misses: 10, FalseAlarms: 5, CorrectRejections: 45})
	require.NoError(t, err)

	assert.Equal(t, 0.8, res.HitRate)
	assert.Equal(t, 0.1, res.FARate)
	assert.InDelta(t, 2.12317, res.DPrime, 1e-4)
	assert.InDelta(t, 0.21997, res.Criterion, 1e-4)
	assert.InDelta(t, distuv.UnitNormal.CDF(res.DPrime/math.Sqrt2), res.Az, 1e-12)
	assert.InDelta(t, math.Exp((1.28155*1.28155-0.84162*0.84162)/2), res.Beta, 1e-3)
	// A' = 0.5 + (0.49 + 0.7) / (3.2 - 0.32)
	assert.InDelta(t, 0.5+1.19/2.88, res.APrime, 1e-12)
	// B'' = (0.16 - 0.09) / (0.16 + 0.09)
	assert.InDelta(t, 0.28, res.BDoublePrime, 1e-12)
	assert.False(t, res.Corrected())
}

func TestCompute_HitCeilingCorrection(t *testing.T) {
	res, err := Compute(Tally{Hits: 10, Misses: 0, FalseAlarms: 2, CorrectRejections: 8})
	require.NoError(t, err)

	assert.InDelta(t, 0.95, res.HitRate, 1e-15)
	assert.Equal(t, 0.2, res.FARate)
	require.Len(t, res.Corrections, 1)

	c := res.Corrections[0]
	assert.Equal(t, HitRate, c.Rate)
	assert.Equal(t, Ceiling, c.Kind)
	assert.Equal(t, 1.0, c.Raw)
	assert.InDelta(t, 0.95, c.Adjusted, 1e-15)
	assert.Contains(t, c.Message(), "Hit rate = 1")
}

func TestCompute_FalseAlarmFloorCorrection(t *testing.T) {
	res, err := Compute(Tally{Hits: 6, Misses: 4, FalseAlarms: 0, CorrectRejections: 25})
	require.NoError(t, err)

	assert.Equal(t, 0.02, res.FARate)
	require.Len(t, res.Corrections, 1)
	assert.Equal(t, FalseAlarmRate, res.Corrections[0].Rate)
	assert.Equal(t, Floor, res.Corrections[0].Kind)
	assert.Contains(t, res.Corrections[0].Message(), "FA rate = 0")
}

func TestCompute_PerfectDiscrimination(t *testing.T) {
	tests := []struct {
		name          string
		nOld, nNew    int
		zeroCriterion bool
	}{
		{"balanced", 20, 20, true},
		{"more old items", 40, 20, false},
		{"more new items", 10, 30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compute(Tally{Hits: tt.nOld, FalseAlarms: 0, CorrectRejections: tt.nNew})
			require.NoError(t, err)

			assert.Len(t, res.Corrections, 2)
			assert.False(t, math.IsInf(res.DPrime, 0) || math.IsNaN(res.DPrime))
			assert.Greater(t, res.DPrime, 0.0)
			if tt.zeroCriterion {
				assert.InDelta(t, 0, res.Criterion, 1e-12)
			} else {
				assert.Greater(t, math.Abs(res.Criterion), 1e-3)
			}
		})
	}
}

func TestCompute_SwappedRolesNegateBias(t *testing.T) {
	orig := Tally{Hits: 30, Misses: 12, FalseAlarms: 9, CorrectRejections: 31}
	swapped := Tally{
		Hits:              orig.CorrectRejections,
		Misses:            orig.FalseAlarms,
		FalseAlarms:       orig.Misses,
		CorrectRejections: orig.Hits,
	}

	a, err := Compute(orig)
	require.NoError(t, err)
	b, err := Compute(swapped)
	require.NoError(t, err)

	assert.InDelta(t, a.DPrime, b.DPrime, 1e-9)
	assert.InDelta(t, -a.Criterion, b.Criterion, 1e-9)
	assert.InDelta(t, -a.BDoublePrime, b.BDoublePrime, 1e-9)
}

func TestCompute_ChanceLevel(t *testing.T) {
	res, err := Compute(Tally{Hits: 15, Misses: 15, FalseAlarms: 10, CorrectRejections: 10})
	require.NoError(t, err)

	assert.Equal(t, res.HitRate, res.FARate)
	assert.Equal(t, 0.5, res.APrime)
	assert.Equal(t, 0.0, res.BDoublePrime)
	assert.Equal(t, 0.0, res.DPrime)
	assert.Equal(t, 0.5, res.Az)
}

func TestCompute_Idempotent(t *testing.T) {
	tally := Tally{Hits: 33, Misses: 7, FalseAlarms: 0, CorrectRejections: 40}

	first, err := Compute(tally)
	require.NoError(t, err)
	second, err := Compute(tally)
	require.NoError(t, err)

	assert.Equal(t, math.Float64bits(first.DPrime), math.Float64bits(second.DPrime))
	assert.Equal(t, math.Float64bits(first.Beta), math.Float64bits(second.Beta))
	assert.Equal(t, math.Float64bits(first.APrime), math.Float64bits(second.APrime))
	assert.Equal(t, first, second)
}

func TestCompute_DegenerateTally(t *testing.T) {
	res, err := Compute(Tally{Hits: 12, Misses: 8})

	require.ErrorIs(t, err, ErrDegenerateTally)
	assert.Equal(t, 0.6, res.HitRate)
	assert.True(t, math.IsNaN(res.FARate))
	assert.True(t, math.IsNaN(res.DPrime))
	assert.True(t, math.IsNaN(res.Criterion))
	assert.True(t, math.IsNaN(res.APrime))
	assert.True(t, math.IsNaN(res.BDoublePrime))
}

func TestCompute_DegenerateTallyDropsCorrections(t *testing.T) {
	// the hit rate alone would be corrected from 1
	res, err := Compute(Tally{Hits: 10})

	require.ErrorIs(t, err, ErrDegenerateTally)
	assert.Empty(t, res.Corrections)
	assert.False(t, res.Corrected())
	assert.True(t, math.IsNaN(res.DPrime))

	res, err = Compute(Tally{CorrectRejections: 5})
	require.ErrorIs(t, err, ErrDegenerateTally)
	assert.Empty(t, res.Corrections)
}

func TestCompute_NegativeCount(t *testing.T) {
	res, err := Compute(Tally{Hits: -1, Misses: 3, FalseAlarms: 2, CorrectRejections: 2})

	require.ErrorIs(t, err, ErrInvalidTally)
	assert.True(t, math.IsNaN(res.DPrime))
}

func TestTally_Validate(t *testing.T) {
	assert.NoError(t, Tally{Hits: 1, CorrectRejections: 1}.Validate())
	assert.ErrorIs(t, Tally{FalseAlarms: 1}.Validate(), ErrDegenerateTally)
	assert.ErrorIs(t, Tally{Hits: 1, Misses: -2, FalseAlarms: 1}.Validate(), ErrInvalidTally)
}
