package profiling

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimMean(t *testing.T) {
	data := []float64{10, 1, 2, 3, 4, 5, 6, 7, 8, 100}

	// int(0.2*10) = 2 cut from each end leaves 3..8
	got, err := TrimMean(data, 0.2)
	require.NoError(t, err)
	assert.Equal(t, 5.5, got)

	// int(0.2*4) = 0 keeps everything
	got, err = TrimMean([]float64{1, 2, 3, 10}, 0.2)
	require.NoError(t, err)
	assert.Equal(t, 4.0, got)

	got, err = TrimMean(nil, 0.2)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got))

	_, err = TrimMean(data, 0.5)
	assert.Error(t, err)
}

func TestTrimMean_DoesNotReorderInput(t *testing.T) {
	data := []float64{3, 1, 2}
	_, err := TrimMean(data, 0.1)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 2}, data)
}

func TestPooledSD(t *testing.T) {
	a := []float64{1, 2, 3, 4}     // var 5/3
	b := []float64{2, 4, 6, 8, 10} // var 10
	want := math.Sqrt((3*5.0/3 + 4*10.0) / 7)
	assert.InDelta(t, want, PooledSD(a, b), 1e-12)

	assert.True(t, math.IsNaN(PooledSD([]float64{1}, []float64{2})))
}

func TestSkewness(t *testing.T) {
	assert.InDelta(t, 0, Skewness([]float64{1, 2, 3, 4, 5}), 1e-12)

	// pandas Series([1, 2, 3, 10]).skew()
	assert.InDelta(t, 1.7636, Skewness([]float64{1, 2, 3, 10}), 1e-3)
	assert.True(t, math.IsNaN(Skewness([]float64{1, 2})))
}

func TestExcessKurtosis(t *testing.T) {
	// scipy.stats.kurtosis([1, 2, 3, 4, 5]) = -1.3
	assert.InDelta(t, -1.3, ExcessKurtosis([]float64{1, 2, 3, 4, 5}), 1e-12)
	assert.True(t, math.IsNaN(ExcessKurtosis([]float64{2, 2, 2})))
}

func TestDescribe(t *testing.T) {
	d := Describe([]float64{4, 1, 3, 2})
	assert.Equal(t, 4, d.N)
	assert.Equal(t, 2.5, d.Mean)
	assert.Equal(t, 2.5, d.Median)
	assert.Equal(t, 1.0, d.Min)
	assert.Equal(t, 4.0, d.Max)
	assert.InDelta(t, math.Sqrt(5.0/3), d.SD, 1e-12)

	empty := Describe(nil)
	assert.Equal(t, 0, empty.N)
	assert.True(t, math.IsNaN(empty.Mean))
	assert.True(t, math.IsNaN(empty.Min))
}
