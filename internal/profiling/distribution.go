// Package profiling summarizes the distribution of a sample: location,
// spread and shape.
package profiling

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// Descriptives holds the summary of one sample
type Descriptives struct {
	N        int     `json:"n"`
	Mean     float64 `json:"mean"`
	SD       float64 `json:"sd"`
	Median   float64 `json:"median"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
}

// Describe computes descriptives; statistics that need more data than given are NaN
func Describe(data []float64) Descriptives {
	d := Descriptives{
		N:        len(data),
		Mean:     Mean(data),
		SD:       SampleSD(data),
		Median:   Median(data),
		Min:      math.NaN(),
		Max:      math.NaN(),
		Skewness: Skewness(data),
		Kurtosis: ExcessKurtosis(data),
	}
	if min, err := stats.Min(data); err == nil {
		d.Min = min
	}
	if max, err := stats.Max(data); err == nil {
		d.Max = max
	}
	return d
}

// Mean returns the arithmetic mean, NaN for an empty sample
func Mean(data []float64) float64 {
	mean, err := stats.Mean(data)
	if err != nil {
		return math.NaN()
	}
	return mean
}

// Median returns the median, NaN for an empty sample
func Median(data []float64) float64 {
	median, err := stats.Median(data)
	if err != nil {
		return math.NaN()
	}
	return median
}

// SampleSD returns the n-1 standard deviation, NaN below two values
func SampleSD(data []float64) float64 {
	if len(data) < 2 {
		return math.NaN()
	}
	return stat.StdDev(data, nil)
}

// TrimMean drops int(proportion*n) values from each end of the sorted sample and
// averages the rest.
func TrimMean(data []float64, proportion float64) (float64, error) {
	if proportion < 0 || proportion >= 0.5 {
		return math.NaN(), fmt.Errorf("trim proportion %.3f out of range [0, 0.5)", proportion)
	}
	if len(data) == 0 {
		return math.NaN(), nil
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)

	cut := int(proportion * float64(len(sorted)))
	return Mean(sorted[cut : len(sorted)-cut]), nil
}

// PooledSD combines the sample standard deviations of two groups
func PooledSD(a, b []float64) float64 {
	na, nb := float64(len(a)), float64(len(b))
	if na+nb <= 2 {
		return math.NaN()
	}
	sa, sb := 0.0, 0.0
	if len(a) > 1 {
		sa = stat.Variance(a, nil)
	}
	if len(b) > 1 {
		sb = stat.Variance(b, nil)
	}
	return math.Sqrt(((na-1)*sa + (nb-1)*sb) / (na + nb - 2))
}

// Skewness is the adjusted Fisher-Pearson coefficient G1, NaN below three values
func Skewness(data []float64) float64 {
	if len(data) < 3 {
		return math.NaN()
	}
	n := float64(len(data))
	m2 := stat.Moment(2, data, nil)
	if m2 == 0 {
		return 0
	}
	g1 := stat.Moment(3, data, nil) / math.Pow(m2, 1.5)

	// Bias correction for sample skewness
	return g1 * math.Sqrt(n*(n-1)) / (n - 2)
}

// ExcessKurtosis is the Fisher (normal = 0) moment kurtosis without bias correction
func ExcessKurtosis(data []float64) float64 {
	if len(data) < 2 {
		return math.NaN()
	}
	m2 := stat.Moment(2, data, nil)
	if m2 == 0 {
		return math.NaN()
	}
	return stat.Moment(4, data, nil)/(m2*m2) - 3
}
