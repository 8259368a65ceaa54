package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a batch of episode returns.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Best   float64 `json:"best"`
	Worst  float64 `json:"worst"`
}

// Summarize computes the sample statistics of returns. An empty batch yields
// the zero Summary and a single return has zero spread.
func Summarize(returns []float64) Summary {
	if len(returns) == 0 {
		return Summary{}
	}
	summary := Summary{
		Count: len(returns),
		Best:  floats.Max(returns),
		Worst: floats.Min(returns),
	}
	if len(returns) == 1 {
		summary.Mean = returns[0]
		return summary
	}
	summary.Mean, summary.StdDev = stat.MeanStdDev(returns, nil)
	return summary
}
