// Package report turns a completed ledger into summaries, text exports and
// plots.
package report

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/diffevo/internal/demc"
	"github.com/cwbudde/diffevo/internal/parspace"
)

// ParamSummary holds the marginal statistics of one parameter.
type ParamSummary struct {
	Name   string  `json:"name"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summary describes the post burn-in part of a run.
type Summary struct {
	Generations    int            `json:"generations"`
	PopulationSize int            `json:"populationSize"`
	BurnIn         int            `json:"burnIn"`
	Samples        int            `json:"samples"`
	Best           demc.Sample    `json:"best"`
	AcceptanceRate float64        `json:"acceptanceRate"`
	Parameters     []ParamSummary `json:"parameters"`
}

// Summarize computes statistics over the generations after burnIn. A slot
// counts as accepted in generation g when its vector differs from the one
// the same slot held in generation g-1.
func Summarize(ledger *demc.Ledger, space *parspace.Space, populationSize, burnIn int) (*Summary, error) {
	if populationSize <= 0 {
		return nil, fmt.Errorf("population size must be positive, got %d", populationSize)
	}
	n := ledger.Len()
	if n == 0 || n%populationSize != 0 {
		return nil, fmt.Errorf("ledger of %d samples does not hold whole generations of %d", n, populationSize)
	}
	generations := n / populationSize
	if burnIn < 0 || burnIn >= generations {
		return nil, fmt.Errorf("burn-in %d must be in [0, %d)", burnIn, generations)
	}

	kept, err := AfterBurnIn(ledger, populationSize, burnIn)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		Generations:    generations,
		PopulationSize: populationSize,
		BurnIn:         burnIn,
		Samples:        len(kept),
	}
	if idx := demc.Population(kept).Best(); idx >= 0 {
		sum.Best = kept[idx]
	}

	nDims := space.NumberOfDimensions()
	names := space.Names()
	column := make([]float64, len(kept))
	for d := 0; d < nDims; d++ {
		for i, s := range kept {
			column[i] = s.Params[d]
		}
		mean, std := stat.MeanStdDev(column, nil)
		if len(column) < 2 {
			std = 0
		}
		sorted := append([]float64(nil), column...)
		sort.Float64s(sorted)
		sum.Parameters = append(sum.Parameters, ParamSummary{
			Name:   names[d],
			Mean:   mean,
			StdDev: std,
			Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
			Min:    floats.Min(column),
			Max:    floats.Max(column),
		})
	}

	sum.AcceptanceRate = acceptanceRate(ledger, populationSize, max(burnIn, 1)+1, generations)
	return sum, nil
}

// AfterBurnIn returns the samples of every generation after the first burnIn.
func AfterBurnIn(ledger *demc.Ledger, populationSize, burnIn int) ([]demc.Sample, error) {
	all := ledger.Samples()
	start := burnIn * populationSize
	if start > len(all) {
		return nil, fmt.Errorf("burn-in of %d generations exceeds the %d recorded samples", burnIn, len(all))
	}
	return all[start:], nil
}

func acceptanceRate(ledger *demc.Ledger, populationSize, from, to int) float64 {
	if from > to {
		return 0
	}
	prev, err := ledger.Generation(from-1, populationSize)
	if err != nil {
		return 0
	}

	var moved, total int
	for g := from; g <= to; g++ {
		cur, err := ledger.Generation(g, populationSize)
		if err != nil {
			return 0
		}
		for i := range cur {
			if !floats.Equal(prev[i].Params, cur[i].Params) {
				moved++
			}
			total++
		}
		prev = cur
	}
	return float64(moved) / float64(total)
}
