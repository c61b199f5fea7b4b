package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/cwbudde/diffevo/internal/demc"
	"github.com/cwbudde/diffevo/internal/parspace"
)

// WriteText writes the ledger as tab separated values: a header row with
// id, score and the parameter names, then one row per sample in id order.
func WriteText(w io.Writer, ledger *demc.Ledger, space *parspace.Space) error {
	tw := csv.NewWriter(w)
	tw.Comma = '\t'

	header := append([]string{"id", "score"}, space.Names()...)
	if err := tw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, len(header))
	for _, s := range ledger.Samples() {
		if len(s.Params) != space.NumberOfDimensions() {
			return &parspace.DimensionMismatchError{What: fmt.Sprintf("sample %d", s.ID), Expected: space.NumberOfDimensions(), Actual: len(s.Params)}
		}
		row[0] = strconv.Itoa(s.ID)
		row[1] = strconv.FormatFloat(s.Score, 'g', -1, 64)
		for d, v := range s.Params {
			row[2+d] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := tw.Write(row); err != nil {
			return fmt.Errorf("failed to write sample %d: %w", s.ID, err)
		}
	}

	tw.Flush()
	return tw.Error()
}

// WriteSummary prints a human readable summary.
func WriteSummary(w io.Writer, sum *Summary) error {
	_, err := fmt.Fprintf(w, "Generations: %d  Population: %d  Burn-in: %d  Samples: %d\n",
		sum.Generations, sum.PopulationSize, sum.BurnIn, sum.Samples)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Acceptance rate: %.3f\n", sum.AcceptanceRate)
	fmt.Fprintf(w, "Best sample: id=%d score=%g params=%v\n", sum.Best.ID, sum.Best.Score, sum.Best.Params)
	fmt.Fprintf(w, "%-12s %12s %12s %12s %12s %12s\n", "PARAMETER", "MEAN", "STDDEV", "MEDIAN", "MIN", "MAX")
	for _, p := range sum.Parameters {
		fmt.Fprintf(w, "%-12s %12.5g %12.5g %12.5g %12.5g %12.5g\n", p.Name, p.Mean, p.StdDev, p.Median, p.Min, p.Max)
	}
	return nil
}
