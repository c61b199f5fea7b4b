package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/cwbudde/diffevo/internal/demc"
	"github.com/cwbudde/diffevo/internal/parspace"
)

const plotSize = 4 * vg.Inch

// MarginalHistograms writes one histogram PNG per parameter into dir and
// returns the written paths. bins <= 0 uses the interval count of each
// dimension.
func MarginalHistograms(samples []demc.Sample, space *parspace.Space, dir string, bins int) ([]string, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples to plot")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}

	names := space.Names()
	paths := make([]string, 0, len(names))
	for d, name := range names {
		values := make(plotter.Values, len(samples))
		for i, s := range samples {
			values[i] = s.Params[d]
		}

		n := bins
		if n <= 0 {
			n = space.Intervals(d)
		}
		hist, err := plotter.NewHist(values, n)
		if err != nil {
			return nil, fmt.Errorf("failed to build histogram for %s: %w", name, err)
		}
		hist.Normalize(1)

		p := plot.New()
		p.Title.Text = "Marginal distribution of " + name
		p.X.Label.Text = name
		p.Y.Label.Text = "Density"
		p.X.Min = space.Lower()[d]
		p.X.Max = space.Upper()[d]
		p.Add(hist)

		path := filepath.Join(dir, fmt.Sprintf("hist_%s.png", name))
		if err := p.Save(plotSize, plotSize, path); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ScatterMatrix writes one scatter PNG for every pair of parameters. A
// one-dimensional space produces no plots.
func ScatterMatrix(samples []demc.Sample, space *parspace.Space, dir string) ([]string, error) {
	nDims := space.NumberOfDimensions()
	if nDims < 2 {
		return nil, nil
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples to plot")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}

	names := space.Names()
	lower, upper := space.Lower(), space.Upper()
	var paths []string
	for a := 0; a < nDims; a++ {
		for b := a + 1; b < nDims; b++ {
			pts := make(plotter.XYs, len(samples))
			for i, s := range samples {
				pts[i].X = s.Params[a]
				pts[i].Y = s.Params[b]
			}
			sc, err := plotter.NewScatter(pts)
			if err != nil {
				return nil, fmt.Errorf("failed to build scatter %s/%s: %w", names[a], names[b], err)
			}
			sc.GlyphStyle.Radius = vg.Points(1)

			p := plot.New()
			p.Title.Text = names[a] + " vs " + names[b]
			p.X.Label.Text = names[a]
			p.Y.Label.Text = names[b]
			p.X.Min, p.X.Max = lower[a], upper[a]
			p.Y.Min, p.Y.Max = lower[b], upper[b]
			p.Add(sc)

			path := filepath.Join(dir, fmt.Sprintf("scatter_%s_%s.png", names[a], names[b]))
			if err := p.Save(plotSize, plotSize, path); err != nil {
				return nil, fmt.Errorf("failed to save %s: %w", path, err)
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// binGrid counts samples on a regular grid over two parameters. It
// implements plotter.GridXYZ with bin centers as coordinates.
type binGrid struct {
	x0, dx float64
	y0, dy float64
	counts [][]float64 // [column][row]
}

func newBinGrid(samples []demc.Sample, space *parspace.Space, a, b int) *binGrid {
	lower, upper := space.Lower(), space.Upper()
	nx, dx := gridAxis(lower[a], upper[a], space.Intervals(a))
	ny, dy := gridAxis(lower[b], upper[b], space.Intervals(b))

	g := &binGrid{x0: lower[a], dx: dx, y0: lower[b], dy: dy, counts: make([][]float64, nx)}
	for c := range g.counts {
		g.counts[c] = make([]float64, ny)
	}
	for _, s := range samples {
		c, okc := binIndex(s.Params[a], lower[a], dx, nx)
		r, okr := binIndex(s.Params[b], lower[b], dy, ny)
		if okc && okr {
			g.counts[c][r]++
		}
	}
	return g
}

// gridAxis returns the bin count and width of one axis. A degenerate
// dimension gets a single unit-wide bin.
func gridAxis(lo, hi float64, n int) (int, float64) {
	if n < 1 || hi <= lo {
		return 1, 1
	}
	return n, (hi - lo) / float64(n)
}

func binIndex(v, lo, width float64, n int) (int, bool) {
	if math.IsNaN(v) {
		return 0, false
	}
	i := int(math.Floor((v - lo) / width))
	if i == n {
		i = n - 1 // upper bound belongs to the last bin
	}
	if i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func (g *binGrid) Dims() (c, r int)   { return len(g.counts), len(g.counts[0]) }
func (g *binGrid) Z(c, r int) float64 { return g.counts[c][r] }
func (g *binGrid) X(c int) float64    { return g.x0 + (float64(c)+0.5)*g.dx }
func (g *binGrid) Y(r int) float64    { return g.y0 + (float64(r)+0.5)*g.dy }

// HeatmapMatrix writes one sample-density heatmap PNG for every pair of
// parameters, binned by the interval count of each dimension. A
// one-dimensional space produces no plots.
func HeatmapMatrix(samples []demc.Sample, space *parspace.Space, dir string) ([]string, error) {
	nDims := space.NumberOfDimensions()
	if nDims < 2 {
		return nil, nil
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples to plot")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}

	names := space.Names()
	pal := palette.Heat(16, 1)
	var paths []string
	for a := 0; a < nDims; a++ {
		for b := a + 1; b < nDims; b++ {
			hm := plotter.NewHeatMap(newBinGrid(samples, space, a, b), pal)
			if hm.Max <= hm.Min {
				hm.Max = hm.Min + 1
			}

			p := plot.New()
			p.Title.Text = "Sample density of " + names[a] + " and " + names[b]
			p.X.Label.Text = names[a]
			p.Y.Label.Text = names[b]
			p.Add(hm)

			path := filepath.Join(dir, fmt.Sprintf("heatmap_%s_%s.png", names[a], names[b]))
			if err := p.Save(plotSize, plotSize, path); err != nil {
				return nil, fmt.Errorf("failed to save %s: %w", path, err)
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// ScoreTrace plots the best and mean score of every generation.
func ScoreTrace(ledger *demc.Ledger, populationSize int, path string) error {
	if populationSize <= 0 || ledger.Len() < populationSize {
		return fmt.Errorf("ledger holds no complete generation")
	}
	generations := ledger.Len() / populationSize

	bestPts := make(plotter.XYs, 0, generations)
	meanPts := make(plotter.XYs, 0, generations)
	for g := 1; g <= generations; g++ {
		samples, err := ledger.Generation(g, populationSize)
		if err != nil {
			return err
		}
		var sum float64
		var finite int
		for _, s := range samples {
			if isFinite(s.Score) {
				sum += s.Score
				finite++
			}
		}
		idx := demc.Population(samples).Best()
		if idx < 0 || finite == 0 || !isFinite(samples[idx].Score) {
			continue
		}
		bestPts = append(bestPts, plotter.XY{X: float64(g), Y: samples[idx].Score})
		meanPts = append(meanPts, plotter.XY{X: float64(g), Y: sum / float64(finite)})
	}
	if len(bestPts) == 0 {
		return fmt.Errorf("no finite scores to plot")
	}

	p := plot.New()
	p.Title.Text = "Score by generation"
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Score"

	bestLine, err := plotter.NewLine(bestPts)
	if err != nil {
		return err
	}
	meanLine, err := plotter.NewLine(meanPts)
	if err != nil {
		return err
	}
	meanLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(bestLine, meanLine)
	p.Legend.Add("best", bestLine)
	p.Legend.Add("mean", meanLine)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create plot directory: %w", err)
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
