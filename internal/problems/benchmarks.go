package problems

import (
	"math"

	"github.com/cwbudde/diffevo/internal/demc"
)

// directFunc is a likelihood that only scores parameter vectors. The
// observation form is never called in direct mode and reports NaN.
type directFunc func(params []float64) float64

func (f directFunc) Evaluate(obs, sim [][]float64) float64 { return math.NaN() }

func (f directFunc) EvaluateParams(params []float64) float64 { return f(params) }

func directFactory(f func([]float64) float64) demc.LikelihoodFactory {
	return demc.LikelihoodFactoryFunc(func() demc.LikelihoodFunction {
		return directFunc(f)
	})
}

func normalLogPDF(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return -0.5*z*z - math.Log(sigma) - 0.5*math.Log(2*math.Pi)
}

// Mixture of two unit-variance normals, weighted 0.8 at -8 and 0.2 at 10.
func doubleNormal(p []float64) float64 {
	a := math.Log(0.8) + normalLogPDF(p[0], -8, 1)
	b := math.Log(0.2) + normalLogPDF(p[0], 10, 1)
	// log(exp(a) + exp(b)) without underflow
	hi, lo := a, b
	if b > a {
		hi, lo = b, a
	}
	return hi + math.Log1p(math.Exp(lo-hi))
}

func singleNormal(p []float64) float64 {
	return normalLogPDF(p[0], -10, 5)
}

// Rastrigin returns the Rastrigin function value; minimum 0 at the origin.
func Rastrigin(x []float64) float64 {
	sum := 10 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum
}

// Rosenbrock returns the Rosenbrock function value; minimum 0 at (1, ..., 1).
func Rosenbrock(x []float64) float64 {
	var sum float64
	for i := 0; i < len(x)-1; i++ {
		a := 1 - x[i]
		b := x[i+1] - x[i]*x[i]
		sum += a*a + 100*b*b
	}
	return sum
}

func rastriginScore(p []float64) float64 {
	return -Rastrigin(p)
}

// The log flattens the Rosenbrock valley walls so the sampler is not
// trapped by the steep outer region.
func rosenbrockScore(p []float64) float64 {
	return -math.Log(Rosenbrock(p))
}

// Cubic evaluates a + b*x + c*x^2 + d*x^3.
func Cubic(p []float64, x float64) float64 {
	return p[0] + x*(p[1]+x*(p[2]+x*p[3]))
}

var (
	cubicTrue = []float64{2, -4, 6, -0.5}
	cubicX    = linspace(-5, 5, 21)
	cubicY    = func() []float64 {
		y := make([]float64, len(cubicX))
		for i, x := range cubicX {
			y[i] = Cubic(cubicTrue, x)
		}
		return y
	}()
)

func cubicScore(p []float64) float64 {
	var ssr float64
	for i, x := range cubicX {
		r := cubicY[i] - Cubic(p, x)
		ssr += r * r
	}
	return -0.5 * ssr
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}
