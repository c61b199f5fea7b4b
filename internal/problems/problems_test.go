package problems

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/diffevo/internal/demc"
)

func TestRegistry(t *testing.T) {
	want := []string{"cubic", "doublenormal", "lineardynamic", "lineardynamic-ss", "rastrigin", "rosenbrock", "singlenormal"}
	names := Names()
	if len(names) != len(want) {
		t.Fatalf("Expected %d problems, got %v", len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Problem %d = %s, want %s", i, names[i], want[i])
		}
	}

	_, err := Lookup("nope")
	var unknown *UnknownProblemError
	if !errors.As(err, &unknown) {
		t.Errorf("Expected UnknownProblemError, got %v", err)
	}
}

func TestAllProblemsBuild(t *testing.T) {
	for _, def := range All() {
		t.Run(def.Name, func(t *testing.T) {
			inst, err := def.Build()
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			if inst.Space.NumberOfDimensions() == 0 {
				t.Error("Expected a non-empty space")
			}
			if (inst.Problem.Models != nil) != def.Simulation {
				t.Errorf("Simulation flag %v disagrees with model factory", def.Simulation)
			}

			engine, err := demc.New(demc.Config{Generations: 5, PopulationSize: 8, Seed: 1}, inst.Problem)
			if err != nil {
				t.Fatalf("demc.New failed: %v", err)
			}
			ledger, err := engine.Run()
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if ledger.Len() != 40 {
				t.Errorf("Expected 40 samples, got %d", ledger.Len())
			}
		})
	}
}

func TestBenchmarkFunctions(t *testing.T) {
	if v := Rastrigin([]float64{0, 0}); v != 0 {
		t.Errorf("Rastrigin(0,0) = %f, want 0", v)
	}
	if v := Rosenbrock([]float64{1, 1}); v != 0 {
		t.Errorf("Rosenbrock(1,1) = %f, want 0", v)
	}
	if v := Rosenbrock([]float64{0, 0}); v != 1 {
		t.Errorf("Rosenbrock(0,0) = %f, want 1", v)
	}
	if v := Cubic([]float64{1, 2, 3, 4}, 2); v != 1+4+12+32 {
		t.Errorf("Cubic = %f, want 49", v)
	}
	if cubicScore(cubicTrue) != 0 {
		t.Errorf("Cubic score at true parameters should be 0")
	}
	if doubleNormal([]float64{-8}) <= doubleNormal([]float64{10}) {
		t.Error("Heavier mode should score higher")
	}
	if singleNormal([]float64{-10}) <= singleNormal([]float64{0}) {
		t.Error("Mode should score highest")
	}
}

func TestReservoirChunkedMatchesWholeHorizon(t *testing.T) {
	def, err := Lookup("lineardynamic-ss")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	inst, err := def.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if inst.Problem.Timeline.NumChunks() != 3 {
		t.Errorf("Expected 3 chunks, got %d", inst.Problem.Timeline.NumChunks())
	}

	eval, err := demc.NewSimulationEvaluator(inst.Problem.Observations, inst.Problem.InitialState,
		inst.Problem.Timeline, inst.Problem.Models, inst.Problem.Likelihood)
	if err != nil {
		t.Fatalf("NewSimulationEvaluator failed: %v", err)
	}

	direct := reservoirDirect()
	for _, k := range []float64{120, reservoirTrueK, 170} {
		pop, err := eval.Evaluate(demc.Population{{Params: []float64{k}}})
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		want := direct([]float64{k})
		if math.Abs(pop[0].Score-want) > 1e-6*math.Max(1, math.Abs(want)) {
			t.Errorf("k=%f: chunked score %f, whole-horizon score %f", k, pop[0].Score, want)
		}
	}
}

func TestReservoirRecoversResidenceTime(t *testing.T) {
	def, err := Lookup("lineardynamic-ss")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	inst, err := def.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	engine, err := demc.New(demc.Config{Generations: 80, PopulationSize: 12, Seed: 7}, inst.Problem)
	if err != nil {
		t.Fatalf("demc.New failed: %v", err)
	}
	ledger, err := engine.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	best, ok := ledger.Best()
	if !ok {
		t.Fatal("Expected a best sample")
	}
	if math.Abs(best.Params[0]-reservoirTrueK) > 3 {
		t.Errorf("Best residence time %f, expected near %f", best.Params[0], reservoirTrueK)
	}
}
