package solver

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/stageopt/internal/rocket"
)

// clampVector clamps every component into its [lower, upper] box.
func clampVector(dv, lower, upper []float64) {
	for i := range dv {
		dv[i] = math.Max(lower[i], math.Min(upper[i], dv[i]))
	}
}

// projectFeasible repairs a candidate in place: clamp to the per-stage box,
// then rescale so the components sum to total. The rescale can push a
// component back out of its box, so one more clamp+rescale round is applied;
// any residual breach is left to the evaluator's penalty.
func projectFeasible(dv, lower, upper []float64, total float64) {
	for range 2 {
		clampVector(dv, lower, upper)
		sum := floats.Sum(dv)
		if sum <= 0 {
			// Degenerate candidate, reset to the equal split.
			share := total / float64(len(dv))
			for i := range dv {
				dv[i] = share
			}
			continue
		}
		if math.Abs(sum-total) > 1e-12 {
			floats.Scale(total/sum, dv)
		}
	}
}

// randomCandidate draws a uniform candidate inside the box and projects it
// onto the delta-v total, so stochastic adapters respect stage bounds by
// construction rather than by penalty alone.
func randomCandidate(rng *rand.Rand, lower, upper []float64, total float64) []float64 {
	dv := make([]float64, len(lower))
	for i := range dv {
		dv[i] = lower[i] + rng.Float64()*(upper[i]-lower[i])
	}
	projectFeasible(dv, lower, upper, total)
	return dv
}

// seedPopulation builds size candidates: the equal-split warm start first,
// then random feasible draws.
func seedPopulation(rng *rand.Rand, p *rocket.Problem, size int) [][]float64 {
	lower, upper := p.Bounds()
	pop := make([][]float64, size)
	first := p.EqualSplit()
	projectFeasible(first, lower, upper, p.TotalDeltaV)
	pop[0] = first
	for i := 1; i < size; i++ {
		pop[i] = randomCandidate(rng, lower, upper, p.TotalDeltaV)
	}
	return pop
}

// diversity measures population spread as the mean pairwise distance
// normalized by the span of the population, in [0, 1].
func diversity(pop [][]float64) float64 {
	n := len(pop)
	if n <= 1 {
		return 0
	}
	var meanDist float64
	pairs := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			meanDist += floats.Distance(pop[i], pop[j], 2)
			pairs++
		}
	}
	meanDist /= float64(pairs)

	span := make([]float64, len(pop[0]))
	for d := range span {
		lo, hi := pop[0][d], pop[0][d]
		for i := 1; i < n; i++ {
			lo = math.Min(lo, pop[i][d])
			hi = math.Max(hi, pop[i][d])
		}
		span[d] = hi - lo
	}
	maxDist := floats.Norm(span, 2)
	if maxDist == 0 {
		return 0
	}
	return meanDist / maxDist
}

// argmin returns the index of the smallest score.
func argmin(scores []float64) int {
	best := 0
	for i, s := range scores {
		if s < scores[best] {
			best = i
		}
	}
	return best
}

// clone copies a candidate.
func clone(dv []float64) []float64 {
	return append([]float64(nil), dv...)
}
