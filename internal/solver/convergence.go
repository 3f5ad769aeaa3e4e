package solver

import "math"

// convergenceTracker watches the best score across iterations and reports
// when improvement has stalled. Population solvers use it for early
// termination; the adaptive GA additionally reads its stale count to drive
// rate adaptation.
type convergenceTracker struct {
	threshold float64 // minimum relative improvement that counts as progress
	patience  int     // stalled iterations tolerated before convergence

	best            float64
	lastSignificant float64
	staleCount      int
}

func newConvergenceTracker(threshold float64, patience int) *convergenceTracker {
	return &convergenceTracker{
		threshold:       threshold,
		patience:        patience,
		best:            math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records the iteration's best score and returns true once the run
// has gone patience iterations without a significant relative improvement.
// A non-positive patience disables convergence detection.
func (c *convergenceTracker) Update(score float64) bool {
	if score < c.best {
		c.best = score
	}
	if math.IsInf(c.lastSignificant, 1) {
		c.lastSignificant = score
		return false
	}

	improvement := c.lastSignificant - score
	relative := improvement
	if denom := math.Abs(c.lastSignificant); denom > 0 {
		relative = improvement / denom
	}
	if relative >= c.threshold {
		c.lastSignificant = score
		c.staleCount = 0
		return false
	}

	c.staleCount++
	return c.patience > 0 && c.staleCount >= c.patience
}

// StaleCount returns the iterations elapsed since the last significant
// improvement.
func (c *convergenceTracker) StaleCount() int {
	return c.staleCount
}

// Best returns the best score seen so far.
func (c *convergenceTracker) Best() float64 {
	return c.best
}
