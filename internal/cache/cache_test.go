package cache

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cwbudde/stageopt/internal/objective"
	"github.com/cwbudde/stageopt/internal/rocket"
)

func newTestEvaluator(t *testing.T) *objective.Evaluator {
	t.Helper()

	p, err := rocket.New([]rocket.Stage{
		{ISP: 300, Epsilon: 0.06, MinFraction: 0.15, MaxFraction: 0.80},
		{ISP: 348, Epsilon: 0.04, MinFraction: 0.01, MaxFraction: 0.90},
	}, 9000)
	if err != nil {
		t.Fatalf("Failed to build problem: %v", err)
	}
	return objective.NewEvaluator(p, 1000.0)
}

func TestNewRejectsBadSize(t *testing.T) {
	for _, size := range []int{0, -1, -100} {
		_, err := New(size)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("New(%d): expected ConfigError, got %v", size, err)
		}
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	dv := []float64{4000, 5000}

	if Fingerprint(1, dv) != Fingerprint(1, []float64{4000, 5000}) {
		t.Error("Structurally equal candidates should share a fingerprint")
	}
	if Fingerprint(1, dv) == Fingerprint(2, dv) {
		t.Error("Same candidate on different problems should not share a fingerprint")
	}
	if Fingerprint(1, dv) == Fingerprint(1, []float64{5000, 4000}) {
		t.Error("Candidate order must affect the fingerprint")
	}
}

func TestGetOrComputeCachesResult(t *testing.T) {
	c, err := New(16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	calls := 0
	compute := func() (objective.Evaluation, error) {
		calls++
		return objective.Evaluation{PayloadFraction: 0.1, Violation: 0}, nil
	}

	first, err := c.GetOrCompute(42, compute)
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	second, err := c.GetOrCompute(42, compute)
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}

	if calls != 1 {
		t.Errorf("Expected 1 computation, got %d", calls)
	}
	if first != second {
		t.Errorf("Cached result differs: %+v vs %+v", first, second)
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	c, _ := New(16)

	fail := true
	compute := func() (objective.Evaluation, error) {
		if fail {
			return objective.Evaluation{}, errors.New("boom")
		}
		return objective.Evaluation{PayloadFraction: 0.2}, nil
	}

	if _, err := c.GetOrCompute(7, compute); err == nil {
		t.Fatal("Expected error from failing computation")
	}

	fail = false
	ev, err := c.GetOrCompute(7, compute)
	if err != nil {
		t.Fatalf("GetOrCompute failed after recovery: %v", err)
	}
	if ev.PayloadFraction != 0.2 {
		t.Errorf("Expected recomputed value, got %+v", ev)
	}
}

func TestCapacityAndLRUEviction(t *testing.T) {
	c, _ := New(3)
	value := func(f float64) func() (objective.Evaluation, error) {
		return func() (objective.Evaluation, error) {
			return objective.Evaluation{PayloadFraction: f}, nil
		}
	}

	c.GetOrCompute(1, value(0.1))
	c.GetOrCompute(2, value(0.2))
	c.GetOrCompute(3, value(0.3))

	// Touch key 1 so key 2 becomes least recently used.
	c.GetOrCompute(1, value(0.9))
	c.GetOrCompute(4, value(0.4))

	if c.Len() != 3 {
		t.Errorf("Cache holds %d entries, capacity is 3", c.Len())
	}

	// Key 2 must have been evicted; recomputation should run.
	recomputed := false
	c.GetOrCompute(2, func() (objective.Evaluation, error) {
		recomputed = true
		return objective.Evaluation{}, nil
	})
	if !recomputed {
		t.Error("Expected LRU entry (key 2) to have been evicted")
	}

	// Key 1 must have survived.
	ev, _ := c.GetOrCompute(1, value(0.5))
	if ev.PayloadFraction != 0.1 {
		t.Errorf("Key 1 was evicted or overwritten: %+v", ev)
	}
}

func TestSingleComputationUnderConcurrency(t *testing.T) {
	c, _ := New(128)

	var calls atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			c.GetOrCompute(99, func() (objective.Evaluation, error) {
				calls.Add(1)
				return objective.Evaluation{PayloadFraction: 0.5}, nil
			})
		}()
	}
	close(start)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("Expected exactly 1 computation under concurrency, got %d", calls.Load())
	}
}

func TestCachedEvaluatorMatchesDirectEvaluation(t *testing.T) {
	inner := newTestEvaluator(t)
	c, _ := New(64)
	cached := NewEvaluator(c, inner)

	dv := []float64{4000, 5000}
	direct, err := inner.Evaluate(dv)
	if err != nil {
		t.Fatalf("Direct evaluation failed: %v", err)
	}
	viaCache, err := cached.Evaluate(dv)
	if err != nil {
		t.Fatalf("Cached evaluation failed: %v", err)
	}

	if direct != viaCache {
		t.Errorf("Cached result %+v differs from direct %+v", viaCache, direct)
	}

	// Second lookup must be a hit.
	cached.Evaluate(dv)
	hits, _ := c.Stats()
	if hits == 0 {
		t.Error("Expected at least one cache hit")
	}
}

func TestCachedEvaluatorPropagatesContractError(t *testing.T) {
	inner := newTestEvaluator(t)
	c, _ := New(64)
	cached := NewEvaluator(c, inner)

	_, err := cached.Evaluate([]float64{1, 2, 3})
	var contractErr *objective.ContractError
	if !errors.As(err, &contractErr) {
		t.Fatalf("Expected ContractError through cache, got %v", err)
	}
	if c.Len() != 0 {
		t.Error("Failed evaluations must not be cached")
	}
}

func TestInfiniteViolationIsCacheable(t *testing.T) {
	inner := newTestEvaluator(t)
	c, _ := New(64)
	cached := NewEvaluator(c, inner)

	dv := []float64{50000, 5000}
	ev, err := cached.Evaluate(dv)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !math.IsInf(ev.Violation, 1) {
		t.Fatalf("Expected +Inf violation, got %g", ev.Violation)
	}
	if c.Len() != 1 {
		t.Error("Degenerate evaluations should be cached like any other")
	}
}
