// Package cache memoizes objective evaluations keyed by a deterministic
// fingerprint of the candidate vector and problem identity. The cache is the
// only resource shared across concurrently running solvers; it bounds memory
// with LRU eviction and guarantees at most one in-flight computation per
// fingerprint under concurrent access.
package cache

import (
	"container/list"
	"encoding/binary"
	"math"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/cwbudde/stageopt/internal/objective"
)

// ConfigError reports an unsupported cache construction parameter.
// Surfaced immediately at construction, never retried.
type ConfigError struct {
	Param  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "cache configuration: " + e.Param + " " + e.Reason
}

// Fingerprint derives the cache key for a candidate evaluated against a
// problem. Structurally equal candidates for the same problem always hash
// to the same key.
func Fingerprint(problemFP uint64, dv []float64) uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], problemFP)
	d.Write(buf[:])
	for _, v := range dv {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		d.Write(buf[:])
	}
	return d.Sum64()
}

type entry struct {
	key   uint64
	value objective.Evaluation
}

// Cache is a bounded, concurrency-safe LRU of evaluation results.
type Cache struct {
	capacity int

	mu    sync.Mutex
	order *list.List // front = most recently used
	items map[uint64]*list.Element

	group singleflight.Group

	hits   uint64
	misses uint64
}

// New creates a cache holding at most size entries. The constructor takes
// exactly one parameter; anything else (persistence paths, shard counts) is
// unsupported and belongs to config validation, which rejects it up front.
func New(size int) (*Cache, error) {
	if size < 1 {
		return nil, &ConfigError{Param: "cache_size", Reason: "must be at least 1, got " + strconv.Itoa(size)}
	}
	return &Cache{
		capacity: size,
		order:    list.New(),
		items:    make(map[uint64]*list.Element, size),
	}, nil
}

// GetOrCompute returns the cached evaluation for key, computing and caching
// it with fn on a miss. Concurrent callers missing on the same key share a
// single fn invocation; distinct keys compute independently. Errors from fn
// are returned to every waiter and never cached.
func (c *Cache) GetOrCompute(key uint64, fn func() (objective.Evaluation, error)) (objective.Evaluation, error) {
	if ev, ok := c.lookup(key); ok {
		return ev, nil
	}

	v, err, _ := c.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
		// Re-check: a previous flight may have inserted while we queued.
		if ev, ok := c.lookup(key); ok {
			return ev, nil
		}
		ev, err := fn()
		if err != nil {
			return objective.Evaluation{}, err
		}
		c.insert(key, ev)
		return ev, nil
	})
	if err != nil {
		return objective.Evaluation{}, err
	}
	return v.(objective.Evaluation), nil
}

func (c *Cache) lookup(key uint64) (objective.Evaluation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		c.hits++
		return el.Value.(*entry).value, true
	}
	c.misses++
	return objective.Evaluation{}, false
}

func (c *Cache) insert(key uint64, ev objective.Evaluation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*entry).value = ev
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&entry{key: key, value: ev})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
	}
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Evaluator wraps an objective evaluator with this cache, binding the
// problem fingerprint into every key. It satisfies the evaluator contract
// solvers are written against.
type Evaluator struct {
	cache     *Cache
	inner     *objective.Evaluator
	problemFP uint64
}

// NewEvaluator builds the cached evaluator shared by every solver in a run.
func NewEvaluator(c *Cache, inner *objective.Evaluator) *Evaluator {
	return &Evaluator{
		cache:     c,
		inner:     inner,
		problemFP: inner.Problem().Fingerprint(),
	}
}

// Evaluate looks the candidate up by fingerprint and falls through to the
// wrapped evaluator on a miss.
func (e *Evaluator) Evaluate(dv []float64) (objective.Evaluation, error) {
	key := Fingerprint(e.problemFP, dv)
	return e.cache.GetOrCompute(key, func() (objective.Evaluation, error) {
		return e.inner.Evaluate(dv)
	})
}
