package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Config bounds a Cache.
type Config struct {
	// MaxEntries is the maximum number of entries held at any time.
	MaxEntries int

	// WriteTTL and AccessTTL are the two expiry windows. Both clocks are
	// reset whenever an entry is written or read; an entry expires as soon
	// as either window lapses.
	WriteTTL  time.Duration
	AccessTTL time.Duration
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		MaxEntries: 1000,
		WriteTTL:   10 * time.Minute,
		AccessTTL:  10 * time.Minute,
	}
}

// Validate checks that c bounds the cache in both size and time.
func (c Config) Validate() error {
	if c.MaxEntries <= 0 {
		return fmt.Errorf("%w: max entries must be positive, got %d", ErrConfiguration, c.MaxEntries)
	}
	if c.WriteTTL <= 0 {
		return fmt.Errorf("%w: write ttl must be positive, got %v", ErrConfiguration, c.WriteTTL)
	}
	if c.AccessTTL <= 0 {
		return fmt.Errorf("%w: access ttl must be positive, got %v", ErrConfiguration, c.AccessTTL)
	}
	return nil
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now for expiry bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

type entry[V any] struct {
	key        string
	value      V
	writtenAt  time.Time
	accessedAt time.Time
}

// result carries a computed value through singleflight without a type
// assertion on a possibly-nil interface value.
type result[V any] struct {
	value V
}

// Cache is a size- and time-bounded cache with single-flight computation.
// It is safe for concurrent use.
type Cache[V any] struct {
	name string
	cfg  Config
	now  func() time.Time

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front is most recently used

	group singleflight.Group

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
	computes    atomic.Int64
	failures    atomic.Int64
}

// New creates a cache. name labels the cache's metrics.
func New[V any](name string, cfg Config, opts ...Option) (*Cache[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	entriesGauge.WithLabelValues(name).Set(0)

	return &Cache[V]{
		name:  name,
		cfg:   cfg,
		now:   o.now,
		items: make(map[string]*list.Element),
		order: list.New(),
	}, nil
}

// Get returns the live value for key. A hit resets both expiry clocks.
func (c *Cache[V]) Get(key string) (V, bool) {
	now := c.now()

	c.mu.Lock()
	v, ok := c.getLocked(key, now)
	c.mu.Unlock()

	if ok {
		c.hits.Add(1)
		lookupsTotal.WithLabelValues(c.name, "hit").Inc()
	} else {
		c.misses.Add(1)
		lookupsTotal.WithLabelValues(c.name, "miss").Inc()
	}
	return v, ok
}

func (c *Cache[V]) getLocked(key string, now time.Time) (V, bool) {
	var zero V

	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[V])
	if c.expired(e, now) {
		c.removeLocked(el, reasonExpired)
		return zero, false
	}

	e.writtenAt = now
	e.accessedAt = now
	c.order.MoveToFront(el)
	return e.value, true
}

// Set stores value under key, evicting expired entries and then the least
// recently used entry when the cache is full.
func (c *Cache[V]) Set(key string, value V) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.writtenAt = now
		e.accessedAt = now
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.cfg.MaxEntries {
		c.purgeExpiredLocked(now)
	}
	for c.order.Len() >= c.cfg.MaxEntries {
		c.removeLocked(c.order.Back(), reasonSize)
	}

	c.items[key] = c.order.PushFront(&entry[V]{
		key:        key,
		value:      value,
		writtenAt:  now,
		accessedAt: now,
	})
	entriesGauge.WithLabelValues(c.name).Set(float64(c.order.Len()))
}

// GetOrCompute returns the live value for key, computing and storing it with
// fn on a miss. Concurrent misses for the same key share one call to fn and
// all receive its value or error. Errors are not stored.
//
// fn runs on a context that keeps ctx's values but not its cancellation, so
// one impatient caller cannot fail the computation for everyone waiting on it.
// Each caller still stops waiting when its own ctx ends.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	computeCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// Another flight may have stored the key between our miss and now.
		c.mu.Lock()
		v, ok := c.getLocked(key, c.now())
		c.mu.Unlock()
		if ok {
			return result[V]{value: v}, nil
		}

		v, err := c.compute(computeCtx, fn)
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return result[V]{value: v}, nil
	})

	var zero V
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(result[V]).value, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *Cache[V]) compute(ctx context.Context, fn func(context.Context) (V, error)) (v V, err error) {
	c.computes.Add(1)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache compute panicked: %v", r)
		}
		if err != nil {
			c.failures.Add(1)
			computesTotal.WithLabelValues(c.name, "error").Inc()
			return
		}
		computesTotal.WithLabelValues(c.name, "ok").Inc()
	}()
	return fn(ctx)
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.items, key)
	entriesGauge.WithLabelValues(c.name).Set(float64(c.order.Len()))
	return true
}

// Len returns the number of stored entries, including expired entries that
// have not been purged yet.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge drops every expired entry and returns how many were dropped.
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeExpiredLocked(c.now())
}

func (c *Cache[V]) expired(e *entry[V], now time.Time) bool {
	return now.Sub(e.writtenAt) > c.cfg.WriteTTL || now.Sub(e.accessedAt) > c.cfg.AccessTTL
}

func (c *Cache[V]) purgeExpiredLocked(now time.Time) int {
	n := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*entry[V]), now) {
			c.removeLocked(el, reasonExpired)
			n++
		}
		el = prev
	}
	return n
}

func (c *Cache[V]) removeLocked(el *list.Element, reason string) {
	e := el.Value.(*entry[V])
	c.order.Remove(el)
	delete(c.items, e.key)

	if reason == reasonExpired {
		c.expirations.Add(1)
	} else {
		c.evictions.Add(1)
	}
	evictionsTotal.WithLabelValues(c.name, reason).Inc()
	entriesGauge.WithLabelValues(c.name).Set(float64(c.order.Len()))
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Name          string `json:"name"`
	Entries       int    `json:"entries"`
	MaxEntries    int    `json:"max_entries"`
	Hits          int64  `json:"hits"`
	Misses        int64  `json:"misses"`
	Evictions     int64  `json:"evictions"`
	Expirations   int64  `json:"expirations"`
	Computes      int64  `json:"computes"`
	ComputeErrors int64  `json:"compute_errors"`
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Name:          c.name,
		Entries:       c.Len(),
		MaxEntries:    c.cfg.MaxEntries,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		Expirations:   c.expirations.Load(),
		Computes:      c.computes.Load(),
		ComputeErrors: c.failures.Load(),
	}
}
