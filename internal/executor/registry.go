package executor

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/seantiz/vantage/internal/model"
)

// Config sizes the pools handed out by a Registry.
type Config struct {
	// Threads is the worker count of one PoolPair, split between the function
	// and query executors. The function role gets the odd remainder.
	Threads int

	// Retention is how long a PoolPair may go without a lookup before it is
	// dropped from the registry.
	Retention time.Duration
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Threads:   32,
		Retention: 10 * time.Minute,
	}
}

// Validate checks that every pair built from c gets at least one worker per role.
func (c Config) Validate() error {
	if c.Threads < 2 {
		return fmt.Errorf("%w: threads must be at least 2, got %d", ErrConfiguration, c.Threads)
	}
	if c.Retention <= 0 {
		return fmt.Errorf("%w: retention must be positive, got %v", ErrConfiguration, c.Retention)
	}
	return nil
}

// PoolPair holds the two executors that serve one client identity.
type PoolPair struct {
	Function *Executor
	Query    *Executor
}

// Factory builds the PoolPair for an identity.
type Factory func(identity model.ClientIdentity) (*PoolPair, error)

// NewPoolPair is the default Factory body: it splits cfg.Threads evenly.
func NewPoolPair(cfg Config) *PoolPair {
	queryWorkers := cfg.Threads / 2
	return &PoolPair{
		Function: NewExecutor(RoleFunction, cfg.Threads-queryWorkers),
		Query:    NewExecutor(RoleQuery, queryWorkers),
	}
}

// Option configures a Registry.
type Option func(*Registry)

// WithFactory replaces the PoolPair constructor.
func WithFactory(f Factory) Option {
	return func(r *Registry) {
		r.newPair = f
	}
}

// WithClock replaces time.Now for retention bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

type registration struct {
	pair      *PoolPair
	writtenAt time.Time
	readAt    time.Time
}

func (reg *registration) idleSince() time.Time {
	if reg.readAt.After(reg.writtenAt) {
		return reg.readAt
	}
	return reg.writtenAt
}

// Registry hands out the PoolPair of each client identity. It is safe for
// concurrent use.
type Registry struct {
	cfg     Config
	newPair Factory
	now     func() time.Time
	logger  *slog.Logger

	group singleflight.Group

	mu        sync.Mutex
	pairs     map[model.ClientIdentity]*registration
	lastSweep time.Time

	constructed atomic.Int64
	evicted     atomic.Int64
}

// NewRegistry validates cfg and returns an empty registry.
func NewRegistry(cfg Config, opts ...Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		cfg:    cfg,
		now:    time.Now,
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
		pairs:  make(map[model.ClientIdentity]*registration),
	}
	r.newPair = func(model.ClientIdentity) (*PoolPair, error) {
		return NewPoolPair(cfg), nil
	}
	for _, opt := range opts {
		opt(r)
	}
	r.lastSweep = r.now()
	return r, nil
}

// FunctionExecutor returns the function-role executor for identity.
func (r *Registry) FunctionExecutor(identity model.ClientIdentity) (*Executor, error) {
	p, err := r.Pair(identity)
	if err != nil {
		return nil, err
	}
	return p.Function, nil
}

// QueryExecutor returns the query-role executor for identity.
func (r *Registry) QueryExecutor(identity model.ClientIdentity) (*Executor, error) {
	p, err := r.Pair(identity)
	if err != nil {
		return nil, err
	}
	return p.Query, nil
}

// Pair returns the PoolPair for identity, constructing it on first use.
// Concurrent first lookups for the same identity construct exactly one pair.
func (r *Registry) Pair(identity model.ClientIdentity) (*PoolPair, error) {
	if p := r.lookup(identity); p != nil {
		return p, nil
	}

	v, err, _ := r.group.Do(identity.Key(), func() (any, error) {
		// A previous flight may have stored the pair between our miss and
		// entering this one.
		if p := r.lookup(identity); p != nil {
			return p, nil
		}

		p, err := r.newPair(identity)
		if err != nil {
			return nil, fmt.Errorf("%w: build pool pair for %s: %v", ErrConfiguration, identity, err)
		}
		if p == nil || p.Function == nil || p.Query == nil {
			return nil, fmt.Errorf("%w: incomplete pool pair for %s", ErrConfiguration, identity)
		}

		now := r.now()
		r.mu.Lock()
		r.pairs[identity] = &registration{pair: p, writtenAt: now, readAt: now}
		live := len(r.pairs)
		r.mu.Unlock()

		r.constructed.Add(1)
		pairsConstructed.Inc()
		livePairs.Set(float64(live))
		r.logger.Debug("pool pair created", "identity", identity.String())
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*PoolPair), nil
}

// lookup returns the live pair for identity and refreshes its read clock.
// It also sweeps idle pairs when a sweep is due.
func (r *Registry) lookup(identity model.ClientIdentity) *PoolPair {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) >= r.sweepInterval() {
		r.sweepLocked(now)
	}

	reg, ok := r.pairs[identity]
	if !ok {
		return nil
	}
	if now.Sub(reg.idleSince()) > r.cfg.Retention {
		r.evictLocked(identity)
		return nil
	}
	reg.readAt = now
	return reg.pair
}

// Sweep drops every pair idle for longer than the retention window and
// returns how many were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked(r.now())
}

func (r *Registry) sweepInterval() time.Duration {
	if half := r.cfg.Retention / 2; half < time.Minute {
		return half
	}
	return time.Minute
}

func (r *Registry) sweepLocked(now time.Time) int {
	r.lastSweep = now
	n := 0
	for id, reg := range r.pairs {
		if now.Sub(reg.idleSince()) > r.cfg.Retention {
			r.evictLocked(id)
			n++
		}
	}
	return n
}

func (r *Registry) evictLocked(identity model.ClientIdentity) {
	delete(r.pairs, identity)
	r.evicted.Add(1)
	pairsEvicted.Inc()
	livePairs.Set(float64(len(r.pairs)))
	r.logger.Debug("pool pair evicted", "identity", identity.String())
}

// PairStats describes one registered pair.
type PairStats struct {
	Identity model.ClientIdentity `json:"identity"`
	Function Stats                `json:"function"`
	Query    Stats                `json:"query"`
	IdleMS   int64                `json:"idle_ms"`
}

// RegistryStats is a snapshot of the registry.
type RegistryStats struct {
	Live        int         `json:"live"`
	Constructed int64       `json:"constructed"`
	Evicted     int64       `json:"evicted"`
	Pairs       []PairStats `json:"pairs"`
}

// Stats returns a snapshot of the registry, pairs sorted by identity.
func (r *Registry) Stats() RegistryStats {
	now := r.now()

	r.mu.Lock()
	pairs := make([]PairStats, 0, len(r.pairs))
	for id, reg := range r.pairs {
		pairs = append(pairs, PairStats{
			Identity: id,
			Function: reg.pair.Function.Stats(),
			Query:    reg.pair.Query.Stats(),
			IdleMS:   now.Sub(reg.idleSince()).Milliseconds(),
		})
	}
	r.mu.Unlock()

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Identity.Key() < pairs[j].Identity.Key()
	})

	return RegistryStats{
		Live:        len(pairs),
		Constructed: r.constructed.Load(),
		Evicted:     r.evicted.Load(),
		Pairs:       pairs,
	}
}
