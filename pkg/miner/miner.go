package miner

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/solace-fi/create2-deployer/internal/crypto"
	"github.com/solace-fi/create2-deployer/internal/logger"
	"github.com/solace-fi/create2-deployer/pkg/types"
	"github.com/solace-fi/create2-deployer/pkg/worker"
)

// DefaultSaltCap bounds the search space. Matches reach a 6-hex-char prefix
// after ~16.7M attempts on average, so 2^56 is effectively unreachable and
// exhaustion signals a misconfigured prefix rather than bad luck.
const DefaultSaltCap = uint64(1) << 56

// ResultCache stores mined results keyed by (initCode, factory). Mining is a
// pure function of the key, so entries are valid on every network sharing
// the factory address.
type ResultCache interface {
	Lookup(initCode []byte, factory common.Address) (types.MinedResult, bool)
	Store(initCode []byte, factory common.Address, result types.MinedResult) error
}

// Miner coordinates a pool of workers scanning disjoint salt slices for a
// CREATE2 address with a wanted prefix. The search is deterministic: the
// lowest satisfying salt wins regardless of worker count or scheduling.
type Miner struct {
	cache       ResultCache // nil disables caching
	log         *logger.Logger
	workers     int
	saltCap     uint64
	batchSize   int
	logInterval time.Duration

	attempts atomic.Int64
}

// Option configures a Miner.
type Option func(*Miner)

// WithCache attaches a durable result cache.
func WithCache(c ResultCache) Option { return func(m *Miner) { m.cache = c } }

// WithWorkers sets the pool size. Values <= 0 fall back to NumCPU.
func WithWorkers(n int) Option { return func(m *Miner) { m.workers = n } }

// WithSaltCap sets the exclusive upper bound of the salt search space.
func WithSaltCap(limit uint64) Option { return func(m *Miner) { m.saltCap = limit } }

// WithBatchSize sets the per-worker batch between cancellation checks.
func WithBatchSize(n int) Option { return func(m *Miner) { m.batchSize = n } }

// WithProgressLog enables periodic progress lines during long mines.
func WithProgressLog(log *logger.Logger, interval time.Duration) Option {
	return func(m *Miner) {
		m.log = log
		m.logInterval = interval
	}
}

// New creates a miner.
func New(opts ...Option) *Miner {
	m := &Miner{
		workers: runtime.NumCPU(),
		saltCap: DefaultSaltCap,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.workers <= 0 {
		m.workers = runtime.NumCPU()
	}
	return m
}

// Attempts returns the number of hashing iterations performed so far.
func (m *Miner) Attempts() int64 { return m.attempts.Load() }

// Mine finds the smallest salt whose CREATE2 address through factory starts
// with prefix (lowercase hex). Cached results short-circuit the search.
// Returns types.ErrSearchExhausted when no salt below the cap matches, or
// the context error if cancelled.
func (m *Miner) Mine(ctx context.Context, initCode []byte, factory common.Address, prefix string) (types.MinedResult, error) {
	matcher, err := crypto.NewPrefixMatcher(prefix)
	if err != nil {
		return types.MinedResult{}, err
	}

	if m.cache != nil {
		if res, ok := m.cache.Lookup(initCode, factory); ok {
			// A cached entry was mined for whatever prefix was asked at the
			// time; it only answers this call if it matches the current one.
			if !matcher.Match(res.Address[:]) {
				return types.MinedResult{}, fmt.Errorf("cached address %s for this init code does not match prefix %q", res.Address.Hex(), prefix)
			}
			return res, nil
		}
	}

	initCodeHash := crypto.Keccak256(initCode)
	create2Prefix := crypto.Create2Prefix(factory)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		bound atomic.Uint64
		wg    sync.WaitGroup
		start = time.Now()
	)
	bound.Store(worker.Unbounded)

	for i := 0; i < m.workers; i++ {
		w := worker.New(worker.Config{
			Create2Prefix: create2Prefix[:],
			InitCodeHash:  initCodeHash,
			Matcher:       matcher,
			Start:         uint64(i),
			Stride:        uint64(m.workers),
			Cap:           m.saltCap,
			BatchSize:     m.batchSize,
		}, &m.attempts)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx, &bound)
		}()
	}

	if m.log != nil && m.logInterval > 0 {
		progressDone := make(chan struct{})
		defer close(progressDone)
		go m.logProgress(progressDone, start)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return types.MinedResult{}, err
	}
	winner := bound.Load()
	if winner == worker.Unbounded {
		return types.MinedResult{}, fmt.Errorf("prefix %q below salt %d: %w", matcher.String(), m.saltCap, types.ErrSearchExhausted)
	}

	salt := types.SaltFromUint64(winner)
	result := types.MinedResult{
		Address: crypto.Create2Address(factory, salt, initCodeHash),
		Salt:    salt,
	}
	if m.log != nil {
		m.log.Printf("Found match: %s (salt %d, %d attempts, %v)",
			result.Address.Hex(), winner, m.attempts.Load(), time.Since(start).Round(time.Millisecond))
	}

	if m.cache != nil {
		if err := m.cache.Store(initCode, factory, result); err != nil {
			return types.MinedResult{}, err
		}
	}
	return result, nil
}

// logProgress emits attempt counts and hash rate until the search ends.
func (m *Miner) logProgress(done <-chan struct{}, start time.Time) {
	ticker := time.NewTicker(m.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			attempts := m.attempts.Load()
			elapsed := time.Since(start)
			rate := 0.0
			if elapsed.Seconds() > 0 {
				rate = float64(attempts) / elapsed.Seconds()
			}
			m.log.Printf("Progress: %d attempts, %.2f hashes/sec", attempts, rate)
		case <-done:
			return
		}
	}
}
