package worker

import (
	"context"
	"encoding/binary"
	"hash"
	"math"
	"sync/atomic"

	"github.com/solace-fi/create2-deployer/internal/crypto"
)

// DefaultBatchSize is the number of salts a worker hashes between
// cancellation and bound checks.
const DefaultBatchSize = 4096

// Config describes the deterministic salt slice a worker scans. Worker i of
// an n-worker pool gets Start=i, Stride=n, so the pool covers every salt in
// [0, Cap) exactly once regardless of pool size.
type Config struct {
	Create2Prefix []byte // 21 bytes: 0xff + factory, constant per run
	InitCodeHash  []byte // 32 bytes, constant per run
	Matcher       *crypto.PrefixMatcher
	Start         uint64
	Stride        uint64
	Cap           uint64 // exclusive upper bound of the salt space
	BatchSize     int
}

// Worker scans its assigned salt slice in ascending order, reusing a single
// hasher and input buffer so the hot loop makes no allocations.
type Worker struct {
	cfg      Config
	attempts *atomic.Int64
	hasher   hash.Hash

	inputBuf [crypto.Create2InputLen]byte
	hashBuf  [32]byte
	addrBuf  [20]byte
}

// New creates a worker. attempts is the pool-wide attempt counter.
func New(cfg Config, attempts *atomic.Int64) *Worker {
	w := &Worker{
		cfg:      cfg,
		attempts: attempts,
		hasher:   crypto.NewKeccak(),
	}
	if w.cfg.BatchSize <= 0 {
		w.cfg.BatchSize = DefaultBatchSize
	}
	copy(w.inputBuf[:crypto.Create2PrefixLen], cfg.Create2Prefix)
	copy(w.inputBuf[crypto.Create2SuffixOffset:], cfg.InitCodeHash)
	return w
}

// Run scans ascending salts until a match, exhaustion of the slice, context
// cancellation, or the shared bound dropping below the worker's position.
// bound holds the lowest matching salt found by any worker so far
// (math.MaxUint64 when none); on a match Run lowers it with a CAS min so the
// pool converges on the smallest satisfying salt. Returns the matching salt
// and true, or 0 and false.
func (w *Worker) Run(ctx context.Context, bound *atomic.Uint64) (uint64, bool) {
	salt := w.cfg.Start
	saltField := w.inputBuf[crypto.Create2SaltOffset : crypto.Create2SaltOffset+crypto.Create2SaltLen]
	for i := range saltField {
		saltField[i] = 0
	}

	for salt < w.cfg.Cap {
		select {
		case <-ctx.Done():
			return 0, false
		default:
		}
		if salt >= bound.Load() {
			// A smaller salt already matched; nothing ahead of us can win.
			return 0, false
		}

		batched := int64(0)
		for i := 0; i < w.cfg.BatchSize && salt < w.cfg.Cap; i++ {
			binary.BigEndian.PutUint64(saltField[24:], salt)
			crypto.Create2AddressInto(w.hasher, w.inputBuf[:], w.hashBuf[:], w.addrBuf[:])
			batched++

			if w.cfg.Matcher.Match(w.addrBuf[:]) {
				w.attempts.Add(batched)
				casMin(bound, salt)
				return salt, true
			}
			salt += w.cfg.Stride
		}
		w.attempts.Add(batched)
	}
	return 0, false
}

// casMin lowers bound to v if v is smaller, retrying on contention.
func casMin(bound *atomic.Uint64, v uint64) {
	for {
		cur := bound.Load()
		if v >= cur || bound.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Unbounded is the initial value of the shared bound before any match.
const Unbounded = uint64(math.MaxUint64)
