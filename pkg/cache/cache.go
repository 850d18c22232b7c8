// Package cache persists mined CREATE2 results so that repeated deployments
// of the same (init code, factory) pair never re-run the salt search. The
// file is plain JSON keyed by init code hex then factory hex, readable by
// humans and safe to commit alongside deployment scripts.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/solace-fi/create2-deployer/pkg/types"
)

type entry struct {
	Address string `json:"address"`
	Salt    string `json:"salt"`
}

// Store is a durable single-writer cache of mined results. Concurrent mines
// for different keys may store in parallel; writes are serialized by the
// mutex.
type Store struct {
	path string

	mu      sync.Mutex
	entries map[string]map[string]entry // initCodeHex -> factoryHex -> entry
}

// Open loads the cache at path, creating an empty one if the file does not
// exist yet.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		entries: make(map[string]map[string]entry),
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("parse cache %s: %w", path, err)
	}
	return s, nil
}

// Lookup returns the cached result for (initCode, factory), if any.
func (s *Store) Lookup(initCode []byte, factory common.Address) (types.MinedResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byFactory, ok := s.entries[codeKey(initCode)]
	if !ok {
		return types.MinedResult{}, false
	}
	e, ok := byFactory[factoryKey(factory)]
	if !ok {
		return types.MinedResult{}, false
	}
	res, err := e.decode()
	if err != nil {
		// Hand-edited or corrupted entry; treat as a miss so the miner
		// recomputes and Store surfaces any conflict.
		return types.MinedResult{}, false
	}
	return res, true
}

// Store records a mined result and persists the cache. Mining is pure, so a
// second store for the same key must carry the identical result; a mismatch
// is a consistency fault and is never silently overwritten.
func (s *Store) Store(initCode []byte, factory common.Address, result types.MinedResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ck, fk := codeKey(initCode), factoryKey(factory)
	byFactory, ok := s.entries[ck]
	if !ok {
		byFactory = make(map[string]entry)
		s.entries[ck] = byFactory
	}
	if existing, ok := byFactory[fk]; ok {
		prev, err := existing.decode()
		if err == nil && prev == result {
			return nil
		}
		return fmt.Errorf("key (initcode %s…, factory %s): cached %s/%s, mined %s/%s: %w",
			truncate(ck), fk, existing.Address, existing.Salt,
			strings.ToLower(result.Address.Hex()), result.Salt.Hex(), types.ErrCacheConflict)
	}

	byFactory[fk] = entry{
		Address: strings.ToLower(result.Address.Hex()),
		Salt:    result.Salt.Hex(),
	}
	return s.persist()
}

// Len returns the number of cached results.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, byFactory := range s.entries {
		n += len(byFactory)
	}
	return n
}

// persist writes the whole mapping to a temp file and renames it into
// place, so a crash mid-write never truncates the cache. Caller holds mu.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".create2-cache-*")
	if err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

func (e entry) decode() (types.MinedResult, error) {
	addr := strings.TrimPrefix(strings.ToLower(e.Address), "0x")
	if len(addr) != 2*common.AddressLength {
		return types.MinedResult{}, fmt.Errorf("bad address %q", e.Address)
	}
	addrBytes, err := hex.DecodeString(addr)
	if err != nil {
		return types.MinedResult{}, fmt.Errorf("bad address %q: %w", e.Address, err)
	}
	saltHex := strings.TrimPrefix(strings.ToLower(e.Salt), "0x")
	saltBytes, err := hex.DecodeString(saltHex)
	if err != nil || len(saltBytes) != 32 {
		return types.MinedResult{}, fmt.Errorf("bad salt %q", e.Salt)
	}
	var res types.MinedResult
	res.Address = common.BytesToAddress(addrBytes)
	copy(res.Salt[:], saltBytes)
	return res, nil
}

func codeKey(initCode []byte) string {
	return hex.EncodeToString(initCode)
}

func factoryKey(factory common.Address) string {
	return strings.ToLower(factory.Hex())
}

func truncate(s string) string {
	if len(s) > 16 {
		return s[:16]
	}
	return s
}
