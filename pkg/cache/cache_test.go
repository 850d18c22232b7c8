package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/solace-fi/create2-deployer/pkg/types"
)

var (
	testFactory  = common.HexToAddress("0xce0042B868300000d44A59004Da54A005ffdcf9f")
	testInitCode = []byte{0x60, 0x80, 0x60, 0x40}
)

func testResult() types.MinedResult {
	return types.MinedResult{
		Address: common.HexToAddress("0x501ace0000000000000000000000000000000001"),
		Salt:    types.SaltFromUint64(123456),
	}
}

func TestOpenMissingFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)
	require.Zero(t, s.Len())

	_, ok := s.Lookup(testInitCode, testFactory)
	require.False(t, ok)
}

func TestStoreLookupRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	s, err := Open(path)
	require.NoError(t, err)

	want := testResult()
	require.NoError(t, s.Store(testInitCode, testFactory, want))

	got, ok := s.Lookup(testInitCode, testFactory)
	require.True(t, ok)
	require.Equal(t, want, got)

	// Different factory under the same init code is a distinct key.
	other := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	_, ok = s.Lookup(testInitCode, other)
	require.False(t, ok)
}

func TestPersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	s, err := Open(path)
	require.NoError(t, err)
	want := testResult()
	require.NoError(t, s.Store(testInitCode, testFactory, want))

	reopened, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, 1, reopened.Len())
	got, ok := reopened.Lookup(testInitCode, testFactory)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestFileFormat(t *testing.T) {
	// The on-disk shape is initCodeHex -> factoryHex -> {address, salt},
	// all lowercase hex, so deployment runs can diff and commit it.
	path := filepath.Join(t.TempDir(), "cache.json")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Store(testInitCode, testFactory, testResult()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]map[string]map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))

	byFactory, ok := decoded["60806040"]
	require.True(t, ok, "top-level key must be the init code hex")
	e, ok := byFactory["0xce0042b868300000d44a59004da54a005ffdcf9f"]
	require.True(t, ok, "second-level key must be the lowercase factory hex")
	require.Equal(t, "0x501ace0000000000000000000000000000000001", e["address"])
	require.Equal(t, "0x000000000000000000000000000000000000000000000000000000000001e240", e["salt"])
}

func TestStoreIdenticalResultTwice(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)

	require.NoError(t, s.Store(testInitCode, testFactory, testResult()))
	require.NoError(t, s.Store(testInitCode, testFactory, testResult()))
	require.Equal(t, 1, s.Len())
}

func TestStoreConflictingResult(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)
	require.NoError(t, s.Store(testInitCode, testFactory, testResult()))

	conflicting := testResult()
	conflicting.Salt = types.SaltFromUint64(999)
	err = s.Store(testInitCode, testFactory, conflicting)
	require.ErrorIs(t, err, types.ErrCacheConflict)

	// The original entry must survive.
	got, ok := s.Lookup(testInitCode, testFactory)
	require.True(t, ok)
	require.Equal(t, testResult(), got)
}

func TestConcurrentStores(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			code := append([]byte{byte(i)}, testInitCode...)
			res := types.MinedResult{
				Address: common.BigToAddress(common.Big1),
				Salt:    types.SaltFromUint64(uint64(i)),
			}
			done <- s.Store(code, testFactory, res)
		}(i)
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}
	require.Equal(t, 8, s.Len())
}
