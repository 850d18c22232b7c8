package crypto

import (
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

const (
	// CREATE2 input layout: 0xff (1) + factory (20) + salt (32) + initcodeHash (32) = 85
	Create2PrefixLen = 1 + common.AddressLength
	Create2SaltLen   = 32
	Create2SuffixLen = 32
	Create2InputLen  = Create2PrefixLen + Create2SaltLen + Create2SuffixLen

	// Offsets of the salt and init-code-hash fields inside the input buffer.
	Create2SaltOffset   = Create2PrefixLen
	Create2SuffixOffset = Create2PrefixLen + Create2SaltLen
)

// NewKeccak returns a keccak256 hasher for reuse across many inputs.
// Workers hold one each to keep the hot loop allocation-free.
func NewKeccak() hash.Hash {
	return sha3.NewLegacyKeccak256()
}

// Keccak256 calculates the keccak256 hash of the input bytes.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(data)
	return h.Sum(nil)
}

// Create2Prefix returns the constant prefix for CREATE2 input
// (0xff + factory, 21 bytes). Caller copies it into the input buffer once
// and then only rewrites the salt field per attempt.
func Create2Prefix(factory common.Address) [Create2PrefixLen]byte {
	var p [Create2PrefixLen]byte
	p[0] = 0xff
	copy(p[1:], factory[:])
	return p
}

// Create2AddressInto hashes a CREATE2 input and writes the 20-byte address
// into addrBuf. Reuses the provided hasher to avoid allocations. inputBuf
// must be Create2InputLen (85) bytes laid out prefix(21) + salt(32) +
// initcodeHash(32); hashBuf must have capacity 32; addrBuf must be 20 bytes.
func Create2AddressInto(hasher hash.Hash, inputBuf, hashBuf, addrBuf []byte) {
	hasher.Reset()
	hasher.Write(inputBuf)
	sum := hasher.Sum(hashBuf[:0])
	copy(addrBuf, sum[12:32])
}

// Create2Address derives the address a factory deployment would produce for
// the given salt and init code hash. Convenience path for one-off
// derivations; the mining loop uses Create2AddressInto.
func Create2Address(factory common.Address, salt [32]byte, initCodeHash []byte) common.Address {
	var input [Create2InputLen]byte
	prefix := Create2Prefix(factory)
	copy(input[:], prefix[:])
	copy(input[Create2SaltOffset:], salt[:])
	copy(input[Create2SuffixOffset:], initCodeHash)
	return common.BytesToAddress(Keccak256(input[:])[12:])
}

// PrefixMatcher matches the leading hex characters of a 20-byte address
// without encoding it to a string. Odd-length prefixes compare the final
// high nibble directly.
type PrefixMatcher struct {
	full    []byte // whole bytes of the prefix
	half    byte   // high nibble when the prefix has odd length
	hasHalf bool
	text    string
}

// NewPrefixMatcher pre-decodes a hex prefix (with or without 0x,
// case-insensitive) for byte-level matching in the hot path.
func NewPrefixMatcher(prefix string) (*PrefixMatcher, error) {
	p := strings.ToLower(strings.TrimSpace(prefix))
	if strings.HasPrefix(p, "0x") {
		p = p[2:]
	}
	if p == "" {
		return nil, fmt.Errorf("empty address prefix")
	}
	if len(p) > 2*common.AddressLength {
		return nil, fmt.Errorf("prefix %q longer than an address", prefix)
	}
	m := &PrefixMatcher{text: p}
	whole := p
	if len(p)%2 != 0 {
		whole = p[:len(p)-1]
		nibble, err := hex.DecodeString(p[len(p)-1:] + "0")
		if err != nil {
			return nil, fmt.Errorf("invalid prefix hex %q: %w", prefix, err)
		}
		m.half = nibble[0] >> 4
		m.hasHalf = true
	}
	full, err := hex.DecodeString(whole)
	if err != nil {
		return nil, fmt.Errorf("invalid prefix hex %q: %w", prefix, err)
	}
	m.full = full
	return m, nil
}

// Match reports whether the lowercase hex encoding of addr starts with the
// prefix. addr must be 20 bytes.
func (m *PrefixMatcher) Match(addr []byte) bool {
	for i, b := range m.full {
		if addr[i] != b {
			return false
		}
	}
	if m.hasHalf {
		return addr[len(m.full)]>>4 == m.half
	}
	return true
}

// String returns the normalized lowercase prefix without 0x.
func (m *PrefixMatcher) String() string { return m.text }
