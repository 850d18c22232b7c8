package crypto

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Vectors from EIP-1014.
func TestCreate2Address(t *testing.T) {
	tests := []struct {
		name     string
		factory  string
		salt     string
		initCode string
		expected string
	}{
		{
			name:     "zero everything",
			factory:  "0x0000000000000000000000000000000000000000",
			salt:     "0x0000000000000000000000000000000000000000000000000000000000000000",
			initCode: "0x00",
			expected: "0x4D1A2e2bB4F88F0250f26Ffff098B0b30B26BF38",
		},
		{
			name:     "deadbeef deployer",
			factory:  "0xdeadbeef00000000000000000000000000000000",
			salt:     "0x0000000000000000000000000000000000000000000000000000000000000000",
			initCode: "0x00",
			expected: "0xB928f69Bb1D91Cd65274e3c79d8986362984fDA3",
		},
		{
			name:     "cafebabe salt",
			factory:  "0xdeadbeef00000000000000000000000000000000",
			salt:     "0x000000000000000000000000feed000000000000000000000000000000000000",
			initCode: "0x00",
			expected: "0xD04116cDd17beBE565EB2422F2497E06cC1C9833",
		},
		{
			name:     "deadbeef code",
			factory:  "0x00000000000000000000000000000000deadbeef",
			salt:     "0x00000000000000000000000000000000000000000000000000000000cafebabe",
			initCode: "0xdeadbeef",
			expected: "0x60f3f640a8508fC6a86d45DF051962668E1e8AC7",
		},
		{
			name:     "empty init code",
			factory:  "0x0000000000000000000000000000000000000000",
			salt:     "0x0000000000000000000000000000000000000000000000000000000000000000",
			initCode: "0x",
			expected: "0xE33C0C7F7df4809055C3ebA6c09CFe4BaF1BD9e0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := common.HexToAddress(tt.factory)
			initCode := common.FromHex(tt.initCode)
			var salt [32]byte
			copy(salt[:], common.FromHex(tt.salt))

			got := Create2Address(factory, salt, Keccak256(initCode))
			if got != common.HexToAddress(tt.expected) {
				t.Errorf("Create2Address() = %s, want %s", got.Hex(), tt.expected)
			}

			// Cross-check against go-ethereum's derivation.
			ref := gethcrypto.CreateAddress2(factory, salt, gethcrypto.Keccak256(initCode))
			if got != ref {
				t.Errorf("Create2Address() = %s, go-ethereum says %s", got.Hex(), ref.Hex())
			}
		})
	}
}

func TestCreate2AddressInto(t *testing.T) {
	factory := common.HexToAddress("0xce0042B868300000d44A59004Da54A005ffdcf9f")
	initCode := common.FromHex("0x6080604052")
	initCodeHash := Keccak256(initCode)
	salt := [32]byte{31: 0x2a}

	var input [Create2InputLen]byte
	prefix := Create2Prefix(factory)
	copy(input[:], prefix[:])
	copy(input[Create2SaltOffset:], salt[:])
	copy(input[Create2SuffixOffset:], initCodeHash)

	hasher := NewKeccak()
	var hashBuf [32]byte
	var addrBuf [20]byte
	Create2AddressInto(hasher, input[:], hashBuf[:], addrBuf[:])

	want := Create2Address(factory, salt, initCodeHash)
	if !bytes.Equal(addrBuf[:], want[:]) {
		t.Errorf("Create2AddressInto() = %x, want %x", addrBuf, want)
	}

	// Reusing the hasher must not leak state between inputs.
	Create2AddressInto(hasher, input[:], hashBuf[:], addrBuf[:])
	if !bytes.Equal(addrBuf[:], want[:]) {
		t.Errorf("reused hasher produced %x, want %x", addrBuf, want)
	}
}

func TestCreate2PrefixLayout(t *testing.T) {
	factory := common.HexToAddress("0xce0042B868300000d44A59004Da54A005ffdcf9f")
	prefix := Create2Prefix(factory)
	if prefix[0] != 0xff {
		t.Errorf("prefix[0] = %#x, want 0xff", prefix[0])
	}
	if !bytes.Equal(prefix[1:], factory[:]) {
		t.Errorf("prefix[1:] = %x, want %x", prefix[1:], factory)
	}
}

func TestPrefixMatcher(t *testing.T) {
	addr := common.HexToAddress("0x501aceF0b6789abcdef0123456789abcdef01234")
	tests := []struct {
		name     string
		prefix   string
		expected bool
	}{
		{name: "full byte match", prefix: "501ace", expected: true},
		{name: "0x prefix accepted", prefix: "0x501ace", expected: true},
		{name: "uppercase accepted", prefix: "501ACE", expected: true},
		{name: "odd length match", prefix: "501acef", expected: true},
		{name: "odd length mismatch", prefix: "501aced", expected: false},
		{name: "single nibble", prefix: "5", expected: true},
		{name: "mismatch", prefix: "9999", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewPrefixMatcher(tt.prefix)
			if err != nil {
				t.Fatalf("NewPrefixMatcher(%q): %v", tt.prefix, err)
			}
			if got := m.Match(addr[:]); got != tt.expected {
				t.Errorf("Match() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPrefixMatcherRejectsBadInput(t *testing.T) {
	for _, prefix := range []string{"", "0x", "zz", "501acg", strings.Repeat("a", 41)} {
		if _, err := NewPrefixMatcher(prefix); err == nil {
			t.Errorf("NewPrefixMatcher(%q) accepted invalid prefix", prefix)
		}
	}
}

func TestPrefixMatcherAgainstHexEncoding(t *testing.T) {
	// Byte-level matching must agree with string matching over hex text.
	addrs := []string{
		"0x0000ace00000000000000000000000000000beef",
		"0x501ace0000000000000000000000000000000000",
		"0xffffffffffffffffffffffffffffffffffffffff",
	}
	prefixes := []string{"0", "00", "000", "5", "50", "501", "501ace", "f", "ff"}
	for _, a := range addrs {
		raw := common.HexToAddress(a)
		text := hex.EncodeToString(raw[:])
		for _, p := range prefixes {
			m, err := NewPrefixMatcher(p)
			if err != nil {
				t.Fatalf("NewPrefixMatcher(%q): %v", p, err)
			}
			want := strings.HasPrefix(text, p)
			if got := m.Match(raw[:]); got != want {
				t.Errorf("Match(%s, %q) = %v, want %v", a, p, got, want)
			}
		}
	}
}
