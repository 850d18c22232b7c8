package config

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ERC-2470 singleton factory, present at the same address on every network
// that ran the one-time keyless deployment.
const DefaultFactoryAddress = "0xce0042B868300000d44A59004Da54A005ffdcf9f"

// Defaults for the vanity search. The prefix is the project's brand prefix;
// the cap makes exhaustion a configuration signal rather than an endless
// loop.
const (
	DefaultPrefix  = "501ace"
	DefaultSaltCap = uint64(1) << 56
)

// Errors
var (
	ErrNoBytecodeSpecified = errors.New("must specify --artifact, --bytecode or --bytecode-file")
	ErrNoRPCSpecified      = errors.New("must specify --rpc-url (or RPC_URL)")
	ErrNoChainIDSpecified  = errors.New("must specify --chain-id (or CHAIN_ID)")
	ErrNoKeySpecified      = errors.New("must specify a private key (PRIVATE_KEY)")
)

// Config holds the application configuration
type Config struct {
	// Mining
	Workers     int
	Prefix      string
	SaltCap     uint64
	BatchSize   int
	Verbose     bool
	LogFile     string
	LogInterval int // seconds between progress lines

	// Contract input
	ArtifactPath    string
	Bytecode        string // raw hex, alternative to an artifact
	BytecodeFile    string
	ConstructorArgs string // JSON array
	ContractName    string

	// Chain
	RPCURL         string
	ChainID        int64
	PrivateKey     string
	FactoryAddress string
	GasLimit       uint64
	GasFeeCap      int64 // wei
	GasTipCap      int64 // wei
	Confirmations  uint64

	// Cache
	CachePath string

	// Verification (optional)
	EtherscanURL    string
	EtherscanKey    string
	SourcePath      string
	CompilerVersion string
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		Workers:        runtime.NumCPU(),
		Prefix:         DefaultPrefix,
		SaltCap:        DefaultSaltCap,
		LogInterval:    5,
		FactoryAddress: DefaultFactoryAddress,
		GasFeeCap:      envInt64("GAS_FEE_CAP", 2_000_000_000),
		GasTipCap:      envInt64("GAS_TIP_CAP", 1_000_000_000),
		Confirmations:  1,
		CachePath:      "create2_cache.json",
		RPCURL:         envOr("RPC_URL", ""),
		ChainID:        envInt64("CHAIN_ID", 0),
		PrivateKey:     envOr("PRIVATE_KEY", ""),
		EtherscanURL:   envOr("ETHERSCAN_URL", ""),
		EtherscanKey:   envOr("ETHERSCAN_API_KEY", ""),
	}
}

// ValidateMine validates what the offline mine subcommand needs.
func (c *Config) ValidateMine() error {
	if c.ArtifactPath == "" && c.Bytecode == "" && c.BytecodeFile == "" {
		return ErrNoBytecodeSpecified
	}
	if strings.TrimSpace(c.Prefix) == "" {
		return errors.New("must specify a non-empty --prefix")
	}
	return nil
}

// ValidateDeploy validates what the deploy subcommand needs on top of mining.
func (c *Config) ValidateDeploy() error {
	if err := c.ValidateMine(); err != nil {
		return err
	}
	if c.RPCURL == "" {
		return ErrNoRPCSpecified
	}
	if c.ChainID == 0 {
		return ErrNoChainIDSpecified
	}
	if c.PrivateKey == "" {
		return ErrNoKeySpecified
	}
	if _, err := c.Factory(); err != nil {
		return err
	}
	return nil
}

// Factory parses the configured factory address.
func (c *Config) Factory() (common.Address, error) {
	if !common.IsHexAddress(c.FactoryAddress) {
		return common.Address{}, fmt.Errorf("invalid factory address %q", c.FactoryAddress)
	}
	return common.HexToAddress(c.FactoryAddress), nil
}

// SignerKey parses the configured private key.
func (c *Config) SignerKey() (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// GetBytecode returns the raw creation bytecode when it was supplied
// directly rather than through an artifact.
func (c *Config) GetBytecode() ([]byte, error) {
	if c.BytecodeFile != "" {
		return readBytecodeFromFile(c.BytecodeFile)
	}
	if c.Bytecode != "" {
		return decodeHex(c.Bytecode)
	}
	return nil, ErrNoBytecodeSpecified
}

// readBytecodeFromFile reads hex bytecode from a file
func readBytecodeFromFile(filename string) ([]byte, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return decodeHex(string(content))
}

func decodeHex(s string) ([]byte, error) {
	code := strings.TrimSpace(s)
	if len(code) > 2 && code[:2] == "0x" {
		code = code[2:]
	}
	if len(code)%2 != 0 {
		return nil, fmt.Errorf("bytecode hex must have even length")
	}
	return hex.DecodeString(code)
}

// ---- env helpers ----

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
