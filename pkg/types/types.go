package types

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Errors returned by the deterministic deployment pipeline. Encoding and
// exhaustion failures are not retryable; a deployment failure may be retried
// by re-running the whole flow, which is idempotent thanks to the existence
// check.
var (
	ErrSearchExhausted = errors.New("salt space exhausted without a prefix match")
	ErrCacheConflict   = errors.New("cached result differs from freshly mined result")
)

// EncodingError reports constructor arguments that cannot be ABI-encoded
// against the declared constructor signature.
type EncodingError struct {
	Param string // name or index of the mismatched parameter
	Err   error
}

func (e *EncodingError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("encode constructor args: %v", e.Err)
	}
	return fmt.Sprintf("encode constructor arg %q: %v", e.Param, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// DeploymentError reports a failed on-chain deployment attempt. The stage
// names which step failed (nonce, send, receipt, confirm, code).
type DeploymentError struct {
	Stage string
	Err   error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("deployment failed (%s): %v", e.Stage, e.Err)
}

func (e *DeploymentError) Unwrap() error { return e.Err }

// Salt is the 32-byte CREATE2 salt. Mined salts are small integers
// left-padded to 32 bytes.
type Salt [32]byte

// SaltFromUint64 encodes n as a big-endian 32-byte salt.
func SaltFromUint64(n uint64) Salt {
	var s Salt
	binary.BigEndian.PutUint64(s[24:], n)
	return s
}

// Uint64 returns the integer value of a mined salt. Only valid for salts
// produced by the miner, which never exceed 64 bits.
func (s Salt) Uint64() uint64 {
	return binary.BigEndian.Uint64(s[24:])
}

// Hex returns the 0x-prefixed hex encoding of the full 32-byte salt.
func (s Salt) Hex() string {
	return "0x" + hex.EncodeToString(s[:])
}

// MinedResult is an (address, salt) pair satisfying
// address == keccak256(0xff ++ factory ++ salt ++ keccak256(initCode))[12:]
// for the (initCode, factory) it was mined against.
type MinedResult struct {
	Address common.Address
	Salt    Salt
}

// DeploymentRecord describes a confirmed factory deployment.
type DeploymentRecord struct {
	TxHash   common.Hash
	GasUsed  uint64
	CodeSize int
}

// Outcome is the terminal result of a successful deployment request.
// Deployed is false when code already existed at the mined address and the
// transaction was skipped.
type Outcome struct {
	Address  common.Address
	Salt     Salt
	Deployed bool
	GasUsed  uint64
	TxHash   common.Hash
}
