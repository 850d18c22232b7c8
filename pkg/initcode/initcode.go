// Package initcode builds the exact payload a contract-creation transaction
// executes: creation bytecode followed by the ABI-encoded constructor
// arguments. Encoding is done directly against the constructor signature;
// no transaction construction or chain access is involved, so the output is
// a pure function of its inputs.
package initcode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/solace-fi/create2-deployer/pkg/types"
)

// Resolve returns bytecode ++ abiEncode(constructor args). A mismatch
// between args and the declared constructor yields a *types.EncodingError
// naming the offending parameter.
func Resolve(bytecode []byte, contractABI abi.ABI, args ...interface{}) ([]byte, error) {
	if len(bytecode) == 0 {
		return nil, &types.EncodingError{Err: fmt.Errorf("empty creation bytecode")}
	}
	inputs := contractABI.Constructor.Inputs
	if len(args) != len(inputs) {
		return nil, &types.EncodingError{
			Err: fmt.Errorf("constructor wants %d args, got %d", len(inputs), len(args)),
		}
	}
	if len(args) == 0 {
		return bytecode, nil
	}

	encoded, err := contractABI.Pack("", args...)
	if err != nil {
		return nil, &types.EncodingError{Param: offendingParam(inputs, args), Err: err}
	}
	out := make([]byte, 0, len(bytecode)+len(encoded))
	out = append(out, bytecode...)
	out = append(out, encoded...)
	return out, nil
}

// offendingParam re-packs each argument alone to name the one that failed.
func offendingParam(inputs abi.Arguments, args []interface{}) string {
	for i, input := range inputs {
		if _, err := (abi.Arguments{input}).Pack(args[i]); err != nil {
			if input.Name != "" {
				return input.Name
			}
			return strconv.Itoa(i)
		}
	}
	return ""
}

// Artifact is the compiler output consumed by the deployer: the contract's
// ABI and creation bytecode.
type Artifact struct {
	ContractName string
	ABI          abi.ABI
	Bytecode     []byte
}

type rawArtifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// LoadArtifact reads a solc/hardhat-style artifact JSON file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var raw rawArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", path, err)
	}
	if len(raw.ABI) == 0 || raw.Bytecode == "" {
		return nil, fmt.Errorf("artifact %s missing abi or bytecode", path)
	}
	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, fmt.Errorf("parse artifact ABI: %w", err)
	}
	code, err := hexutil.Decode(raw.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("parse artifact bytecode: %w", err)
	}
	return &Artifact{ContractName: raw.ContractName, ABI: parsed, Bytecode: code}, nil
}

// ParseArgs converts a JSON array of constructor argument values into the Go
// values the ABI encoder expects for this contract's constructor. Supported
// element kinds cover the deployment surface: address, uintN/intN (decimal
// string or number), bool, string, and fixed or dynamic bytes as hex.
func ParseArgs(contractABI abi.ABI, jsonArgs string) ([]interface{}, error) {
	if strings.TrimSpace(jsonArgs) == "" {
		jsonArgs = "[]"
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(jsonArgs), &raw); err != nil {
		return nil, fmt.Errorf("constructor args must be a JSON array: %w", err)
	}
	inputs := contractABI.Constructor.Inputs
	if len(raw) != len(inputs) {
		return nil, &types.EncodingError{
			Err: fmt.Errorf("constructor wants %d args, got %d", len(inputs), len(raw)),
		}
	}

	out := make([]interface{}, len(raw))
	for i, input := range inputs {
		v, err := parseArg(input.Type, raw[i])
		if err != nil {
			name := input.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, &types.EncodingError{Param: name, Err: err}
		}
		out[i] = v
	}
	return out, nil
}

func parseArg(t abi.Type, raw json.RawMessage) (interface{}, error) {
	switch t.T {
	case abi.AddressTy:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("address must be a hex string: %w", err)
		}
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		return common.HexToAddress(s), nil

	case abi.UintTy, abi.IntTy:
		// Accept either a JSON number or a decimal/hex string; big values
		// do not survive float64 round-trips so strings are preferred.
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			var n json.Number
			if err := json.Unmarshal(raw, &n); err != nil {
				return nil, fmt.Errorf("integer must be a number or string")
			}
			s = n.String()
		}
		s = strings.ToLower(strings.TrimSpace(s))
		b := 10
		if strings.HasPrefix(s, "0x") {
			s, b = s[2:], 16
		}
		v, ok := new(big.Int).SetString(s, b)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		return coerceInt(t, v)

	case abi.BoolTy:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("bool must be true or false: %w", err)
		}
		return b, nil

	case abi.StringTy:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("string expected: %w", err)
		}
		return s, nil

	case abi.BytesTy:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("bytes must be a hex string: %w", err)
		}
		return hexutil.Decode(s)

	case abi.FixedBytesTy:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("bytes%d must be a hex string: %w", t.Size, err)
		}
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("bytes%d value has %d bytes", t.Size, len(b))
		}
		// The encoder wants a [N]byte array, not a slice.
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil

	default:
		return nil, fmt.Errorf("unsupported constructor argument type %s", t.String())
	}
}

// coerceInt narrows a big.Int to the Go type the abi encoder expects for
// small integer widths, rejecting anything outside the declared width so a
// bad value never truncates silently.
func coerceInt(t abi.Type, v *big.Int) (interface{}, error) {
	if t.T == abi.UintTy {
		if v.Sign() < 0 || v.BitLen() > t.Size {
			return nil, fmt.Errorf("value %s out of range for uint%d", v, t.Size)
		}
		if t.Size > 64 {
			return v, nil
		}
		u := v.Uint64()
		switch t.Size {
		case 8:
			return uint8(u), nil
		case 16:
			return uint16(u), nil
		case 32:
			return uint32(u), nil
		case 64:
			return u, nil
		}
		return v, nil
	}

	// int range: -(2^(size-1)) .. 2^(size-1)-1
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1)), big.NewInt(1))
	min := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1)))
	if v.Cmp(min) < 0 || v.Cmp(max) > 0 {
		return nil, fmt.Errorf("value %s out of range for int%d", v, t.Size)
	}
	if t.Size > 64 {
		return v, nil
	}
	n := v.Int64()
	switch t.Size {
	case 8:
		return int8(n), nil
	case 16:
		return int16(n), nil
	case 32:
		return int32(n), nil
	case 64:
		return n, nil
	}
	return v, nil
}
