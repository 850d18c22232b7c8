// Package deployer drives deterministic contract deployments through a
// singleton CREATE2 factory: resolve init code, mine (or recall) a
// vanity-prefixed address, skip if code already exists, otherwise deploy and
// confirm, then notify the source-verification service on a best-effort
// basis.
package deployer

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/solace-fi/create2-deployer/internal/logger"
	"github.com/solace-fi/create2-deployer/pkg/initcode"
	"github.com/solace-fi/create2-deployer/pkg/miner"
	"github.com/solace-fi/create2-deployer/pkg/types"
)

// Notifier is the best-effort hook invoked after every successful flow.
// Implementations must swallow their own errors.
type Notifier interface {
	Notify(ctx context.Context, req NotifyRequest)
}

// NotifyRequest carries what a source-verification service needs.
type NotifyRequest struct {
	Address         string // checksummed contract address
	ContractName    string
	ConstructorArgs []byte // ABI-encoded, without the bytecode
	SourcePath      string
}

// Request describes one deterministic deployment.
type Request struct {
	ContractName string
	Bytecode     []byte
	ABI          abi.ABI
	Args         []interface{}
	Prefix       string // wanted lowercase hex address prefix
	SourcePath   string // optional, forwarded to the notifier
}

// Pipeline wires the miner, the chain client and the notifier into the full
// deployment flow. All collaborators are explicit handles; nothing is
// process-global.
type Pipeline struct {
	miner    *miner.Miner
	client   *Client
	notifier Notifier // nil disables verification
	log      *logger.Logger
}

// NewPipeline creates a pipeline. notifier may be nil; a nil log discards.
func NewPipeline(m *miner.Miner, c *Client, n Notifier, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	return &Pipeline{miner: m, client: c, notifier: n, log: log}
}

// DeployDeterministic runs one request through the flow and returns a typed
// outcome. Exactly one of three error kinds can surface: encoding, search
// exhaustion, or deployment failure; verification never fails the flow.
// Re-invoking with the same request is idempotent: the second run reports
// the same address with Deployed=false.
func (p *Pipeline) DeployDeterministic(ctx context.Context, req Request) (types.Outcome, error) {
	code, err := initcode.Resolve(req.Bytecode, req.ABI, req.Args...)
	if err != nil {
		return types.Outcome{}, err
	}
	ctorArgs := code[len(req.Bytecode):]

	mined, err := p.miner.Mine(ctx, code, p.client.Factory(), req.Prefix)
	if err != nil {
		return types.Outcome{}, err
	}
	p.log.Printf("Mined address %s (salt %d) for %s", mined.Address.Hex(), mined.Salt.Uint64(), req.ContractName)

	exists, err := p.client.CodeExists(ctx, mined.Address)
	if err != nil {
		return types.Outcome{}, &types.DeploymentError{Stage: "exists", Err: err}
	}

	out := types.Outcome{Address: mined.Address, Salt: mined.Salt}
	if exists {
		p.log.Printf("Code already present at %s, skipping deployment", mined.Address.Hex())
	} else {
		record, err := p.client.Deploy(ctx, code, mined.Salt, mined.Address)
		if err != nil {
			return types.Outcome{}, err
		}
		p.log.Printf("Deployed %s at %s (tx %s, %d gas, %d bytes of code)",
			req.ContractName, mined.Address.Hex(), record.TxHash.Hex(), record.GasUsed, record.CodeSize)
		out.Deployed = true
		out.GasUsed = record.GasUsed
		out.TxHash = record.TxHash
	}

	if p.notifier != nil {
		p.notifier.Notify(ctx, NotifyRequest{
			Address:         mined.Address.Hex(),
			ContractName:    req.ContractName,
			ConstructorArgs: ctorArgs,
			SourcePath:      req.SourcePath,
		})
	}
	return out, nil
}
