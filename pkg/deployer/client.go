package deployer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"

	"github.com/solace-fi/create2-deployer/pkg/types"
)

// The singleton factory exposes a single entry point taking the init code
// and a 32-byte salt and returning the created address (ERC-2470 shape).
var funcDeploy = w3.MustNewFunc("deploy(bytes _initCode, bytes32 _salt)", "address")

const (
	// DefaultGasLimit bounds a single factory deployment. CREATE2 through
	// the factory adds little overhead on top of the contract's own init.
	DefaultGasLimit uint64 = 5_000_000

	defaultRPCTimeout  = 30 * time.Second
	receiptPollEvery   = 2 * time.Second
	confirmPollEvery   = 2 * time.Second
	defaultReceiptWait = 5 * time.Minute
)

// ClientConfig carries everything needed to talk to one network.
type ClientConfig struct {
	RPCURL        string
	ChainID       int64
	PrivateKey    *ecdsa.PrivateKey
	Factory       common.Address
	GasLimit      uint64   // 0 means DefaultGasLimit
	GasFeeCap     *big.Int // wei
	GasTipCap     *big.Int // wei
	Confirmations uint64   // blocks after inclusion before a deploy is final
	ReceiptWait   time.Duration
}

// Client submits factory deployments and answers chain-state queries for a
// single network. All calls are context- and timeout-bounded so a stuck
// endpoint cannot hang the process.
type Client struct {
	w3c     *w3.Client
	signer  gethtypes.Signer
	key     *ecdsa.PrivateKey
	from    common.Address
	factory common.Address

	gasLimit      uint64
	gasFeeCap     *big.Int
	gasTipCap     *big.Int
	confirmations uint64
	receiptWait   time.Duration
	rpcTimeout    time.Duration
}

// Dial connects to the network described by cfg.
func Dial(cfg ClientConfig) (*Client, error) {
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("missing signer key")
	}
	w3c, err := w3.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	c := &Client{
		w3c:           w3c,
		signer:        gethtypes.NewLondonSigner(big.NewInt(cfg.ChainID)),
		key:           cfg.PrivateKey,
		from:          crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey),
		factory:       cfg.Factory,
		gasLimit:      cfg.GasLimit,
		gasFeeCap:     cfg.GasFeeCap,
		gasTipCap:     cfg.GasTipCap,
		confirmations: cfg.Confirmations,
		receiptWait:   cfg.ReceiptWait,
		rpcTimeout:    defaultRPCTimeout,
	}
	if c.gasLimit == 0 {
		c.gasLimit = DefaultGasLimit
	}
	if c.receiptWait == 0 {
		c.receiptWait = defaultReceiptWait
	}
	return c, nil
}

// Factory returns the singleton deployer address this client submits through.
func (c *Client) Factory() common.Address { return c.factory }

// From returns the signer address.
func (c *Client) From() common.Address { return c.from }

// Close releases the underlying RPC connection.
func (c *Client) Close() error { return c.w3c.Close() }

// CodeExists reports whether any code is deployed at addr. This read is the
// idempotency gate for the whole flow: re-running a deployment against an
// already-populated address skips the transaction.
func (c *Client) CodeExists(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.codeAt(ctx, addr)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

func (c *Client) codeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.rpcTimeout)
	defer cancel()
	var code []byte
	if err := c.w3c.CallCtx(ctx, eth.Code(addr, nil).Returns(&code)); err != nil {
		return nil, fmt.Errorf("get code at %s: %w", addr.Hex(), err)
	}
	return code, nil
}

// Deploy submits initCode and salt to the factory's deploy entry point,
// waits for inclusion plus the configured confirmation depth, and verifies
// that expected now holds code. Failures are *types.DeploymentError; the
// caller decides whether to re-run the (idempotent) flow.
func (c *Client) Deploy(ctx context.Context, initCode []byte, salt types.Salt, expected common.Address) (types.DeploymentRecord, error) {
	calldata, err := funcDeploy.EncodeArgs(initCode, [32]byte(salt))
	if err != nil {
		return types.DeploymentRecord{}, &types.DeploymentError{Stage: "encode", Err: err}
	}

	nonce, err := c.nonce(ctx)
	if err != nil {
		return types.DeploymentRecord{}, &types.DeploymentError{Stage: "nonce", Err: err}
	}

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		Nonce:     nonce,
		To:        &c.factory,
		GasFeeCap: c.gasFeeCap,
		GasTipCap: c.gasTipCap,
		Gas:       c.gasLimit,
		Data:      calldata,
	})
	txHash, err := c.sendTx(ctx, tx)
	if err != nil {
		return types.DeploymentRecord{}, &types.DeploymentError{Stage: "send", Err: err}
	}

	receipt, err := c.waitReceipt(ctx, txHash)
	if err != nil {
		return types.DeploymentRecord{}, &types.DeploymentError{Stage: "receipt", Err: err}
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return types.DeploymentRecord{}, &types.DeploymentError{
			Stage: "receipt",
			Err:   fmt.Errorf("transaction %s reverted", txHash.Hex()),
		}
	}
	if err := c.waitConfirmations(ctx, receipt.BlockNumber.Uint64()); err != nil {
		return types.DeploymentRecord{}, &types.DeploymentError{Stage: "confirm", Err: err}
	}

	code, err := c.codeAt(ctx, expected)
	if err != nil {
		return types.DeploymentRecord{}, &types.DeploymentError{Stage: "code", Err: err}
	}
	if len(code) == 0 {
		return types.DeploymentRecord{}, &types.DeploymentError{
			Stage: "code",
			Err:   fmt.Errorf("no code at %s after deployment", expected.Hex()),
		}
	}

	return types.DeploymentRecord{
		TxHash:   txHash,
		GasUsed:  receipt.GasUsed,
		CodeSize: len(code),
	}, nil
}

func (c *Client) nonce(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.rpcTimeout)
	defer cancel()
	var nonce uint64
	if err := c.w3c.CallCtx(ctx, eth.Nonce(c.from, nil).Returns(&nonce)); err != nil {
		return 0, fmt.Errorf("get nonce: %w", err)
	}
	return nonce, nil
}

func (c *Client) sendTx(ctx context.Context, tx *gethtypes.Transaction) (common.Hash, error) {
	signedTx, err := gethtypes.SignTx(tx, c.signer, c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.rpcTimeout)
	defer cancel()
	var hash common.Hash
	if err := c.w3c.CallCtx(ctx, eth.SendTx(signedTx).Returns(&hash)); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	return signedTx.Hash(), nil
}

// waitReceipt polls for the transaction receipt until it lands or the
// receipt wait budget runs out.
func (c *Client) waitReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.receiptWait)
	defer cancel()

	ticker := time.NewTicker(receiptPollEvery)
	defer ticker.Stop()
	for {
		var receipt *gethtypes.Receipt
		err := c.w3c.CallCtx(ctx, eth.TxReceipt(txHash).Returns(&receipt))
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt of %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// waitConfirmations blocks until the chain head is at least confirmations
// blocks past the inclusion block.
func (c *Client) waitConfirmations(ctx context.Context, included uint64) error {
	if c.confirmations == 0 {
		return nil
	}
	target := included + c.confirmations

	ticker := time.NewTicker(confirmPollEvery)
	defer ticker.Stop()
	for {
		var head *big.Int
		if err := c.w3c.CallCtx(ctx, eth.BlockNumber().Returns(&head)); err == nil && head.Uint64() >= target {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d confirmations: %w", c.confirmations, ctx.Err())
		case <-ticker.C:
		}
	}
}
