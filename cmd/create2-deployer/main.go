package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/solace-fi/create2-deployer/internal/config"
	logpkg "github.com/solace-fi/create2-deployer/internal/logger"
	"github.com/solace-fi/create2-deployer/pkg/cache"
	"github.com/solace-fi/create2-deployer/pkg/deployer"
	"github.com/solace-fi/create2-deployer/pkg/initcode"
	minerpkg "github.com/solace-fi/create2-deployer/pkg/miner"
	"github.com/solace-fi/create2-deployer/pkg/verify"
)

var (
	cfg    = config.NewConfig()
	logger *logpkg.Logger
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "create2-deployer",
		Short: "Deterministic vanity-address contract deployer",
		Long: `Deploys contracts to deterministic CREATE2 addresses through a singleton
factory so the same contract lands at the same vanity-prefixed address on
every network. Mining results are cached on disk and deployments are
idempotent: re-running against an already-populated address is a no-op.`,
	}

	pf := rootCmd.PersistentFlags()
	pf.IntVarP(&cfg.Workers, "workers", "w", runtime.NumCPU(), "Number of worker goroutines")
	pf.StringVarP(&cfg.Prefix, "prefix", "p", cfg.Prefix, "Vanity address prefix (hex)")
	pf.Uint64Var(&cfg.SaltCap, "salt-cap", cfg.SaltCap, "Exclusive upper bound of the salt search")
	pf.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Verbose output")
	pf.StringVarP(&cfg.LogFile, "log-file", "l", "", "Log file for progress tracking (default: stdout)")
	pf.IntVarP(&cfg.LogInterval, "log-interval", "i", 5, "Logging interval in seconds")
	pf.StringVar(&cfg.FactoryAddress, "factory", cfg.FactoryAddress, "Singleton factory address")
	pf.StringVar(&cfg.CachePath, "cache", cfg.CachePath, "Mined-result cache file")
	pf.StringVarP(&cfg.ArtifactPath, "artifact", "a", "", "Contract artifact JSON (abi + bytecode)")
	pf.StringVarP(&cfg.Bytecode, "bytecode", "B", "", "Creation bytecode (hex), alternative to --artifact")
	pf.StringVarP(&cfg.BytecodeFile, "bytecode-file", "F", "", "File containing creation bytecode (hex)")
	pf.StringVar(&cfg.ConstructorArgs, "args", "", "Constructor arguments as a JSON array")
	pf.StringVar(&cfg.ContractName, "name", "", "Contract name (defaults to the artifact's)")

	var mineCmd = &cobra.Command{
		Use:   "mine",
		Short: "Mine a vanity CREATE2 address without touching a network",
		Run:   runMine,
	}

	var deployCmd = &cobra.Command{
		Use:   "deploy",
		Short: "Mine and deploy through the singleton factory",
		Run:   runDeploy,
	}
	df := deployCmd.Flags()
	df.StringVar(&cfg.RPCURL, "rpc-url", cfg.RPCURL, "JSON-RPC endpoint (env RPC_URL)")
	df.Int64Var(&cfg.ChainID, "chain-id", cfg.ChainID, "Chain ID (env CHAIN_ID)")
	df.Uint64Var(&cfg.GasLimit, "gas-limit", 0, "Gas limit per deployment (0 = default)")
	df.Int64Var(&cfg.GasFeeCap, "gas-fee-cap", cfg.GasFeeCap, "Max fee per gas in wei")
	df.Int64Var(&cfg.GasTipCap, "gas-tip-cap", cfg.GasTipCap, "Max priority fee per gas in wei")
	df.Uint64Var(&cfg.Confirmations, "confirmations", cfg.Confirmations, "Blocks to wait after inclusion")
	df.StringVar(&cfg.EtherscanURL, "etherscan-url", cfg.EtherscanURL, "Verification API endpoint (optional)")
	df.StringVar(&cfg.EtherscanKey, "etherscan-key", cfg.EtherscanKey, "Verification API key (env ETHERSCAN_API_KEY)")
	df.StringVar(&cfg.SourcePath, "source", "", "Contract source file for verification")
	df.StringVar(&cfg.CompilerVersion, "compiler-version", "", "solc version string for verification")

	rootCmd.AddCommand(mineCmd, deployCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runMine(cmd *cobra.Command, args []string) {
	if err := cfg.ValidateMine(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	setupLogging()

	factory, err := cfg.Factory()
	if err != nil {
		exitErr(err)
	}
	code, _, err := resolveInitCode()
	if err != nil {
		exitErr(err)
	}

	m, err := buildMiner()
	if err != nil {
		exitErr(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Printf("Starting salt search with %d workers...", cfg.Workers)
	logger.Printf("Prefix: %s", cfg.Prefix)
	logger.Printf("Factory address: %s", factory.Hex())

	start := time.Now()
	result, err := m.Mine(ctx, code, factory, cfg.Prefix)
	if err != nil {
		exitErr(err)
	}
	reportMined(m, result.Address, result.Salt.Hex(), time.Since(start))
}

func runDeploy(cmd *cobra.Command, args []string) {
	if err := cfg.ValidateDeploy(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	setupLogging()

	factory, err := cfg.Factory()
	if err != nil {
		exitErr(err)
	}
	key, err := cfg.SignerKey()
	if err != nil {
		exitErr(err)
	}
	_, artifact, err := resolveInitCode()
	if err != nil {
		exitErr(err)
	}

	m, err := buildMiner()
	if err != nil {
		exitErr(err)
	}

	client, err := deployer.Dial(deployer.ClientConfig{
		RPCURL:        cfg.RPCURL,
		ChainID:       cfg.ChainID,
		PrivateKey:    key,
		Factory:       factory,
		GasLimit:      cfg.GasLimit,
		GasFeeCap:     big.NewInt(cfg.GasFeeCap),
		GasTipCap:     big.NewInt(cfg.GasTipCap),
		Confirmations: cfg.Confirmations,
	})
	if err != nil {
		exitErr(err)
	}
	defer client.Close()

	var notifier deployer.Notifier
	if cfg.EtherscanURL != "" && cfg.EtherscanKey != "" {
		vc := verify.NewClient(cfg.EtherscanKey, cfg.EtherscanURL, rate.NewLimiter(rate.Every(time.Second), 1))
		notifier = verify.NewNotifier(vc, cfg.CompilerVersion, logger)
	}

	pipeline := deployer.NewPipeline(m, client, notifier, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Printf("Deploying %s via factory %s (signer %s)...", artifact.ContractName, factory.Hex(), client.From().Hex())

	outcome, err := pipeline.DeployDeterministic(ctx, deployer.Request{
		ContractName: artifact.ContractName,
		Bytecode:     artifact.Bytecode,
		ABI:          artifact.ABI,
		Args:         artifact.Args,
		Prefix:       cfg.Prefix,
		SourcePath:   cfg.SourcePath,
	})
	if err != nil {
		exitErr(err)
	}

	if outcome.Deployed {
		logger.Printf("🎉 Deployed at %s (salt %s, tx %s, %d gas)",
			outcome.Address.Hex(), outcome.Salt.Hex(), outcome.TxHash.Hex(), outcome.GasUsed)
	} else {
		logger.Printf("Already deployed at %s (salt %s)", outcome.Address.Hex(), outcome.Salt.Hex())
	}
}

// resolvedContract is the contract input after flag/artifact resolution.
type resolvedContract struct {
	ContractName string
	Bytecode     []byte
	ABI          abi.ABI
	Args         []interface{}
}

// resolveInitCode loads the contract input from either an artifact (with
// optional constructor args) or raw bytecode, returning the final init code
// alongside the pieces the pipeline re-derives it from.
func resolveInitCode() ([]byte, *resolvedContract, error) {
	rc := &resolvedContract{ContractName: cfg.ContractName}
	if cfg.ArtifactPath != "" {
		artifact, err := initcode.LoadArtifact(cfg.ArtifactPath)
		if err != nil {
			return nil, nil, err
		}
		rc.Bytecode = artifact.Bytecode
		rc.ABI = artifact.ABI
		if rc.ContractName == "" {
			rc.ContractName = artifact.ContractName
		}
		rc.Args, err = initcode.ParseArgs(artifact.ABI, cfg.ConstructorArgs)
		if err != nil {
			return nil, nil, err
		}
	} else {
		code, err := cfg.GetBytecode()
		if err != nil {
			return nil, nil, err
		}
		rc.Bytecode = code
	}
	code, err := initcode.Resolve(rc.Bytecode, rc.ABI, rc.Args...)
	if err != nil {
		return nil, nil, err
	}
	return code, rc, nil
}

func buildMiner() (*minerpkg.Miner, error) {
	opts := []minerpkg.Option{
		minerpkg.WithWorkers(cfg.Workers),
		minerpkg.WithSaltCap(cfg.SaltCap),
	}
	if cfg.CachePath != "" {
		store, err := cache.Open(cfg.CachePath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, minerpkg.WithCache(store))
	}
	if cfg.Verbose {
		opts = append(opts, minerpkg.WithProgressLog(logger, time.Duration(cfg.LogInterval)*time.Second))
	}
	return minerpkg.New(opts...), nil
}

func reportMined(m *minerpkg.Miner, addr common.Address, saltHex string, elapsed time.Duration) {
	logger.Printf("🎉 Found match!")
	logger.Printf("Salt: %s", saltHex)
	logger.Printf("Address: %s", addr.Hex())
	logger.Printf("Attempts: %d", m.Attempts())
	logger.Printf("Duration: %v", elapsed.Round(time.Millisecond))

	rate := 0.0
	if elapsed.Seconds() > 0 {
		rate = float64(m.Attempts()) / elapsed.Seconds()
	}
	logger.Printf("Rate: %.2f hashes/sec", rate)
}

func setupLogging() {
	if cfg.LogFile != "" {
		l, err := logpkg.NewFile(cfg.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		logger = l
	} else {
		logger = logpkg.New()
	}
}

func exitErr(err error) {
	logger.Printf("Error: %v", err)
	os.Exit(1)
}
