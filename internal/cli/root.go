// Package cli implements the solana-tss command-line tool
package cli

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/canopy-network/canopy/lib/musig"
	"github.com/canopy-network/canopy/lib/musig/adapters"
	"github.com/canopy-network/canopy/lib/musig/internal/logging"
	"github.com/canopy-network/canopy/lib/musig/internal/metrics"
)

// rpcTimeout bounds every round trip to the cluster
const rpcTimeout = 60 * time.Second

// App carries the state shared by all commands of one invocation
type App struct {
	config  *Config
	viper   *viper.Viper
	logger  *logging.Logger
	metrics *metrics.Recorder

	rng       io.Reader
	out       io.Writer
	errOut    io.Writer
	newClient func(endpoint string) adapters.RPCClient

	configFile string
}

// Option customizes an App, mainly for tests
type Option func(*App)

// WithRandom sets the randomness source for keys and nonces
func WithRandom(r io.Reader) Option {
	return func(a *App) { a.rng = r }
}

// WithRPCClientFactory replaces the JSON-RPC client constructor
func WithRPCClientFactory(factory func(endpoint string) adapters.RPCClient) Option {
	return func(a *App) { a.newClient = factory }
}

// WithOutput sets where command results are printed
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithErrorOutput sets where logs are written
func WithErrorOutput(w io.Writer) Option {
	return func(a *App) { a.errOut = w }
}

// NewApp creates an App with production defaults
func NewApp(opts ...Option) *App {
	a := &App{
		config:  NewConfig(),
		viper:   viper.New(),
		metrics: metrics.NewRecorder(),
		rng:     rand.Reader,
		out:     os.Stdout,
		errOut:  os.Stderr,
	}
	a.newClient = a.defaultClient
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.NewLoggerTo(a.errOut, false)
	return a
}

func (a *App) defaultClient(endpoint string) adapters.RPCClient {
	return adapters.NewSolanaAdapter(endpoint, adapters.WithRateLimit(a.config.RPCRateLimit, 1))
}

// NewRootCommand builds the command tree bound to a
func (a *App) NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "solana-tss",
		Short: "N-of-N aggregate Schnorr signing for Solana transfers",
		Long: `solana-tss lets N parties, each holding an ed25519 keypair, jointly sign a
Solana transfer from an aggregated address without revealing their keys.

A signing session runs in four steps:
  1. aggregate-keys                      derive the shared address
  2. agg-send-step-one                   each party publishes a nonce commitment
  3. agg-send-step-two                   each party produces a partial signature
  4. aggregate-signatures-and-broadcast  combine, verify and send

All parties must pass identical --keys, --to, --amount, --memo and
--recent-block-hash values.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(a.viper, cmd.Flags(), a.configFile)
			if err != nil {
				return err
			}
			a.config = cfg
			a.logger = logging.NewLoggerTo(a.errOut, cfg.Verbose).With("command", cmd.Name())
			a.logger.Debug("configuration loaded",
				"config_file", cfg.ConfigFile,
				"net", cfg.Net,
				"nonce_ledger", cfg.NonceLedger,
				"no_nonce_ledger", cfg.NoNonceLedger,
				"key_ordering", cfg.KeyOrdering().String())
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default is $HOME/.solana-tss.yaml)")
	flags.Bool(keyVerbose, false, "verbose output")
	flags.String(keyNet, string(musig.DefaultNetwork), "network: mainnet, testnet, devnet or local")
	flags.String(keyRPCURL, "", "override the network's RPC endpoint")
	flags.Bool(keyPreserveKeyOrder, false, "aggregate keys in the order given instead of sorting them")
	flags.String(keyNonceLedger, "", "directory recording consumed nonces, rejects reuse across runs (default is <user config dir>/solana-tss/nonces)")
	flags.Bool(keyNoNonceLedger, false, "do not record consumed nonces; a secret state reused for another message leaks the key")
	flags.String(keyMetricsOut, "", "write Prometheus metrics to this textfile on exit")
	flags.String(keySessionFile, "", "YAML file supplying session parameters not given as flags")
	flags.Float64(keyRPCRateLimit, 0, "maximum RPC requests per second, 0 for no limit")

	root.AddCommand(
		a.newGenerateCmd(),
		a.newBalanceCmd(),
		a.newAirdropCmd(),
		a.newSendSingleCmd(),
		a.newRecentBlockHashCmd(),
		a.newAggregateKeysCmd(),
		a.newAggSendStepOneCmd(),
		a.newAggSendStepTwoCmd(),
		a.newAggregateSignaturesCmd(),
	)
	return root
}

// Execute runs the tool with args and writes metrics when configured
func (a *App) Execute(ctx context.Context, args []string) error {
	root := a.NewRootCommand()
	root.SetArgs(args)
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	err := root.ExecuteContext(ctx)

	if err != nil {
		a.logger.Error(err)
	}
	if a.config.MetricsOut != "" {
		if werr := a.metrics.WriteTextfile(a.config.MetricsOut); werr != nil {
			a.logger.Warn("failed to write metrics", "path", a.config.MetricsOut, "error", werr)
		}
	}
	return err
}

// Execute runs the tool against the process arguments
func Execute() error {
	return NewApp().Execute(context.Background(), os.Args[1:])
}

// track records metrics for one command body
func (a *App) track(operation string, fn func() error) error {
	return a.metrics.Track(operation, classifyError, fn)
}

// classifyError labels an error by its protocol code, when it has one
func classifyError(err error) string {
	var protocolErr *musig.MuSigError
	if errors.As(err, &protocolErr) {
		return protocolErr.Code
	}
	var rpcErr *adapters.RPCError
	if errors.As(err, &rpcErr) {
		return "rpc"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "other"
}

// rpcClient returns a client for the configured endpoint
func (a *App) rpcClient() (adapters.RPCClient, error) {
	endpoint, err := a.config.Endpoint()
	if err != nil {
		return nil, err
	}
	a.logger.Debug("using rpc endpoint", "url", endpoint)
	return a.newClient(endpoint), nil
}

// rpcContext derives a bounded context for one RPC call
func rpcContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), rpcTimeout)
}
