package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/canopy-network/canopy/lib/musig"
)

// EnvPrefix prefixes every environment variable the tool reads
const EnvPrefix = "SOLANA_TSS"

// Config keys shared by flags, environment and config file
const (
	keyNet              = "net"
	keyRPCURL           = "rpc-url"
	keyNonceLedger      = "nonce-ledger"
	keyNoNonceLedger    = "no-nonce-ledger"
	keyPreserveKeyOrder = "preserve-key-order"
	keyVerbose          = "verbose"
	keyMetricsOut       = "metrics-out"
	keySessionFile      = "session-file"
	keyRPCRateLimit     = "rpc-rate-limit"
)

// Config is the resolved tool configuration
type Config struct {
	ConfigFile       string
	Net              string
	RPCURL           string
	NonceLedger      string // empty only when NoNonceLedger is set or no default exists
	NoNonceLedger    bool
	PreserveKeyOrder bool
	Verbose          bool
	MetricsOut       string
	SessionFile      string
	RPCRateLimit     float64 // requests per second, 0 disables throttling
}

// NewConfig returns the defaults
func NewConfig() *Config {
	return &Config{
		Net: string(musig.DefaultNetwork),
	}
}

// DefaultNonceLedgerDir is the per-user ledger directory, or "" when the
// platform reports no config directory.
func DefaultNonceLedgerDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ""
	}
	return filepath.Join(dir, "solana-tss", "nonces")
}

// Network parses the configured cluster
func (c *Config) Network() (musig.Network, error) {
	return musig.ParseNetwork(c.Net)
}

// Endpoint returns the RPC URL, preferring an explicit override
func (c *Config) Endpoint() (string, error) {
	if c.RPCURL != "" {
		return c.RPCURL, nil
	}
	network, err := c.Network()
	if err != nil {
		return "", err
	}
	return network.RPCURL(), nil
}

// KeyOrdering maps --preserve-key-order to the aggregation ordering
func (c *Config) KeyOrdering() musig.KeyOrdering {
	if c.PreserveKeyOrder {
		return musig.KeyOrderingAsGiven
	}
	return musig.KeyOrderingSorted
}

// loadConfig resolves cfg from flags, SOLANA_TSS_* variables and the config
// file, in that order of precedence.
func loadConfig(v *viper.Viper, flags *pflag.FlagSet, configFile string) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyNet, string(musig.DefaultNetwork))
	v.SetDefault(keyNonceLedger, DefaultNonceLedgerDir())

	for _, key := range []string{keyNet, keyRPCURL, keyNonceLedger, keyNoNonceLedger, keyPreserveKeyOrder, keyVerbose, keyMetricsOut, keySessionFile, keyRPCRateLimit} {
		if flag := flags.Lookup(key); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", key, err)
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".solana-tss")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		ConfigFile:       v.ConfigFileUsed(),
		Net:              v.GetString(keyNet),
		RPCURL:           v.GetString(keyRPCURL),
		NonceLedger:      v.GetString(keyNonceLedger),
		NoNonceLedger:    v.GetBool(keyNoNonceLedger),
		PreserveKeyOrder: v.GetBool(keyPreserveKeyOrder),
		Verbose:          v.GetBool(keyVerbose),
		MetricsOut:       v.GetString(keyMetricsOut),
		SessionFile:      v.GetString(keySessionFile),
		RPCRateLimit:     v.GetFloat64(keyRPCRateLimit),
	}
	if cfg.RPCRateLimit < 0 {
		return nil, fmt.Errorf("%s must not be negative", keyRPCRateLimit)
	}
	switch {
	case cfg.NoNonceLedger:
		cfg.NonceLedger = ""
	case cfg.NonceLedger != "":
		cfg.NonceLedger = filepath.Clean(cfg.NonceLedger)
	}
	if _, err := cfg.Network(); err != nil {
		return nil, err
	}
	return cfg, nil
}
