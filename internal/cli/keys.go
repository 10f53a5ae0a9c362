package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/canopy-network/canopy/lib/musig"
)

// parseKeypair accepts a base58 keypair, or the path of a file holding either
// a base58 keypair or the JSON byte array written by solana-keygen.
func parseKeypair(value string) (*musig.SecretKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("--keypair is required")
	}

	if info, err := os.Stat(value); err == nil && !info.IsDir() {
		data, err := os.ReadFile(value)
		if err != nil {
			return nil, fmt.Errorf("failed to read keypair file: %w", err)
		}
		defer musig.ZeroizeBytes(data)

		text := strings.TrimSpace(string(data))
		if strings.HasPrefix(text, "[") {
			var raw []byte
			var numbers []int
			if err := json.Unmarshal([]byte(text), &numbers); err != nil {
				return nil, fmt.Errorf("invalid keypair file %s: %w", value, err)
			}
			raw = make([]byte, len(numbers))
			for i, n := range numbers {
				if n < 0 || n > 255 {
					return nil, fmt.Errorf("invalid keypair file %s: byte %d out of range", value, i)
				}
				raw[i] = byte(n)
			}
			defer musig.ZeroizeBytes(raw)
			return musig.NewSecretKeyFromKeypair(raw)
		}
		return musig.ParseKeypairBase58(text)
	}

	return musig.ParseKeypairBase58(value)
}

func parsePublicKeys(values []string) ([]musig.PublicKey, error) {
	keys := make([]musig.PublicKey, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Fields(strings.ReplaceAll(value, ",", " ")) {
			pk, err := musig.ParsePublicKeyBase58(part)
			if err != nil {
				return nil, musig.ErrInvalidKeySet.WithDetails("invalid key %q", part).WithCause(err)
			}
			keys = append(keys, pk)
		}
	}
	return keys, nil
}

// sessionFlags are the session tuple flags shared by step two and the
// aggregation command
type sessionFlags struct {
	keys            []string
	to              string
	amount          float64
	memo            string
	recentBlockHash string
}

func (sf *sessionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSliceVar(&sf.keys, "keys", nil, "all signer public keys of the session")
	flags.StringVar(&sf.to, "to", "", "address of the recipient")
	flags.Float64Var(&sf.amount, "amount", 0, "amount of SOL to send")
	flags.StringVar(&sf.memo, "memo", "", "add a memo to the transaction")
	flags.StringVar(&sf.recentBlockHash, "recent-block-hash", "",
		"recent blockhash from `recent-block-hash`; all parties must pass the same value")
}

// resolveSession merges flags with the optional session file and parses the
// result into session parameters.
func (a *App) resolveSession(cmd *cobra.Command, sf sessionFlags) (musig.SessionParams, error) {
	changed := cmd.Flags().Changed
	net := a.config.Net

	if a.config.SessionFile != "" {
		file, err := LoadSessionFile(a.config.SessionFile)
		if err != nil {
			return musig.SessionParams{}, err
		}
		if !changed("keys") {
			sf.keys = file.Keys
		}
		if !changed("to") {
			sf.to = file.To
		}
		if !changed("amount") {
			sf.amount = file.Amount
		}
		if !changed("memo") {
			sf.memo = file.Memo
		}
		if !changed("recent-block-hash") {
			sf.recentBlockHash = file.RecentBlockHash
		}
		if !changed(keyNet) && file.Net != "" {
			net = file.Net
		}
		a.logger.Debug("session file loaded", "path", a.config.SessionFile)
	}

	if sf.to == "" {
		return musig.SessionParams{}, fmt.Errorf("--to is required")
	}
	if sf.recentBlockHash == "" {
		return musig.SessionParams{}, fmt.Errorf("--recent-block-hash is required")
	}

	keys, err := parsePublicKeys(sf.keys)
	if err != nil {
		return musig.SessionParams{}, err
	}
	to, err := musig.ParseSolanaAddress(sf.to)
	if err != nil {
		return musig.SessionParams{}, fmt.Errorf("invalid --to: %w", err)
	}
	blockhash, err := musig.ParseBlockhash(sf.recentBlockHash)
	if err != nil {
		return musig.SessionParams{}, err
	}
	network, err := musig.ParseNetwork(net)
	if err != nil {
		return musig.SessionParams{}, err
	}

	return musig.SessionParams{
		Keys:            keys,
		Recipient:       to,
		Amount:          sf.amount,
		Memo:            sf.memo,
		RecentBlockhash: blockhash,
		Network:         network,
		Ordering:        a.config.KeyOrdering(),
	}, nil
}

// nonceLedger opens the configured ledger. Only --no-nonce-ledger yields a
// nil ledger; a missing directory is an error.
func (a *App) nonceLedger() (musig.NonceLedger, error) {
	if a.config.NoNonceLedger {
		a.logger.Warn("nonce ledger disabled, secret states are not protected against reuse")
		return nil, nil
	}
	if a.config.NonceLedger == "" {
		return nil, fmt.Errorf("no nonce ledger directory: set --%s or pass --%s", keyNonceLedger, keyNoNonceLedger)
	}
	return musig.NewFileNonceLedger(a.config.NonceLedger)
}

// newSession builds a session, logging validation warnings
func (a *App) newSession(params musig.SessionParams, extra ...musig.SessionOption) (musig.Session, error) {
	result := musig.ValidateSessionParams(params)
	for _, warning := range result.Warnings {
		a.logger.Warn(warning)
	}
	for _, recommendation := range result.Recommendations {
		a.logger.Debug(recommendation)
	}

	opts := append([]musig.SessionOption{musig.WithAuditHandler(musig.NewLogAuditHandler(a.logger.Slog()))}, extra...)

	session, err := musig.NewSession(params, opts...)
	if err != nil {
		return musig.Session{}, err
	}
	a.logger.Debug("session ready",
		"aggregated_key", session.AggregatedKey().String(),
		"fingerprint", session.Fingerprint())
	return session, nil
}
