package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/canopy-network/canopy/lib/musig"
	"github.com/canopy-network/canopy/lib/musig/internal/logging"
)

func (a *App) newAggregateKeysCmd() *cobra.Command {
	var writeSession string
	var sf sessionFlags

	cmd := &cobra.Command{
		Use:   "aggregate-keys KEY KEY [KEY...]",
		Short: "Aggregate a list of public keys into the shared address",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track("aggregate_keys", func() error {
				keys, err := parsePublicKeys(args)
				if err != nil {
					return err
				}
				agg, err := musig.AggregateKeys(keys, a.config.KeyOrdering())
				if err != nil {
					return err
				}
				musig.NewLogAuditHandler(a.logger.Slog()).OnKeyAggregation(
					musig.NewAuditEventBuilder(musig.AuditEventKeyAggregation, musig.ReasonProtocolStep).
						WithAggregatedKey(agg.AggregatedKey()).
						WithSignerCount(agg.Size()).
						WithMetadata("ordering", agg.Ordering().String()).
						Build())

				fmt.Fprintf(cmd.OutOrStdout(), "The Aggregated Public Key: %s\n", agg.AggregatedKey())

				if writeSession == "" {
					return nil
				}
				file := &SessionFile{
					To:              sf.to,
					Amount:          sf.amount,
					Memo:            sf.memo,
					RecentBlockHash: sf.recentBlockHash,
					Net:             a.config.Net,
				}
				for _, key := range agg.Keys() {
					file.Keys = append(file.Keys, key.String())
				}
				if err := file.Save(writeSession); err != nil {
					return err
				}
				a.logger.Info("session file written", "path", writeSession)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&writeSession, "write-session", "", "also write a session file with these keys")
	flags := cmd.Flags()
	flags.StringVar(&sf.to, "to", "", "recipient to record in the session file")
	flags.Float64Var(&sf.amount, "amount", 0, "amount to record in the session file")
	flags.StringVar(&sf.memo, "memo", "", "memo to record in the session file")
	flags.StringVar(&sf.recentBlockHash, "recent-block-hash", "", "blockhash to record in the session file")
	return cmd
}

func (a *App) newAggSendStepOneCmd() *cobra.Command {
	var keypair string

	cmd := &cobra.Command{
		Use:   "agg-send-step-one",
		Short: "Start aggregate signing: publish this party's nonce commitment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track("round1", func() error {
				sk, err := parseKeypair(keypair)
				if err != nil {
					return err
				}
				defer sk.Zeroize()

				commitment, state, err := musig.BeginRound1(sk, a.rng)
				if err != nil {
					return err
				}
				defer state.Zeroize()

				stateText, err := state.MarshalText()
				if err != nil {
					return err
				}
				a.logger.Debug("nonces generated", "signer", sk.PublicKey().String(), logging.Redacted("secret_state"))

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Message 1: %s (send this to all other parties)\n", commitment)
				fmt.Fprintf(out, "Secret state: %s (keep this secret, and give it back to agg-send-step-two)\n", stateText)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&keypair, "keypair", "", "base58 secret keypair, or a keypair file")
	_ = cmd.MarkFlagRequired("keypair")
	return cmd
}

func (a *App) newAggSendStepTwoCmd() *cobra.Command {
	var keypair, secretState string
	var firstMessages []string
	var sf sessionFlags

	cmd := &cobra.Command{
		Use:   "agg-send-step-two",
		Short: "Produce this party's partial signature from everyone's commitments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track("round2", func() error {
				sk, err := parseKeypair(keypair)
				if err != nil {
					return err
				}
				defer sk.Zeroize()

				state, err := musig.ParseSecretNonceState(strings.TrimSpace(secretState))
				if err != nil {
					return err
				}
				defer state.Zeroize()

				params, err := a.resolveSession(cmd, sf)
				if err != nil {
					return err
				}
				ledger, err := a.nonceLedger()
				if err != nil {
					return err
				}
				session, err := a.newSession(params, musig.WithSessionNonceLedger(ledger))
				if err != nil {
					return err
				}
				session, err = session.ResumeRound1(state)
				if err != nil {
					return err
				}

				commitments, err := parseCommitments(firstMessages)
				if err != nil {
					return err
				}
				commitments = withOwnCommitment(commitments, session.Commitment())

				_, partial, err := session.Sign(sk, nil, commitments)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Partial signature: %s\n", partial)
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&keypair, "keypair", "", "base58 secret keypair, or a keypair file")
	flags.StringSliceVar(&firstMessages, "first-messages", nil, "Message 1 of every party")
	flags.StringVar(&secretState, "secret-state", "", "secret state printed by agg-send-step-one")
	sf.register(cmd)
	_ = cmd.MarkFlagRequired("keypair")
	_ = cmd.MarkFlagRequired("first-messages")
	_ = cmd.MarkFlagRequired("secret-state")
	return cmd
}

func (a *App) newAggregateSignaturesCmd() *cobra.Command {
	var signatures []string
	var sf sessionFlags

	cmd := &cobra.Command{
		Use:   "aggregate-signatures-and-broadcast",
		Short: "Combine the partial signatures and broadcast the transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track("finalize", func() error {
				params, err := a.resolveSession(cmd, sf)
				if err != nil {
					return err
				}
				session, err := a.newSession(params)
				if err != nil {
					return err
				}

				partials := make([]*musig.PartialSignature, 0, len(signatures))
				for _, text := range signatures {
					partial, err := musig.ParsePartialSignature(strings.TrimSpace(text))
					if err != nil {
						return err
					}
					partials = append(partials, partial)
				}

				session, signature, err := session.Finalize(partials)
				if err != nil {
					return err
				}
				tx, err := session.SignedTransaction()
				if err != nil {
					return err
				}
				a.logger.Debug("aggregate signature verified", "signature", signature.String())

				client, err := a.rpcClient()
				if err != nil {
					return err
				}
				ctx, cancel := rpcContext(cmd)
				defer cancel()

				txID, err := client.SendTransaction(ctx, tx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Transaction ID: %s\n", txID)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&signatures, "signatures", nil, "partial signature of every party")
	sf.register(cmd)
	_ = cmd.MarkFlagRequired("signatures")
	return cmd
}

func parseCommitments(values []string) ([]*musig.NonceCommitment, error) {
	commitments := make([]*musig.NonceCommitment, 0, len(values))
	for _, value := range values {
		commitment, err := musig.ParseNonceCommitment(strings.TrimSpace(value))
		if err != nil {
			return nil, err
		}
		commitments = append(commitments, commitment)
	}
	return commitments, nil
}

// withOwnCommitment appends own unless a commitment from the same sender is
// already listed. A differing commitment from the same sender is left for
// signing to reject.
func withOwnCommitment(commitments []*musig.NonceCommitment, own *musig.NonceCommitment) []*musig.NonceCommitment {
	for _, c := range commitments {
		if c.Sender.Equal(own.Sender) {
			return commitments
		}
	}
	return append(commitments, own)
}
