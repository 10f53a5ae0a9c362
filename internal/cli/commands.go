package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canopy-network/canopy/lib/musig"
	"github.com/canopy-network/canopy/lib/musig/internal/logging"
)

func (a *App) newGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate a pair of keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track("generate", func() error {
				sk, err := musig.GenerateSecretKey(a.rng)
				if err != nil {
					return err
				}
				defer sk.Zeroize()

				a.logger.Debug("generated keypair", logging.Redacted("keypair"))
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "secret share: %s\n", sk.Base58())
				fmt.Fprintf(out, "public key: %s\n", sk.PublicKey())
				return nil
			})
		},
	}
}

func (a *App) newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance ADDRESS",
		Short: "Check the balance of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track("balance", func() error {
				address, err := musig.ParseSolanaAddress(args[0])
				if err != nil {
					return err
				}
				client, err := a.rpcClient()
				if err != nil {
					return err
				}
				ctx, cancel := rpcContext(cmd)
				defer cancel()

				lamports, err := client.GetBalance(ctx, address)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "The balance of %s is: %v SOL\n", address, musig.LamportsToSOL(lamports))
				return nil
			})
		},
	}
}

func (a *App) newAirdropCmd() *cobra.Command {
	var to string
	var amount float64

	cmd := &cobra.Command{
		Use:   "airdrop",
		Short: "Request an airdrop from a faucet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track("airdrop", func() error {
				address, err := musig.ParseSolanaAddress(to)
				if err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
				lamports := musig.SOLToLamports(amount)
				if lamports == 0 {
					return fmt.Errorf("--amount must be at least one lamport")
				}
				client, err := a.rpcClient()
				if err != nil {
					return err
				}
				ctx, cancel := rpcContext(cmd)
				defer cancel()

				signature, err := client.RequestAirdrop(ctx, address, lamports)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Airdrop transaction ID: %s\n", signature)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "address of the recipient")
	cmd.Flags().Float64Var(&amount, "amount", 0, "amount of SOL to request")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (a *App) newSendSingleCmd() *cobra.Command {
	var keypair, to, memo string
	var amount float64

	cmd := &cobra.Command{
		Use:   "send-single",
		Short: "Send a transaction using a single private key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track("send_single", func() error {
				sk, err := parseKeypair(keypair)
				if err != nil {
					return err
				}
				defer sk.Zeroize()

				recipient, err := musig.ParseSolanaAddress(to)
				if err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
				if err := musig.ValidateMemo(memo); err != nil {
					return err
				}
				lamports := musig.SOLToLamports(amount)
				if lamports == 0 {
					return fmt.Errorf("--amount must be at least one lamport")
				}

				client, err := a.rpcClient()
				if err != nil {
					return err
				}
				ctx, cancel := rpcContext(cmd)
				defer cancel()

				blockhash, err := client.GetRecentBlockhash(ctx)
				if err != nil {
					return err
				}
				payer := sk.PublicKey().Address()
				tx, err := musig.BuildTransferTransaction(payer, recipient, lamports, memo, blockhash)
				if err != nil {
					return err
				}
				message, err := tx.Message.Serialize()
				if err != nil {
					return err
				}
				signature, err := musig.SolanaSignatureFromBytes(sk.Sign(message))
				if err != nil {
					return err
				}
				if err := tx.AddSignature(payer, signature); err != nil {
					return err
				}

				txID, err := client.SendTransaction(ctx, tx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Transaction ID: %s\n", txID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&keypair, "keypair", "", "base58 secret keypair, or a keypair file")
	cmd.Flags().Float64Var(&amount, "amount", 0, "amount of SOL to send")
	cmd.Flags().StringVar(&to, "to", "", "address of the recipient")
	cmd.Flags().StringVar(&memo, "memo", "", "add a memo to the transaction")
	_ = cmd.MarkFlagRequired("keypair")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (a *App) newRecentBlockHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recent-block-hash",
		Short: "Print the hash of a recent block, to pass to the agg-send steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track("recent_block_hash", func() error {
				client, err := a.rpcClient()
				if err != nil {
					return err
				}
				ctx, cancel := rpcContext(cmd)
				defer cancel()

				blockhash, err := client.GetRecentBlockhash(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recent block hash: %s\n", blockhash)
				return nil
			})
		},
	}
}
