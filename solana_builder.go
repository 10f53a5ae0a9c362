package musig

import (
	"fmt"
)

// SolanaTransactionBuilder helps build Solana transactions
type SolanaTransactionBuilder struct {
	instructions    []*SolanaInstruction
	feePayer        SolanaAddress
	recentBlockhash Blockhash
}

// NewSolanaTransactionBuilder creates a new transaction builder
func NewSolanaTransactionBuilder() *SolanaTransactionBuilder {
	return &SolanaTransactionBuilder{
		instructions: make([]*SolanaInstruction, 0),
	}
}

// SetFeePayer sets the transaction fee payer
func (builder *SolanaTransactionBuilder) SetFeePayer(feePayer SolanaAddress) *SolanaTransactionBuilder {
	builder.feePayer = feePayer
	return builder
}

// SetRecentBlockhash sets the recent blockhash
func (builder *SolanaTransactionBuilder) SetRecentBlockhash(blockhash Blockhash) *SolanaTransactionBuilder {
	builder.recentBlockhash = blockhash
	return builder
}

// AddInstruction adds an instruction to the transaction
func (builder *SolanaTransactionBuilder) AddInstruction(instruction *SolanaInstruction) *SolanaTransactionBuilder {
	builder.instructions = append(builder.instructions, instruction)
	return builder
}

// accountEntry merges the flags an account carries across all instructions
type accountEntry struct {
	address  SolanaAddress
	signer   bool
	writable bool
}

// class orders accounts the way the runtime expects: writable signers,
// readonly signers, writable non-signers, readonly non-signers.
func (e *accountEntry) class() int {
	switch {
	case e.signer && e.writable:
		return 0
	case e.signer:
		return 1
	case e.writable:
		return 2
	default:
		return 3
	}
}

// BuildMessage compiles the instructions into a legacy message. The fee
// payer is always the first writable signer; within each account class the
// order of first appearance is kept.
func (builder *SolanaTransactionBuilder) BuildMessage() (*SolanaMessage, error) {
	if builder.feePayer.IsZero() {
		return nil, fmt.Errorf("fee payer must be set")
	}
	if builder.recentBlockhash.IsZero() {
		return nil, fmt.Errorf("recent blockhash must be set")
	}
	if len(builder.instructions) == 0 {
		return nil, fmt.Errorf("at least one instruction is required")
	}

	entries := []*accountEntry{{address: builder.feePayer, signer: true, writable: true}}
	byAddress := map[SolanaAddress]*accountEntry{builder.feePayer: entries[0]}

	add := func(address SolanaAddress, signer, writable bool) {
		if entry, ok := byAddress[address]; ok {
			entry.signer = entry.signer || signer
			entry.writable = entry.writable || writable
			return
		}
		entry := &accountEntry{address: address, signer: signer, writable: writable}
		byAddress[address] = entry
		entries = append(entries, entry)
	}

	for _, instruction := range builder.instructions {
		for _, account := range instruction.Accounts {
			add(account.PublicKey, account.IsSigner, account.IsWritable)
		}
	}
	// Programs are invoked, never written
	for _, instruction := range builder.instructions {
		add(instruction.ProgramID, false, false)
	}

	if len(entries) > 256 {
		return nil, fmt.Errorf("transaction references %d accounts, maximum is 256", len(entries))
	}

	var ordered []SolanaAddress
	var header MessageHeader
	for class := 0; class < 4; class++ {
		for _, entry := range entries {
			if entry.class() != class {
				continue
			}
			ordered = append(ordered, entry.address)
			switch class {
			case 0:
				header.NumRequiredSignatures++
			case 1:
				header.NumRequiredSignatures++
				header.NumReadonlySignedAccounts++
			case 3:
				header.NumReadonlyUnsignedAccounts++
			}
		}
	}

	index := make(map[SolanaAddress]uint8, len(ordered))
	for i, address := range ordered {
		index[address] = uint8(i)
	}

	compiled := make([]CompiledInstruction, 0, len(builder.instructions))
	for _, instruction := range builder.instructions {
		accountIndices := make([]uint8, 0, len(instruction.Accounts))
		for _, account := range instruction.Accounts {
			accountIndices = append(accountIndices, index[account.PublicKey])
		}
		compiled = append(compiled, CompiledInstruction{
			ProgramIDIndex: index[instruction.ProgramID],
			AccountIndices: accountIndices,
			Data:           instruction.Data,
		})
	}

	return &SolanaMessage{
		Header:          header,
		AccountKeys:     ordered,
		RecentBlockhash: builder.recentBlockhash,
		Instructions:    compiled,
	}, nil
}

// Build creates the final unsigned transaction
func (builder *SolanaTransactionBuilder) Build() (*SolanaTransaction, error) {
	message, err := builder.BuildMessage()
	if err != nil {
		return nil, err
	}
	return NewSolanaTransaction(message), nil
}

// BuildTransferTransaction builds a SOL transfer from the fee payer, with
// an optional memo instruction appended.
func BuildTransferTransaction(from, to SolanaAddress, lamports uint64, memo string, recentBlockhash Blockhash) (*SolanaTransaction, error) {
	builder := NewSolanaTransactionBuilder().
		SetFeePayer(from).
		SetRecentBlockhash(recentBlockhash).
		AddInstruction(CreateTransferInstruction(from, to, lamports))

	if memo != "" {
		builder.AddInstruction(CreateMemoInstruction(memo))
	}

	return builder.Build()
}
