package musig

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Well-known Solana program addresses
var (
	SystemProgramID = SolanaAddress{}
	// MemoProgramID is SPL Memo v2
	MemoProgramID = MustParseSolanaAddress("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
)

const (
	// LamportsPerSOL is the number of lamports in one SOL
	LamportsPerSOL = uint64(1_000_000_000)

	// MaxMemoLength is the largest memo that still fits a single-signer
	// transfer inside the 1232-byte packet limit.
	MaxMemoLength = 566

	systemInstructionTransfer = 2
)

// CreateTransferInstruction creates a System Program transfer:
// data is u32 LE instruction index 2 followed by u64 LE lamports.
func CreateTransferInstruction(from, to SolanaAddress, lamports uint64) *SolanaInstruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemInstructionTransfer)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	accounts := []*AccountMeta{
		NewAccountMeta(from, true, true), // From account (signer, writable)
		NewAccountMeta(to, false, true),  // To account (writable)
	}

	return NewSolanaInstruction(SystemProgramID, accounts, data)
}

// CreateMemoInstruction creates an SPL Memo instruction with no signer
// accounts; the memo is stored as raw UTF-8.
func CreateMemoInstruction(memo string) *SolanaInstruction {
	return NewSolanaInstruction(MemoProgramID, nil, []byte(memo))
}

// ValidateMemo checks a memo the Memo program would accept
func ValidateMemo(memo string) error {
	if len(memo) > MaxMemoLength {
		return fmt.Errorf("memo is %d bytes, maximum is %d", len(memo), MaxMemoLength)
	}
	if !utf8.ValidString(memo) {
		return fmt.Errorf("memo is not valid UTF-8")
	}
	return nil
}

// DecodeTransferInstruction extracts the lamports of a System transfer
func DecodeTransferInstruction(data []byte) (uint64, error) {
	if len(data) != 12 || binary.LittleEndian.Uint32(data[0:4]) != systemInstructionTransfer {
		return 0, fmt.Errorf("not a system transfer instruction")
	}
	return binary.LittleEndian.Uint64(data[4:12]), nil
}

// SOLToLamports converts SOL to lamports, truncating toward zero
func SOLToLamports(sol float64) uint64 {
	return uint64(sol * float64(LamportsPerSOL))
}

// LamportsToSOL converts lamports to SOL
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / float64(LamportsPerSOL)
}

// IsSystemProgram checks if an address is the system program
func IsSystemProgram(address SolanaAddress) bool {
	return address.Equal(SystemProgramID)
}

// IsMemoProgram checks if an address is the memo program
func IsMemoProgram(address SolanaAddress) bool {
	return address.Equal(MemoProgramID)
}
