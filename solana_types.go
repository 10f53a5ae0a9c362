package musig

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// SolanaAddress represents a 32-byte Solana public key
type SolanaAddress [32]byte

// NewSolanaAddress creates a SolanaAddress from bytes
func NewSolanaAddress(data []byte) (SolanaAddress, error) {
	var addr SolanaAddress
	if len(data) != 32 {
		return addr, fmt.Errorf("Solana address must be 32 bytes, got %d", len(data))
	}
	copy(addr[:], data)
	return addr, nil
}

// ParseSolanaAddress decodes a base58 address. Unlike ParsePublicKey it
// accepts any 32 bytes, since program-derived addresses are off the curve.
func ParseSolanaAddress(s string) (SolanaAddress, error) {
	data, err := base58.Decode(s)
	if err != nil {
		return SolanaAddress{}, fmt.Errorf("invalid base58 address %q: %w", s, err)
	}
	return NewSolanaAddress(data)
}

// MustParseSolanaAddress is ParseSolanaAddress for well-known constants.
func MustParseSolanaAddress(s string) SolanaAddress {
	addr, err := ParseSolanaAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// String returns the base58 representation
func (addr SolanaAddress) String() string {
	return base58.Encode(addr[:])
}

// Bytes returns the raw bytes
func (addr SolanaAddress) Bytes() []byte {
	return addr[:]
}

// Equal checks if two addresses are equal
func (addr SolanaAddress) Equal(other SolanaAddress) bool {
	return addr == other
}

// IsZero checks if the address is all zeros
func (addr SolanaAddress) IsZero() bool {
	return addr == SolanaAddress{}
}

// Blockhash is the 32-byte recent blockhash a message commits to
type Blockhash = SolanaAddress

// ParseBlockhash decodes a base58 blockhash as printed by recent-block-hash
func ParseBlockhash(s string) (Blockhash, error) {
	h, err := ParseSolanaAddress(s)
	if err != nil {
		return Blockhash{}, fmt.Errorf("invalid blockhash: %w", err)
	}
	return h, nil
}

// AccountMeta represents account metadata for Solana instructions
type AccountMeta struct {
	PublicKey  SolanaAddress
	IsSigner   bool
	IsWritable bool
}

// NewAccountMeta creates a new AccountMeta
func NewAccountMeta(pubkey SolanaAddress, isSigner, isWritable bool) *AccountMeta {
	return &AccountMeta{
		PublicKey:  pubkey,
		IsSigner:   isSigner,
		IsWritable: isWritable,
	}
}

// SolanaInstruction represents a Solana program instruction
type SolanaInstruction struct {
	ProgramID SolanaAddress
	Accounts  []*AccountMeta
	Data      []byte
}

// NewSolanaInstruction creates a new instruction
func NewSolanaInstruction(programID SolanaAddress, accounts []*AccountMeta, data []byte) *SolanaInstruction {
	return &SolanaInstruction{
		ProgramID: programID,
		Accounts:  accounts,
		Data:      data,
	}
}

// SolanaMessage represents a legacy Solana transaction message
type SolanaMessage struct {
	Header          MessageHeader
	AccountKeys     []SolanaAddress
	RecentBlockhash Blockhash
	Instructions    []CompiledInstruction
}

// MessageHeader contains message metadata
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction represents an instruction with account indices
type CompiledInstruction struct {
	ProgramIDIndex uint8
	AccountIndices []uint8
	Data           []byte
}

// maxShortVec is the largest length a compact-u16 can carry
const maxShortVec = 1<<16 - 1

// appendShortVec appends n in Solana's compact-u16 encoding: seven bits per
// byte, low bits first, high bit set on every byte but the last.
func appendShortVec(dst []byte, n int) ([]byte, error) {
	if n < 0 || n > maxShortVec {
		return nil, fmt.Errorf("length %d does not fit a compact-u16", n)
	}
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(dst, b), nil
		}
		dst = append(dst, b|0x80)
	}
}

// readShortVec decodes a compact-u16 from the front of src and returns the
// value and the number of bytes consumed.
func readShortVec(src []byte) (int, int, error) {
	var value int
	for i := 0; i < 3; i++ {
		if i >= len(src) {
			return 0, 0, fmt.Errorf("truncated compact-u16")
		}
		b := src[i]
		value |= int(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			if value > maxShortVec {
				return 0, 0, fmt.Errorf("compact-u16 overflow")
			}
			return value, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("compact-u16 longer than 3 bytes")
}

// Serialize encodes the message in the legacy wire format. These bytes are
// what every signer signs.
func (msg *SolanaMessage) Serialize() ([]byte, error) {
	if len(msg.AccountKeys) > 255 {
		return nil, fmt.Errorf("AccountKeys length %d exceeds maximum value 255", len(msg.AccountKeys))
	}
	if int(msg.Header.NumRequiredSignatures) > len(msg.AccountKeys) {
		return nil, fmt.Errorf("header requires %d signatures but message has %d accounts",
			msg.Header.NumRequiredSignatures, len(msg.AccountKeys))
	}

	result := []byte{
		msg.Header.NumRequiredSignatures,
		msg.Header.NumReadonlySignedAccounts,
		msg.Header.NumReadonlyUnsignedAccounts,
	}

	var err error
	if result, err = appendShortVec(result, len(msg.AccountKeys)); err != nil {
		return nil, err
	}
	for _, key := range msg.AccountKeys {
		result = append(result, key[:]...)
	}

	result = append(result, msg.RecentBlockhash[:]...)

	if result, err = appendShortVec(result, len(msg.Instructions)); err != nil {
		return nil, err
	}
	for i, instruction := range msg.Instructions {
		if int(instruction.ProgramIDIndex) >= len(msg.AccountKeys) {
			return nil, fmt.Errorf("instruction %d: program index %d out of range", i, instruction.ProgramIDIndex)
		}
		result = append(result, instruction.ProgramIDIndex)

		if result, err = appendShortVec(result, len(instruction.AccountIndices)); err != nil {
			return nil, err
		}
		result = append(result, instruction.AccountIndices...)

		if result, err = appendShortVec(result, len(instruction.Data)); err != nil {
			return nil, err
		}
		result = append(result, instruction.Data...)
	}

	return result, nil
}

// DeserializeSolanaMessage parses a legacy message produced by Serialize.
func DeserializeSolanaMessage(data []byte) (*SolanaMessage, error) {
	r := &byteReader{data: data}

	header, err := r.next(3)
	if err != nil {
		return nil, fmt.Errorf("message header: %w", err)
	}
	msg := &SolanaMessage{Header: MessageHeader{
		NumRequiredSignatures:       header[0],
		NumReadonlySignedAccounts:   header[1],
		NumReadonlyUnsignedAccounts: header[2],
	}}

	numKeys, err := r.shortVec()
	if err != nil {
		return nil, fmt.Errorf("account count: %w", err)
	}
	msg.AccountKeys = make([]SolanaAddress, numKeys)
	for i := range msg.AccountKeys {
		key, err := r.next(32)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		copy(msg.AccountKeys[i][:], key)
	}

	blockhash, err := r.next(32)
	if err != nil {
		return nil, fmt.Errorf("recent blockhash: %w", err)
	}
	copy(msg.RecentBlockhash[:], blockhash)

	numInstructions, err := r.shortVec()
	if err != nil {
		return nil, fmt.Errorf("instruction count: %w", err)
	}
	msg.Instructions = make([]CompiledInstruction, numInstructions)
	for i := range msg.Instructions {
		program, err := r.next(1)
		if err != nil {
			return nil, fmt.Errorf("instruction %d program: %w", i, err)
		}
		numAccounts, err := r.shortVec()
		if err != nil {
			return nil, fmt.Errorf("instruction %d accounts: %w", i, err)
		}
		accounts, err := r.next(numAccounts)
		if err != nil {
			return nil, fmt.Errorf("instruction %d accounts: %w", i, err)
		}
		dataLen, err := r.shortVec()
		if err != nil {
			return nil, fmt.Errorf("instruction %d data: %w", i, err)
		}
		ixData, err := r.next(dataLen)
		if err != nil {
			return nil, fmt.Errorf("instruction %d data: %w", i, err)
		}
		msg.Instructions[i] = CompiledInstruction{
			ProgramIDIndex: program[0],
			AccountIndices: append([]uint8(nil), accounts...),
			Data:           append([]byte(nil), ixData...),
		}
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after message", r.remaining())
	}
	return msg, nil
}

type byteReader struct {
	data []byte
	off  int
}

func (r *byteReader) next(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.data) {
		return nil, fmt.Errorf("unexpected end of data")
	}
	out := r.data[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *byteReader) shortVec() (int, error) {
	v, n, err := readShortVec(r.data[r.off:])
	if err != nil {
		return 0, err
	}
	r.off += n
	return v, nil
}

func (r *byteReader) remaining() int { return len(r.data) - r.off }

// SolanaTransaction represents a complete Solana transaction
type SolanaTransaction struct {
	Message    *SolanaMessage
	Signatures [][SignatureSize]byte
}

// NewSolanaTransaction creates an unsigned transaction with one empty slot
// per required signer.
func NewSolanaTransaction(message *SolanaMessage) *SolanaTransaction {
	return &SolanaTransaction{
		Message:    message,
		Signatures: make([][SignatureSize]byte, message.Header.NumRequiredSignatures),
	}
}

// Serialize encodes the transaction for sendTransaction
func (tx *SolanaTransaction) Serialize() ([]byte, error) {
	result, err := appendShortVec(nil, len(tx.Signatures))
	if err != nil {
		return nil, err
	}
	for _, sig := range tx.Signatures {
		result = append(result, sig[:]...)
	}

	messageBytes, err := tx.Message.Serialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}
	return append(result, messageBytes...), nil
}

// IsSigned checks if every signature slot is filled
func (tx *SolanaTransaction) IsSigned() bool {
	if len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) {
		return false
	}
	for _, sig := range tx.Signatures {
		if sig == [SignatureSize]byte{} {
			return false
		}
	}
	return true
}

// GetSignerAccounts returns accounts that need to sign this transaction
func (tx *SolanaTransaction) GetSignerAccounts() []SolanaAddress {
	numSigners := int(tx.Message.Header.NumRequiredSignatures)
	if numSigners > len(tx.Message.AccountKeys) {
		return nil
	}
	return tx.Message.AccountKeys[:numSigners]
}

// AddSignature stores signature in the slot of signer
func (tx *SolanaTransaction) AddSignature(signer SolanaAddress, signature *SolanaSignature) error {
	raw, err := signature.Bytes()
	if err != nil {
		return err
	}
	for i, account := range tx.GetSignerAccounts() {
		if account == signer {
			copy(tx.Signatures[i][:], raw)
			return nil
		}
	}
	return fmt.Errorf("%s is not a required signer of this transaction", signer)
}

// GetFeePayer returns the fee payer address
func (tx *SolanaTransaction) GetFeePayer() SolanaAddress {
	if len(tx.Message.AccountKeys) == 0 {
		return SolanaAddress{}
	}
	return tx.Message.AccountKeys[0]
}

// Clone creates a deep copy of the message
func (msg *SolanaMessage) Clone() *SolanaMessage {
	clone := &SolanaMessage{
		Header:          msg.Header,
		AccountKeys:     make([]SolanaAddress, len(msg.AccountKeys)),
		RecentBlockhash: msg.RecentBlockhash,
		Instructions:    make([]CompiledInstruction, len(msg.Instructions)),
	}

	copy(clone.AccountKeys, msg.AccountKeys)

	for i, instruction := range msg.Instructions {
		clone.Instructions[i] = CompiledInstruction{
			ProgramIDIndex: instruction.ProgramIDIndex,
			AccountIndices: append([]uint8(nil), instruction.AccountIndices...),
			Data:           append([]byte(nil), instruction.Data...),
		}
	}

	return clone
}
