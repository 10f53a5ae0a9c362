package musig

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// NonceLedger remembers which nonce commitments have been signed with.
// Commitments are public, so only their hashes are stored.
type NonceLedger interface {
	// MarkConsumed records commitment, returning ErrNonceAlreadyConsumed if
	// it was recorded before.
	MarkConsumed(commitment *NonceCommitment) error
	IsConsumed(commitment *NonceCommitment) (bool, error)
}

// hashCommitment computes a SHA-256 hash of the commitment record
func hashCommitment(commitment *NonceCommitment) [sha256.Size]byte {
	return sha256.Sum256(commitment.Bytes())
}

// MemoryNonceLedger is a process-local ledger
type MemoryNonceLedger struct {
	mu   sync.Mutex
	used map[[sha256.Size]byte]struct{}
}

// NewMemoryNonceLedger creates an empty in-memory ledger
func NewMemoryNonceLedger() *MemoryNonceLedger {
	return &MemoryNonceLedger{used: make(map[[sha256.Size]byte]struct{})}
}

// MarkConsumed implements NonceLedger
func (l *MemoryNonceLedger) MarkConsumed(commitment *NonceCommitment) error {
	key := hashCommitment(commitment)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.used[key]; exists {
		return ErrNonceAlreadyConsumed.WithContext("signer", commitment.Sender.String())
	}
	l.used[key] = struct{}{}
	return nil
}

// IsConsumed implements NonceLedger
func (l *MemoryNonceLedger) IsConsumed(commitment *NonceCommitment) (bool, error) {
	key := hashCommitment(commitment)

	l.mu.Lock()
	defer l.mu.Unlock()

	_, exists := l.used[key]
	return exists, nil
}

// FileNonceLedger keeps one marker file per consumed commitment under a
// directory, so reuse is caught across separate invocations of the tool.
// Markers are created with O_EXCL, which makes concurrent marking safe.
type FileNonceLedger struct {
	dir string
}

// NewFileNonceLedger creates dir if needed and returns a ledger over it
func NewFileNonceLedger(dir string) (*FileNonceLedger, error) {
	if dir == "" {
		return nil, fmt.Errorf("nonce ledger directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create nonce ledger directory: %w", err)
	}
	return &FileNonceLedger{dir: dir}, nil
}

// Dir returns the ledger directory
func (l *FileNonceLedger) Dir() string { return l.dir }

// markerPath returns the storage path for a nonce marker.
func (l *FileNonceLedger) markerPath(commitment *NonceCommitment) string {
	key := hashCommitment(commitment)
	return filepath.Join(l.dir, commitment.Sender.String()+"-"+hex.EncodeToString(key[:]))
}

// MarkConsumed implements NonceLedger
func (l *FileNonceLedger) MarkConsumed(commitment *NonceCommitment) error {
	f, err := os.OpenFile(l.markerPath(commitment), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrNonceAlreadyConsumed.WithContext("signer", commitment.Sender.String())
		}
		return fmt.Errorf("failed to mark nonce as used: %w", err)
	}
	if _, err := f.Write([]byte{1}); err != nil {
		f.Close()
		return fmt.Errorf("failed to mark nonce as used: %w", err)
	}
	return f.Close()
}

// IsConsumed implements NonceLedger
func (l *FileNonceLedger) IsConsumed(commitment *NonceCommitment) (bool, error) {
	_, err := os.Stat(l.markerPath(commitment))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check nonce status: %w", err)
	}
}
