package musig

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonceLedgers(t *testing.T) {
	newFileLedger := func(t *testing.T) NonceLedger {
		ledger, err := NewFileNonceLedger(filepath.Join(t.TempDir(), "ledger"))
		require.NoError(t, err)
		return ledger
	}
	ledgers := map[string]func(t *testing.T) NonceLedger{
		"Memory": func(t *testing.T) NonceLedger { return NewMemoryNonceLedger() },
		"File":   newFileLedger,
	}

	for name, newLedger := range ledgers {
		t.Run(name, func(t *testing.T) {
			ledger := newLedger(t)
			commitments := runRound1(t, newSigners(t, 2))

			consumed, err := ledger.IsConsumed(commitments[0])
			require.NoError(t, err)
			assert.False(t, consumed)

			require.NoError(t, ledger.MarkConsumed(commitments[0]))
			consumed, err = ledger.IsConsumed(commitments[0])
			require.NoError(t, err)
			assert.True(t, consumed)

			assert.ErrorIs(t, ledger.MarkConsumed(commitments[0]), ErrNonceAlreadyConsumed)
			assert.NoError(t, ledger.MarkConsumed(commitments[1]))
		})

		t.Run(name+"Concurrent", func(t *testing.T) {
			ledger := newLedger(t)
			commitment := runRound1(t, newSigners(t, 1))[0]

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if ledger.MarkConsumed(commitment) == nil {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestFileNonceLedgerPersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")
	commitment := runRound1(t, newSigners(t, 1))[0]

	first, err := NewFileNonceLedger(dir)
	require.NoError(t, err)
	require.NoError(t, first.MarkConsumed(commitment))
	assert.Equal(t, dir, first.Dir())

	second, err := NewFileNonceLedger(dir)
	require.NoError(t, err)
	assert.ErrorIs(t, second.MarkConsumed(commitment), ErrNonceAlreadyConsumed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), commitment.Sender.String())

	_, err = NewFileNonceLedger("")
	assert.Error(t, err)
}
