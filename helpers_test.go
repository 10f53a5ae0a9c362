package musig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// signer bundles one party's key with its round one output
type signer struct {
	secret     *SecretKey
	commitment *NonceCommitment
	state      *SecretNonceState
}

func newSigners(t *testing.T, n int) []*signer {
	t.Helper()
	signers := make([]*signer, n)
	for i := range signers {
		sk, err := GenerateSecretKey(nil)
		require.NoError(t, err)
		signers[i] = &signer{secret: sk}
	}
	return signers
}

func publicKeys(signers []*signer) []PublicKey {
	keys := make([]PublicKey, len(signers))
	for i, s := range signers {
		keys[i] = s.secret.PublicKey()
	}
	return keys
}

func runRound1(t *testing.T, signers []*signer) []*NonceCommitment {
	t.Helper()
	commitments := make([]*NonceCommitment, len(signers))
	for i, s := range signers {
		commitment, state, err := BeginRound1(s.secret, nil)
		require.NoError(t, err)
		s.commitment, s.state = commitment, state
		commitments[i] = commitment
	}
	return commitments
}

func runRound2(t *testing.T, signers []*signer, agg *KeyAggregation, commitments []*NonceCommitment, message []byte) []*PartialSignature {
	t.Helper()
	partials := make([]*PartialSignature, len(signers))
	for i, s := range signers {
		partial, err := SignRound2(s.secret, agg, s.state, commitments, message)
		require.NoError(t, err)
		partials[i] = partial
	}
	return partials
}

func randomAddress(t *testing.T) SolanaAddress {
	t.Helper()
	sk, err := GenerateSecretKey(nil)
	require.NoError(t, err)
	return sk.PublicKey().Address()
}

// transferMessage builds the serialized message of a transfer from agg
func transferMessage(t *testing.T, agg *KeyAggregation, to SolanaAddress, sol float64, memo string, blockhash Blockhash) []byte {
	t.Helper()
	tx, err := BuildTransferTransaction(agg.Address(), to, SOLToLamports(sol), memo, blockhash)
	require.NoError(t, err)
	message, err := tx.Message.Serialize()
	require.NoError(t, err)
	return message
}

// recordingAuditHandler keeps every event it receives
type recordingAuditHandler struct {
	events   []*AuditEvent
	failures []*AuditEvent
}

func (h *recordingAuditHandler) OnKeyAggregation(event *AuditEvent) { h.events = append(h.events, event) }
func (h *recordingAuditHandler) OnRound1(event *AuditEvent)         { h.events = append(h.events, event) }
func (h *recordingAuditHandler) OnRound2(event *AuditEvent)         { h.events = append(h.events, event) }
func (h *recordingAuditHandler) OnFinalize(event *AuditEvent)       { h.events = append(h.events, event) }
func (h *recordingAuditHandler) OnFailure(event *AuditEvent) {
	h.events = append(h.events, event)
	h.failures = append(h.failures, event)
}

func (h *recordingAuditHandler) types() []AuditEventType {
	out := make([]AuditEventType, len(h.events))
	for i, event := range h.events {
		out[i] = event.EventType
	}
	return out
}
