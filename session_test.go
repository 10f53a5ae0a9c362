package musig

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionParams(t *testing.T, signers []*signer) SessionParams {
	t.Helper()
	return SessionParams{
		Keys:            publicKeys(signers),
		Recipient:       randomAddress(t),
		Amount:          1.5,
		Memo:            "march rent",
		RecentBlockhash: randomAddress(t),
		Network:         NetworkDevnet,
		Ordering:        KeyOrderingSorted,
	}
}

func TestSessionLifecycle(t *testing.T) {
	signers := newSigners(t, 2)
	params := sessionParams(t, signers)
	audit := &recordingAuditHandler{}

	sessions := make([]Session, len(signers))
	commitments := make([]*NonceCommitment, len(signers))
	for i, s := range signers {
		session, err := NewSession(params, WithAuditHandler(audit))
		require.NoError(t, err)
		assert.Equal(t, PhaseKeysAggregated, session.Phase())

		session, commitments[i], _, err = session.PublishNonces(s.secret, nil)
		require.NoError(t, err)
		assert.Equal(t, PhaseRound1Published, session.Phase())
		sessions[i] = session
	}
	assert.Equal(t, sessions[0].Message(), sessions[1].Message())
	assert.Equal(t, sessions[0].Fingerprint(), sessions[1].Fingerprint())

	partials := make([]*PartialSignature, len(signers))
	for i, s := range signers {
		next, partial, err := sessions[i].Sign(s.secret, nil, commitments)
		require.NoError(t, err)
		assert.Equal(t, PhaseRound1Published, sessions[i].Phase(), "receiver is unchanged")
		assert.Equal(t, PhaseRound2Published, next.Phase())
		assert.Equal(t, partial, next.PartialSignature())
		sessions[i] = next
		partials[i] = partial
	}

	final, signature, err := sessions[0].Finalize(partials)
	require.NoError(t, err)
	assert.Equal(t, PhaseFinalized, final.Phase())
	assert.Equal(t, signature, final.Signature())

	tx, err := final.SignedTransaction()
	require.NoError(t, err)
	assert.True(t, tx.IsSigned())
	assert.Equal(t, final.KeyAggregation().Address(), tx.GetFeePayer())

	raw, err := signature.Bytes()
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(final.AggregatedKey().Bytes(), final.Message(), raw))

	lamports, err := DecodeTransferInstruction(tx.Message.Instructions[0].Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), lamports)

	_, err = sessions[0].SignedTransaction()
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Contains(t, audit.types(), AuditEventKeyAggregation)
	assert.Contains(t, audit.types(), AuditEventRound1)
	assert.Contains(t, audit.types(), AuditEventRound2)
	assert.Contains(t, audit.types(), AuditEventFinalize)
	assert.Empty(t, audit.failures)
}

func TestSessionAggregatorOnly(t *testing.T) {
	signers := newSigners(t, 2)
	params := sessionParams(t, signers)

	coordinator, err := NewSession(params)
	require.NoError(t, err)

	agg := coordinator.KeyAggregation()
	commitments := runRound1(t, signers)
	partials := runRound2(t, signers, agg, commitments, coordinator.Message())

	final, _, err := coordinator.Finalize(partials)
	require.NoError(t, err)
	assert.Equal(t, PhaseFinalized, final.Phase())
}

func TestSessionRejectsOutOfOrderCalls(t *testing.T) {
	signers := newSigners(t, 2)
	params := sessionParams(t, signers)
	secret := signers[0].secret

	var zero Session
	_, _, _, err := zero.PublishNonces(secret, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, _, err = zero.Finalize(nil)
	assert.ErrorIs(t, err, ErrInvalidState)

	session, err := NewSession(params)
	require.NoError(t, err)

	_, _, err = session.Sign(secret, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidState)

	published, _, _, err := session.PublishNonces(secret, nil)
	require.NoError(t, err)

	_, _, _, err = published.PublishNonces(secret, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, _, err = published.Finalize(nil)
	assert.ErrorIs(t, err, ErrInvalidState)

	outsider := newSigners(t, 1)[0].secret
	_, _, _, err = session.PublishNonces(outsider, nil)
	assert.ErrorIs(t, err, ErrIncompleteOrMismatchedNonceSet)
}

func TestSessionResumeRound1(t *testing.T) {
	signers := newSigners(t, 2)
	params := sessionParams(t, signers)

	commitments := runRound1(t, signers)
	text, err := signers[0].state.MarshalText()
	require.NoError(t, err)

	session, err := NewSession(params)
	require.NoError(t, err)

	restored, err := ParseSecretNonceState(string(text))
	require.NoError(t, err)
	resumed, err := session.ResumeRound1(restored)
	require.NoError(t, err)
	assert.True(t, resumed.Commitment().Equal(commitments[0]))

	_, partial, err := resumed.Sign(signers[0].secret, nil, commitments)
	require.NoError(t, err)
	assert.True(t, partial.Sender.Equal(signers[0].secret.PublicKey()))

	_, err = session.ResumeRound1(restored)
	assert.ErrorIs(t, err, ErrNonceAlreadyConsumed)
}

func TestNewSessionRejectsInvalidParams(t *testing.T) {
	signers := newSigners(t, 2)

	tests := []struct {
		name   string
		mutate func(p *SessionParams)
		target error
	}{
		{"OneKey", func(p *SessionParams) { p.Keys = p.Keys[:1] }, ErrInvalidSessionParams},
		{"ZeroAmount", func(p *SessionParams) { p.Amount = 0 }, ErrInvalidSessionParams},
		{"NoRecipient", func(p *SessionParams) { p.Recipient = SolanaAddress{} }, ErrInvalidSessionParams},
		{"NoBlockhash", func(p *SessionParams) { p.RecentBlockhash = Blockhash{} }, ErrInvalidSessionParams},
		{"UnknownNetwork", func(p *SessionParams) { p.Network = "moonnet" }, ErrInvalidSessionParams},
		{"InvalidMemo", func(p *SessionParams) { p.Memo = string([]byte{0xff, 0xfe}) }, ErrInvalidSessionParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := sessionParams(t, signers)
			tt.mutate(&params)
			audit := &recordingAuditHandler{}
			_, err := NewSession(params, WithAuditHandler(audit))
			assert.ErrorIs(t, err, tt.target)
			assert.Len(t, audit.failures, 1)
		})
	}
}

func TestSessionParamsChangeMessage(t *testing.T) {
	signers := newSigners(t, 2)
	params := sessionParams(t, signers)

	base, err := NewSession(params)
	require.NoError(t, err)

	other := params
	other.Amount = 1.6
	changed, err := NewSession(other)
	require.NoError(t, err)
	assert.NotEqual(t, base.Message(), changed.Message())
	assert.True(t, base.AggregatedKey().Equal(changed.AggregatedKey()))

	other = params
	other.Memo = ""
	changed, err = NewSession(other)
	require.NoError(t, err)
	assert.NotEqual(t, base.Message(), changed.Message())
}
