package musig

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditEventBuilder(t *testing.T) {
	signers := newSigners(t, 2)
	message := []byte("transfer message")

	t.Run("Success", func(t *testing.T) {
		event := NewAuditEventBuilder(AuditEventRound2, ReasonProtocolStep).
			WithMessage(message).
			WithSigner(signers[0].secret.PublicKey()).
			WithSignerCount(2).
			WithMetadata("network", "devnet").
			Build()

		assert.Equal(t, AuditEventRound2, event.EventType)
		assert.Equal(t, ReasonProtocolStep, event.Reason)
		assert.True(t, event.Success)
		assert.Equal(t, SessionFingerprint(message), event.Fingerprint)
		assert.Equal(t, signers[0].secret.PublicKey().String(), event.Signer)
		assert.Equal(t, "devnet", event.Metadata["network"])
		assert.False(t, event.Timestamp.IsZero())

		_, err := uuid.Parse(event.EventID)
		assert.NoError(t, err)
	})

	t.Run("Failure", func(t *testing.T) {
		event := NewAuditEventBuilder(AuditEventFinalize, ReasonVerificationFailure).
			WithError(ErrInvalidAggregateSignature).
			Build()
		assert.False(t, event.Success)
		assert.Contains(t, event.Error, "INVALID_AGGREGATE_SIGNATURE")
	})

	t.Run("UniqueIDs", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			id := NewAuditEventBuilder(AuditEventRound1, ReasonProtocolStep).Build().EventID
			assert.False(t, seen[id])
			seen[id] = true
		}
	})

	t.Run("JSON", func(t *testing.T) {
		event := NewAuditEventBuilder(AuditEventKeyAggregation, ReasonProtocolStep).
			WithAggregatedKey(signers[1].secret.PublicKey()).
			Build()
		raw, err := json.Marshal(event)
		require.NoError(t, err)

		var decoded AuditEvent
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, event.EventID, decoded.EventID)
		assert.Equal(t, event.AggregatedKey, decoded.AggregatedKey)
		assert.NotContains(t, string(raw), "fingerprint")
	})
}

func TestSessionFingerprint(t *testing.T) {
	a := SessionFingerprint([]byte("one"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, SessionFingerprint([]byte("one")))
	assert.NotEqual(t, a, SessionFingerprint([]byte("two")))
}

func TestLogAuditHandler(t *testing.T) {
	var buf bytes.Buffer
	handler := NewLogAuditHandler(slog.New(slog.NewJSONHandler(&buf, nil)))
	signer := newSigners(t, 1)[0].secret.PublicKey()

	handler.OnRound1(NewAuditEventBuilder(AuditEventRound1, ReasonProtocolStep).WithSigner(signer).Build())
	handler.OnFailure(NewAuditEventBuilder(AuditEventRound2, ReasonValidationError).
		WithError(errors.New("boom")).
		Build())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

	assert.Equal(t, "INFO", first["level"])
	assert.Equal(t, signer.String(), first["signer"])
	assert.Equal(t, "WARN", second["level"])
	assert.Equal(t, "boom", second["error"])
}

func TestSessionAuditNeverLeaksSecrets(t *testing.T) {
	var buf bytes.Buffer
	handler := NewLogAuditHandler(slog.New(slog.NewTextHandler(&buf, nil)))

	signers := newSigners(t, 2)
	session, err := NewSession(sessionParams(t, signers), WithAuditHandler(handler))
	require.NoError(t, err)
	session, _, state, err := session.PublishNonces(signers[0].secret, nil)
	require.NoError(t, err)

	stateText, err := state.MarshalText()
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), string(stateText))
	assert.NotContains(t, buf.String(), signers[0].secret.Base58())
	assert.Contains(t, buf.String(), session.Fingerprint())
}

func TestMuSigErrors(t *testing.T) {
	cause := errors.New("underlying")
	err := ErrMalformedMessage.WithDetails("bad %s", "tag").WithCause(cause).WithContext("field", "tag")

	assert.ErrorIs(t, err, ErrMalformedMessage)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrInvalidKeySet)
	assert.Contains(t, err.Error(), "bad tag")
	assert.Equal(t, "tag", GetErrorContext(err)["field"])
	assert.Empty(t, ErrMalformedMessage.Details, "sentinel is not mutated")

	assert.True(t, IsErrorCategory(err, ErrorCategoryEncoding))
	assert.False(t, IsRecoverableError(ErrRandomnessGeneration))
	assert.True(t, IsRecoverableError(err))
}
