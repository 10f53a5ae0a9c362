package musig

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	AuditEventKeyAggregation AuditEventType = "key_aggregation"
	AuditEventRound1         AuditEventType = "round1"
	AuditEventRound2         AuditEventType = "round2"
	AuditEventFinalize       AuditEventType = "finalize"
)

// AuditEventReason represents why an event occurred
type AuditEventReason string

const (
	ReasonProtocolStep        AuditEventReason = "protocol_step"
	ReasonValidationError     AuditEventReason = "validation_error"
	ReasonVerificationFailure AuditEventReason = "verification_failure"
)

// AuditEvent records one step of a signing session. It never carries secret
// material: messages are reduced to a fingerprint and keys to their addresses.
type AuditEvent struct {
	EventID   string           `json:"event_id"`
	Timestamp time.Time        `json:"timestamp"`
	EventType AuditEventType   `json:"event_type"`
	Reason    AuditEventReason `json:"reason"`

	// Fingerprint is the hex BLAKE2b-256 digest of the signed message. Parties
	// compare it to confirm they hold the same session tuple.
	Fingerprint   string `json:"fingerprint,omitempty"`
	Signer        string `json:"signer,omitempty"`
	AggregatedKey string `json:"aggregated_key,omitempty"`
	SignerCount   int    `json:"signer_count,omitempty"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AuditEventHandler defines the interface for handling audit events
// Applications implement this interface to record events according to their needs
type AuditEventHandler interface {
	OnKeyAggregation(event *AuditEvent)
	OnRound1(event *AuditEvent)
	OnRound2(event *AuditEvent)
	OnFinalize(event *AuditEvent)
	// OnFailure is called for any step that returned an error
	OnFailure(event *AuditEvent)
}

// NullAuditHandler is a no-op implementation of AuditEventHandler
type NullAuditHandler struct{}

func (n *NullAuditHandler) OnKeyAggregation(event *AuditEvent) {}
func (n *NullAuditHandler) OnRound1(event *AuditEvent)         {}
func (n *NullAuditHandler) OnRound2(event *AuditEvent)         {}
func (n *NullAuditHandler) OnFinalize(event *AuditEvent)       {}
func (n *NullAuditHandler) OnFailure(event *AuditEvent)        {}

// LogAuditHandler writes every event as a structured log record
type LogAuditHandler struct {
	Logger *slog.Logger
}

// NewLogAuditHandler returns a handler logging to logger, or to slog.Default when nil.
func NewLogAuditHandler(logger *slog.Logger) *LogAuditHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAuditHandler{Logger: logger}
}

func (h *LogAuditHandler) OnKeyAggregation(event *AuditEvent) { h.log(slog.LevelInfo, event) }
func (h *LogAuditHandler) OnRound1(event *AuditEvent)         { h.log(slog.LevelInfo, event) }
func (h *LogAuditHandler) OnRound2(event *AuditEvent)         { h.log(slog.LevelInfo, event) }
func (h *LogAuditHandler) OnFinalize(event *AuditEvent)       { h.log(slog.LevelInfo, event) }
func (h *LogAuditHandler) OnFailure(event *AuditEvent)        { h.log(slog.LevelWarn, event) }

func (h *LogAuditHandler) log(level slog.Level, event *AuditEvent) {
	attrs := []slog.Attr{
		slog.String("event_id", event.EventID),
		slog.String("type", string(event.EventType)),
		slog.String("reason", string(event.Reason)),
		slog.Bool("success", event.Success),
	}
	if event.Fingerprint != "" {
		attrs = append(attrs, slog.String("fingerprint", event.Fingerprint))
	}
	if event.Signer != "" {
		attrs = append(attrs, slog.String("signer", event.Signer))
	}
	if event.AggregatedKey != "" {
		attrs = append(attrs, slog.String("aggregated_key", event.AggregatedKey))
	}
	if event.SignerCount > 0 {
		attrs = append(attrs, slog.Int("signers", event.SignerCount))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.Any(k, v))
	}
	h.Logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// AuditEventBuilder helps construct audit events with proper defaults
type AuditEventBuilder struct {
	event *AuditEvent
}

// NewAuditEventBuilder creates a new audit event builder
func NewAuditEventBuilder(eventType AuditEventType, reason AuditEventReason) *AuditEventBuilder {
	return &AuditEventBuilder{
		event: &AuditEvent{
			EventID:   uuid.NewString(),
			Timestamp: time.Now(),
			EventType: eventType,
			Reason:    reason,
			Success:   true, // Default to success, can be overridden
			Metadata:  make(map[string]interface{}),
		},
	}
}

// WithMessage sets the session fingerprint from the signed message
func (b *AuditEventBuilder) WithMessage(message []byte) *AuditEventBuilder {
	if message != nil {
		b.event.Fingerprint = SessionFingerprint(message)
	}
	return b
}

// WithSigner sets the signer the event concerns
func (b *AuditEventBuilder) WithSigner(pk PublicKey) *AuditEventBuilder {
	if !pk.IsZero() {
		b.event.Signer = pk.String()
	}
	return b
}

// WithAggregatedKey sets the session's aggregated key
func (b *AuditEventBuilder) WithAggregatedKey(pk PublicKey) *AuditEventBuilder {
	if !pk.IsZero() {
		b.event.AggregatedKey = pk.String()
	}
	return b
}

// WithSignerCount sets the size of the signer set
func (b *AuditEventBuilder) WithSignerCount(n int) *AuditEventBuilder {
	b.event.SignerCount = n
	return b
}

// WithError marks the event as failed and sets error information
func (b *AuditEventBuilder) WithError(err error) *AuditEventBuilder {
	b.event.Success = false
	if err != nil {
		b.event.Error = err.Error()
	}
	return b
}

// WithMetadata adds metadata to the event
func (b *AuditEventBuilder) WithMetadata(key string, value interface{}) *AuditEventBuilder {
	b.event.Metadata[key] = value
	return b
}

// Build returns the constructed audit event
func (b *AuditEventBuilder) Build() *AuditEvent {
	return b.event
}

// SessionFingerprint returns the hex BLAKE2b-256 digest of message.
func SessionFingerprint(message []byte) string {
	sum := blake2b.Sum256(message)
	return hex.EncodeToString(sum[:])
}
