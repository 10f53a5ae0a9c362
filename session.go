package musig

import (
	"io"
)

// Phase is the position of a Session in the signing protocol
type Phase int

const (
	phaseUninitialized Phase = iota
	PhaseKeysAggregated
	PhaseRound1Published
	PhaseRound2Published
	PhaseFinalized
)

func (p Phase) String() string {
	switch p {
	case PhaseKeysAggregated:
		return "keys_aggregated"
	case PhaseRound1Published:
		return "round1_published"
	case PhaseRound2Published:
		return "round2_published"
	case PhaseFinalized:
		return "finalized"
	default:
		return "uninitialized"
	}
}

// SessionParams is the tuple every party must agree on bit for bit.
type SessionParams struct {
	Keys            []PublicKey
	Recipient       SolanaAddress
	Amount          float64 // SOL
	Memo            string
	RecentBlockhash Blockhash
	Network         Network
	Ordering        KeyOrdering
}

// Lamports returns the transfer amount in lamports
func (p SessionParams) Lamports() uint64 { return SOLToLamports(p.Amount) }

// SessionOption configures NewSession
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	audit  AuditEventHandler
	ledger NonceLedger
}

// WithAuditHandler reports every transition to handler
func WithAuditHandler(handler AuditEventHandler) SessionOption {
	return func(c *sessionConfig) { c.audit = handler }
}

// WithSessionNonceLedger makes Sign record consumed commitments in ledger
func WithSessionNonceLedger(ledger NonceLedger) SessionOption {
	return func(c *sessionConfig) { c.ledger = ledger }
}

// Session is one party's view of a signing session. It is a value: every
// transition returns the next Session and leaves the receiver unchanged, so
// a failed step can be retried from the prior value.
type Session struct {
	cfg    sessionConfig
	phase  Phase
	params SessionParams

	agg     *KeyAggregation
	tx      *SolanaTransaction
	message []byte

	commitment *NonceCommitment
	state      *SecretNonceState
	partial    *PartialSignature
	signature  *SolanaSignature
}

// NewSession validates params, aggregates the keys and compiles the transfer
// message the aggregated account will sign.
func NewSession(params SessionParams, opts ...SessionOption) (Session, error) {
	cfg := sessionConfig{audit: &NullAuditHandler{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	fail := func(err error) (Session, error) {
		cfg.audit.OnFailure(NewAuditEventBuilder(AuditEventKeyAggregation, ReasonValidationError).
			WithError(err).
			Build())
		return Session{}, err
	}

	if err := ValidateSessionParams(params).Err(); err != nil {
		return fail(err)
	}

	agg, err := AggregateKeys(params.Keys, params.Ordering)
	if err != nil {
		return fail(err)
	}

	tx, err := BuildTransferTransaction(agg.Address(), params.Recipient, params.Lamports(), params.Memo, params.RecentBlockhash)
	if err != nil {
		return fail(ErrInvalidSessionParams.WithCause(err))
	}
	message, err := tx.Message.Serialize()
	if err != nil {
		return fail(ErrInvalidSessionParams.WithCause(err))
	}

	params.Keys = append([]PublicKey(nil), params.Keys...)
	s := Session{
		cfg:     cfg,
		phase:   PhaseKeysAggregated,
		params:  params,
		agg:     agg,
		tx:      tx,
		message: message,
	}

	cfg.audit.OnKeyAggregation(NewAuditEventBuilder(AuditEventKeyAggregation, ReasonProtocolStep).
		WithMessage(message).
		WithAggregatedKey(agg.AggregatedKey()).
		WithSignerCount(agg.Size()).
		WithMetadata("network", params.Network.String()).
		Build())
	return s, nil
}

// Phase returns the current phase
func (s Session) Phase() Phase { return s.phase }

// Params returns the session tuple
func (s Session) Params() SessionParams { return s.params }

// KeyAggregation returns the aggregated signer set
func (s Session) KeyAggregation() *KeyAggregation { return s.agg }

// AggregatedKey returns the key the final signature verifies against
func (s Session) AggregatedKey() PublicKey { return s.agg.AggregatedKey() }

// Message returns the serialized transaction message being signed
func (s Session) Message() []byte { return append([]byte(nil), s.message...) }

// Fingerprint returns the BLAKE2b-256 digest parties compare out of band
func (s Session) Fingerprint() string { return SessionFingerprint(s.message) }

// Commitment returns this party's published commitment, if any
func (s Session) Commitment() *NonceCommitment { return s.commitment }

// PartialSignature returns this party's partial signature, if any
func (s Session) PartialSignature() *PartialSignature { return s.partial }

// Signature returns the final signature once finalized
func (s Session) Signature() *SolanaSignature { return s.signature }

func (s Session) require(phases ...Phase) error {
	for _, phase := range phases {
		if s.phase == phase {
			return nil
		}
	}
	return ErrInvalidState.
		WithDetails("session is %s", s.phase).
		WithContext("phase", s.phase.String())
}

func (s Session) requireSigner(pk PublicKey) error {
	if s.agg.IndexOf(pk) < 0 {
		return ErrIncompleteOrMismatchedNonceSet.
			WithDetails("%s is not a signer of this session", pk).
			WithContext("signer", pk.String())
	}
	return nil
}

// PublishNonces runs round one for secret and moves to Round1Published.
func (s Session) PublishNonces(secret *SecretKey, rng io.Reader) (Session, *NonceCommitment, *SecretNonceState, error) {
	if err := s.require(PhaseKeysAggregated); err != nil {
		return s, nil, nil, err
	}
	if secret == nil {
		return s, nil, nil, ErrInvalidSecretKey.WithDetails("secret key is required")
	}
	if err := s.requireSigner(secret.PublicKey()); err != nil {
		return s, nil, nil, err
	}

	commitment, state, err := BeginRound1(secret, rng)
	if err != nil {
		s.cfg.audit.OnFailure(NewAuditEventBuilder(AuditEventRound1, ReasonValidationError).
			WithSigner(secret.PublicKey()).
			WithError(err).
			Build())
		return s, nil, nil, err
	}

	next := s
	next.phase = PhaseRound1Published
	next.commitment = commitment
	next.state = state

	s.cfg.audit.OnRound1(NewAuditEventBuilder(AuditEventRound1, ReasonProtocolStep).
		WithSigner(secret.PublicKey()).
		WithAggregatedKey(s.agg.AggregatedKey()).
		Build())
	return next, commitment, state, nil
}

// ResumeRound1 re-enters Round1Published with a state produced by an earlier
// process and decoded from text.
func (s Session) ResumeRound1(state *SecretNonceState) (Session, error) {
	if err := s.require(PhaseKeysAggregated); err != nil {
		return s, err
	}
	if state == nil || state.Consumed() {
		return s, ErrNonceAlreadyConsumed
	}
	if err := s.requireSigner(state.Owner); err != nil {
		return s, err
	}
	commitment, err := state.Commitment()
	if err != nil {
		return s, err
	}

	next := s
	next.phase = PhaseRound1Published
	next.commitment = commitment
	next.state = state
	return next, nil
}

// Sign runs round two. When state is nil the state from PublishNonces or
// ResumeRound1 is used.
func (s Session) Sign(secret *SecretKey, state *SecretNonceState, commitments []*NonceCommitment) (Session, *PartialSignature, error) {
	if err := s.require(PhaseRound1Published); err != nil {
		return s, nil, err
	}
	if state == nil {
		state = s.state
	}

	opts := []SignOption{WithSignAuditHandler(s.cfg.audit)}
	if s.cfg.ledger != nil {
		opts = append(opts, WithNonceLedger(s.cfg.ledger))
	}

	partial, err := SignRound2(secret, s.agg, state, commitments, s.message, opts...)
	if err != nil {
		return s, nil, err
	}

	next := s
	next.phase = PhaseRound2Published
	next.state = nil
	next.partial = partial
	return next, partial, nil
}

// Finalize aggregates the partial signatures. A party that only aggregates
// may finalize directly from PhaseKeysAggregated.
func (s Session) Finalize(partials []*PartialSignature) (Session, *SolanaSignature, error) {
	if err := s.require(PhaseKeysAggregated, PhaseRound2Published); err != nil {
		return s, nil, err
	}

	opts := []FinalizeOption{WithFinalizeAuditHandler(s.cfg.audit)}

	R, err := AggregatedNonceFromPartials(partials)
	if err != nil {
		s.cfg.audit.OnFailure(NewAuditEventBuilder(AuditEventFinalize, ReasonVerificationFailure).
			WithMessage(s.message).
			WithError(err).
			Build())
		return s, nil, err
	}
	signature, err := Finalize(R, partials, s.agg, s.message, opts...)
	if err != nil {
		return s, nil, err
	}

	tx := NewSolanaTransaction(s.tx.Message.Clone())
	if err := tx.AddSignature(s.agg.Address(), signature); err != nil {
		return s, nil, ErrInvalidAggregateSignature.WithCause(err)
	}

	next := s
	next.phase = PhaseFinalized
	next.signature = signature
	next.tx = tx
	return next, signature, nil
}

// SignedTransaction returns the transaction carrying the final signature
func (s Session) SignedTransaction() (*SolanaTransaction, error) {
	if err := s.require(PhaseFinalized); err != nil {
		return nil, err
	}
	return s.tx, nil
}
