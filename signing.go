package musig

import (
	"fmt"
)

// PartialSignature is one signer's round two contribution. It carries the
// aggregated nonce R the signer used so the aggregator can detect signers
// that disagreed on the nonce set.
type PartialSignature struct {
	Sender PublicKey
	R      Point
	S      Scalar
}

// SignOption configures SignRound2
type SignOption func(*signConfig)

type signConfig struct {
	ledger NonceLedger
	audit  AuditEventHandler
}

// WithNonceLedger records every consumed commitment in ledger and refuses
// commitments the ledger has already seen. Use a persistent ledger when the
// secret state crosses a process boundary as text.
func WithNonceLedger(ledger NonceLedger) SignOption {
	return func(c *signConfig) { c.ledger = ledger }
}

// WithSignAuditHandler reports round two events to handler
func WithSignAuditHandler(handler AuditEventHandler) SignOption {
	return func(c *signConfig) { c.audit = handler }
}

// signingContext holds the values every signer derives identically from the
// ordered commitments, the aggregated key and the message.
type signingContext struct {
	commitments []*NonceCommitment // canonical key order
	r1Agg       Point
	r2Agg       Point
	b           Scalar // nonce binding factor
	R           Point  // aggregated nonce R1 + b*R2
	c           Scalar // Ed25519 challenge
}

// orderCommitments matches commitments against the key set, returning them
// in canonical key order. Every signer must appear exactly once.
func orderCommitments(agg *KeyAggregation, commitments []*NonceCommitment) ([]*NonceCommitment, error) {
	if len(commitments) != agg.Size() {
		return nil, ErrIncompleteOrMismatchedNonceSet.WithDetails(
			"expected %d commitments, got %d", agg.Size(), len(commitments))
	}

	ordered := make([]*NonceCommitment, agg.Size())
	for _, commitment := range commitments {
		if commitment == nil || commitment.R1 == nil || commitment.R2 == nil {
			return nil, ErrIncompleteOrMismatchedNonceSet.WithDetails("nil commitment")
		}
		i := agg.IndexOf(commitment.Sender)
		if i < 0 {
			return nil, ErrIncompleteOrMismatchedNonceSet.
				WithDetails("commitment from unknown signer %s", commitment.Sender).
				WithContext("sender", commitment.Sender.String())
		}
		if ordered[i] != nil {
			return nil, ErrIncompleteOrMismatchedNonceSet.
				WithDetails("duplicate commitment from %s", commitment.Sender).
				WithContext("sender", commitment.Sender.String())
		}
		ordered[i] = commitment
	}
	return ordered, nil
}

func newSigningContext(agg *KeyAggregation, commitments []*NonceCommitment, message []byte) (*signingContext, error) {
	ordered, err := orderCommitments(agg, commitments)
	if err != nil {
		return nil, err
	}

	r1Agg := sharedEd25519Curve.PointIdentity()
	r2Agg := sharedEd25519Curve.PointIdentity()
	for _, commitment := range ordered {
		r1Agg = r1Agg.Add(commitment.R1)
		r2Agg = r2Agg.Add(commitment.R2)
	}

	aggKey := agg.AggregatedKey()
	b := taggedHashToScalar(tagNonceCoefficient, aggKey.raw[:], r1Agg.Bytes(), r2Agg.Bytes(), message)
	R := r1Agg.Add(r2Agg.Mul(b))

	c, err := SolanaChallenge(R, aggKey.Point(), message)
	if err != nil {
		return nil, fmt.Errorf("failed to compute challenge: %w", err)
	}

	return &signingContext{
		commitments: ordered,
		r1Agg:       r1Agg,
		r2Agg:       r2Agg,
		b:           b,
		R:           R,
		c:           c,
	}, nil
}

// SignRound2 computes the caller's partial signature
// s_i = r1 + b*r2 + c*a_i*x_i over message. The binding coefficient a_i is
// looked up in agg. The nonce state is consumed and zeroized.
func SignRound2(
	secret *SecretKey,
	agg *KeyAggregation,
	state *SecretNonceState,
	commitments []*NonceCommitment,
	message []byte,
	opts ...SignOption,
) (*PartialSignature, error) {
	if secret == nil || agg == nil {
		return nil, ErrInvalidSecretKey.WithDetails("secret key and key aggregation are required")
	}
	coefficient, ok := agg.Coefficient(secret.PublicKey())
	if !ok {
		return nil, ErrIncompleteOrMismatchedNonceSet.
			WithDetails("signer %s is not part of the key set", secret.PublicKey()).
			WithContext("signer", secret.PublicKey().String())
	}
	return SignRound2WithCoefficient(secret, coefficient, state, commitments, agg, message, opts...)
}

// SignRound2WithCoefficient is SignRound2 with the caller's binding
// coefficient supplied explicitly. A wrong coefficient yields a partial
// signature that fails aggregation.
func SignRound2WithCoefficient(
	secret *SecretKey,
	coefficient Scalar,
	state *SecretNonceState,
	commitments []*NonceCommitment,
	agg *KeyAggregation,
	message []byte,
	opts ...SignOption,
) (*PartialSignature, error) {
	cfg := signConfig{audit: &NullAuditHandler{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	partial, err := signRound2(secret, coefficient, state, commitments, agg, message, cfg)
	if err != nil {
		cfg.audit.OnFailure(NewAuditEventBuilder(AuditEventRound2, ReasonValidationError).WithMessage(message).WithError(err).Build())
		return nil, err
	}

	cfg.audit.OnRound2(NewAuditEventBuilder(AuditEventRound2, ReasonProtocolStep).
		WithMessage(message).
		WithSigner(partial.Sender).
		WithAggregatedKey(agg.AggregatedKey()).
		Build())
	return partial, nil
}

func signRound2(
	secret *SecretKey,
	coefficient Scalar,
	state *SecretNonceState,
	commitments []*NonceCommitment,
	agg *KeyAggregation,
	message []byte,
	cfg signConfig,
) (*PartialSignature, error) {
	if secret == nil || secret.scalar == nil || coefficient == nil || agg == nil {
		return nil, ErrInvalidSecretKey.WithDetails("secret key, coefficient and key aggregation are required")
	}
	if state == nil {
		return nil, ErrInvalidState.WithDetails("round one state is required")
	}
	if state.Consumed() {
		return nil, ErrNonceAlreadyConsumed
	}

	signer := secret.PublicKey()
	if !state.Owner.Equal(signer) {
		return nil, ErrIncompleteOrMismatchedNonceSet.
			WithDetails("nonce state belongs to %s, not %s", state.Owner, signer)
	}

	ctx, err := newSigningContext(agg, commitments, message)
	if err != nil {
		return nil, err
	}

	own, err := state.Commitment()
	if err != nil {
		return nil, err
	}
	index := agg.IndexOf(signer)
	if index < 0 {
		return nil, ErrIncompleteOrMismatchedNonceSet.WithDetails("signer %s is not part of the key set", signer)
	}
	if !ctx.commitments[index].Equal(own) {
		return nil, ErrIncompleteOrMismatchedNonceSet.
			WithDetails("published commitment for %s does not match the local nonce state", signer)
	}

	// the in-memory state is consumed before the ledger is consulted, so a
	// ledger failure still leaves this state unusable
	r1, r2, err := state.take()
	if err != nil {
		return nil, err
	}
	defer ZeroizeScalarSlice([]Scalar{r1, r2})

	if cfg.ledger != nil {
		if err := cfg.ledger.MarkConsumed(own); err != nil {
			return nil, err
		}
	}

	// s_i = r1 + b*r2 + c*a_i*x_i
	br2 := ctx.b.Mul(r2)
	cax := ctx.c.Mul(coefficient).Mul(secret.scalar)
	defer ZeroizeScalarSlice([]Scalar{br2, cax})
	s := r1.Add(br2).Add(cax)

	return &PartialSignature{Sender: signer, R: ctx.R, S: s}, nil
}
