package musig

// FinalizeOption configures Finalize
type FinalizeOption func(*finalizeConfig)

type finalizeConfig struct {
	commitments []*NonceCommitment
	audit       AuditEventHandler
}

// WithCommitments enables per-signer verification
// s_i*G == R1_i + b*R2_i + c*a_i*X_i, which names the faulty signer instead
// of only rejecting the sum.
func WithCommitments(commitments []*NonceCommitment) FinalizeOption {
	return func(c *finalizeConfig) { c.commitments = commitments }
}

// WithFinalizeAuditHandler reports finalize events to handler
func WithFinalizeAuditHandler(handler AuditEventHandler) FinalizeOption {
	return func(c *finalizeConfig) { c.audit = handler }
}

// AggregatedNonceFromPartials returns the nonce R all partials agree on.
func AggregatedNonceFromPartials(partials []*PartialSignature) (Point, error) {
	if len(partials) == 0 {
		return nil, ErrInvalidAggregateSignature.WithDetails("no partial signatures")
	}
	var R Point
	for _, partial := range partials {
		if partial == nil || partial.R == nil {
			return nil, ErrInvalidAggregateSignature.WithDetails("nil partial signature")
		}
		if R == nil {
			R = partial.R
			continue
		}
		if !partial.R.Equal(R) {
			return nil, ErrInvalidAggregateSignature.
				WithDetails("signer %s used a different aggregated nonce", partial.Sender).
				WithContext("signer", partial.Sender.String())
		}
	}
	return R, nil
}

// Finalize sums the partial signatures into s = sum(s_i) and releases
// (R, s) only after it verifies against the aggregated key, both through the
// group equation and through crypto/ed25519.
func Finalize(
	aggregatedNonce Point,
	partials []*PartialSignature,
	agg *KeyAggregation,
	message []byte,
	opts ...FinalizeOption,
) (*SolanaSignature, error) {
	cfg := finalizeConfig{audit: &NullAuditHandler{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	signature, err := finalize(aggregatedNonce, partials, agg, message, cfg)
	if err != nil {
		cfg.audit.OnFailure(NewAuditEventBuilder(AuditEventFinalize, ReasonVerificationFailure).
			WithMessage(message).
			WithError(err).
			Build())
		return nil, err
	}

	cfg.audit.OnFinalize(NewAuditEventBuilder(AuditEventFinalize, ReasonProtocolStep).
		WithMessage(message).
		WithAggregatedKey(agg.AggregatedKey()).
		WithSignerCount(agg.Size()).
		WithMetadata("signature", signature.String()).
		Build())
	return signature, nil
}

func finalize(
	aggregatedNonce Point,
	partials []*PartialSignature,
	agg *KeyAggregation,
	message []byte,
	cfg finalizeConfig,
) (*SolanaSignature, error) {
	if agg == nil || aggregatedNonce == nil {
		return nil, ErrInvalidAggregateSignature.WithDetails("aggregated nonce and key aggregation are required")
	}
	if len(partials) != agg.Size() {
		return nil, ErrInvalidAggregateSignature.
			WithDetails("expected %d partial signatures, got %d", agg.Size(), len(partials))
	}

	ordered := make([]*PartialSignature, agg.Size())
	for _, partial := range partials {
		if partial == nil || partial.R == nil || partial.S == nil {
			return nil, ErrInvalidAggregateSignature.WithDetails("nil partial signature")
		}
		i := agg.IndexOf(partial.Sender)
		if i < 0 {
			return nil, ErrInvalidAggregateSignature.
				WithDetails("partial signature from unknown signer %s", partial.Sender).
				WithContext("signer", partial.Sender.String())
		}
		if ordered[i] != nil {
			return nil, ErrInvalidAggregateSignature.
				WithDetails("duplicate partial signature from %s", partial.Sender).
				WithContext("signer", partial.Sender.String())
		}
		if !partial.R.Equal(aggregatedNonce) {
			return nil, ErrInvalidAggregateSignature.
				WithDetails("signer %s used a different aggregated nonce", partial.Sender).
				WithContext("signer", partial.Sender.String())
		}
		ordered[i] = partial
	}

	if cfg.commitments != nil {
		if err := verifyPartials(ordered, agg, cfg.commitments, aggregatedNonce, message); err != nil {
			return nil, err
		}
	}

	s := sharedEd25519Curve.ScalarZero()
	for _, partial := range ordered {
		s = s.Add(partial.S)
	}

	signature := &SolanaSignature{R: aggregatedNonce, S: s}
	if err := VerifySolanaSignature(signature, agg.AggregatedKey(), message); err != nil {
		return nil, ErrInvalidAggregateSignature.WithCause(err)
	}
	return signature, nil
}

// verifyPartials checks each partial against its signer's commitment.
func verifyPartials(
	ordered []*PartialSignature,
	agg *KeyAggregation,
	commitments []*NonceCommitment,
	aggregatedNonce Point,
	message []byte,
) error {
	ctx, err := newSigningContext(agg, commitments, message)
	if err != nil {
		return ErrInvalidAggregateSignature.WithCause(err)
	}
	if !ctx.R.Equal(aggregatedNonce) {
		return ErrInvalidAggregateSignature.WithDetails("commitments do not produce the aggregated nonce")
	}

	base := sharedEd25519Curve.BasePoint()
	for i, partial := range ordered {
		key := agg.keys[i]
		commitment := ctx.commitments[i]

		// s_i*G == R1_i + b*R2_i + c*a_i*X_i
		left := base.Mul(partial.S)
		right := commitment.R1.
			Add(commitment.R2.Mul(ctx.b)).
			Add(key.Point().Mul(ctx.c.Mul(agg.coefficients[i])))
		if !left.Equal(right) {
			return ErrInvalidAggregateSignature.
				WithDetails("partial signature from %s does not verify", key).
				WithContext("signer", key.String())
		}
	}
	return nil
}
