package musig

import (
	"io"
	"runtime"
	"sync"
	"sync/atomic"
)

// maxNonceAttempts bounds the retries when rng yields a zero scalar.
const maxNonceAttempts = 8

// NonceCommitment is the public half of a signer's round one output
// (wire name AggMessage1).
type NonceCommitment struct {
	Sender PublicKey
	R1     Point
	R2     Point
}

// Equal reports whether both commitments carry the same sender and points
func (c *NonceCommitment) Equal(other *NonceCommitment) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Sender.Equal(other.Sender) && c.R1.Equal(other.R1) && c.R2.Equal(other.R2)
}

// SecretNonceState holds the nonce scalars behind a NonceCommitment (wire
// name SecretAggStepOne). It may be consumed exactly once.
type SecretNonceState struct {
	Owner PublicKey

	mu       sync.Mutex // guards r1 and r2
	r1       Scalar
	r2       Scalar
	consumed atomic.Bool
}

func newSecretNonceState(owner PublicKey, r1, r2 Scalar) *SecretNonceState {
	state := &SecretNonceState{Owner: owner, r1: r1, r2: r2}
	runtime.SetFinalizer(state, (*SecretNonceState).Zeroize)
	return state
}

// Commitment recomputes the public commitment R1 = r1*G, R2 = r2*G.
func (s *SecretNonceState) Commitment() (*NonceCommitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed.Load() {
		return nil, ErrNonceAlreadyConsumed
	}
	base := sharedEd25519Curve.BasePoint()
	return &NonceCommitment{
		Sender: s.Owner,
		R1:     base.Mul(s.r1),
		R2:     base.Mul(s.r2),
	}, nil
}

// Consumed reports whether the state has been used or zeroized
func (s *SecretNonceState) Consumed() bool { return s.consumed.Load() }

// take marks the state consumed and hands the scalars to the caller, who
// must zeroize them. Only the first call succeeds.
func (s *SecretNonceState) take() (Scalar, Scalar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.consumed.CompareAndSwap(false, true) {
		return nil, nil, ErrNonceAlreadyConsumed
	}
	r1, r2 := s.r1, s.r2
	s.r1, s.r2 = nil, nil
	runtime.SetFinalizer(s, nil)
	return r1, r2, nil
}

// Zeroize overwrites the nonce scalars and marks the state consumed.
func (s *SecretNonceState) Zeroize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumed.Store(true)
	ZeroizeScalarSlice([]Scalar{s.r1, s.r2})
	s.r1, s.r2 = nil, nil
	runtime.SetFinalizer(s, nil)
}

// BeginRound1 draws two fresh nonces for secret and returns the commitment to
// publish together with the state to keep. The message is deliberately not
// an input: nonces depend on rng alone (crypto/rand when rng is nil).
func BeginRound1(secret *SecretKey, rng io.Reader) (*NonceCommitment, *SecretNonceState, error) {
	if secret == nil || secret.scalar == nil {
		return nil, nil, ErrInvalidSecretKey.WithDetails("secret key is required")
	}

	r1, err := randomNonce(rng)
	if err != nil {
		return nil, nil, err
	}
	r2, err := randomNonce(rng)
	if err != nil {
		r1.Zeroize()
		return nil, nil, err
	}

	state := newSecretNonceState(secret.PublicKey(), r1, r2)
	commitment, err := state.Commitment()
	if err != nil {
		state.Zeroize()
		return nil, nil, err
	}
	return commitment, state, nil
}

func randomNonce(rng io.Reader) (Scalar, error) {
	for attempt := 0; attempt < maxNonceAttempts; attempt++ {
		nonce, err := sharedEd25519Curve.ScalarRandom(rng)
		if err != nil {
			return nil, ErrRandomnessGeneration.WithCause(err)
		}
		if !nonce.IsZero() {
			return nonce, nil
		}
		nonce.Zeroize()
	}
	return nil, ErrRandomnessGeneration.WithDetails("rng produced %d zero nonces", maxNonceAttempts)
}
