package musig

import (
	"bytes"
	"sort"
)

// KeyOrdering selects how the signer list is canonicalized before hashing.
type KeyOrdering int

const (
	// KeyOrderingSorted sorts keys bytewise, so any permutation of the same
	// set aggregates to the same key.
	KeyOrderingSorted KeyOrdering = iota
	// KeyOrderingAsGiven trusts the caller's order; every party must supply
	// the keys identically.
	KeyOrderingAsGiven
)

// String returns a human readable name
func (o KeyOrdering) String() string {
	switch o {
	case KeyOrderingSorted:
		return "sorted"
	case KeyOrderingAsGiven:
		return "as-given"
	default:
		return "unknown"
	}
}

// KeyAggregation is the result of combining a signer set into one key.
type KeyAggregation struct {
	keys         []PublicKey
	coefficients []Scalar
	aggregated   PublicKey
	ordering     KeyOrdering
}

// AggregateKeys combines at least two distinct, non-degenerate keys into
// X = sum(a_i * X_i) with a_i = H_agg(L, X_i) and L = H_list(X_1..X_n).
// The coefficients bind every key to the whole list, which rules out
// rogue-key substitution.
func AggregateKeys(keys []PublicKey, ordering KeyOrdering) (*KeyAggregation, error) {
	if len(keys) < 2 {
		return nil, ErrInvalidKeySet.WithDetails("need at least 2 keys, got %d", len(keys))
	}

	ordered := make([]PublicKey, len(keys))
	copy(ordered, keys)

	switch ordering {
	case KeyOrderingSorted:
		sort.Slice(ordered, func(i, j int) bool {
			return bytes.Compare(ordered[i].raw[:], ordered[j].raw[:]) < 0
		})
	case KeyOrderingAsGiven:
	default:
		return nil, ErrInvalidKeySet.WithDetails("unknown key ordering %d", int(ordering))
	}

	seen := make(map[[PublicKeySize]byte]struct{}, len(ordered))
	listTranscript := make([][]byte, 0, len(ordered))
	for i, pk := range ordered {
		if pk.IsZero() || pk.point.IsIdentity() {
			return nil, ErrInvalidKeySet.WithDetails("key %d is degenerate", i).WithContext("index", i)
		}
		if _, dup := seen[pk.raw]; dup {
			return nil, ErrInvalidKeySet.WithDetails("duplicate key %s", pk).WithContext("key", pk.String())
		}
		seen[pk.raw] = struct{}{}
		listTranscript = append(listTranscript, pk.raw[:])
	}

	listHash := taggedHashToScalar(tagKeyAggList, listTranscript...).Bytes()

	coefficients := make([]Scalar, len(ordered))
	aggregated := sharedEd25519Curve.PointIdentity()
	for i, pk := range ordered {
		coefficients[i] = taggedHashToScalar(tagKeyAggCoefficient, listHash, pk.raw[:])
		aggregated = aggregated.Add(pk.point.Mul(coefficients[i]))
	}

	if aggregated.(*Ed25519Point).IsSmallOrder() {
		return nil, ErrInvalidKeySet.WithDetails("aggregated key is degenerate")
	}

	return &KeyAggregation{
		keys:         ordered,
		coefficients: coefficients,
		aggregated:   newPublicKey(aggregated),
		ordering:     ordering,
	}, nil
}

// AggregatedKey returns the combined verification key
func (k *KeyAggregation) AggregatedKey() PublicKey { return k.aggregated }

// Address returns the Solana account controlled by the signer set
func (k *KeyAggregation) Address() SolanaAddress { return k.aggregated.Address() }

// Ordering returns the canonicalization used
func (k *KeyAggregation) Ordering() KeyOrdering { return k.ordering }

// Keys returns the signer keys in canonical order
func (k *KeyAggregation) Keys() []PublicKey {
	out := make([]PublicKey, len(k.keys))
	copy(out, k.keys)
	return out
}

// Size returns the number of signers
func (k *KeyAggregation) Size() int { return len(k.keys) }

// IndexOf returns the canonical position of pk, or -1 when pk is not a signer.
func (k *KeyAggregation) IndexOf(pk PublicKey) int {
	for i, key := range k.keys {
		if key.Equal(pk) {
			return i
		}
	}
	return -1
}

// Coefficient returns the binding coefficient of pk, or false when pk is not
// part of the set.
func (k *KeyAggregation) Coefficient(pk PublicKey) (Scalar, bool) {
	i := k.IndexOf(pk)
	if i < 0 {
		return nil, false
	}
	return k.coefficients[i], true
}
