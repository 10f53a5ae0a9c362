package musig

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"runtime"
)

// Domain separation tags for the protocol's hash functions.
const (
	tagKeyAggList        = "solana-tss/musig2/keyagg-list"
	tagKeyAggCoefficient = "solana-tss/musig2/keyagg-coefficient"
	tagNonceCoefficient  = "solana-tss/musig2/nonce-coefficient"
)

// taggedHashToScalar hashes the transcript with SHA-512 under a domain tag and
// reduces the 64-byte digest mod L. Every element is length prefixed.
func taggedHashToScalar(tag string, transcript ...[]byte) Scalar {
	hasher := sha512.New()

	writeLengthPrefixed := func(data []byte) {
		var lengthBytes [4]byte
		binary.BigEndian.PutUint32(lengthBytes[:], uint32(len(data)))
		hasher.Write(lengthBytes[:])
		hasher.Write(data)
	}

	writeLengthPrefixed([]byte(tag))
	for _, data := range transcript {
		writeLengthPrefixed(data)
	}

	digest := hasher.Sum(nil)
	// 64 bytes always satisfies ScalarFromUniformBytes
	scalar, _ := sharedEd25519Curve.ScalarFromUniformBytes(digest)
	return scalar
}

// SecureCompare performs constant-time comparison of byte slices
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ZeroizeBytes overwrites a byte slice with zeros.
func ZeroizeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
	runtime.KeepAlive(data)
}

// ZeroizeScalarSlice securely clears a slice of scalars
func ZeroizeScalarSlice(scalars []Scalar) {
	for _, scalar := range scalars {
		if scalar != nil {
			scalar.Zeroize()
		}
	}
}
