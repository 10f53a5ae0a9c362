package musig

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Curve is the prime-order group the protocol runs in. Solana only accepts
// Ed25519, so Ed25519Curve is the sole implementation.
type Curve interface {
	Name() string
	ScalarSize() int
	PointSize() int

	// ScalarFromBytes requires a canonical encoding; ScalarFromUniformBytes
	// reduces 64 bytes mod L.
	ScalarFromBytes([]byte) (Scalar, error)
	ScalarFromUniformBytes([]byte) (Scalar, error)
	ScalarRandom(io.Reader) (Scalar, error)
	ScalarZero() Scalar

	PointFromBytes([]byte) (Point, error)
	BasePoint() Point
	PointIdentity() Point
}

// Scalar is an integer mod the group order L. Secret scalars (keys, nonces)
// must be zeroized by their owner.
type Scalar interface {
	Bytes() []byte
	String() string
	Add(Scalar) Scalar
	Mul(Scalar) Scalar
	Equal(Scalar) bool
	IsZero() bool
	Zeroize()
}

// Point represents a point on the elliptic curve
type Point interface {
	// Serialization
	Bytes() []byte
	String() string

	// Arithmetic operations
	Add(Point) Point
	Mul(Scalar) Point

	// Comparison
	Equal(Point) bool
	IsIdentity() bool
}

// CurveType represents supported curve types
type CurveType string

const (
	Ed25519 CurveType = "ed25519"
)

// NewCurve creates a new curve instance
func NewCurve(curveType CurveType) (Curve, error) {
	switch curveType {
	case Ed25519:
		return NewEd25519Curve(), nil
	default:
		return nil, fmt.Errorf("unsupported curve type: %s", curveType)
	}
}

// Common errors
var (
	ErrInvalidScalarLength = errors.New("invalid scalar length")
	ErrInvalidPointLength  = errors.New("invalid point length")
	ErrInvalidScalar       = errors.New("invalid scalar value")
	ErrInvalidPoint        = errors.New("invalid point")
	ErrIdentityPoint       = errors.New("point is the group identity")
)

// SecureRandom generates cryptographically secure random bytes from r,
// falling back to crypto/rand when r is nil.
func SecureRandom(r io.Reader, size int) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
