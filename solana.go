package musig

import (
	"crypto/ed25519"
	"crypto/sha512"
	"fmt"
	"io"

	"github.com/mr-tron/base58"
)

// Shared Ed25519 curve instance to avoid repeated creation
var sharedEd25519Curve = NewEd25519Curve()

// PublicKeySize and KeypairSize are the Solana encodings of a verification
// key and of a secret keypair (seed || public key).
const (
	PublicKeySize = 32
	KeypairSize   = 64
	SignatureSize = 64
)

// PublicKey is a validated Ed25519 verification key. The zero value is not a
// usable key; obtain one from ParsePublicKey or SecretKey.PublicKey.
type PublicKey struct {
	point Point
	raw   [PublicKeySize]byte
}

// ParsePublicKey decodes a 32-byte compressed point, rejecting non-canonical
// encodings and points of small order (the identity included).
func ParsePublicKey(data []byte) (PublicKey, error) {
	point, err := sharedEd25519Curve.PointFromBytes(data)
	if err != nil {
		return PublicKey{}, err
	}
	if point.(*Ed25519Point).IsSmallOrder() {
		return PublicKey{}, ErrIdentityPoint
	}
	return newPublicKey(point), nil
}

// ParsePublicKeyBase58 decodes a base58 Solana address into a public key.
func ParsePublicKeyBase58(s string) (PublicKey, error) {
	data, err := base58.Decode(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("invalid base58 public key %q: %w", s, err)
	}
	return ParsePublicKey(data)
}

func newPublicKey(point Point) PublicKey {
	pk := PublicKey{point: point}
	copy(pk.raw[:], point.Bytes())
	return pk
}

// Bytes returns the 32-byte compressed encoding
func (pk PublicKey) Bytes() []byte {
	out := make([]byte, PublicKeySize)
	copy(out, pk.raw[:])
	return out
}

// Point returns the underlying group element
func (pk PublicKey) Point() Point { return pk.point }

// Address returns the key as a Solana account address
func (pk PublicKey) Address() SolanaAddress { return SolanaAddress(pk.raw) }

// String returns the base58 Solana address form
func (pk PublicKey) String() string { return base58.Encode(pk.raw[:]) }

// Equal reports whether both keys have the same encoding
func (pk PublicKey) Equal(other PublicKey) bool { return pk.raw == other.raw }

// IsZero reports whether pk is the unset zero value
func (pk PublicKey) IsZero() bool { return pk.point == nil }

// SecretKey is one party's Ed25519 signing key in expanded form.
type SecretKey struct {
	seed   []byte
	scalar Scalar
	public PublicKey
}

// NewSecretKeyFromSeed expands a 32-byte Ed25519 seed as RFC 8032 does:
// the signing scalar is the clamped lower half of SHA-512(seed).
func NewSecretKeyFromSeed(seed []byte) (*SecretKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidSecretKey.WithDetails("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	digest := sha512.Sum512(seed)
	defer ZeroizeBytes(digest[:])

	scalar, err := sharedEd25519Curve.ScalarFromClampedBytes(digest[:32])
	if err != nil {
		return nil, ErrInvalidSecretKey.WithCause(err)
	}

	public, err := ParsePublicKey(sharedEd25519Curve.BasePoint().Mul(scalar).Bytes())
	if err != nil {
		scalar.Zeroize()
		return nil, ErrInvalidSecretKey.WithCause(err)
	}

	seedCopy := make([]byte, len(seed))
	copy(seedCopy, seed)
	return &SecretKey{seed: seedCopy, scalar: scalar, public: public}, nil
}

// NewSecretKeyFromKeypair parses a 64-byte Solana keypair (seed || public key)
// and checks that the public half matches the seed.
func NewSecretKeyFromKeypair(keypair []byte) (*SecretKey, error) {
	if len(keypair) != KeypairSize {
		return nil, ErrInvalidSecretKey.WithDetails("keypair must be %d bytes, got %d", KeypairSize, len(keypair))
	}

	sk, err := NewSecretKeyFromSeed(keypair[:ed25519.SeedSize])
	if err != nil {
		return nil, err
	}
	if !SecureCompare(sk.public.raw[:], keypair[ed25519.SeedSize:]) {
		sk.Zeroize()
		return nil, ErrInvalidSecretKey.WithDetails("public key does not match seed")
	}
	return sk, nil
}

// ParseKeypairBase58 decodes the base58 keypair string printed by `generate`.
func ParseKeypairBase58(s string) (*SecretKey, error) {
	keypair, err := base58.Decode(s)
	if err != nil {
		return nil, ErrInvalidSecretKey.WithCause(err)
	}
	defer ZeroizeBytes(keypair)
	return NewSecretKeyFromKeypair(keypair)
}

// GenerateSecretKey draws a fresh seed from r (crypto/rand when nil).
func GenerateSecretKey(r io.Reader) (*SecretKey, error) {
	seed, err := SecureRandom(r, ed25519.SeedSize)
	if err != nil {
		return nil, ErrRandomnessGeneration.WithCause(err)
	}
	defer ZeroizeBytes(seed)
	return NewSecretKeyFromSeed(seed)
}

// PublicKey returns the verification key
func (sk *SecretKey) PublicKey() PublicKey { return sk.public }

// Keypair returns the 64-byte Solana keypair encoding. The caller owns the
// returned slice and should zeroize it.
func (sk *SecretKey) Keypair() []byte {
	out := make([]byte, 0, KeypairSize)
	out = append(out, sk.seed...)
	return append(out, sk.public.raw[:]...)
}

// Base58 returns the keypair in the base58 text form accepted by ParseKeypairBase58.
func (sk *SecretKey) Base58() string {
	keypair := sk.Keypair()
	defer ZeroizeBytes(keypair)
	return base58.Encode(keypair)
}

// Sign produces an ordinary single-signer Ed25519 signature.
func (sk *SecretKey) Sign(message []byte) []byte {
	priv := ed25519.NewKeyFromSeed(sk.seed)
	defer ZeroizeBytes(priv)
	return ed25519.Sign(priv, message)
}

// Zeroize clears the seed and signing scalar
func (sk *SecretKey) Zeroize() {
	ZeroizeBytes(sk.seed)
	if sk.scalar != nil {
		sk.scalar.Zeroize()
	}
}

// SolanaSignature represents a Solana Ed25519 signature
type SolanaSignature struct {
	R Point  // Nonce commitment point (32 bytes)
	S Scalar // Signature response (32 bytes)
}

// Bytes returns the 64-byte signature in Solana format (R || S)
func (sig *SolanaSignature) Bytes() ([]byte, error) {
	if sig.R == nil {
		return nil, fmt.Errorf("signature R component is nil")
	}
	if sig.S == nil {
		return nil, fmt.Errorf("signature S component is nil")
	}

	result := make([]byte, SignatureSize)
	copy(result[:32], sig.R.Bytes())
	copy(result[32:], sig.S.Bytes())

	return result, nil
}

// String returns the base58 form used by explorers and RPC responses
func (sig *SolanaSignature) String() string {
	raw, err := sig.Bytes()
	if err != nil {
		return ""
	}
	return base58.Encode(raw)
}

// SolanaSignatureFromBytes creates a SolanaSignature from 64-byte representation
func SolanaSignatureFromBytes(data []byte) (*SolanaSignature, error) {
	if len(data) != SignatureSize {
		return nil, fmt.Errorf("Solana signature must be %d bytes, got %d", SignatureSize, len(data))
	}

	R, err := sharedEd25519Curve.PointFromBytes(data[:32])
	if err != nil {
		return nil, fmt.Errorf("invalid R point in Solana signature: %w", err)
	}

	S, err := sharedEd25519Curve.ScalarFromBytes(data[32:])
	if err != nil {
		return nil, fmt.Errorf("invalid S scalar in Solana signature: %w", err)
	}

	return &SolanaSignature{R: R, S: S}, nil
}

// SolanaChallenge computes the Ed25519 challenge SHA512(R || A || M) mod L,
// as specified by RFC 8032.
func SolanaChallenge(R Point, pubKey Point, message []byte) (Scalar, error) {
	if R == nil || pubKey == nil {
		return nil, fmt.Errorf("challenge computation requires non-nil points")
	}

	hasher := sha512.New()
	hasher.Write(R.Bytes())
	hasher.Write(pubKey.Bytes())
	hasher.Write(message)

	return sharedEd25519Curve.ScalarFromUniformBytes(hasher.Sum(nil))
}

// VerifySolanaSignature checks s*G == R + c*A and then runs the standard
// library verifier over the encoded signature, so anything accepted here is
// accepted by an ordinary Ed25519 verifier.
func VerifySolanaSignature(signature *SolanaSignature, publicKey PublicKey, message []byte) error {
	if signature == nil || publicKey.IsZero() {
		return fmt.Errorf("signature and public key are required")
	}

	challenge, err := SolanaChallenge(signature.R, publicKey.Point(), message)
	if err != nil {
		return fmt.Errorf("failed to compute challenge: %w", err)
	}

	leftSide := sharedEd25519Curve.BasePoint().Mul(signature.S)
	rightSide := signature.R.Add(publicKey.Point().Mul(challenge))
	if !leftSide.Equal(rightSide) {
		return fmt.Errorf("Solana signature verification failed")
	}

	raw, err := signature.Bytes()
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(publicKey.Bytes()), message, raw) {
		return fmt.Errorf("Solana signature rejected by ed25519 verifier")
	}

	return nil
}
