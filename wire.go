package musig

import (
	"runtime"

	"github.com/mr-tron/base58"
)

// Record tags of the three protocol messages exchanged out of band.
const (
	TagNonceCommitment  byte = 0x01
	TagSecretNonceState byte = 0x02
	TagPartialSignature byte = 0x03

	wirePayloadSize = 96
	// WireRecordSize is the fixed binary size of every record: tag || payload
	WireRecordSize = 1 + wirePayloadSize
)

func encodeRecord(tag byte, parts ...[]byte) []byte {
	out := make([]byte, 0, WireRecordSize)
	out = append(out, tag)
	for _, part := range parts {
		out = append(out, part...)
	}
	return out
}

// decodeRecord checks length and tag and splits the payload into three
// 32-byte fields.
func decodeRecord(data []byte, tag byte) ([3][]byte, error) {
	var fields [3][]byte
	if len(data) != WireRecordSize {
		return fields, ErrMalformedMessage.WithDetails("record is %d bytes, want %d", len(data), WireRecordSize)
	}
	if data[0] != tag {
		return fields, ErrMalformedMessage.WithDetails("record tag 0x%02x, want 0x%02x", data[0], tag)
	}
	for i := range fields {
		fields[i] = data[1+32*i : 1+32*(i+1)]
	}
	return fields, nil
}

func decodeText(text string) ([]byte, error) {
	if text == "" {
		return nil, ErrMalformedMessage.WithDetails("empty text")
	}
	data, err := base58.Decode(text)
	if err != nil {
		return nil, ErrMalformedMessage.WithDetails("invalid base58 text").WithCause(err)
	}
	return data, nil
}

func decodeSender(data []byte) (PublicKey, error) {
	pk, err := ParsePublicKey(data)
	if err != nil {
		return PublicKey{}, ErrMalformedMessage.WithDetails("invalid sender key").WithCause(err)
	}
	return pk, nil
}

// decodeNoncePoint rejects anything but a canonical point of large order.
func decodeNoncePoint(data []byte, name string) (Point, error) {
	point, err := sharedEd25519Curve.PointFromBytes(data)
	if err != nil {
		return nil, ErrMalformedMessage.WithDetails("invalid %s", name).WithCause(err)
	}
	if point.(*Ed25519Point).IsSmallOrder() {
		return nil, ErrMalformedMessage.WithDetails("%s has small order", name).WithCause(ErrIdentityPoint)
	}
	return point, nil
}

func decodeScalar(data []byte, name string) (Scalar, error) {
	scalar, err := sharedEd25519Curve.ScalarFromBytes(data)
	if err != nil {
		return nil, ErrMalformedMessage.WithDetails("invalid %s", name).WithCause(err)
	}
	return scalar, nil
}

// Bytes returns the binary record 0x01 || sender || R1 || R2
func (c *NonceCommitment) Bytes() []byte {
	return encodeRecord(TagNonceCommitment, c.Sender.raw[:], c.R1.Bytes(), c.R2.Bytes())
}

// String returns the base58 text form exchanged between parties
func (c *NonceCommitment) String() string { return base58.Encode(c.Bytes()) }

// MarshalText implements encoding.TextMarshaler
func (c *NonceCommitment) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler
func (c *NonceCommitment) UnmarshalText(text []byte) error {
	decoded, err := ParseNonceCommitment(string(text))
	if err != nil {
		return err
	}
	*c = *decoded
	return nil
}

// DecodeNonceCommitment parses a binary commitment record
func DecodeNonceCommitment(data []byte) (*NonceCommitment, error) {
	fields, err := decodeRecord(data, TagNonceCommitment)
	if err != nil {
		return nil, err
	}
	sender, err := decodeSender(fields[0])
	if err != nil {
		return nil, err
	}
	r1, err := decodeNoncePoint(fields[1], "R1")
	if err != nil {
		return nil, err
	}
	r2, err := decodeNoncePoint(fields[2], "R2")
	if err != nil {
		return nil, err
	}
	return &NonceCommitment{Sender: sender, R1: r1, R2: r2}, nil
}

// ParseNonceCommitment parses the base58 text form
func ParseNonceCommitment(text string) (*NonceCommitment, error) {
	data, err := decodeText(text)
	if err != nil {
		return nil, err
	}
	return DecodeNonceCommitment(data)
}

// Bytes returns the binary record 0x02 || owner || r1 || r2. The result is
// secret; the caller should zeroize it.
func (s *SecretNonceState) Bytes() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed.Load() || s.r1 == nil || s.r2 == nil {
		return nil, ErrNonceAlreadyConsumed
	}
	return encodeRecord(TagSecretNonceState, s.Owner.raw[:], s.r1.Bytes(), s.r2.Bytes()), nil
}

// MarshalText returns the base58 text form. It must only ever be handed back
// to the same party's round two.
func (s *SecretNonceState) MarshalText() ([]byte, error) {
	raw, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	defer ZeroizeBytes(raw)
	return []byte(base58.Encode(raw)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Any scalars s held
// before are zeroized. The decoded state is unconsumed and is zeroized by a
// finalizer if dropped, so s must not be a field of a larger struct.
func (s *SecretNonceState) UnmarshalText(text []byte) error {
	decoded, err := ParseSecretNonceState(string(text))
	if err != nil {
		return err
	}
	r1, r2, _ := decoded.take()

	s.mu.Lock()
	defer s.mu.Unlock()
	ZeroizeScalarSlice([]Scalar{s.r1, s.r2})
	s.Owner = decoded.Owner
	s.r1, s.r2 = r1, r2
	s.consumed.Store(false)
	runtime.SetFinalizer(s, (*SecretNonceState).Zeroize)
	return nil
}

// DecodeSecretNonceState parses a binary secret state record
func DecodeSecretNonceState(data []byte) (*SecretNonceState, error) {
	fields, err := decodeRecord(data, TagSecretNonceState)
	if err != nil {
		return nil, err
	}
	owner, err := decodeSender(fields[0])
	if err != nil {
		return nil, err
	}
	r1, err := decodeScalar(fields[1], "r1")
	if err != nil {
		return nil, err
	}
	r2, err := decodeScalar(fields[2], "r2")
	if err != nil {
		r1.Zeroize()
		return nil, err
	}
	if r1.IsZero() || r2.IsZero() {
		ZeroizeScalarSlice([]Scalar{r1, r2})
		return nil, ErrMalformedMessage.WithDetails("secret nonce is zero")
	}
	return newSecretNonceState(owner, r1, r2), nil
}

// ParseSecretNonceState parses the base58 text form
func ParseSecretNonceState(text string) (*SecretNonceState, error) {
	data, err := decodeText(text)
	if err != nil {
		return nil, err
	}
	defer ZeroizeBytes(data)
	return DecodeSecretNonceState(data)
}

// Bytes returns the binary record 0x03 || sender || R || s_i
func (p *PartialSignature) Bytes() []byte {
	return encodeRecord(TagPartialSignature, p.Sender.raw[:], p.R.Bytes(), p.S.Bytes())
}

// String returns the base58 text form exchanged between parties
func (p *PartialSignature) String() string { return base58.Encode(p.Bytes()) }

// MarshalText implements encoding.TextMarshaler
func (p *PartialSignature) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler
func (p *PartialSignature) UnmarshalText(text []byte) error {
	decoded, err := ParsePartialSignature(string(text))
	if err != nil {
		return err
	}
	*p = *decoded
	return nil
}

// DecodePartialSignature parses a binary partial signature record
func DecodePartialSignature(data []byte) (*PartialSignature, error) {
	fields, err := decodeRecord(data, TagPartialSignature)
	if err != nil {
		return nil, err
	}
	sender, err := decodeSender(fields[0])
	if err != nil {
		return nil, err
	}
	R, err := decodeNoncePoint(fields[1], "aggregated nonce")
	if err != nil {
		return nil, err
	}
	s, err := decodeScalar(fields[2], "partial signature scalar")
	if err != nil {
		return nil, err
	}
	return &PartialSignature{Sender: sender, R: R, S: s}, nil
}

// ParsePartialSignature parses the base58 text form
func ParsePartialSignature(text string) (*PartialSignature, error) {
	data, err := decodeText(text)
	if err != nil {
		return nil, err
	}
	return DecodePartialSignature(data)
}
