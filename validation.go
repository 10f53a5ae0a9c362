package musig

import (
	"fmt"
	"math"
	"strings"
)

// ValidationResult contains the result of parameter validation
type ValidationResult struct {
	Valid           bool     `json:"valid"`
	Warnings        []string `json:"warnings,omitempty"`
	Errors          []string `json:"errors,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

func (r *ValidationResult) addError(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Err converts a failed result into ErrInvalidSessionParams, or nil when valid.
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return ErrInvalidSessionParams.WithDetails("%s", strings.Join(r.Errors, "; "))
}

// SessionValidator checks a session tuple before any key material is used
type SessionValidator struct {
	MinSigners    int `json:"min_signers"`
	MaxSigners    int `json:"max_signers"` // 0 means no upper bound
	MaxMemoLength int `json:"max_memo_length"`
}

// NewDefaultSessionValidator creates a validator with the protocol limits.
// The protocol puts no upper bound on the signer count.
func NewDefaultSessionValidator() *SessionValidator {
	return &SessionValidator{
		MinSigners:    2,
		MaxMemoLength: MaxMemoLength,
	}
}

// ValidateSessionParams validates params with the default validator
func ValidateSessionParams(params SessionParams) *ValidationResult {
	return NewDefaultSessionValidator().Validate(params)
}

// Validate checks every field of the session tuple and reports all problems
// at once.
func (v *SessionValidator) Validate(params SessionParams) *ValidationResult {
	result := &ValidationResult{
		Valid:           true,
		Warnings:        []string{},
		Errors:          []string{},
		Recommendations: []string{},
	}

	keysOK := true
	if len(params.Keys) < v.MinSigners {
		result.addError("at least %d signer keys are required, got %d", v.MinSigners, len(params.Keys))
		keysOK = false
	}
	if v.MaxSigners > 0 && len(params.Keys) > v.MaxSigners {
		result.addError("at most %d signer keys are supported, got %d", v.MaxSigners, len(params.Keys))
		keysOK = false
	}
	seen := make(map[[PublicKeySize]byte]bool, len(params.Keys))
	for i, key := range params.Keys {
		if key.IsZero() {
			result.addError("signer key %d is unset", i)
			keysOK = false
			continue
		}
		if seen[key.raw] {
			result.addError("signer key %s is listed twice", key)
			keysOK = false
		}
		seen[key.raw] = true
	}

	switch {
	case math.IsNaN(params.Amount) || math.IsInf(params.Amount, 0):
		result.addError("amount must be a finite number")
	case params.Amount <= 0:
		result.addError("amount must be positive, got %v", params.Amount)
	case params.Amount >= float64(math.MaxUint64)/float64(LamportsPerSOL):
		result.addError("amount %v overflows lamports", params.Amount)
	case SOLToLamports(params.Amount) == 0:
		result.addError("amount %v is less than one lamport", params.Amount)
	}

	if params.Recipient.IsZero() {
		result.addError("recipient address is required")
	}
	if params.RecentBlockhash.IsZero() {
		result.addError("recent blockhash is required")
	}
	if !params.Network.Valid() {
		result.addError("unknown network %q", params.Network)
	}
	if len(params.Memo) > v.MaxMemoLength {
		result.addError("memo is %d bytes, maximum is %d", len(params.Memo), v.MaxMemoLength)
	} else if err := ValidateMemo(params.Memo); err != nil {
		result.addError("%v", err)
	}

	if keysOK {
		agg, err := AggregateKeys(params.Keys, params.Ordering)
		if err != nil {
			result.addError("%v", err)
		} else if agg.Address().Equal(params.Recipient) {
			result.Warnings = append(result.Warnings, "recipient is the aggregated account itself")
		}
		for _, key := range params.Keys {
			if key.Address().Equal(params.Recipient) {
				result.Warnings = append(result.Warnings, fmt.Sprintf("recipient is signer %s", key))
			}
		}
	}

	if params.Network == NetworkMainnet {
		result.Recommendations = append(result.Recommendations,
			"rehearse the session on devnet or testnet before moving mainnet funds")
	}
	if params.Ordering == KeyOrderingAsGiven {
		result.Recommendations = append(result.Recommendations,
			"every party must list the keys in exactly the same order")
	}

	return result
}
