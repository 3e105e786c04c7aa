package token

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed         = errors.New("token malformed")
	ErrExpired           = errors.New("token expired")
	ErrSignatureMismatch = errors.New("token signature mismatch")
	ErrMissingSecret     = errors.New("missing signing secret")
)

type Reason int

const (
	ReasonMalformed Reason = iota + 1
	ReasonExpired
	ReasonSignatureMismatch
)

func (r Reason) String() string {
	switch r {
	case ReasonMalformed:
		return "malformed"
	case ReasonExpired:
		return "expired"
	case ReasonSignatureMismatch:
		return "signature_mismatch"
	default:
		return "unknown"
	}
}

// VerificationError matches exactly one of ErrMalformed, ErrExpired or
// ErrSignatureMismatch under errors.Is, depending on Reason.
type VerificationError struct {
	Reason Reason
	Err    error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verify token (%s): %v", e.Reason, e.Err)
}

func (e *VerificationError) Is(target error) bool {
	switch target {
	case ErrMalformed:
		return e.Reason == ReasonMalformed
	case ErrExpired:
		return e.Reason == ReasonExpired
	case ErrSignatureMismatch:
		return e.Reason == ReasonSignatureMismatch
	default:
		return false
	}
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}
