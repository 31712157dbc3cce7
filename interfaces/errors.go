package interfaces

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	// ErrProviderAbsent is returned when no wallet provider could be detected.
	ErrProviderAbsent = errors.New("no wallet provider detected")

	// ErrUserRejected is returned when the account access prompt or a signing request was declined.
	ErrUserRejected = errors.New("request rejected by user")

	// ErrWrongNetwork is returned when the provider is attached to a chain other than the deployment chain.
	ErrWrongNetwork = errors.New("wrong network")

	// ErrReverted is matched by every RevertError.
	ErrReverted = errors.New("execution reverted")

	// ErrNotFound is returned by reads whose failure indicates a missing record.
	ErrNotFound = errors.New("record not found")

	// ErrNetwork is returned when a submission, read or confirmation could not be observed
	// because of a connectivity failure.
	ErrNetwork = errors.New("network error")

	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("invalid input")

	// ErrNotConnected is returned when an operation needs a live binding but no account is connected.
	ErrNotConnected = errors.New("wallet not connected")
)

// GenericRevertReason is reported when a revert carries no structured reason.
const GenericRevertReason = "execution reverted"

// RevertError is a contract-side rejection of a call.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" || e.Reason == GenericRevertReason {
		return GenericRevertReason
	}
	return GenericRevertReason + ": " + e.Reason
}

func (e *RevertError) Is(target error) bool {
	return target == ErrReverted
}

// IndicatesMissingRecord reports whether the revert reason is the contract's "not found" signature.
func (e *RevertError) IndicatesMissingRecord() bool {
	return strings.Contains(strings.ToLower(e.Reason), "not found")
}

// WrongNetworkError carries the detected and the required chain ids.
type WrongNetworkError struct {
	Got  *big.Int
	Want *big.Int
}

func (e *WrongNetworkError) Error() string {
	return fmt.Sprintf("wrong network: connected to chain %s, contract is deployed on chain %s", e.Got, e.Want)
}

func (e *WrongNetworkError) Is(target error) bool {
	return target == ErrWrongNetwork
}

// ValidationError reports client-side input that was rejected before any call was made.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
