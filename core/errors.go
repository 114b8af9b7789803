package core

import (
	"errors"

	"golang.org/x/xerrors"
)

// Kind classifies engine errors into the coarse categories callers branch
// on. Every error returned by a public engine operation carries exactly one
// kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthorization
	KindLifecycle
	KindNotFound
	KindBidOrdering
	KindTransfer
	KindRoyaltyMismatch
	KindReentrancy
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindLifecycle:
		return "lifecycle"
	case KindNotFound:
		return "not_found"
	case KindBidOrdering:
		return "bid_ordering"
	case KindTransfer:
		return "transfer"
	case KindRoyaltyMismatch:
		return "royalty_mismatch"
	case KindReentrancy:
		return "reentrancy"
	default:
		return "unknown"
	}
}

// Error is the engine's domain error: a sentinel message plus its kind.
type Error struct {
	ErrKind Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.ErrKind }

func newError(kind Kind, msg string) *Error {
	return &Error{ErrKind: kind, Message: msg}
}

// Sentinel errors for every rejection the engine can produce. Call sites
// wrap these with xerrors/fmt so context survives while errors.Is keeps
// matching.
var (
	ErrLotNotFound        = newError(KindNotFound, "lot not found")
	ErrNoPendingPayment   = newError(KindNotFound, "no pending payment")
	ErrNoCollectedFees    = newError(KindNotFound, "no collected fees")
	ErrCurrencyNotListed  = newError(KindValidation, "payment currency is not whitelisted")
	ErrNativeNotListable  = newError(KindValidation, "native currency cannot be whitelisted")
	ErrZeroQuantity       = newError(KindValidation, "quantity must be non-zero")
	ErrUnitQuantity       = newError(KindValidation, "unit-class assets sell exactly one")
	ErrBadTimeWindow      = newError(KindValidation, "end time must be after start time")
	ErrZeroStartOffset    = newError(KindValidation, "start offset must be non-zero")
	ErrBadPriceBounds     = newError(KindValidation, "buy-now price must exceed start price")
	ErrNegativeAmount     = newError(KindValidation, "amount must not be negative")
	ErrDeltaBelowFloor    = newError(KindValidation, "min bid delta below global floor")
	ErrFeeRateTooHigh     = newError(KindValidation, "fee rate exceeds maximum")
	ErrValueMismatch      = newError(KindValidation, "attached value must equal bid amount")
	ErrUnsupportedAsset   = newError(KindValidation, "asset class cannot be determined")
	ErrNotCreator         = newError(KindAuthorization, "caller is not the lot creator")
	ErrNotAdmin           = newError(KindAuthorization, "caller is not an administrator")
	ErrNotWinner          = newError(KindAuthorization, "caller is not the leading bidder")
	ErrNotAuthorized      = newError(KindAuthorization, "asset transfer not authorized")
	ErrSelfBid            = newError(KindAuthorization, "creator cannot bid on own lot")
	ErrAlreadyLeading     = newError(KindLifecycle, "caller is already the leading bidder")
	ErrLotFinished        = newError(KindLifecycle, "lot is finished")
	ErrLotNotStarted      = newError(KindLifecycle, "lot has not started")
	ErrLotNotEnded        = newError(KindLifecycle, "lot has not ended")
	ErrLotStarted         = newError(KindLifecycle, "lot has already started")
	ErrBidExists          = newError(KindLifecycle, "a bid has already been placed")
	ErrAlreadyExtended    = newError(KindLifecycle, "lot has already been extended")
	ErrExtensionTooLong   = newError(KindValidation, "extension exceeds maximum window")
	ErrExtensionNotLater  = newError(KindValidation, "new end time must be after current end time")
	ErrAboveBuyNow        = newError(KindBidOrdering, "bid exceeds buy-now price")
	ErrBidTooLow          = newError(KindBidOrdering, "bid does not exceed required minimum")
	ErrTransferFailed     = newError(KindTransfer, "transfer failed")
	ErrRoyaltyMismatch    = newError(KindRoyaltyMismatch, "attached royalty does not match oracle amount")
	ErrReentrantCall      = newError(KindReentrancy, "reentrant call rejected")
	ErrGatewayUnavailable = newError(KindTransfer, "gateway call failed")
)

// KindOf extracts the classification of err, unwrapping as needed.
// Non-engine errors classify as KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.ErrKind
	}
	return KindUnknown
}

// transferErr wraps a gateway failure so it classifies as KindTransfer
// while keeping the underlying cause in the chain.
func transferErr(op string, cause error) error {
	if cause == nil {
		return xerrors.Errorf("%s: %w", op, ErrTransferFailed)
	}
	return xerrors.Errorf("%s: %v: %w", op, cause, ErrTransferFailed)
}
