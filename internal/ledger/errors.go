package ledger

import "errors"

// Code classifies an engine failure. Codes travel with the error, are
// reported to the error sink, and are surfaced verbatim over RPC.
type Code string

// Input validation codes.
const (
	CodeInvalidTransactionPayload Code = "INVALID_TRANSACTION_PAYLOAD"
	CodeInvalidTransactionType    Code = "INVALID_TRANSACTION_TYPE"
	CodeInvalidAmount             Code = "INVALID_AMOUNT"
	CodeMissingIdentifier         Code = "MISSING_IDENTIFIER"
	CodeInvalidHoldTimeout        Code = "INVALID_HOLD_TIMEOUT"
)

// Business rule codes.
const (
	CodeInsufficientTokens     Code = "INSUFFICIENT_TOKENS"
	CodeInsufficientPaidTokens Code = "INSUFFICIENT_PAID_TOKENS"
	CodeDuplicateHoldRefID     Code = "DUPLICATE_HOLD_REFID"
	CodeAlreadyCaptured        Code = "ALREADY_CAPTURED"
	CodeAlreadyReversed        Code = "ALREADY_REVERSED"
	CodeAlreadyProcessed       Code = "ALREADY_PROCESSED"
	CodeNoHeldTokens           Code = "NO_HELD_TOKENS"
	CodeTransactionNotFound    Code = "TRANSACTION_NOT_FOUND"
)

// Integrity signal codes. These are sink-only diagnostics and never fail
// the calling operation.
const (
	CodeHoldMissingState        Code = "HOLD_MISSING_STATE"
	CodeExpiredHoldMissingState Code = "EXPIRED_HOLD_MISSING_STATE"
)

// Infrastructure codes, one per mutating or reporting operation. The
// underlying cause is preserved in the wrap chain.
const (
	CodeAddTransactionError        Code = "ADD_TRANSACTION_ERROR"
	CodeGetUserBalanceError        Code = "GET_USER_BALANCE_ERROR"
	CodeDeductTokensError          Code = "DEDUCT_TOKENS_ERROR"
	CodeTransferTokensError        Code = "TRANSFER_TOKENS_ERROR"
	CodeHoldTokensError            Code = "HOLD_TOKENS_ERROR"
	CodeCaptureHeldTokensError     Code = "CAPTURE_HELD_TOKENS_ERROR"
	CodeReverseHeldTokensError     Code = "REVERSE_HELD_TOKENS_ERROR"
	CodeExtendExpiryError          Code = "EXTEND_EXPIRY_ERROR"
	CodeFindExpiredHoldsError      Code = "FIND_EXPIRED_HOLDS_ERROR"
	CodeProcessExpiredHoldsError   Code = "PROCESS_EXPIRED_HOLDS_ERROR"
	CodePurgeOldRecordsError       Code = "PURGE_OLD_REGISTRY_RECORDS_ERROR"
	CodeCreditTokensError          Code = "CREDIT_TOKENS_ERROR"
	CodeAdjustTokensError          Code = "ADJUST_USER_TOKENS_ERROR"
	CodeTransactionHistoryError    Code = "GET_USER_TRANSACTION_HISTORY_ERROR"
	CodeTransactionLookupError     Code = "GET_TRANSACTION_ERROR"
	CodeTipsQueryError             Code = "GET_TIPS_ERROR"
	CodeEarningsQueryError         Code = "GET_USER_EARNINGS_ERROR"
	CodeSpendingQueryError         Code = "GET_USER_SPENDING_ERROR"
	CodeExpiringTokensError        Code = "GET_EXPIRING_TOKENS_ERROR"
	CodeTokenSummaryError          Code = "GET_USER_TOKEN_SUMMARY_ERROR"
	CodeValidateSufficiencyError   Code = "VALIDATE_SUFFICIENT_TOKENS_ERROR"
)

// Error is the single error shape the engine returns: a stable code, a
// human-readable message, and the wrapped cause for infrastructure
// failures.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// newError builds an input or business error.
func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// wrapError builds an infrastructure error around its cause.
func wrapError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the outermost engine code carried by err, or the empty
// code for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given engine code anywhere in
// its chain.
func IsCode(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}
