package rpc

import (
	"fmt"

	"github.com/fanvault/tokend/internal/ledger"
)

// Error is the wire-level RPC error. ErrorString is the short machine
// name surfaced in the envelope's "error" field; for engine failures it
// carries the engine's taxonomy code unchanged.
type Error struct {
	Code        int    `json:"error_code"`
	ErrorString string `json:"error"`
	Message     string `json:"error_message,omitempty"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.ErrorString
}

// Numeric RPC error codes. The negative block follows JSON-RPC 2.0; the
// positive block classifies engine outcomes.
const (
	CodeUnknown        = -1
	CodeParse          = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603

	CodeMissingCommand   = 2
	CodeCommandUntrusted = 3
	CodeNotSupported     = 32

	CodeInvalidInput  = 40
	CodeInsufficient  = 41
	CodeConflict      = 42
	CodeNotFound      = 43
	CodeEngineFailure = 44
)

// NewError builds an RPC error.
func NewError(code int, name, message string) *Error {
	return &Error{Code: code, ErrorString: name, Message: message}
}

func ErrorInvalidParams(message string) *Error {
	return NewError(CodeInvalidParams, "invalidParams", message)
}

func ErrorMethodNotFound(method string) *Error {
	return NewError(CodeMethodNotFound, "unknownCmd", fmt.Sprintf("unknown method: %s", method))
}

func ErrorMissingCommand() *Error {
	return NewError(CodeMissingCommand, "missingCommand", "missing method field")
}

func ErrorUntrusted(method string) *Error {
	return NewError(CodeCommandUntrusted, "commandUntrusted",
		fmt.Sprintf("method %q requires admin access", method))
}

func ErrorNotSupported(message string) *Error {
	return NewError(CodeNotSupported, "notSupported", message)
}

func ErrorInternal(message string) *Error {
	return NewError(CodeInternal, "internal", message)
}

// fromEngine translates an engine error into the wire error. The engine
// taxonomy code is preserved verbatim as the error name; the numeric
// code classifies it for clients that switch on numbers.
func fromEngine(err error) *Error {
	code := ledger.CodeOf(err)
	if code == "" {
		return ErrorInternal(err.Error())
	}

	var num int
	switch code {
	case ledger.CodeMissingIdentifier,
		ledger.CodeInvalidAmount,
		ledger.CodeInvalidTransactionPayload,
		ledger.CodeInvalidTransactionType,
		ledger.CodeInvalidHoldTimeout:
		num = CodeInvalidInput
	case ledger.CodeInsufficientTokens,
		ledger.CodeInsufficientPaidTokens:
		num = CodeInsufficient
	case ledger.CodeDuplicateHoldRefID,
		ledger.CodeAlreadyCaptured,
		ledger.CodeAlreadyReversed,
		ledger.CodeAlreadyProcessed:
		num = CodeConflict
	case ledger.CodeTransactionNotFound,
		ledger.CodeNoHeldTokens:
		num = CodeNotFound
	default:
		num = CodeEngineFailure
	}
	return NewError(num, string(code), err.Error())
}
