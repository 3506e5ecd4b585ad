package sale

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/capsale/internal/ir"
)

// ErrorCode identifies a sale failure. Callers branch on it.
type ErrorCode string

const (
	CodeAlreadyInitialized ErrorCode = "ALREADY_INITIALIZED"
	CodeInvalidTime        ErrorCode = "INVALID_TIME"
	CodeInvalidRate        ErrorCode = "INVALID_RATE"
	CodeInvalidAsset       ErrorCode = "INVALID_ASSET"
	CodeInvalidDAO         ErrorCode = "INVALID_DAO"
	CodeNotInitialized     ErrorCode = "NOT_INITIALIZED"
	CodeSaleNotOpen        ErrorCode = "SALE_NOT_OPEN"
	CodeSalePaused         ErrorCode = "SALE_PAUSED"
	CodeCapReached         ErrorCode = "CAP_REACHED"
	CodeBuyTokensFailed    ErrorCode = "BUY_TOKENS_FAILED"
	CodeReentrantCall      ErrorCode = "REENTRANT_CALL"
	CodeArithmetic         ErrorCode = "ARITHMETIC"
)

// Error is a sale failure with a stable code and diagnostic details.
//
// Match with errors.Is against the exported sentinels:
//
//	if errors.Is(err, sale.ErrCapReached) { ... }
type Error struct {
	// Code identifies the failure.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details carries the values that caused the failure (heights, amounts).
	Details map[string]string

	// Err is the collaborator error behind the failure, if any.
	Err error
}

// Sentinels for errors.Is matching. Only the Code is compared.
var (
	ErrAlreadyInitialized = &Error{Code: CodeAlreadyInitialized, Message: "already initialized"}
	ErrInvalidTime        = &Error{Code: CodeInvalidTime, Message: "start height after end height"}
	ErrInvalidRate        = &Error{Code: CodeInvalidRate, Message: "invalid rate"}
	ErrInvalidAsset       = &Error{Code: CodeInvalidAsset, Message: "invalid asset"}
	ErrInvalidDAO         = &Error{Code: CodeInvalidDAO, Message: "invalid dao"}
	ErrNotInitialized     = &Error{Code: CodeNotInitialized, Message: "not initialized"}
	ErrSaleNotOpen        = &Error{Code: CodeSaleNotOpen, Message: "sale not open"}
	ErrSalePaused         = &Error{Code: CodeSalePaused, Message: "sale paused"}
	ErrCapReached         = &Error{Code: CodeCapReached, Message: "cap reached"}
	ErrBuyTokensFailed    = &Error{Code: CodeBuyTokensFailed, Message: "buy tokens failed"}
	ErrReentrantCall      = &Error{Code: CodeReentrantCall, Message: "reentrant call"}
	ErrArithmetic         = &Error{Code: CodeArithmetic, Message: "arithmetic error"}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)

	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Details[k])
		}
		b.WriteString(")")
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is reports whether target is a sale *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Unwrap returns the collaborator error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, details map[string]string) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

func wrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Category groups failures by how a caller is expected to react.
type Category string

const (
	CategoryNone          Category = ""
	CategoryConfiguration Category = "configuration"
	CategorySaleWindow    Category = "sale_window"
	CategoryExternalCall  Category = "external_call"
	CategoryAuthorization Category = "authorization"
	CategoryReentrancy    Category = "reentrancy"
	CategoryInternal      Category = "internal"
)

// CategoryOf classifies err. Configuration errors need a corrected redeploy,
// sale-window errors may succeed later or with a smaller amount, external
// call errors may be retried as a whole.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryNone
	}

	var unauthorized *ir.UnauthorizedError
	var se *Error
	if errors.As(err, &se) {
		switch se.Code {
		case CodeAlreadyInitialized, CodeInvalidTime, CodeInvalidRate, CodeInvalidAsset, CodeInvalidDAO, CodeNotInitialized:
			return CategoryConfiguration
		case CodeSaleNotOpen, CodeSalePaused, CodeCapReached:
			return CategorySaleWindow
		case CodeBuyTokensFailed:
			return CategoryExternalCall
		case CodeReentrantCall:
			return CategoryReentrancy
		}
		return CategoryInternal
	}
	if errors.As(err, &unauthorized) {
		return CategoryAuthorization
	}
	return CategoryExternalCall
}

// CodeOf returns the sale error code carried by err, or "" if none.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
