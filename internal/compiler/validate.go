package compiler

import (
	stderrors "errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/capsale/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrFieldInvalid      = "E100" // field fails a constraint
	ErrFieldRequired     = "E101" // required field missing or empty
	ErrInvalidAddress    = "E102" // not 0x + 40 lowercase hex digits
	ErrInvalidAmount     = "E103" // not an unsigned integer within uint256
	ErrInvalidWindow     = "E104" // window end before start
	ErrInvalidRatePolicy = "E105" // unknown rate policy
)

// validate is a package-level singleton; validator caches struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError represents a manifest validation error.
type ValidationError struct {
	Sale    string `json:"sale"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s.%s: %s", e.Code, e.Line, e.Sale, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Sale, e.Field, e.Message)
}

// Validate checks a compiled manifest. It returns all errors found
// rather than stopping at the first.
func Validate(m *Manifest) []ValidationError {
	var errs []ValidationError
	line := 0
	if m.Pos.IsValid() {
		line = m.Pos.Line()
	}
	add := func(field, code, msg string) {
		errs = append(errs, ValidationError{Sale: m.Name, Field: field, Message: msg, Code: code, Line: line})
	}

	var fieldErrs validator.ValidationErrors
	if err := validate.Struct(m); err != nil {
		if !stderrors.As(err, &fieldErrs) {
			add("manifest", ErrFieldInvalid, err.Error())
			return errs
		}
	}

	failed := make(map[string]bool)
	for _, fe := range fieldErrs {
		field := jsonName(fe.StructField())
		failed[field] = true
		switch fe.Tag() {
		case "required":
			add(field, ErrFieldRequired, field+" is required")
		case "eth_addr":
			add(field, ErrInvalidAddress, fmt.Sprintf("%q is not a 0x-prefixed 40 hex digit address", fe.Value()))
		case "lowercase":
			add(field, ErrInvalidAddress, fmt.Sprintf("%q must use lowercase hex digits", fe.Value()))
		case "numeric":
			add(field, ErrInvalidAmount, fmt.Sprintf("%q is not an integer", fe.Value()))
		case "gtefield":
			add("window", ErrInvalidWindow, fmt.Sprintf("end %d is before start %d", m.EndHeight, m.StartHeight))
		case "oneof":
			add(field, ErrInvalidRatePolicy, fmt.Sprintf("%q must be one of reject_zero, reject_positive", fe.Value()))
		default:
			add(field, ErrFieldInvalid, fe.Error())
		}
	}

	// numeric accepts signs and fractions; amounts must also be uint256.
	amounts := []struct{ field, raw string }{{"rate", m.Rate}, {"cap", m.Cap}}
	for _, a := range amounts {
		if failed[a.field] {
			continue
		}
		if _, err := ir.ParseAmount(a.raw); err != nil {
			add(a.field, ErrInvalidAmount, err.Error())
		}
	}

	return errs
}

func jsonName(structField string) string {
	switch structField {
	case "StartHeight":
		return "window.start"
	case "EndHeight":
		return "window.end"
	case "RatePolicy":
		return "rate_policy"
	case "DAO":
		return "dao"
	case "Name":
		return "name"
	case "Asset":
		return "asset"
	case "Rate":
		return "rate"
	case "Cap":
		return "cap"
	}
	return structField
}
