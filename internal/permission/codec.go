package permission

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"

	"github.com/roach88/capsale/internal/ir"
)

// InstallParams is the sale configuration carried in the encoded
// installation payload.
type InstallParams struct {
	Asset       ir.Address
	Rate        *big.Int
	Cap         *big.Int
	StartHeight uint64
	EndHeight   uint64
}

// DecodeError reports a malformed installation payload.
type DecodeError struct {
	Field   string
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	msg := "decode install params"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// wireParams is the JSON shape. Every field is a string so that amounts
// and heights never pass through float64.
type wireParams struct {
	Asset       *string `json:"asset"`
	Rate        *string `json:"rate"`
	Cap         *string `json:"cap"`
	StartHeight *string `json:"start_height"`
	EndHeight   *string `json:"end_height"`
}

// EncodeInstallParams renders p as canonical JSON. The output is byte-stable
// for equal inputs.
func EncodeInstallParams(p InstallParams) ([]byte, error) {
	if err := ir.CheckAmount(p.Rate); err != nil {
		return nil, fmt.Errorf("encode install params: rate: %w", err)
	}
	if err := ir.CheckAmount(p.Cap); err != nil {
		return nil, fmt.Errorf("encode install params: cap: %w", err)
	}

	return ir.MarshalCanonical(ir.Object{
		"asset":        ir.AddressValue(p.Asset),
		"rate":         ir.AmountValue(p.Rate),
		"cap":          ir.AmountValue(p.Cap),
		"start_height": ir.String(strconv.FormatUint(p.StartHeight, 10)),
		"end_height":   ir.String(strconv.FormatUint(p.EndHeight, 10)),
	})
}

// DecodeInstallParams parses an encoded payload. Unknown fields, missing
// fields, trailing data and out-of-range numbers are all *DecodeError.
// A zero asset decodes successfully; the engine rejects it at initialization.
func DecodeInstallParams(data []byte) (InstallParams, error) {
	var w wireParams
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return InstallParams{}, &DecodeError{Message: "invalid JSON", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return InstallParams{}, &DecodeError{Message: "trailing data after payload"}
	}

	fields := []struct {
		name string
		val  *string
	}{
		{"asset", w.Asset},
		{"rate", w.Rate},
		{"cap", w.Cap},
		{"start_height", w.StartHeight},
		{"end_height", w.EndHeight},
	}
	for _, f := range fields {
		if f.val == nil {
			return InstallParams{}, &DecodeError{Field: f.name, Message: "missing"}
		}
	}

	var p InstallParams
	var err error
	if p.Asset, err = ir.ParseAddress(*w.Asset); err != nil {
		return InstallParams{}, &DecodeError{Field: "asset", Message: "invalid address", Err: err}
	}
	if p.Rate, err = ir.ParseAmount(*w.Rate); err != nil {
		return InstallParams{}, &DecodeError{Field: "rate", Message: "invalid amount", Err: err}
	}
	if p.Cap, err = ir.ParseAmount(*w.Cap); err != nil {
		return InstallParams{}, &DecodeError{Field: "cap", Message: "invalid amount", Err: err}
	}
	if p.StartHeight, err = strconv.ParseUint(*w.StartHeight, 10, 64); err != nil {
		return InstallParams{}, &DecodeError{Field: "start_height", Message: "invalid height", Err: err}
	}
	if p.EndHeight, err = strconv.ParseUint(*w.EndHeight, 10, 64); err != nil {
		return InstallParams{}, &DecodeError{Field: "end_height", Message: "invalid height", Err: err}
	}
	return p, nil
}
