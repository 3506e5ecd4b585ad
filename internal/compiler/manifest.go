package compiler

import (
	_ "embed"
	"fmt"
	"math/big"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/capsale/internal/ir"
	"github.com/roach88/capsale/internal/permission"
	"github.com/roach88/capsale/internal/sale"
)

//go:embed schema.cue
var schemaCUE string

// Manifest is one compiled sale declaration. Amounts and addresses stay
// strings until InstallParams so that Validate can report every problem.
type Manifest struct {
	Name        string `json:"name" validate:"required"`
	DAO         string `json:"dao,omitempty" validate:"omitempty,eth_addr,lowercase"`
	Asset       string `json:"asset" validate:"required,eth_addr,lowercase"`
	Rate        string `json:"rate" validate:"required,numeric"`
	Cap         string `json:"cap" validate:"required,numeric"`
	StartHeight uint64 `json:"start_height"`
	EndHeight   uint64 `json:"end_height" validate:"gtefield=StartHeight"`
	RatePolicy  string `json:"rate_policy,omitempty" validate:"omitempty,oneof=reject_zero reject_positive"`

	Pos token.Pos `json:"-" validate:"-"`
}

// CompileManifest parses a single sale value. The value's last path
// selector becomes the manifest name:
//
//	m, err := CompileManifest(v.LookupPath(cue.ParsePath("sale.genesis")))
func CompileManifest(v cue.Value) (*Manifest, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	m := &Manifest{Pos: v.Pos()}
	if labels := v.Path().Selectors(); len(labels) > 0 {
		m.Name = labels[len(labels)-1].String()
	}

	var err error
	if dao := v.LookupPath(cue.ParsePath("dao")); dao.Exists() {
		if m.DAO, err = dao.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	assetVal := v.LookupPath(cue.ParsePath("asset"))
	if !assetVal.Exists() {
		return nil, &CompileError{Field: "asset", Message: "asset is required", Pos: v.Pos()}
	}
	if m.Asset, err = assetVal.String(); err != nil {
		return nil, formatCUEError(err)
	}

	if m.Rate, err = amountField(v, "rate"); err != nil {
		return nil, err
	}
	if m.Cap, err = amountField(v, "cap"); err != nil {
		return nil, err
	}

	window := v.LookupPath(cue.ParsePath("window"))
	if !window.Exists() {
		return nil, &CompileError{Field: "window", Message: "window is required", Pos: v.Pos()}
	}
	if m.StartHeight, err = heightField(window, "start"); err != nil {
		return nil, err
	}
	if m.EndHeight, err = heightField(window, "end"); err != nil {
		return nil, err
	}

	if policy := v.LookupPath(cue.ParsePath("rate_policy")); policy.Exists() {
		if m.RatePolicy, err = policy.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	return m, nil
}

// amountField reads an amount written either as a CUE int or a decimal string.
func amountField(v cue.Value, name string) (string, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return "", &CompileError{Field: name, Message: name + " is required", Pos: v.Pos()}
	}

	switch f.IncompleteKind() {
	case cue.IntKind:
		n, err := f.Int(new(big.Int))
		if err != nil {
			return "", formatCUEError(err)
		}
		return n.String(), nil
	case cue.StringKind:
		s, err := f.String()
		if err != nil {
			return "", formatCUEError(err)
		}
		return s, nil
	}
	return "", &CompileError{Field: name, Message: "must be an integer or a decimal string", Pos: f.Pos()}
}

func heightField(window cue.Value, name string) (uint64, error) {
	f := window.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return 0, &CompileError{Field: "window." + name, Message: "window." + name + " is required", Pos: window.Pos()}
	}
	h, err := f.Uint64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return h, nil
}

// InstallParams converts a validated manifest into provisioner input.
func (m *Manifest) InstallParams() (permission.InstallParams, error) {
	asset, err := ir.ParseAddress(m.Asset)
	if err != nil {
		return permission.InstallParams{}, m.fieldError("asset", err)
	}
	rate, err := ir.ParseAmount(m.Rate)
	if err != nil {
		return permission.InstallParams{}, m.fieldError("rate", err)
	}
	capValue, err := ir.ParseAmount(m.Cap)
	if err != nil {
		return permission.InstallParams{}, m.fieldError("cap", err)
	}
	return permission.InstallParams{
		Asset:       asset,
		Rate:        rate,
		Cap:         capValue,
		StartHeight: m.StartHeight,
		EndHeight:   m.EndHeight,
	}, nil
}

// DAOAddress returns the manifest's DAO, or the zero address if unset.
func (m *Manifest) DAOAddress() (ir.Address, error) {
	if m.DAO == "" {
		return ir.ZeroAddress, nil
	}
	a, err := ir.ParseAddress(m.DAO)
	if err != nil {
		return ir.ZeroAddress, m.fieldError("dao", err)
	}
	return a, nil
}

// EngineOptions returns the engine options the manifest selects.
func (m *Manifest) EngineOptions() []sale.Option {
	if m.RatePolicy == sale.RejectPositiveRate.String() {
		return []sale.Option{sale.WithRatePolicy(sale.RejectPositiveRate)}
	}
	return nil
}

func (m *Manifest) fieldError(field string, err error) error {
	return &CompileError{Field: field, Message: err.Error(), Pos: m.Pos}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
