package sale

import (
	"math/big"

	"github.com/roach88/capsale/internal/ir"
)

// Event names as they appear in the event log.
const (
	EventTokensPurchased = "TokensPurchased"
	EventSaleConfigured  = "SaleConfigured"
	EventPauseChanged    = "PauseChanged"
)

// TokensPurchased records one successful purchase.
type TokensPurchased struct {
	Purchaser   ir.Address
	Beneficiary ir.Address
	ValuePaid   *big.Int
	AssetAmount *big.Int
}

func (TokensPurchased) Name() string { return EventTokensPurchased }

func (p TokensPurchased) Fields() ir.Object {
	return ir.Object{
		"purchaser":    ir.AddressValue(p.Purchaser),
		"beneficiary":  ir.AddressValue(p.Beneficiary),
		"value_paid":   ir.AmountValue(p.ValuePaid),
		"asset_amount": ir.AmountValue(p.AssetAmount),
	}
}

// SaleConfigured is a full configuration snapshot, emitted on
// initialization and after every setter.
type SaleConfigured struct {
	Rate        *big.Int
	Cap         *big.Int
	StartHeight uint64
	EndHeight   uint64
}

func (SaleConfigured) Name() string { return EventSaleConfigured }

func (c SaleConfigured) Fields() ir.Object {
	return ir.Object{
		"rate":         ir.AmountValue(c.Rate),
		"cap":          ir.AmountValue(c.Cap),
		"start_height": ir.HeightValue(c.StartHeight),
		"end_height":   ir.HeightValue(c.EndHeight),
	}
}

// PauseChanged is emitted by SetPaused.
type PauseChanged struct {
	Paused bool
}

func (PauseChanged) Name() string { return EventPauseChanged }

func (p PauseChanged) Fields() ir.Object {
	return ir.Object{"paused": ir.Bool(p.Paused)}
}
