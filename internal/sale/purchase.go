package sale

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/roach88/capsale/internal/ir"
)

// BuyTokens converts value into value*rate asset units minted to
// beneficiary. The host must already have credited value to the engine's
// account.
//
// Validation order is part of the contract:
//
//  1. ErrSaleNotOpen unless startHeight <= height <= endHeight
//  2. ErrSalePaused if paused
//  3. ErrCapReached if raised + value > cap
//
// Then the asset is minted (a mint failure aborts with the asset's error),
// the value is forwarded to the DAO (a failure aborts with
// ErrBuyTokensFailed) and only then is the ledger increased.
//
// A call arriving while a purchase is already in flight on this engine
// fails with ErrReentrantCall before any check.
func (e *Engine) BuyTokens(ctx context.Context, purchaser, beneficiary ir.Address, value *big.Int) (TokensPurchased, error) {
	if !e.entered.CompareAndSwap(false, true) {
		e.logger.Warn("reentrant purchase rejected", "purchaser", purchaser.String())
		return TokensPurchased{}, newError(CodeReentrantCall, "purchase already in progress", nil)
	}
	defer e.entered.Store(false)

	purchase, err := e.buyTokens(ctx, purchaser, beneficiary, value)
	if err != nil {
		e.logger.Info("purchase rejected",
			"purchaser", purchaser.String(),
			"beneficiary", beneficiary.String(),
			"value", ir.FormatAmount(value),
			"code", string(CodeOf(err)),
			"error", err,
		)
		return TokensPurchased{}, err
	}

	e.logger.Debug("purchase accepted",
		"purchaser", purchaser.String(),
		"beneficiary", beneficiary.String(),
		"value", purchase.ValuePaid.String(),
		"asset_amount", purchase.AssetAmount.String(),
	)
	return purchase, nil
}

func (e *Engine) buyTokens(ctx context.Context, purchaser, beneficiary ir.Address, value *big.Int) (TokensPurchased, error) {
	e.mu.RLock()
	dao, asset := e.dao, e.asset
	cfg := e.cfg.Clone()
	raised := ir.CopyAmount(e.raised)
	e.mu.RUnlock()

	if asset.IsZero() {
		return TokensPurchased{}, newError(CodeNotInitialized, "engine not initialized", nil)
	}
	if err := ir.CheckAmount(value); err != nil {
		return TokensPurchased{}, wrapError(CodeArithmetic, "invalid purchase value", err)
	}

	height := e.env.Heights.Height()
	if height < cfg.StartHeight || height > cfg.EndHeight {
		return TokensPurchased{}, newError(CodeSaleNotOpen, "outside sale window", map[string]string{
			"height":       strconv.FormatUint(height, 10),
			"start_height": strconv.FormatUint(cfg.StartHeight, 10),
			"end_height":   strconv.FormatUint(cfg.EndHeight, 10),
		})
	}

	if cfg.Paused {
		return TokensPurchased{}, newError(CodeSalePaused, "sale is paused", nil)
	}

	capDetails := map[string]string{
		"raised": raised.String(),
		"value":  value.String(),
		"cap":    cfg.Cap.String(),
	}
	total, err := ir.CheckedAdd(raised, value)
	if err != nil {
		return TokensPurchased{}, newError(CodeCapReached, "purchase exceeds cap", capDetails)
	}
	if total.Cmp(cfg.Cap) > 0 {
		return TokensPurchased{}, newError(CodeCapReached, "purchase exceeds cap", capDetails)
	}

	amount, err := ir.CheckedMul(value, cfg.Rate)
	if err != nil {
		return TokensPurchased{}, wrapError(CodeArithmetic, "asset amount overflows", err)
	}

	// External calls start here. Everything above is read-only.
	if err := e.env.Assets.Mint(ctx, e.address, asset, beneficiary, amount); err != nil {
		return TokensPurchased{}, fmt.Errorf("mint %s on %s: %w", amount, asset, err)
	}

	if err := e.env.Value.Transfer(ctx, e.address, dao, value); err != nil {
		return TokensPurchased{}, wrapError(CodeBuyTokensFailed, "forwarding value to dao failed", err)
	}

	e.mu.Lock()
	prev := e.raised
	e.raised = new(big.Int).Add(prev, value)
	e.mu.Unlock()
	e.journal(func() { e.raised = prev })

	purchase := TokensPurchased{
		Purchaser:   purchaser,
		Beneficiary: beneficiary,
		ValuePaid:   ir.CopyAmount(value),
		AssetAmount: amount,
	}
	e.emit(ctx, purchase)
	return purchase, nil
}
