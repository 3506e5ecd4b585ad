package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/roach88/capsale/internal/ir"
)

// CreateAsset places an asset contract at addr with zero supply.
func (c *Chain) CreateAsset(addr ir.Address, name string) error {
	if addr.IsZero() {
		return fmt.Errorf("create asset %q: zero address", name)
	}
	if c.occupied(addr) {
		return fmt.Errorf("create asset %q at %s: %w", name, addr, ErrAddressInUse)
	}
	c.assets[addr] = &asset{name: name, supply: new(big.Int), balances: make(map[ir.Address]*big.Int)}
	c.record(func() { delete(c.assets, addr) })
	return nil
}

// Mint creates amount of the asset at assetAddr for to. minter must hold
// MINT_PERMISSION on the asset; otherwise *ir.UnauthorizedError.
func (c *Chain) Mint(ctx context.Context, minter, assetAddr, to ir.Address, amount *big.Int) error {
	a, ok := c.assets[assetAddr]
	if !ok {
		return fmt.Errorf("mint on %s: %w", assetAddr, ErrUnknownAsset)
	}
	if !c.registry.Check(ctx, minter, assetAddr, ir.MintCapability) {
		return &ir.UnauthorizedError{Where: assetAddr, Who: minter, Capability: ir.MintCapability}
	}

	supply, err := ir.CheckedAdd(a.supply, amount)
	if err != nil {
		return fmt.Errorf("mint on %s: supply: %w", assetAddr, err)
	}
	prevBal, had := a.balances[to]
	bal := new(big.Int)
	if had {
		bal.Set(prevBal)
	}
	bal.Add(bal, amount)

	prevSupply := a.supply
	a.supply = supply
	a.balances[to] = bal
	c.record(func() {
		a.supply = prevSupply
		if had {
			a.balances[to] = prevBal
		} else {
			delete(a.balances, to)
		}
	})
	return nil
}

// AssetBalance returns holder's balance of the asset at assetAddr.
func (c *Chain) AssetBalance(assetAddr, holder ir.Address) *big.Int {
	a, ok := c.assets[assetAddr]
	if !ok {
		return new(big.Int)
	}
	return ir.CopyAmount(a.balances[holder])
}

// Supply returns the total supply of the asset at assetAddr.
func (c *Chain) Supply(assetAddr ir.Address) *big.Int {
	a, ok := c.assets[assetAddr]
	if !ok {
		return new(big.Int)
	}
	return ir.CopyAmount(a.supply)
}

// IsAsset reports whether an asset contract lives at addr.
func (c *Chain) IsAsset(addr ir.Address) bool {
	_, ok := c.assets[addr]
	return ok
}
