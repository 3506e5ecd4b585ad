package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/roach88/capsale/internal/ir"
)

// Balance returns addr's native balance.
func (c *Chain) Balance(addr ir.Address) *big.Int {
	return ir.CopyAmount(c.balances[addr])
}

// Fund credits addr with amount of native value out of thin air.
func (c *Chain) Fund(addr ir.Address, amount *big.Int) error {
	if err := ir.CheckAmount(amount); err != nil {
		return fmt.Errorf("fund %s: %w", addr, err)
	}
	next, err := ir.CheckedAdd(c.balanceOf(addr), amount)
	if err != nil {
		return fmt.Errorf("fund %s: %w", addr, err)
	}
	c.setBalance(addr, next)
	return nil
}

// Transfer moves native value from one account to another and then runs
// the recipient's receive hook, if any. A hook error is returned as is.
func (c *Chain) Transfer(ctx context.Context, from, to ir.Address, amount *big.Int) error {
	if err := ir.CheckAmount(amount); err != nil {
		return fmt.Errorf("transfer %s -> %s: %w", from, to, err)
	}
	have := c.balanceOf(from)
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s -> %s: %w: have %s, need %s", from, to, ErrInsufficientBalance, have, amount)
	}
	credited, err := ir.CheckedAdd(c.balanceOf(to), amount)
	if err != nil {
		return fmt.Errorf("transfer %s -> %s: %w", from, to, err)
	}

	if from != to {
		c.setBalance(from, new(big.Int).Sub(have, amount))
		c.setBalance(to, credited)
	}

	if hook, ok := c.hooks[to]; ok {
		return hook(ctx, from, ir.CopyAmount(amount))
	}
	return nil
}

func (c *Chain) balanceOf(addr ir.Address) *big.Int {
	if b, ok := c.balances[addr]; ok {
		return b
	}
	return new(big.Int)
}

func (c *Chain) setBalance(addr ir.Address, v *big.Int) {
	prev, had := c.balances[addr]
	c.balances[addr] = v
	c.record(func() {
		if had {
			c.balances[addr] = prev
		} else {
			delete(c.balances, addr)
		}
	})
}
