package chain

import (
	"context"
	"math/big"

	"github.com/roach88/capsale/internal/ir"
	"github.com/roach88/capsale/internal/sale"
)

// Buy runs a purchase as one transaction: value moves from purchaser to
// the engine, then the engine mints and forwards it. Any failure reverts
// the whole transaction, including the purchaser's payment.
func (c *Chain) Buy(ctx context.Context, engine *sale.Engine, purchaser, beneficiary ir.Address, value *big.Int) (sale.TokensPurchased, Receipt, error) {
	var purchase sale.TokensPurchased
	receipt, err := c.Execute(ctx, func(ctx context.Context) error {
		if err := c.Transfer(ctx, purchaser, engine.Address(), value); err != nil {
			return err
		}
		p, err := engine.BuyTokens(ctx, purchaser, beneficiary, value)
		if err != nil {
			return err
		}
		purchase = p
		return nil
	})
	if err != nil {
		return sale.TokensPurchased{}, Receipt{}, err
	}
	return purchase, receipt, nil
}
