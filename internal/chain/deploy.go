package chain

import (
	"context"
	"fmt"

	"github.com/roach88/capsale/internal/ir"
	"github.com/roach88/capsale/internal/permission"
)

var _ permission.Deployer = (*Chain)(nil)

// Deploy allocates the next factory-derived address for impl and records
// it as a contract. The allocation is reverted with the transaction.
func (c *Chain) Deploy(_ context.Context, dao ir.Address, impl permission.ImplementationRef) (ir.Address, error) {
	nonce := c.nonce
	addr := ir.DeriveAddress(c.factory, nonce)
	if c.occupied(addr) {
		return ir.ZeroAddress, fmt.Errorf("deploy %s: %w", addr, ErrAddressInUse)
	}

	c.nonce++
	c.contracts[addr] = impl
	c.record(func() {
		c.nonce = nonce
		delete(c.contracts, addr)
	})

	c.logger.Debug("contract deployed",
		"address", addr.String(),
		"dao", dao.String(),
		"implementation", impl.Name,
		"version", impl.Version,
		"nonce", nonce,
	)
	return addr, nil
}

// ContractAt returns the implementation deployed at addr.
func (c *Chain) ContractAt(addr ir.Address) (permission.ImplementationRef, bool) {
	impl, ok := c.contracts[addr]
	return impl, ok
}

func (c *Chain) occupied(addr ir.Address) bool {
	if _, ok := c.assets[addr]; ok {
		return true
	}
	_, ok := c.contracts[addr]
	return ok
}
