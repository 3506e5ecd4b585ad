package sale

import (
	"math/big"

	"github.com/roach88/capsale/internal/ir"
)

// Address returns the engine's own address.
func (e *Engine) Address() ir.Address { return e.address }

// DAO returns the DAO that receives forwarded value.
func (e *Engine) DAO() ir.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dao
}

// Asset returns the asset minted to purchasers.
func (e *Engine) Asset() ir.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.asset
}

// Initialized reports whether Initialize has succeeded.
func (e *Engine) Initialized() bool {
	return !e.Asset().IsZero()
}

// Rate returns a copy of the current rate.
func (e *Engine) Rate() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return ir.CopyAmount(e.cfg.Rate)
}

// Cap returns a copy of the value cap.
func (e *Engine) Cap() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return ir.CopyAmount(e.cfg.Cap)
}

func (e *Engine) StartHeight() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.StartHeight
}

func (e *Engine) EndHeight() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.EndHeight
}

func (e *Engine) Paused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.Paused
}

// Raised returns a copy of the value raised so far.
func (e *Engine) Raised() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return ir.CopyAmount(e.raised)
}

// Config returns a deep copy of the configuration.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.Clone()
}

// IsSaleOpen reports !paused && startHeight <= height <= endHeight at the
// host's current height. The cap is not considered.
func (e *Engine) IsSaleOpen() bool {
	height := e.env.Heights.Height()

	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.cfg.Paused && e.cfg.StartHeight <= height && height <= e.cfg.EndHeight
}
