package sale

import (
	"context"
	"math/big"

	"github.com/roach88/capsale/internal/ir"
)

// SetRate replaces the rate. Caller must hold ir.ConfigureCapability on the engine.
// Zero is accepted here; only Initialize enforces the rate policy.
func (e *Engine) SetRate(ctx context.Context, caller ir.Address, rate *big.Int) error {
	if err := e.authorize(ctx, caller); err != nil {
		return err
	}
	if err := ir.CheckAmount(rate); err != nil {
		return wrapError(CodeInvalidRate, "rate out of range", err)
	}

	e.mu.Lock()
	prev := e.cfg.Rate
	e.cfg.Rate = ir.CopyAmount(rate)
	ev := e.configuredLocked()
	e.mu.Unlock()

	e.journal(func() { e.cfg.Rate = prev })

	e.logger.Info("rate updated", "caller", caller.String(), "rate", rate.String())
	e.emit(ctx, ev)
	return nil
}

// SetPaused flips the pause switch. Emits PauseChanged, then the full
// configuration snapshot.
func (e *Engine) SetPaused(ctx context.Context, caller ir.Address, paused bool) error {
	if err := e.authorize(ctx, caller); err != nil {
		return err
	}

	e.mu.Lock()
	prev := e.cfg.Paused
	e.cfg.Paused = paused
	ev := e.configuredLocked()
	e.mu.Unlock()

	e.journal(func() { e.cfg.Paused = prev })

	e.logger.Info("pause updated", "caller", caller.String(), "paused", paused)
	e.emit(ctx, PauseChanged{Paused: paused})
	e.emit(ctx, ev)
	return nil
}

// SetStartHeight replaces the first block of the window.
// The window ordering is not re-checked.
func (e *Engine) SetStartHeight(ctx context.Context, caller ir.Address, height uint64) error {
	if err := e.authorize(ctx, caller); err != nil {
		return err
	}

	e.mu.Lock()
	prev := e.cfg.StartHeight
	e.cfg.StartHeight = height
	ev := e.configuredLocked()
	e.mu.Unlock()

	e.journal(func() { e.cfg.StartHeight = prev })

	e.logger.Info("start height updated", "caller", caller.String(), "start_height", height)
	e.emit(ctx, ev)
	return nil
}

// SetEndHeight replaces the last block of the window.
// The window ordering is not re-checked.
func (e *Engine) SetEndHeight(ctx context.Context, caller ir.Address, height uint64) error {
	if err := e.authorize(ctx, caller); err != nil {
		return err
	}

	e.mu.Lock()
	prev := e.cfg.EndHeight
	e.cfg.EndHeight = height
	ev := e.configuredLocked()
	e.mu.Unlock()

	e.journal(func() { e.cfg.EndHeight = prev })

	e.logger.Info("end height updated", "caller", caller.String(), "end_height", height)
	e.emit(ctx, ev)
	return nil
}

// authorize asks the registry, never an owner field.
func (e *Engine) authorize(ctx context.Context, caller ir.Address) error {
	if e.env.Registry.Check(ctx, caller, e.address, ir.ConfigureCapability) {
		return nil
	}
	e.logger.Warn("configure rejected", "caller", caller.String())
	return &ir.UnauthorizedError{
		Where:      e.address,
		Who:        caller,
		Capability: ir.ConfigureCapability,
	}
}
