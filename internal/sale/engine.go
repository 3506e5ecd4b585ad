package sale

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/roach88/capsale/internal/ir"
)

// HeightSource reports the current block height.
type HeightSource interface {
	Height() uint64
}

// CapabilityChecker answers whether caller holds capability on resource.
type CapabilityChecker interface {
	Check(ctx context.Context, caller, resource ir.Address, capability ir.Capability) bool
}

// AssetMinter calls mint(to, amount) on the asset contract at asset, with
// minter as the calling contract. The asset performs its own capability check.
type AssetMinter interface {
	Mint(ctx context.Context, minter, asset, to ir.Address, amount *big.Int) error
}

// ValueForwarder moves native value between accounts. The receiving
// account may run arbitrary code.
type ValueForwarder interface {
	Transfer(ctx context.Context, from, to ir.Address, amount *big.Int) error
}

// EventSink receives events emitted by the engine. The host decides when
// they become visible.
type EventSink interface {
	Emit(ctx context.Context, emitter ir.Address, ev ir.Event)
}

// StateJournal collects undo steps for engine mutations. The host runs
// them, newest first, when the enclosing transaction aborts.
type StateJournal interface {
	Record(undo func())
}

// Env bundles the host collaborators an engine runs against.
// Heights, Registry, Assets and Value are required.
type Env struct {
	Heights  HeightSource
	Registry CapabilityChecker
	Assets   AssetMinter
	Value    ValueForwarder
	Events   EventSink    // optional
	Journal  StateJournal // optional; without it mutations are never undone
	Logger   *slog.Logger // optional, defaults to slog.Default()
}

func (env Env) validate() error {
	switch {
	case env.Heights == nil:
		return errors.New("sale env: height source is required")
	case env.Registry == nil:
		return errors.New("sale env: capability registry is required")
	case env.Assets == nil:
		return errors.New("sale env: asset minter is required")
	case env.Value == nil:
		return errors.New("sale env: value forwarder is required")
	}
	return nil
}

// RatePolicy selects how Initialize validates the rate.
type RatePolicy int

const (
	// RejectZeroRate requires a nonzero rate. This is the default.
	RejectZeroRate RatePolicy = iota

	// RejectPositiveRate rejects every positive rate, reproducing the
	// inverted condition found in the contract this engine replaces.
	// Only a zero rate initializes, so every purchase mints nothing.
	RejectPositiveRate
)

func (p RatePolicy) String() string {
	switch p {
	case RejectZeroRate:
		return "reject_zero"
	case RejectPositiveRate:
		return "reject_positive"
	}
	return "unknown(" + strconv.Itoa(int(p)) + ")"
}

// Option configures an Engine.
type Option func(*Engine)

// WithRatePolicy overrides the rate check used by Initialize.
func WithRatePolicy(p RatePolicy) Option {
	return func(e *Engine) {
		e.ratePolicy = p
	}
}

// Config is the sale configuration. Rate is asset units per value unit.
type Config struct {
	Rate        *big.Int
	Cap         *big.Int
	StartHeight uint64
	EndHeight   uint64
	Paused      bool
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	c.Rate = ir.CopyAmount(c.Rate)
	c.Cap = ir.CopyAmount(c.Cap)
	return c
}

// Engine is one sale instance living at a fixed address.
//
// Thread-safety model:
//   - mu guards configuration and ledger and is never held across an
//     external call, so views stay callable from callbacks
//   - entered is the purchase guard; it spans the whole purchase
//     including the mint and the transfer
type Engine struct {
	address    ir.Address
	env        Env
	logger     *slog.Logger
	ratePolicy RatePolicy

	mu     sync.RWMutex
	dao    ir.Address
	asset  ir.Address
	cfg    Config
	raised *big.Int

	entered atomic.Bool
}

// New creates an uninitialized engine at address.
func New(address ir.Address, env Env, opts ...Option) (*Engine, error) {
	if address.IsZero() {
		return nil, errors.New("sale: engine address is zero")
	}
	if err := env.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		address:    address,
		env:        env,
		logger:     env.Logger,
		ratePolicy: RejectZeroRate,
		cfg:        Config{Rate: new(big.Int), Cap: new(big.Int)},
		raised:     new(big.Int),
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("engine", address.String())

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Initialize binds the engine to its DAO and asset and stores the sale
// configuration. It succeeds at most once per engine.
//
// Checks, in order: ErrAlreadyInitialized, ErrInvalidAsset, ErrInvalidDAO,
// ErrInvalidTime, ErrInvalidRate. The ledger starts at zero and the sale
// starts unpaused.
func (e *Engine) Initialize(ctx context.Context, dao, asset ir.Address, rate, capValue *big.Int, startHeight, endHeight uint64) error {
	e.mu.Lock()

	if !e.asset.IsZero() {
		e.mu.Unlock()
		return newError(CodeAlreadyInitialized, "engine already initialized", map[string]string{
			"asset": e.asset.String(),
		})
	}
	if asset.IsZero() {
		e.mu.Unlock()
		return newError(CodeInvalidAsset, "asset reference is the zero address", nil)
	}
	if dao.IsZero() {
		e.mu.Unlock()
		return newError(CodeInvalidDAO, "dao is the zero address", nil)
	}
	if startHeight > endHeight {
		e.mu.Unlock()
		return newError(CodeInvalidTime, "start height after end height", map[string]string{
			"start_height": strconv.FormatUint(startHeight, 10),
			"end_height":   strconv.FormatUint(endHeight, 10),
		})
	}
	if err := e.checkRate(rate); err != nil {
		e.mu.Unlock()
		return err
	}
	if err := ir.CheckAmount(capValue); err != nil {
		e.mu.Unlock()
		return wrapError(CodeArithmetic, "invalid cap", err)
	}

	prevDAO, prevAsset, prevCfg, prevRaised := e.dao, e.asset, e.cfg, e.raised
	e.dao = dao
	e.asset = asset
	e.cfg = Config{
		Rate:        ir.CopyAmount(rate),
		Cap:         ir.CopyAmount(capValue),
		StartHeight: startHeight,
		EndHeight:   endHeight,
		Paused:      false,
	}
	e.raised = new(big.Int)
	ev := e.configuredLocked()
	e.mu.Unlock()

	e.journal(func() {
		e.dao, e.asset, e.cfg, e.raised = prevDAO, prevAsset, prevCfg, prevRaised
	})
	e.logger.Info("sale initialized",
		"dao", dao.String(),
		"asset", asset.String(),
		"rate", ev.Rate.String(),
		"cap", ev.Cap.String(),
		"start_height", startHeight,
		"end_height", endHeight,
	)
	e.emit(ctx, ev)
	return nil
}

func (e *Engine) checkRate(rate *big.Int) error {
	if err := ir.CheckAmount(rate); err != nil {
		return wrapError(CodeInvalidRate, "rate out of range", err)
	}

	details := map[string]string{
		"rate":   rate.String(),
		"policy": e.ratePolicy.String(),
	}
	switch e.ratePolicy {
	case RejectPositiveRate:
		if rate.Sign() > 0 {
			return newError(CodeInvalidRate, "positive rate rejected", details)
		}
	default:
		if rate.Sign() == 0 {
			return newError(CodeInvalidRate, "rate must be nonzero", details)
		}
	}
	return nil
}

// configuredLocked builds a full configuration snapshot event.
// Caller must hold mu.
func (e *Engine) configuredLocked() SaleConfigured {
	return SaleConfigured{
		Rate:        ir.CopyAmount(e.cfg.Rate),
		Cap:         ir.CopyAmount(e.cfg.Cap),
		StartHeight: e.cfg.StartHeight,
		EndHeight:   e.cfg.EndHeight,
	}
}

// journal registers undo with the host. undo runs with mu held.
// Caller must not hold mu.
func (e *Engine) journal(undo func()) {
	if e.env.Journal == nil {
		return
	}
	e.env.Journal.Record(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		undo()
	})
}

func (e *Engine) emit(ctx context.Context, ev ir.Event) {
	if e.env.Events == nil {
		return
	}
	e.env.Events.Emit(ctx, e.address, ev)
}
