package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/roach88/capsale/internal/ir"
	"github.com/roach88/capsale/internal/permission"
	"github.com/roach88/capsale/internal/sale"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the
	// sender's native balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUnknownAsset is returned when minting on an address that holds
	// no asset contract.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrAddressInUse is returned when deploying onto an occupied address.
	ErrAddressInUse = errors.New("address already in use")
)

// Registry is the capability registry the chain consults and mutates.
// permission.MemoryRegistry satisfies it.
type Registry interface {
	Check(ctx context.Context, caller, resource ir.Address, capability ir.Capability) bool
	Apply(ctx context.Context, grants []ir.PermissionGrant) error
}

// ReceiveHook runs when native value arrives at an account. A non-nil
// error aborts the transfer and, inside Execute, the whole transaction.
type ReceiveHook func(ctx context.Context, from ir.Address, amount *big.Int) error

// Subscriber is notified after each committed transaction.
type Subscriber interface {
	OnCommit(ctx context.Context, receipt Receipt) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, receipt Receipt) error

func (f SubscriberFunc) OnCommit(ctx context.Context, receipt Receipt) error {
	return f(ctx, receipt)
}

// Receipt describes a committed transaction. NotifyErr joins the errors
// returned by subscribers; the transaction stays committed either way.
type Receipt struct {
	TxID        string
	Height      uint64
	Events      []ir.EventRecord
	Permissions []ir.PermissionGrant
	NotifyErr   error
}

type asset struct {
	name     string
	supply   *big.Int
	balances map[ir.Address]*big.Int
}

type pendingEvent struct {
	emitter ir.Address
	ev      ir.Event
}

type txState struct {
	id          string
	journal     []func()
	events      []pendingEvent
	permissions []ir.PermissionGrant
}

// Chain is the in-process host.
type Chain struct {
	registry Registry
	txids    TxIDGenerator
	logger   *slog.Logger
	factory  ir.Address

	height    uint64
	nonce     uint64
	balances  map[ir.Address]*big.Int
	assets    map[ir.Address]*asset
	contracts map[ir.Address]permission.ImplementationRef
	hooks     map[ir.Address]ReceiveHook

	tx          *txState
	subscribers []Subscriber
	notifyErrs  []error
}

// Option configures a Chain.
type Option func(*Chain)

// WithTxIDGenerator sets the transaction id source. Default UUIDv7Generator.
func WithTxIDGenerator(g TxIDGenerator) Option {
	return func(c *Chain) {
		c.txids = g
	}
}

// WithLogger sets the chain logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		c.logger = logger
	}
}

// WithHeight sets the starting block height.
func WithHeight(h uint64) Option {
	return func(c *Chain) {
		c.height = h
	}
}

// WithFactory sets the address new contracts are derived from.
func WithFactory(addr ir.Address) Option {
	return func(c *Chain) {
		c.factory = addr
	}
}

// New creates a chain that authorizes mints against registry.
func New(registry Registry, opts ...Option) *Chain {
	c := &Chain{
		registry:  registry,
		txids:     UUIDv7Generator{},
		logger:    slog.Default(),
		factory:   ir.NamedAddress("factory"),
		balances:  make(map[ir.Address]*big.Int),
		assets:    make(map[ir.Address]*asset),
		contracts: make(map[ir.Address]permission.ImplementationRef),
		hooks:     make(map[ir.Address]ReceiveHook),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SaleEnv returns an Env wiring an engine to this chain.
func (c *Chain) SaleEnv(logger *slog.Logger) sale.Env {
	return sale.Env{
		Heights:  c,
		Registry: c.registry,
		Assets:   c,
		Value:    c,
		Events:   c,
		Journal:  c,
		Logger:   logger,
	}
}

// Subscribe registers s for committed transactions.
func (c *Chain) Subscribe(s Subscriber) {
	c.subscribers = append(c.subscribers, s)
}

// Height returns the current block height.
func (c *Chain) Height() uint64 { return c.height }

// SetHeight moves the chain to h. Heights are not journaled.
func (c *Chain) SetHeight(h uint64) { c.height = h }

// Advance moves the chain forward n blocks.
func (c *Chain) Advance(n uint64) { c.height += n }

// SetReceiveHook installs hook on addr, replacing any previous one.
// A nil hook removes it.
func (c *Chain) SetReceiveHook(addr ir.Address, hook ReceiveHook) {
	if hook == nil {
		delete(c.hooks, addr)
		return
	}
	c.hooks[addr] = hook
}

// Execute runs fn as one transaction. If fn returns an error every state
// change it made is reverted and its events are discarded.
// Nested calls join the enclosing transaction.
func (c *Chain) Execute(ctx context.Context, fn func(ctx context.Context) error) (Receipt, error) {
	if c.tx != nil {
		return Receipt{TxID: c.tx.id, Height: c.height}, fn(ctx)
	}

	c.tx = &txState{id: c.txids.Generate()}
	err := fn(ctx)
	tx := c.tx
	c.tx = nil

	if err != nil {
		for i := len(tx.journal) - 1; i >= 0; i-- {
			tx.journal[i]()
		}
		c.logger.Debug("transaction reverted",
			"tx", tx.id,
			"height", c.height,
			"undone", len(tx.journal),
			"dropped_events", len(tx.events),
			"error", err,
		)
		return Receipt{}, err
	}

	return c.commit(ctx, tx)
}

func (c *Chain) commit(ctx context.Context, tx *txState) (Receipt, error) {
	receipt := Receipt{
		TxID:        tx.id,
		Height:      c.height,
		Permissions: tx.permissions,
	}
	for i, pe := range tx.events {
		rec, err := ir.NewEventRecord(tx.id, int64(i+1), c.height, pe.emitter, pe.ev)
		if err != nil {
			return Receipt{}, fmt.Errorf("commit %s: %w", tx.id, err)
		}
		receipt.Events = append(receipt.Events, rec)
	}

	var errs []error
	for _, s := range c.subscribers {
		if err := s.OnCommit(ctx, receipt); err != nil {
			c.logger.Error("commit subscriber failed", "tx", tx.id, "error", err)
			errs = append(errs, fmt.Errorf("notify %s: %w", tx.id, err))
		}
	}
	if len(errs) > 0 {
		receipt.NotifyErr = errors.Join(errs...)
		c.notifyErrs = append(c.notifyErrs, errs...)
	}
	return receipt, nil
}

// NotifyErrors joins every subscriber error since the chain was created,
// nil if all commits were delivered. A non-nil result means subscribers
// such as the event store have gaps.
func (c *Chain) NotifyErrors() error {
	return errors.Join(c.notifyErrs...)
}

// record appends an undo step when a transaction is open.
func (c *Chain) record(undo func()) {
	if c.tx != nil {
		c.tx.journal = append(c.tx.journal, undo)
	}
}

// Record registers an undo step on the open transaction. Outside a
// transaction it does nothing.
func (c *Chain) Record(undo func()) {
	c.record(undo)
}

// Emit buffers ev until the enclosing transaction commits. Outside a
// transaction the event is committed on its own.
func (c *Chain) Emit(ctx context.Context, emitter ir.Address, ev ir.Event) {
	if c.tx != nil {
		c.tx.events = append(c.tx.events, pendingEvent{emitter: emitter, ev: ev})
		return
	}
	_, _ = c.Execute(ctx, func(context.Context) error {
		c.tx.events = append(c.tx.events, pendingEvent{emitter: emitter, ev: ev})
		return nil
	})
}

// ApplyPermissions applies grants to the registry and records them on
// the current receipt. On rollback each touched triple returns to the
// state it had before.
func (c *Chain) ApplyPermissions(ctx context.Context, grants []ir.PermissionGrant) error {
	restore := make([]ir.PermissionGrant, 0, len(grants))
	for i := len(grants) - 1; i >= 0; i-- {
		g := grants[i]
		prior := g
		prior.Op = ir.OpRevoke
		if c.registry.Check(ctx, g.Who, g.Where, g.Capability) {
			prior.Op = ir.OpGrant
		}
		restore = append(restore, prior)
	}

	if err := c.registry.Apply(ctx, grants); err != nil {
		return err
	}
	if c.tx != nil {
		c.tx.permissions = append(c.tx.permissions, grants...)
		c.record(func() {
			if err := c.registry.Apply(context.Background(), restore); err != nil {
				c.logger.Error("permission rollback failed", "error", err)
			}
		})
	}
	return nil
}

// Check consults the registry.
func (c *Chain) Check(ctx context.Context, caller, resource ir.Address, capability ir.Capability) bool {
	return c.registry.Check(ctx, caller, resource, capability)
}
