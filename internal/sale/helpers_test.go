package sale

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/capsale/internal/ir"
)

var (
	testEngine = ir.NamedAddress("engine")
	testDAO    = ir.NamedAddress("dao")
	testAsset  = ir.NamedAddress("token")
	testAlice  = ir.NamedAddress("alice")
	testBob    = ir.NamedAddress("bob")

	oneEther = ir.MustParseAmount("1000000000000000000")
	tenEther = ir.MustParseAmount("10000000000000000000")
)

type grantKey struct {
	caller     ir.Address
	resource   ir.Address
	capability ir.Capability
}

type mintCall struct {
	minter ir.Address
	asset  ir.Address
	to     ir.Address
	amount *big.Int
}

type transferCall struct {
	from   ir.Address
	to     ir.Address
	amount *big.Int
}

// fakeHost implements every Env collaborator and records calls.
// It performs no rollback of its own; undo steps are collected and only
// run by abort.
type fakeHost struct {
	height    uint64
	grants    map[grantKey]bool
	mints     []mintCall
	transfers []transferCall
	events    []ir.Event
	undo      []func()

	mintErr     error
	transferErr error
	onMint      func(ctx context.Context) error
	onTransfer  func(ctx context.Context) error
}

func newFakeHost(height uint64) *fakeHost {
	return &fakeHost{height: height, grants: make(map[grantKey]bool)}
}

func (h *fakeHost) Height() uint64 { return h.height }

func (h *fakeHost) Check(_ context.Context, caller, resource ir.Address, capability ir.Capability) bool {
	return h.grants[grantKey{caller, resource, capability}]
}

func (h *fakeHost) grant(caller, resource ir.Address, capability ir.Capability) {
	h.grants[grantKey{caller, resource, capability}] = true
}

func (h *fakeHost) Mint(ctx context.Context, minter, asset, to ir.Address, amount *big.Int) error {
	if h.onMint != nil {
		if err := h.onMint(ctx); err != nil {
			return err
		}
	}
	if h.mintErr != nil {
		return h.mintErr
	}
	h.mints = append(h.mints, mintCall{minter, asset, to, new(big.Int).Set(amount)})
	return nil
}

func (h *fakeHost) Transfer(ctx context.Context, from, to ir.Address, amount *big.Int) error {
	if h.onTransfer != nil {
		if err := h.onTransfer(ctx); err != nil {
			return err
		}
	}
	if h.transferErr != nil {
		return h.transferErr
	}
	h.transfers = append(h.transfers, transferCall{from, to, new(big.Int).Set(amount)})
	return nil
}

func (h *fakeHost) Emit(_ context.Context, _ ir.Address, ev ir.Event) {
	h.events = append(h.events, ev)
}

func (h *fakeHost) Record(undo func()) {
	h.undo = append(h.undo, undo)
}

// abort runs the collected undo steps newest first, as a host does when
// it discards a transaction.
func (h *fakeHost) abort() {
	for i := len(h.undo) - 1; i >= 0; i-- {
		h.undo[i]()
	}
	h.undo = nil
}

func (h *fakeHost) eventNames() []string {
	names := make([]string, len(h.events))
	for i, ev := range h.events {
		names[i] = ev.Name()
	}
	return names
}

func (h *fakeHost) env() Env {
	return Env{
		Heights:  h,
		Registry: h,
		Assets:   h,
		Value:    h,
		Events:   h,
		Journal:  h,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// newSale returns an engine initialized with rate=1000, cap=10 ether,
// window=[100,200], the DAO holding the configure capability.
func newSale(t *testing.T, h *fakeHost, opts ...Option) *Engine {
	t.Helper()
	e, err := New(testEngine, h.env(), opts...)
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background(), testDAO, testAsset, big.NewInt(1000), tenEther, 100, 200))
	h.grant(testDAO, testEngine, ir.ConfigureCapability)
	h.events = nil
	h.undo = nil
	return e
}
