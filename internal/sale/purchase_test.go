package sale

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/capsale/internal/ir"
)

func TestBuyTokens_WithinWindow(t *testing.T) {
	h := newFakeHost(150)
	e := newSale(t, h)

	p, err := e.BuyTokens(context.Background(), testAlice, testBob, oneEther)
	require.NoError(t, err)

	assert.Equal(t, testAlice, p.Purchaser)
	assert.Equal(t, testBob, p.Beneficiary)
	assert.Equal(t, oneEther.String(), p.ValuePaid.String())
	assert.Equal(t, "1000000000000000000000", p.AssetAmount.String())
	assert.Equal(t, oneEther.String(), e.Raised().String())

	require.Len(t, h.mints, 1)
	assert.Equal(t, mintCall{testEngine, testAsset, testBob, p.AssetAmount}, h.mints[0])

	require.Len(t, h.transfers, 1)
	assert.Equal(t, testEngine, h.transfers[0].from)
	assert.Equal(t, testDAO, h.transfers[0].to)
	assert.Equal(t, oneEther.String(), h.transfers[0].amount.String())

	assert.Equal(t, []string{EventTokensPurchased}, h.eventNames())
}

func TestBuyTokens_OutsideWindow(t *testing.T) {
	for _, height := range []uint64{0, 50, 99, 201, 1000} {
		h := newFakeHost(height)
		e := newSale(t, h)

		_, err := e.BuyTokens(context.Background(), testAlice, testAlice, oneEther)
		assert.ErrorIs(t, err, ErrSaleNotOpen, "height=%d", height)
		assertUntouched(t, h, e)
	}
}

func TestBuyTokens_WindowBoundsInclusive(t *testing.T) {
	for _, height := range []uint64{100, 200} {
		h := newFakeHost(height)
		e := newSale(t, h)

		_, err := e.BuyTokens(context.Background(), testAlice, testAlice, oneEther)
		assert.NoError(t, err, "height=%d", height)
	}
}

func TestBuyTokens_Paused(t *testing.T) {
	h := newFakeHost(150)
	e := newSale(t, h)
	require.NoError(t, e.SetPaused(context.Background(), testDAO, true))
	h.events = nil

	_, err := e.BuyTokens(context.Background(), testAlice, testAlice, oneEther)
	assert.ErrorIs(t, err, ErrSalePaused)
	assertUntouched(t, h, e)
}

func TestBuyTokens_CapReached(t *testing.T) {
	h := newFakeHost(150)
	e := newSale(t, h)

	// Bring raised to 9.5 ether.
	_, err := e.BuyTokens(context.Background(), testAlice, testAlice, ir.MustParseAmount("9500000000000000000"))
	require.NoError(t, err)
	h.mints, h.transfers, h.events = nil, nil, nil

	_, err = e.BuyTokens(context.Background(), testAlice, testAlice, oneEther)
	assert.ErrorIs(t, err, ErrCapReached)
	assert.Equal(t, "9500000000000000000", e.Raised().String())
	assert.Empty(t, h.mints)
	assert.Empty(t, h.transfers)
	assert.Empty(t, h.events)

	// Exactly reaching the cap is allowed.
	_, err = e.BuyTokens(context.Background(), testAlice, testAlice, ir.MustParseAmount("500000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, tenEther.String(), e.Raised().String())
}

func TestBuyTokens_CapOverflowIsCapReached(t *testing.T) {
	h := newFakeHost(150)
	e := newSale(t, h)
	_, err := e.BuyTokens(context.Background(), testAlice, testAlice, oneEther)
	require.NoError(t, err)

	_, err = e.BuyTokens(context.Background(), testAlice, testAlice, ir.MaxUint256)
	assert.ErrorIs(t, err, ErrCapReached)
}

// The first failing check wins; callers rely on which error they see.
func TestBuyTokens_ValidationOrder(t *testing.T) {
	tests := []struct {
		name   string
		height uint64
		paused bool
		value  *big.Int
		want   error
	}{
		{"window before pause", 50, true, oneEther, ErrSaleNotOpen},
		{"window before cap", 250, false, ir.MustParseAmount("11000000000000000000"), ErrSaleNotOpen},
		{"pause before cap", 150, true, ir.MustParseAmount("11000000000000000000"), ErrSalePaused},
		{"cap alone", 150, false, ir.MustParseAmount("11000000000000000000"), ErrCapReached},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newFakeHost(tt.height)
			e := newSale(t, h)
			require.NoError(t, e.SetPaused(context.Background(), testDAO, tt.paused))
			h.events = nil

			_, err := e.BuyTokens(context.Background(), testAlice, testAlice, tt.value)
			assert.ErrorIs(t, err, tt.want)
			assertUntouched(t, h, e)
		})
	}
}

func TestBuyTokens_AssetAmountIsIntegerProduct(t *testing.T) {
	h := newFakeHost(150)
	e := newSale(t, h)
	require.NoError(t, e.SetRate(context.Background(), testDAO, big.NewInt(3)))

	p, err := e.BuyTokens(context.Background(), testAlice, testAlice, big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, "21", p.AssetAmount.String())
}

func TestBuyTokens_AmountOverflow(t *testing.T) {
	h := newFakeHost(150)
	e, err := New(testEngine, h.env())
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background(), testDAO, testAsset, ir.MaxUint256, ir.MaxUint256, 100, 200))
	h.events = nil

	_, err = e.BuyTokens(context.Background(), testAlice, testAlice, big.NewInt(2))
	assert.ErrorIs(t, err, ErrArithmetic)
	assertUntouched(t, h, e)
}

func TestBuyTokens_RejectsInvalidValue(t *testing.T) {
	h := newFakeHost(150)
	e := newSale(t, h)

	_, err := e.BuyTokens(context.Background(), testAlice, testAlice, big.NewInt(-1))
	assert.ErrorIs(t, err, ErrArithmetic)

	_, err = e.BuyTokens(context.Background(), testAlice, testAlice, nil)
	assert.ErrorIs(t, err, ErrArithmetic)
}

func TestBuyTokens_NotInitialized(t *testing.T) {
	h := newFakeHost(150)
	e, err := New(testEngine, h.env())
	require.NoError(t, err)

	_, err = e.BuyTokens(context.Background(), testAlice, testAlice, oneEther)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestBuyTokens_MintFailureAborts(t *testing.T) {
	h := newFakeHost(150)
	e := newSale(t, h)
	h.mintErr = &ir.UnauthorizedError{Where: testAsset, Who: testEngine, Capability: ir.MintCapability}

	_, err := e.BuyTokens(context.Background(), testAlice, testAlice, oneEther)
	require.Error(t, err)

	var unauthorized *ir.UnauthorizedError
	assert.True(t, errors.As(err, &unauthorized))
	assert.Equal(t, CategoryAuthorization, CategoryOf(err))
	assert.Empty(t, h.transfers, "value must not move after a failed mint")
	assert.Equal(t, "0", e.Raised().String())
	assert.Empty(t, h.events)
}

func TestBuyTokens_TransferFailureIsBuyTokensFailed(t *testing.T) {
	h := newFakeHost(150)
	e := newSale(t, h)
	treasuryDown := errors.New("treasury rejected value")
	h.transferErr = treasuryDown

	_, err := e.BuyTokens(context.Background(), testAlice, testAlice, oneEther)
	assert.ErrorIs(t, err, ErrBuyTokensFailed)
	assert.ErrorIs(t, err, treasuryDown)
	assert.Equal(t, CategoryExternalCall, CategoryOf(err))
	assert.Equal(t, "0", e.Raised().String())
	assert.Empty(t, h.events)
}

func TestBuyTokens_ReentrantFromMint(t *testing.T) {
	h := newFakeHost(150)
	e := newSale(t, h)

	var inner error
	h.onMint = func(ctx context.Context) error {
		_, inner = e.BuyTokens(ctx, testBob, testBob, oneEther)
		return inner
	}

	_, err := e.BuyTokens(context.Background(), testAlice, testAlice, oneEther)
	assert.ErrorIs(t, inner, ErrReentrantCall)
	assert.ErrorIs(t, err, ErrReentrantCall, "hostile asset propagates the rejection")
	assert.Equal(t, "0", e.Raised().String())

	// The guard is released on the error path.
	h.onMint = nil
	_, err = e.BuyTokens(context.Background(), testAlice, testAlice, oneEther)
	assert.NoError(t, err)
}

func TestBuyTokens_ReentrantFromTransfer(t *testing.T) {
	h := newFakeHost(150)
	e := newSale(t, h)

	var inner error
	h.onTransfer = func(ctx context.Context) error {
		_, inner = e.BuyTokens(ctx, testBob, testBob, oneEther)
		return nil // swallow: the outer purchase proceeds
	}

	_, err := e.BuyTokens(context.Background(), testAlice, testAlice, oneEther)
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrReentrantCall)
	assert.Equal(t, oneEther.String(), e.Raised().String(), "only the outer purchase counts")
	assert.Len(t, h.mints, 1)
}

func TestBuyTokens_ViewsUsableFromCallback(t *testing.T) {
	h := newFakeHost(150)
	e := newSale(t, h)

	var seen string
	var open bool
	h.onTransfer = func(context.Context) error {
		seen = e.Raised().String()
		open = e.IsSaleOpen()
		return nil
	}

	_, err := e.BuyTokens(context.Background(), testAlice, testAlice, oneEther)
	require.NoError(t, err)
	assert.Equal(t, "0", seen, "ledger increases only after the transfer")
	assert.True(t, open)
}

// Random purchase sequences never decrease raised and never pass the cap.
func TestBuyTokens_RaisedMonotonicAndCapped(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	h := newFakeHost(150)
	e := newSale(t, h)

	prev := e.Raised()
	for i := 0; i < 500; i++ {
		value := new(big.Int).Mul(big.NewInt(rng.Int63n(2_000)), big.NewInt(1_000_000_000_000_000))
		h.height = uint64(90 + rng.Intn(120))

		_, err := e.BuyTokens(context.Background(), testAlice, testAlice, value)
		now := e.Raised()

		assert.True(t, now.Cmp(prev) >= 0, "raised decreased at step %d", i)
		assert.True(t, now.Cmp(tenEther) <= 0, "raised exceeded cap at step %d", i)
		if err != nil {
			assert.Equal(t, prev.String(), now.String(), "failed purchase changed raised at step %d", i)
		}
		prev = now
	}
}

func assertUntouched(t *testing.T, h *fakeHost, e *Engine) {
	t.Helper()
	assert.Empty(t, h.mints, "no mint expected")
	assert.Empty(t, h.transfers, "no transfer expected")
	assert.Empty(t, h.events, "no event expected")
	assert.Equal(t, "0", e.Raised().String())
}
