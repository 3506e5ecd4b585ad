package sale

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/capsale/internal/ir"
)

func TestError_IsMatchesCode(t *testing.T) {
	err := newError(CodeCapReached, "purchase exceeds cap", map[string]string{"cap": "10"})

	assert.True(t, errors.Is(err, ErrCapReached))
	assert.False(t, errors.Is(err, ErrSalePaused))
	assert.True(t, errors.Is(fmt.Errorf("outer: %w", err), ErrCapReached))
}

func TestError_Message(t *testing.T) {
	err := newError(CodeSaleNotOpen, "outside sale window", map[string]string{
		"start_height": "100",
		"height":       "50",
	})
	assert.Equal(t, "SALE_NOT_OPEN: outside sale window (height=50, start_height=100)", err.Error())

	wrapped := wrapError(CodeBuyTokensFailed, "forwarding value to dao failed", errors.New("boom"))
	assert.Equal(t, "BUY_TOKENS_FAILED: forwarding value to dao failed: boom", wrapped.Error())
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		err  error
		want Category
	}{
		{nil, CategoryNone},
		{ErrAlreadyInitialized, CategoryConfiguration},
		{ErrInvalidTime, CategoryConfiguration},
		{ErrInvalidRate, CategoryConfiguration},
		{ErrInvalidAsset, CategoryConfiguration},
		{ErrSaleNotOpen, CategorySaleWindow},
		{ErrSalePaused, CategorySaleWindow},
		{ErrCapReached, CategorySaleWindow},
		{ErrBuyTokensFailed, CategoryExternalCall},
		{ErrReentrantCall, CategoryReentrancy},
		{ErrArithmetic, CategoryInternal},
		{&ir.UnauthorizedError{}, CategoryAuthorization},
		{errors.New("asset exploded"), CategoryExternalCall},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CategoryOf(tt.err), "%v", tt.err)
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeSalePaused, CodeOf(fmt.Errorf("x: %w", ErrSalePaused)))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}
