package permission

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/capsale/internal/ir"
)

func sampleParams() InstallParams {
	return InstallParams{
		Asset:       ir.MustParseAddress("0x00000000000000000000000000000000000000aa"),
		Rate:        big.NewInt(1000),
		Cap:         ir.MustParseAmount("10000000000000000000"),
		StartHeight: 100,
		EndHeight:   200,
	}
}

func TestEncodeInstallParams_Canonical(t *testing.T) {
	data, err := EncodeInstallParams(sampleParams())
	require.NoError(t, err)

	want := `{"asset":"0x00000000000000000000000000000000000000aa","cap":"10000000000000000000","end_height":"200","rate":"1000","start_height":"100"}`
	assert.Equal(t, want, string(data))
}

func TestDecodeInstallParams_RoundTrip(t *testing.T) {
	p := sampleParams()
	p.EndHeight = ^uint64(0)
	p.Cap = new(big.Int).Set(ir.MaxUint256)

	data, err := EncodeInstallParams(p)
	require.NoError(t, err)
	got, err := DecodeInstallParams(data)
	require.NoError(t, err)

	assert.Equal(t, p.Asset, got.Asset)
	assert.Equal(t, 0, p.Rate.Cmp(got.Rate))
	assert.Equal(t, 0, p.Cap.Cmp(got.Cap))
	assert.Equal(t, p.StartHeight, got.StartHeight)
	assert.Equal(t, p.EndHeight, got.EndHeight)
}

func TestEncodeInstallParams_RejectsBadAmounts(t *testing.T) {
	p := sampleParams()
	p.Rate = big.NewInt(-1)
	_, err := EncodeInstallParams(p)
	require.ErrorIs(t, err, ir.ErrNegativeAmount)

	p = sampleParams()
	p.Cap = nil
	_, err = EncodeInstallParams(p)
	require.Error(t, err)
}

func TestDecodeInstallParams_Malformed(t *testing.T) {
	const asset = `"0x00000000000000000000000000000000000000aa"`
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"not json", `nope`, ""},
		{"unknown field", `{"asset":` + asset + `,"rate":"1","cap":"1","start_height":"1","end_height":"2","extra":"x"}`, ""},
		{"trailing data", `{"asset":` + asset + `,"rate":"1","cap":"1","start_height":"1","end_height":"2"} {}`, ""},
		{"missing rate", `{"asset":` + asset + `,"cap":"1","start_height":"1","end_height":"2"}`, "rate"},
		{"missing end", `{"asset":` + asset + `,"rate":"1","cap":"1","start_height":"1"}`, "end_height"},
		{"bad address", `{"asset":"0x12","rate":"1","cap":"1","start_height":"1","end_height":"2"}`, "asset"},
		{"negative rate", `{"asset":` + asset + `,"rate":"-1","cap":"1","start_height":"1","end_height":"2"}`, "rate"},
		{"cap overflow", `{"asset":` + asset + `,"rate":"1","cap":"115792089237316195423570985008687907853269984665640564039457584007913129639936","start_height":"1","end_height":"2"}`, "cap"},
		{"numeric rate", `{"asset":` + asset + `,"rate":1,"cap":"1","start_height":"1","end_height":"2"}`, ""},
		{"height overflow", `{"asset":` + asset + `,"rate":"1","cap":"1","start_height":"18446744073709551616","end_height":"2"}`, "start_height"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInstallParams([]byte(tt.input))
			var de *DecodeError
			require.True(t, errors.As(err, &de), "want *DecodeError, got %v", err)
			assert.Equal(t, tt.field, de.Field)
		})
	}
}

func TestDecodeInstallParams_ZeroAssetAccepted(t *testing.T) {
	p := sampleParams()
	p.Asset = ir.ZeroAddress
	data, err := EncodeInstallParams(p)
	require.NoError(t, err)

	got, err := DecodeInstallParams(data)
	require.NoError(t, err)
	assert.True(t, got.Asset.IsZero())
}
