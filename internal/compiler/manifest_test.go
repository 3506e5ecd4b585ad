package compiler

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/capsale/internal/ir"
	"github.com/roach88/capsale/internal/sale"
)

const genesisCUE = `
sale: genesis: {
	dao:    "0x00000000000000000000000000000000000000d0"
	asset:  "0x00000000000000000000000000000000000000a0"
	rate:   1000
	cap:    "10000000000000000000"
	window: {start: 100, end: 200}
}
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sale.cue")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCompileManifestBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(genesisCUE)
	require.NoError(t, v.Err())

	m, err := CompileManifest(v.LookupPath(cue.ParsePath("sale.genesis")))
	require.NoError(t, err)

	assert.Equal(t, "genesis", m.Name)
	assert.Equal(t, "0x00000000000000000000000000000000000000d0", m.DAO)
	assert.Equal(t, "0x00000000000000000000000000000000000000a0", m.Asset)
	assert.Equal(t, "1000", m.Rate)
	assert.Equal(t, "10000000000000000000", m.Cap)
	assert.Equal(t, uint64(100), m.StartHeight)
	assert.Equal(t, uint64(200), m.EndHeight)
	assert.Empty(t, m.RatePolicy)
}

func TestCompileManifestBigIntAmount(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		s: {
			asset:  "0x00000000000000000000000000000000000000a0"
			rate:   1
			cap:    115792089237316195423570985008687907853269984665640564039457584007913129639935
			window: {start: 0, end: 0}
		}
	`)
	require.NoError(t, v.Err())

	m, err := CompileManifest(v.LookupPath(cue.ParsePath("s")))
	require.NoError(t, err)
	assert.Equal(t, ir.MaxUint256.String(), m.Cap)
}

func TestCompileManifestMissingAsset(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		s: {
			rate:   1
			cap:    1
			window: {start: 0, end: 0}
		}
	`)

	_, err := CompileManifest(v.LookupPath(cue.ParsePath("s")))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "asset", ce.Field)
}

func TestCompileManifestMissingWindow(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		s: {
			asset: "0x00000000000000000000000000000000000000a0"
			rate:  1
			cap:   1
		}
	`)

	_, err := CompileManifest(v.LookupPath(cue.ParsePath("s")))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "window", ce.Field)
}

func TestCompileManifestWrongAmountKind(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		s: {
			asset:  "0x00000000000000000000000000000000000000a0"
			rate:   true
			cap:    1
			window: {start: 0, end: 0}
		}
	`)

	_, err := CompileManifest(v.LookupPath(cue.ParsePath("s")))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "rate", ce.Field)
}

func TestLoadManifests_File(t *testing.T) {
	path := writeManifest(t, genesisCUE+`
sale: early: {
	asset:       "0x00000000000000000000000000000000000000a1"
	rate:        "0"
	cap:         5
	rate_policy: "reject_positive"
	window: {start: 1, end: 2}
}
`)

	manifests, err := LoadManifests(path)
	require.NoError(t, err)
	require.Len(t, manifests, 2)
	assert.Equal(t, "early", manifests[0].Name)
	assert.Equal(t, "genesis", manifests[1].Name)
	assert.Equal(t, "reject_positive", manifests[0].RatePolicy)
}

func TestLoadManifests_SchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", `sale: s: {asset: "0x00000000000000000000000000000000000000a0", rate: 1, cap: 1, window: {start: 0, end: 0}, bonus: 5}`},
		{"negative rate", `sale: s: {asset: "0x00000000000000000000000000000000000000a0", rate: -1, cap: 1, window: {start: 0, end: 0}}`},
		{"missing window", `sale: s: {asset: "0x00000000000000000000000000000000000000a0", rate: 1, cap: 1}`},
		{"bad policy", `sale: s: {asset: "0x00000000000000000000000000000000000000a0", rate: 1, cap: 1, rate_policy: "yolo", window: {start: 0, end: 0}}`},
		{"syntax", `sale: s: {`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadManifests(writeManifest(t, tt.content))
			require.Error(t, err)
		})
	}
}

func TestLoadManifests_NoSales(t *testing.T) {
	_, err := LoadManifests(writeManifest(t, `other: 1`))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "sale", ce.Field)
}

func TestLoadManifests_MissingPath(t *testing.T) {
	_, err := LoadManifests(filepath.Join(t.TempDir(), "nope.cue"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadManifest_ByName(t *testing.T) {
	path := writeManifest(t, genesisCUE)

	m, err := LoadManifest(path, "")
	require.NoError(t, err)
	assert.Equal(t, "genesis", m.Name)

	m, err = LoadManifest(path, "genesis")
	require.NoError(t, err)
	assert.Equal(t, "genesis", m.Name)

	_, err = LoadManifest(path, "missing")
	require.Error(t, err)
}

func TestManifestInstallParams(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, genesisCUE), "genesis")
	require.NoError(t, err)

	p, err := m.InstallParams()
	require.NoError(t, err)
	assert.Equal(t, ir.MustParseAddress("0x00000000000000000000000000000000000000a0"), p.Asset)
	assert.Equal(t, big.NewInt(1000), p.Rate)
	assert.Equal(t, "10000000000000000000", p.Cap.String())
	assert.Equal(t, uint64(100), p.StartHeight)
	assert.Equal(t, uint64(200), p.EndHeight)

	dao, err := m.DAOAddress()
	require.NoError(t, err)
	assert.Equal(t, ir.MustParseAddress("0x00000000000000000000000000000000000000d0"), dao)
	assert.Empty(t, m.EngineOptions())
}

func TestManifestInstallParams_BadFields(t *testing.T) {
	m := &Manifest{Name: "x", Asset: "nope", Rate: "1", Cap: "1"}
	_, err := m.InstallParams()
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "asset", ce.Field)

	m = &Manifest{Name: "x", Asset: "0x00000000000000000000000000000000000000a0", Rate: "-1", Cap: "1"}
	_, err = m.InstallParams()
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "rate", ce.Field)
}

func TestManifestEngineOptions(t *testing.T) {
	m := &Manifest{RatePolicy: sale.RejectPositiveRate.String()}
	assert.Len(t, m.EngineOptions(), 1)
}
