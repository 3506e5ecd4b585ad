package permission_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/capsale/internal/chain"
	"github.com/roach88/capsale/internal/ir"
	"github.com/roach88/capsale/internal/permission"
	"github.com/roach88/capsale/internal/sale"
)

var (
	dao   = ir.NamedAddress("dao")
	token = ir.NamedAddress("token")
	alice = ir.NamedAddress("alice")
)

type host struct {
	chain    *chain.Chain
	registry *permission.MemoryRegistry
	prov     *permission.Provisioner
}

func newHost(t *testing.T, opts ...permission.ProvisionerOption) *host {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := permission.NewMemoryRegistry(logger)
	c := chain.New(reg, chain.WithLogger(logger), chain.WithHeight(150))
	require.NoError(t, c.CreateAsset(token, "TOKEN"))
	opts = append([]permission.ProvisionerOption{permission.WithLogger(logger)}, opts...)
	return &host{
		chain:    c,
		registry: reg,
		prov:     permission.NewProvisioner(c, c.SaleEnv(logger), opts...),
	}
}

func encode(t *testing.T, p permission.InstallParams) []byte {
	t.Helper()
	data, err := permission.EncodeInstallParams(p)
	require.NoError(t, err)
	return data
}

func defaultParams() permission.InstallParams {
	return permission.InstallParams{
		Asset:       token,
		Rate:        big.NewInt(1000),
		Cap:         ir.MustParseAmount("10000000000000000000"),
		StartHeight: 100,
		EndHeight:   200,
	}
}

// install runs PrepareInstallation and applies its grants as one transaction.
func (h *host) install(t *testing.T, data []byte) (*permission.Installation, error) {
	t.Helper()
	var inst *permission.Installation
	_, err := h.chain.Execute(context.Background(), func(ctx context.Context) error {
		var err error
		inst, err = h.prov.PrepareInstallation(ctx, dao, data)
		if err != nil {
			return err
		}
		return h.chain.ApplyPermissions(ctx, inst.Grants)
	})
	return inst, err
}

func TestPrepareInstallation(t *testing.T) {
	h := newHost(t)
	inst, err := h.install(t, encode(t, defaultParams()))
	require.NoError(t, err)

	engine := inst.Engine.Address()
	assert.Equal(t, []ir.Address{token}, inst.Helpers)
	assert.Equal(t, []ir.PermissionGrant{
		{Op: ir.OpGrant, Where: token, Who: engine, Capability: ir.MintCapability},
		{Op: ir.OpGrant, Where: engine, Who: dao, Capability: ir.ConfigureCapability},
	}, inst.Grants)

	assert.True(t, inst.Engine.Initialized())
	assert.Equal(t, dao, inst.Engine.DAO())
	assert.Equal(t, token, inst.Engine.Asset())
	assert.Equal(t, big.NewInt(1000), inst.Engine.Rate())
	assert.Equal(t, uint64(100), inst.Engine.StartHeight())
	assert.Equal(t, uint64(200), inst.Engine.EndHeight())
	assert.False(t, inst.Engine.Paused())
	assert.Equal(t, 0, inst.Engine.Raised().Sign())

	impl, ok := h.chain.ContractAt(engine)
	require.True(t, ok)
	assert.Equal(t, h.prov.Implementation(), impl)
}

func TestPrepareInstallation_DistinctEngines(t *testing.T) {
	h := newHost(t)
	first, err := h.install(t, encode(t, defaultParams()))
	require.NoError(t, err)
	second, err := h.install(t, encode(t, defaultParams()))
	require.NoError(t, err)

	assert.NotEqual(t, first.Engine.Address(), second.Engine.Address())
}

func TestPrepareInstallation_Failures(t *testing.T) {
	tests := []struct {
		name   string
		params func(*permission.InstallParams)
		code   sale.ErrorCode
	}{
		{"zero asset", func(p *permission.InstallParams) { p.Asset = ir.ZeroAddress }, sale.CodeInvalidAsset},
		{"inverted window", func(p *permission.InstallParams) { p.StartHeight, p.EndHeight = 300, 200 }, sale.CodeInvalidTime},
		{"zero rate", func(p *permission.InstallParams) { p.Rate = new(big.Int) }, sale.CodeInvalidRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHost(t)
			p := defaultParams()
			tt.params(&p)

			_, err := h.install(t, encode(t, p))
			require.Error(t, err)
			assert.Equal(t, tt.code, sale.CodeOf(err))
			assert.Empty(t, h.registry.Grants())

			// The aborted deployment did not consume an address.
			ok, err := h.install(t, encode(t, defaultParams()))
			require.NoError(t, err)
			assert.Equal(t, ir.DeriveAddress(ir.NamedAddress("factory"), 0), ok.Engine.Address())
		})
	}
}

func TestPrepareInstallation_LiteralRatePolicy(t *testing.T) {
	h := newHost(t, permission.WithEngineOptions(sale.WithRatePolicy(sale.RejectPositiveRate)))

	_, err := h.install(t, encode(t, defaultParams()))
	require.ErrorIs(t, err, sale.ErrInvalidRate)

	p := defaultParams()
	p.Rate = new(big.Int)
	inst, err := h.install(t, encode(t, p))
	require.NoError(t, err)
	assert.Equal(t, 0, inst.Engine.Rate().Sign())
}

func TestPrepareInstallation_BadPayload(t *testing.T) {
	h := newHost(t)
	_, err := h.install(t, []byte(`{"asset":"0x00"}`))

	var de *permission.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Empty(t, h.registry.Grants())
}

func TestPrepareInstallation_ZeroDAO(t *testing.T) {
	h := newHost(t)
	_, err := h.prov.PrepareInstallation(context.Background(), ir.ZeroAddress, encode(t, defaultParams()))
	require.ErrorIs(t, err, permission.ErrMissingDAO)
}

func TestPrepareUninstallation(t *testing.T) {
	h := newHost(t)
	engine := ir.NamedAddress("engine")

	revokes, err := h.prov.PrepareUninstallation(context.Background(), dao, permission.UninstallPayload{
		Plugin:  engine,
		Helpers: []ir.Address{token},
	})
	require.NoError(t, err)
	assert.Equal(t, []ir.PermissionGrant{
		{Op: ir.OpRevoke, Where: token, Who: engine, Capability: ir.MintCapability},
		{Op: ir.OpRevoke, Where: engine, Who: dao, Capability: ir.ConfigureCapability},
	}, revokes)
}

func TestPrepareUninstallation_BadPayload(t *testing.T) {
	h := newHost(t)
	ctx := context.Background()
	engine := ir.NamedAddress("engine")

	tests := []struct {
		name    string
		payload permission.UninstallPayload
		want    error
	}{
		{"no helpers", permission.UninstallPayload{Plugin: engine}, permission.ErrMissingAsset},
		{"zero asset", permission.UninstallPayload{Plugin: engine, Helpers: []ir.Address{ir.ZeroAddress}}, permission.ErrMissingAsset},
		{"zero plugin", permission.UninstallPayload{Helpers: []ir.Address{token}}, permission.ErrMissingPlugin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.prov.PrepareUninstallation(ctx, dao, tt.payload)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUninstallMirrorsInstall(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	randomAddr := func() ir.Address {
		var a ir.Address
		rng.Read(a[:])
		a[0] |= 1
		return a
	}

	for i := 0; i < 50; i++ {
		h := newHost(t)
		d := randomAddr()
		p := defaultParams()
		p.Rate = big.NewInt(rng.Int63n(1<<40) + 1)
		p.StartHeight = uint64(rng.Int63n(1000))
		p.EndHeight = p.StartHeight + uint64(rng.Int63n(1000))

		inst, err := h.prov.PrepareInstallation(context.Background(), d, encode(t, p))
		require.NoError(t, err)
		revokes, err := h.prov.PrepareUninstallation(context.Background(), d, permission.UninstallPayload{
			Plugin:  inst.Engine.Address(),
			Helpers: inst.Helpers,
		})
		require.NoError(t, err)

		require.Len(t, revokes, len(inst.Grants))
		for j, g := range inst.Grants {
			assert.Equal(t, g.Inverse(), revokes[j])
		}
	}
}

func TestInstallUninstall_RevokesEverything(t *testing.T) {
	h := newHost(t)
	ctx := context.Background()
	require.NoError(t, h.chain.Fund(alice, ir.MustParseAmount("2000000000000000000")))

	inst, err := h.install(t, encode(t, defaultParams()))
	require.NoError(t, err)
	engine := inst.Engine

	_, _, err = h.chain.Buy(ctx, engine, alice, alice, big.NewInt(1))
	require.NoError(t, err)

	_, err = h.chain.Execute(ctx, func(ctx context.Context) error {
		revokes, err := h.prov.PrepareUninstallation(ctx, dao, permission.UninstallPayload{
			Plugin:  engine.Address(),
			Helpers: inst.Helpers,
		})
		if err != nil {
			return err
		}
		return h.chain.ApplyPermissions(ctx, revokes)
	})
	require.NoError(t, err)
	assert.Empty(t, h.registry.Grants())

	_, _, err = h.chain.Buy(ctx, engine, alice, alice, big.NewInt(1))
	var unauth *ir.UnauthorizedError
	require.True(t, errors.As(err, &unauth))
	assert.Equal(t, ir.MintCapability, unauth.Capability)

	err = engine.SetPaused(ctx, dao, true)
	require.True(t, errors.As(err, &unauth))
	assert.Equal(t, ir.ConfigureCapability, unauth.Capability)
}

func TestImplementation(t *testing.T) {
	h := newHost(t)
	impl := h.prov.Implementation()

	assert.Equal(t, ir.EngineName, impl.Name)
	assert.Equal(t, ir.EngineVersion, impl.Version)
	assert.Equal(t, ir.ImplementationAddress(ir.EngineName, ir.EngineVersion), impl.Address)
	assert.False(t, impl.Address.IsZero())
}
