package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/capsale/internal/ir"
	"github.com/roach88/capsale/internal/sale"
)

var (
	// ErrMissingAsset is returned when an uninstall payload carries no
	// asset helper, or the helper is the zero address.
	ErrMissingAsset = errors.New("uninstall payload: missing asset helper")

	// ErrMissingPlugin is returned when an uninstall payload names the
	// zero address as the plugin.
	ErrMissingPlugin = errors.New("uninstall payload: missing plugin")

	// ErrMissingDAO is returned when installation targets the zero address.
	ErrMissingDAO = errors.New("installation: dao is the zero address")
)

// ImplementationRef identifies the engine code the provisioner deploys.
// Hosts compare it across versions to decide upgrade compatibility.
type ImplementationRef struct {
	Name    string     `json:"name"`
	Version string     `json:"version"`
	Address ir.Address `json:"address"`
}

// Deployer allocates a fresh address for a new engine owned by dao.
type Deployer interface {
	Deploy(ctx context.Context, dao ir.Address, impl ImplementationRef) (ir.Address, error)
}

// Installation is the result of a successful PrepareInstallation.
// The host records Helpers and passes them back at uninstall time.
type Installation struct {
	Engine  *sale.Engine
	Helpers []ir.Address
	Grants  []ir.PermissionGrant
}

// UninstallPayload is what the host recorded at install time.
type UninstallPayload struct {
	Plugin  ir.Address   `json:"plugin"`
	Helpers []ir.Address `json:"helpers"`
}

// Provisioner deploys sale engines and computes their permission grants.
// It keeps no state between calls.
type Provisioner struct {
	deployer   Deployer
	env        sale.Env
	engineOpts []sale.Option
	logger     *slog.Logger
	impl       ImplementationRef
}

// ProvisionerOption configures a Provisioner.
type ProvisionerOption func(*Provisioner)

// WithEngineOptions passes opts to every engine the provisioner creates.
func WithEngineOptions(opts ...sale.Option) ProvisionerOption {
	return func(p *Provisioner) {
		p.engineOpts = append(p.engineOpts, opts...)
	}
}

// WithLogger sets the provisioner logger. Engines log through env.Logger.
func WithLogger(logger *slog.Logger) ProvisionerOption {
	return func(p *Provisioner) {
		p.logger = logger
	}
}

// NewProvisioner creates a provisioner that deploys through deployer and
// wires every new engine to env.
func NewProvisioner(deployer Deployer, env sale.Env, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		deployer: deployer,
		env:      env,
		logger:   slog.Default(),
		impl: ImplementationRef{
			Name:    ir.EngineName,
			Version: ir.EngineVersion,
			Address: ir.ImplementationAddress(ir.EngineName, ir.EngineVersion),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Implementation returns the engine implementation this provisioner deploys.
func (p *Provisioner) Implementation() ImplementationRef {
	return p.impl
}

// PrepareInstallation decodes encoded, deploys a new engine for dao and
// initializes it. Any error means nothing should be committed; the host
// discards the deployment along with the rest of the transaction.
func (p *Provisioner) PrepareInstallation(ctx context.Context, dao ir.Address, encoded []byte) (*Installation, error) {
	if dao.IsZero() {
		return nil, ErrMissingDAO
	}

	params, err := DecodeInstallParams(encoded)
	if err != nil {
		return nil, err
	}

	addr, err := p.deployer.Deploy(ctx, dao, p.impl)
	if err != nil {
		return nil, fmt.Errorf("deploy sale engine: %w", err)
	}

	engine, err := sale.New(addr, p.env, p.engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("construct sale engine: %w", err)
	}
	if err := engine.Initialize(ctx, dao, params.Asset, params.Rate, params.Cap, params.StartHeight, params.EndHeight); err != nil {
		return nil, err
	}

	grants := installGrants(dao, addr, params.Asset)
	p.logger.Info("sale installation prepared",
		"dao", dao.String(),
		"engine", addr.String(),
		"asset", params.Asset.String(),
		"grants", len(grants),
	)

	return &Installation{
		Engine:  engine,
		Helpers: []ir.Address{params.Asset},
		Grants:  grants,
	}, nil
}

// PrepareUninstallation returns the revokes that undo an installation.
// It depends only on payload and dao, never on engine state.
func (p *Provisioner) PrepareUninstallation(_ context.Context, dao ir.Address, payload UninstallPayload) ([]ir.PermissionGrant, error) {
	if len(payload.Helpers) == 0 || payload.Helpers[0].IsZero() {
		return nil, ErrMissingAsset
	}
	if payload.Plugin.IsZero() {
		return nil, ErrMissingPlugin
	}
	if dao.IsZero() {
		return nil, ErrMissingDAO
	}

	grants := installGrants(dao, payload.Plugin, payload.Helpers[0])
	revokes := make([]ir.PermissionGrant, len(grants))
	for i, g := range grants {
		revokes[i] = g.Inverse()
	}

	p.logger.Info("sale uninstallation prepared",
		"dao", dao.String(),
		"engine", payload.Plugin.String(),
		"asset", payload.Helpers[0].String(),
	)
	return revokes, nil
}

func installGrants(dao, engine, asset ir.Address) []ir.PermissionGrant {
	return []ir.PermissionGrant{
		{Op: ir.OpGrant, Where: asset, Who: engine, Capability: ir.MintCapability},
		{Op: ir.OpGrant, Where: engine, Who: dao, Capability: ir.ConfigureCapability},
	}
}
