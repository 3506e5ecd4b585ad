package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/capsale/internal/chain"
	"github.com/roach88/capsale/internal/compiler"
	"github.com/roach88/capsale/internal/harness"
	"github.com/roach88/capsale/internal/ir"
	"github.com/roach88/capsale/internal/permission"
	"github.com/roach88/capsale/internal/sale"
)

// PlanOptions holds flags for the plan subcommands.
type PlanOptions struct {
	*RootOptions
	DAO    string
	Sale   string
	Height uint64
	Engine string
	Asset  string
}

// GrantView is a permission change with hex addresses.
type GrantView struct {
	Op         string `json:"op"`
	Where      string `json:"where"`
	Who        string `json:"who"`
	Capability string `json:"capability"`
}

// InstallPlan is what installing a sale would do.
type InstallPlan struct {
	Sale           string                       `json:"sale"`
	DAO            string                       `json:"dao"`
	Engine         string                       `json:"engine"`
	Implementation permission.ImplementationRef `json:"implementation"`
	Helpers        []string                     `json:"helpers"`
	Grants         []GrantView                  `json:"grants"`
	Encoded        string                       `json:"encoded"`
}

// UninstallPlan is what uninstalling a sale would do.
type UninstallPlan struct {
	DAO     string      `json:"dao"`
	Engine  string      `json:"engine"`
	Revokes []GrantView `json:"revokes"`
}

// NewPlanCommand creates the plan command and its subcommands.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview installation or uninstallation of a sale",
		Long: `Preview what the permission provisioner would do.

Plans run against a scratch chain; nothing is stored and no grant is
applied.`,
	}

	cmd.AddCommand(newPlanInstallCommand(&PlanOptions{RootOptions: rootOpts}))
	cmd.AddCommand(newPlanUninstallCommand(&PlanOptions{RootOptions: rootOpts}))

	return cmd
}

func newPlanInstallCommand(opts *PlanOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <manifest>",
		Short: "Show the engine and grants an installation would produce",
		Long: `Compile a sale manifest and run the installation on a scratch chain.

The DAO comes from --dao, or from the manifest's dao field.

Examples:
  capsale plan install ./sales/genesis.cue --dao 0x5aeda56215b167893e80b4fe645ba6d5bab767de
  capsale plan install ./sales --sale genesis --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlanInstall(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DAO, "dao", "", "DAO address (defaults to the manifest's dao)")
	cmd.Flags().StringVar(&opts.Sale, "sale", "", "sale name when the manifest declares several")
	cmd.Flags().Uint64Var(&opts.Height, "height", 0, "block height of the scratch chain")

	return cmd
}

func newPlanUninstallCommand(opts *PlanOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Show the revokes an uninstallation would produce",
		Long: `Compute the permission revokes that undo an installation.

The result depends only on the addresses given, never on engine state.

Examples:
  capsale plan uninstall --dao 0x5a... --engine 0x1f... --asset 0x9c...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlanUninstall(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DAO, "dao", "", "DAO address (required)")
	cmd.Flags().StringVar(&opts.Engine, "engine", "", "installed engine address (required)")
	cmd.Flags().StringVar(&opts.Asset, "asset", "", "asset address (required)")
	_ = cmd.MarkFlagRequired("dao")
	_ = cmd.MarkFlagRequired("engine")
	_ = cmd.MarkFlagRequired("asset")

	return cmd
}

// scratchProvisioner returns a provisioner deploying onto a fresh chain.
func scratchProvisioner(logger *slog.Logger, height uint64, engineOpts []sale.Option) (*chain.Chain, *permission.Provisioner) {
	c := chain.New(permission.NewMemoryRegistry(logger),
		chain.WithLogger(logger),
		chain.WithHeight(height),
	)
	prov := permission.NewProvisioner(c, c.SaleEnv(logger),
		permission.WithEngineOptions(engineOpts...),
		permission.WithLogger(logger),
	)
	return c, prov
}

func runPlanInstall(opts *PlanOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := context.Background()

	m, err := loadOneManifest(formatter, path, opts.Sale)
	if err != nil {
		return err
	}
	if verrs := validateManifests(formatter, []compiler.Manifest{*m}); len(verrs) > 0 {
		return outputValidationErrors(formatter, verrs)
	}

	dao, err := m.DAOAddress()
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeBuildFailed, err.Error(), nil)
	}
	if opts.DAO != "" {
		if dao, err = parseAddressFlag(formatter, "dao", opts.DAO); err != nil {
			return err
		}
	}

	compiled, err := compileSale(m)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeBuildFailed, err.Error(), nil)
	}

	c, prov := scratchProvisioner(opts.Logger(cmd.ErrOrStderr()), opts.Height, m.EngineOptions())
	var inst *permission.Installation
	_, err = c.Execute(ctx, func(ctx context.Context) error {
		var err error
		inst, err = prov.PrepareInstallation(ctx, dao, []byte(compiled.Encoded))
		return err
	})
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeInstall, err.Error(), map[string]string{"code": harness.ErrorCode(err)})
	}

	plan := InstallPlan{
		Sale:           m.Name,
		DAO:            dao.String(),
		Engine:         inst.Engine.Address().String(),
		Implementation: prov.Implementation(),
		Helpers:        addressStrings(inst.Helpers),
		Grants:         grantViews(inst.Grants),
		Encoded:        compiled.Encoded,
	}

	if formatter.Format == "json" {
		return formatter.Success(plan)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Install plan for %s\n\n", plan.Sale)
	fmt.Fprintf(w, "  dao:            %s\n", plan.DAO)
	fmt.Fprintf(w, "  engine:         %s\n", plan.Engine)
	fmt.Fprintf(w, "  implementation: %s@%s (%s)\n", plan.Implementation.Name, plan.Implementation.Version, plan.Implementation.Address)
	fmt.Fprintf(w, "  helpers:        %v\n", plan.Helpers)
	fmt.Fprintln(w, "\nGrants:")
	for _, g := range inst.Grants {
		fmt.Fprintf(w, "  %s\n", g)
	}
	return nil
}

func runPlanUninstall(opts *PlanOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	dao, err := parseAddressFlag(formatter, "dao", opts.DAO)
	if err != nil {
		return err
	}
	engine, err := parseAddressFlag(formatter, "engine", opts.Engine)
	if err != nil {
		return err
	}
	asset, err := parseAddressFlag(formatter, "asset", opts.Asset)
	if err != nil {
		return err
	}

	_, prov := scratchProvisioner(opts.Logger(cmd.ErrOrStderr()), 0, nil)
	revokes, err := prov.PrepareUninstallation(context.Background(), dao, permission.UninstallPayload{
		Plugin:  engine,
		Helpers: []ir.Address{asset},
	})
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeUninstall, err.Error(), map[string]string{"code": harness.ErrorCode(err)})
	}

	plan := UninstallPlan{
		DAO:     dao.String(),
		Engine:  engine.String(),
		Revokes: grantViews(revokes),
	}
	if formatter.Format == "json" {
		return formatter.Success(plan)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Uninstall plan for engine %s\n\nRevokes:\n", plan.Engine)
	for _, g := range revokes {
		fmt.Fprintf(w, "  %s\n", g)
	}
	return nil
}

func grantViews(grants []ir.PermissionGrant) []GrantView {
	views := make([]GrantView, len(grants))
	for i, g := range grants {
		views[i] = GrantView{
			Op:         string(g.Op),
			Where:      g.Where.String(),
			Who:        g.Who.String(),
			Capability: string(g.Capability),
		}
	}
	return views
}

func addressStrings(addrs []ir.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
