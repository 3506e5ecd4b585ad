package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/capsale/internal/ir"
	"github.com/roach88/capsale/internal/sale"
	"github.com/roach88/capsale/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database string
	Engine   string // optional - defaults to every engine with a snapshot
}

// EngineStatus is an engine's last stored snapshot next to what the
// event log replays to.
type EngineStatus struct {
	Engine   string         `json:"engine"`
	Snapshot *sale.Snapshot `json:"snapshot,omitempty"`
	Replayed string         `json:"replayed_raised"`
	InSync   bool           `json:"in_sync"`
	Grants   []GrantView    `json:"grants"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored engine state",
		Long: `Show the last stored snapshot of a sale engine, the ledger replayed
from its stored purchases, and the capabilities that involve it.

in_sync is true when the snapshot's raised amount equals the replayed
ledger, i.e. no purchase was recorded after the snapshot was taken.

Examples:
  capsale status --db ./runs.db
  capsale status --db ./runs.db --engine 0x1f...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Engine, "engine", "", "engine address")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	var engines []ir.Address
	if opts.Engine != "" {
		engine, err := parseAddressFlag(formatter, "engine", opts.Engine)
		if err != nil {
			return err
		}
		engines = []ir.Address{engine}
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if engines == nil {
		if engines, err = st.ListEngines(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to list engines", err)
		}
	}

	grants, err := st.ReplayGrants(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay grants", err)
	}

	statuses := make([]EngineStatus, 0, len(engines))
	for _, engine := range engines {
		s, err := engineStatus(ctx, st, engine, grants)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("engine %s", engine), err)
		}
		statuses = append(statuses, s)
	}

	if opts.Format == "json" {
		return formatter.Success(statuses)
	}
	outputStatusText(formatter, statuses)
	return nil
}

func engineStatus(ctx context.Context, st *store.Store, engine ir.Address, grants []ir.PermissionGrant) (EngineStatus, error) {
	status := EngineStatus{Engine: engine.String(), Grants: []GrantView{}}

	snap, err := st.LatestSnapshot(ctx, engine)
	switch {
	case err == nil:
		status.Snapshot = &snap
	case !errors.Is(err, sql.ErrNoRows):
		return EngineStatus{}, err
	}

	replayed, err := st.ReplayRaised(ctx, engine)
	if err != nil {
		return EngineStatus{}, err
	}
	status.Replayed = replayed.String()
	status.InSync = status.Snapshot != nil && status.Snapshot.Raised == status.Replayed

	var involved []ir.PermissionGrant
	for _, g := range grants {
		if g.Where == engine || g.Who == engine {
			involved = append(involved, g)
		}
	}
	status.Grants = append(status.Grants, grantViews(involved)...)
	return status, nil
}

func outputStatusText(formatter *OutputFormatter, statuses []EngineStatus) {
	w := formatter.Writer
	if len(statuses) == 0 {
		fmt.Fprintln(w, "No engines found.")
		return
	}
	for i, s := range statuses {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Engine %s\n", s.Engine)
		if snap := s.Snapshot; snap != nil {
			fmt.Fprintf(w, "  dao:      %s\n", snap.DAO)
			fmt.Fprintf(w, "  asset:    %s\n", snap.Asset)
			fmt.Fprintf(w, "  rate:     %s\n", snap.Rate)
			fmt.Fprintf(w, "  cap:      %s\n", snap.Cap)
			fmt.Fprintf(w, "  window:   [%d, %d]\n", snap.StartHeight, snap.EndHeight)
			fmt.Fprintf(w, "  paused:   %t\n", snap.Paused)
			fmt.Fprintf(w, "  raised:   %s\n", snap.Raised)
		} else {
			fmt.Fprintln(w, "  no snapshot stored")
		}
		mark := "✓"
		if !s.InSync {
			mark = "✗"
		}
		fmt.Fprintf(w, "  replayed: %s %s\n", s.Replayed, mark)
		for _, g := range s.Grants {
			fmt.Fprintf(w, "  %s(%s, %s, %s)\n", g.Op, g.Where, g.Who, g.Capability)
		}
	}
}
