package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/capsale/internal/ir"
	"github.com/roach88/capsale/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Emitter  string // optional - only events from this contract
	Name     string // optional - only events with this name
	Verify   bool   // recompute content-addressed ids
}

// TraceEvent is one stored event in the timeline.
type TraceEvent struct {
	ID      string    `json:"id"`
	TxID    string    `json:"tx_id"`
	Seq     int64     `json:"seq"`
	Height  uint64    `json:"height"`
	Emitter string    `json:"emitter"`
	Name    string    `json:"name"`
	Fields  ir.Object `json:"fields"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Timeline   []TraceEvent       `json:"timeline"`
	Mismatches []store.IDMismatch `json:"mismatches,omitempty"`
	Stats      TraceStats         `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents  int  `json:"total_events"`
	Transactions int  `json:"transactions"`
	Verified     bool `json:"verified"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "List stored events",
		Long: `List the events recorded in a capsale database in commit order.

With --verify every event's content-addressed id is recomputed and any
mismatch fails the command with exit code 1.

Examples:
  capsale trace --db ./runs.db
  capsale trace --db ./runs.db --emitter 0x1f... --name TokensPurchased
  capsale trace --db ./runs.db --verify --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Emitter, "emitter", "", "only events emitted by this address")
	cmd.Flags().StringVar(&opts.Name, "name", "", "only events with this name")
	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "recompute and check event ids")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	filter := store.EventFilter{Name: opts.Name}
	if opts.Emitter != "" {
		emitter, err := parseAddressFlag(formatter, "emitter", opts.Emitter)
		if err != nil {
			return err
		}
		filter.Emitter = emitter
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.ReadEvents(ctx, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := TraceResult{Timeline: buildTimeline(events)}
	result.Stats = TraceStats{
		TotalEvents:  len(events),
		Transactions: countTransactions(events),
	}

	if opts.Verify {
		mismatches, err := st.VerifyEvents(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to verify events", err)
		}
		result.Mismatches = mismatches
		result.Stats.Verified = len(mismatches) == 0
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		outputTraceText(formatter, result, opts.Verify)
	}

	if len(result.Mismatches) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d event(s) do not match their ids", len(result.Mismatches)))
	}
	return nil
}

// openExistingStore opens path, refusing to create a new database.
func openExistingStore(path string) (*store.Store, error) {
	if !fileExists(path) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func buildTimeline(events []ir.EventRecord) []TraceEvent {
	timeline := make([]TraceEvent, len(events))
	for i, ev := range events {
		timeline[i] = TraceEvent{
			ID:      ev.ID,
			TxID:    ev.TxID,
			Seq:     ev.Seq,
			Height:  ev.Height,
			Emitter: ev.Emitter.String(),
			Name:    ev.Name,
			Fields:  ev.Fields,
		}
	}
	return timeline
}

func countTransactions(events []ir.EventRecord) int {
	seen := make(map[string]struct{})
	for _, ev := range events {
		seen[ev.TxID] = struct{}{}
	}
	return len(seen)
}

func outputTraceText(formatter *OutputFormatter, result TraceResult, verify bool) {
	w := formatter.Writer
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No events found.")
	}
	for _, ev := range result.Timeline {
		fields, err := ir.MarshalCanonical(ev.Fields)
		if err != nil {
			fields = []byte(err.Error())
		}
		fmt.Fprintf(w, "%s #%d @%d  %s  %s %s\n", ev.TxID, ev.Seq, ev.Height, ev.Emitter, ev.Name, fields)
	}

	fmt.Fprintf(w, "\n%d event(s) in %d transaction(s)\n", result.Stats.TotalEvents, result.Stats.Transactions)
	if !verify {
		return
	}
	if result.Stats.Verified {
		fmt.Fprintln(w, "✓ All event ids verified")
		return
	}
	for _, m := range result.Mismatches {
		fmt.Fprintf(w, "✗ %s #%d: stored %s, computed %s\n", m.TxID, m.Seq, m.Stored, m.Computed)
	}
}
