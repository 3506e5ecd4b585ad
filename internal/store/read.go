package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/capsale/internal/ir"
	"github.com/roach88/capsale/internal/sale"
)

// EventFilter narrows ReadEvents. Zero values match everything.
type EventFilter struct {
	Emitter ir.Address
	Name    string
}

// PermissionChange is a stored registry mutation.
type PermissionChange struct {
	TxID  string
	Seq   int64
	Grant ir.PermissionGrant
}

// ReadEvents returns stored events in commit order.
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadEvents(ctx context.Context, f EventFilter) ([]ir.EventRecord, error) {
	var where []string
	var args []any
	if !f.Emitter.IsZero() {
		where = append(where, "e.emitter = ?")
		args = append(args, f.Emitter.String())
	}
	if f.Name != "" {
		where = append(where, "e.name = ?")
		args = append(args, f.Name)
	}

	query := `
		SELECT e.id, e.tx_id, e.seq, e.height, e.emitter, e.name, e.fields
		FROM events e
		JOIN transactions t ON e.tx_id = t.id`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY t.commit_seq ASC, e.seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.EventRecord{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ReadEvent retrieves a single event by ID.
// Returns an error wrapping sql.ErrNoRows if not found.
func (s *Store) ReadEvent(ctx context.Context, id string) (ir.EventRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tx_id, seq, height, emitter, name, fields
		FROM events
		WHERE id = ?
	`, id)
	return scanEvent(row)
}

// ReadPermissionChanges returns every stored grant and revoke in commit order.
func (s *Store) ReadPermissionChanges(ctx context.Context) ([]PermissionChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.tx_id, p.seq, p.op, p.where_addr, p.who, p.capability
		FROM permission_changes p
		JOIN transactions t ON p.tx_id = t.id
		ORDER BY t.commit_seq ASC, p.seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query permission changes: %w", err)
	}
	defer rows.Close()

	changes := []PermissionChange{}
	for rows.Next() {
		var pc PermissionChange
		var op, where, who, capability string
		if err := rows.Scan(&pc.TxID, &pc.Seq, &op, &where, &who, &capability); err != nil {
			return nil, fmt.Errorf("scan permission change: %w", err)
		}
		if pc.Grant.Where, err = parseAddressColumn("where_addr", where); err != nil {
			return nil, err
		}
		if pc.Grant.Who, err = parseAddressColumn("who", who); err != nil {
			return nil, err
		}
		pc.Grant.Op = ir.Operation(op)
		pc.Grant.Capability = ir.Capability(capability)
		changes = append(changes, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permission changes: %w", err)
	}
	return changes, nil
}

// LatestSnapshot returns the most recent snapshot for engine, upgraded to
// the current version. Returns an error wrapping sql.ErrNoRows if none exists.
func (s *Store) LatestSnapshot(ctx context.Context, engine ir.Address) (sale.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT snapshot
		FROM engine_snapshots
		WHERE engine = ?
		ORDER BY id DESC
		LIMIT 1
	`, engine.String()).Scan(&data)
	if err != nil {
		return sale.Snapshot{}, fmt.Errorf("latest snapshot %s: %w", engine, err)
	}

	snap, err := sale.MigrateSnapshot([]byte(data))
	if err != nil {
		return sale.Snapshot{}, fmt.Errorf("latest snapshot %s: %w", engine, err)
	}
	return snap, nil
}

// ListEngines returns every engine with at least one stored snapshot,
// sorted by address.
func (s *Store) ListEngines(ctx context.Context) ([]ir.Address, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT engine
		FROM engine_snapshots
		ORDER BY engine COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list engines: %w", err)
	}
	defer rows.Close()

	engines := []ir.Address{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan engine: %w", err)
		}
		addr, err := parseAddressColumn("engine", raw)
		if err != nil {
			return nil, err
		}
		engines = append(engines, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate engines: %w", err)
	}
	return engines, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (ir.EventRecord, error) {
	var (
		ev              ir.EventRecord
		height          int64
		emitter, fields string
	)
	if err := row.Scan(&ev.ID, &ev.TxID, &ev.Seq, &height, &emitter, &ev.Name, &fields); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.EventRecord{}, fmt.Errorf("read event: %w", err)
		}
		return ir.EventRecord{}, fmt.Errorf("scan event: %w", err)
	}

	var err error
	ev.Height = uint64(height)
	if ev.Emitter, err = parseAddressColumn("emitter", emitter); err != nil {
		return ir.EventRecord{}, err
	}
	if ev.Fields, err = unmarshalFields(fields); err != nil {
		return ir.EventRecord{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	return ev, nil
}
