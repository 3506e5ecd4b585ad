package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/capsale/internal/chain"
	"github.com/roach88/capsale/internal/ir"
	"github.com/roach88/capsale/internal/sale"
)

var _ chain.Subscriber = (*Store)(nil)

// OnCommit persists every committed transaction. Register the store with
// chain.Subscribe to keep a durable log.
func (s *Store) OnCommit(ctx context.Context, receipt chain.Receipt) error {
	return s.WriteReceipt(ctx, receipt)
}

// WriteReceipt writes a committed transaction with its events and
// permission changes in one SQL transaction.
// Uses ON CONFLICT DO NOTHING for idempotency - rewriting the same
// receipt is a no-op.
func (s *Store) WriteReceipt(ctx context.Context, r chain.Receipt) error {
	height, err := heightToDB(r.Height)
	if err != nil {
		return fmt.Errorf("write receipt %s: %w", r.TxID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write receipt %s: begin: %w", r.TxID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, height)
		VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, r.TxID, height); err != nil {
		return fmt.Errorf("write receipt %s: %w", r.TxID, err)
	}

	for _, ev := range r.Events {
		if err := writeEvent(ctx, tx, ev); err != nil {
			return fmt.Errorf("write receipt %s: %w", r.TxID, err)
		}
	}

	for i, g := range r.Permissions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO permission_changes (tx_id, seq, op, where_addr, who, capability)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, r.TxID, i+1, string(g.Op), g.Where.String(), g.Who.String(), string(g.Capability)); err != nil {
			return fmt.Errorf("write receipt %s: permission %d: %w", r.TxID, i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write receipt %s: commit: %w", r.TxID, err)
	}
	return nil
}

func writeEvent(ctx context.Context, tx *sql.Tx, ev ir.EventRecord) error {
	fields, err := marshalFields(ev.Fields)
	if err != nil {
		return fmt.Errorf("event %s: %w", ev.ID, err)
	}
	height, err := heightToDB(ev.Height)
	if err != nil {
		return fmt.Errorf("event %s: %w", ev.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, tx_id, seq, height, emitter, name, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ev.ID, ev.TxID, ev.Seq, height, ev.Emitter.String(), ev.Name, fields)
	if err != nil {
		return fmt.Errorf("event %s: %w", ev.ID, err)
	}
	return nil
}

// SaveSnapshot appends snap for its engine at height. The latest row per
// engine wins on read.
func (s *Store) SaveSnapshot(ctx context.Context, snap sale.Snapshot, height uint64) error {
	h, err := heightToDB(height)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO engine_snapshots (engine, height, version, snapshot)
		VALUES (?, ?, ?, ?)
	`, snap.Engine.String(), h, snap.Version, string(data))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
