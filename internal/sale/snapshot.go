package sale

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/roach88/capsale/internal/ir"
)

// ErrUnsupportedSnapshot is returned for snapshot versions this build cannot read.
var ErrUnsupportedSnapshot = errors.New("unsupported snapshot version")

// Snapshot is the persisted form of an engine. It carries an explicit
// Version; older versions are upgraded by MigrateSnapshot.
type Snapshot struct {
	Version     int        `json:"version"`
	Engine      ir.Address `json:"engine"`
	DAO         ir.Address `json:"dao"`
	Asset       ir.Address `json:"asset"`
	Rate        string     `json:"rate"`
	Cap         string     `json:"cap"`
	StartHeight uint64     `json:"start_height"`
	EndHeight   uint64     `json:"end_height"`
	Paused      bool       `json:"paused"`
	Raised      string     `json:"raised"`
}

// snapshotV1 stored the window as a single "start-end" string.
type snapshotV1 struct {
	Version int        `json:"version"`
	Engine  ir.Address `json:"engine"`
	DAO     ir.Address `json:"dao"`
	Asset   ir.Address `json:"asset"`
	Rate    string     `json:"rate"`
	Cap     string     `json:"cap"`
	Window  string     `json:"window"`
	Paused  bool       `json:"paused"`
	Raised  string     `json:"raised"`
}

// Snapshot captures the engine's current state at the current version.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Snapshot{
		Version:     ir.SnapshotVersion,
		Engine:      e.address,
		DAO:         e.dao,
		Asset:       e.asset,
		Rate:        ir.FormatAmount(e.cfg.Rate),
		Cap:         ir.FormatAmount(e.cfg.Cap),
		StartHeight: e.cfg.StartHeight,
		EndHeight:   e.cfg.EndHeight,
		Paused:      e.cfg.Paused,
		Raised:      ir.FormatAmount(e.raised),
	}
}

// MigrateSnapshot decodes a snapshot of any supported version and returns
// it at the current version.
func MigrateSnapshot(data []byte) (Snapshot, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}

	switch probe.Version {
	case 1:
		var old snapshotV1
		if err := decodeStrict(data, &old); err != nil {
			return Snapshot{}, fmt.Errorf("decode v1 snapshot: %w", err)
		}
		return migrateV1(old)
	case ir.SnapshotVersion:
		var snap Snapshot
		if err := decodeStrict(data, &snap); err != nil {
			return Snapshot{}, fmt.Errorf("decode v%d snapshot: %w", ir.SnapshotVersion, err)
		}
		return snap, nil
	}
	return Snapshot{}, fmt.Errorf("%w: %d", ErrUnsupportedSnapshot, probe.Version)
}

func migrateV1(old snapshotV1) (Snapshot, error) {
	startRaw, endRaw, ok := strings.Cut(old.Window, "-")
	if !ok {
		return Snapshot{}, fmt.Errorf("v1 snapshot: malformed window %q", old.Window)
	}
	start, err := strconv.ParseUint(startRaw, 10, 64)
	if err != nil {
		return Snapshot{}, fmt.Errorf("v1 snapshot: window start: %w", err)
	}
	end, err := strconv.ParseUint(endRaw, 10, 64)
	if err != nil {
		return Snapshot{}, fmt.Errorf("v1 snapshot: window end: %w", err)
	}

	return Snapshot{
		Version:     ir.SnapshotVersion,
		Engine:      old.Engine,
		DAO:         old.DAO,
		Asset:       old.Asset,
		Rate:        old.Rate,
		Cap:         old.Cap,
		StartHeight: start,
		EndHeight:   end,
		Paused:      old.Paused,
		Raised:      old.Raised,
	}, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Restore rebuilds an engine from a current-version snapshot. No events are
// emitted and Initialize is not re-run.
func Restore(snap Snapshot, env Env, opts ...Option) (*Engine, error) {
	if snap.Version != ir.SnapshotVersion {
		return nil, fmt.Errorf("%w: %d (migrate first)", ErrUnsupportedSnapshot, snap.Version)
	}

	amounts := make(map[string]*big.Int, 3)
	for name, raw := range map[string]string{"rate": snap.Rate, "cap": snap.Cap, "raised": snap.Raised} {
		n, err := ir.ParseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("restore snapshot: %s: %w", name, err)
		}
		amounts[name] = n
	}
	if amounts["raised"].Cmp(amounts["cap"]) > 0 {
		return nil, fmt.Errorf("restore snapshot: raised %s exceeds cap %s", amounts["raised"], amounts["cap"])
	}

	e, err := New(snap.Engine, env, opts...)
	if err != nil {
		return nil, err
	}
	e.dao = snap.DAO
	e.asset = snap.Asset
	e.cfg = Config{
		Rate:        amounts["rate"],
		Cap:         amounts["cap"],
		StartHeight: snap.StartHeight,
		EndHeight:   snap.EndHeight,
		Paused:      snap.Paused,
	}
	e.raised = amounts["raised"]
	return e, nil
}
