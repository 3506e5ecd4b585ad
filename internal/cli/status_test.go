package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/capsale/internal/ir"
)

func TestStatusAllEngines(t *testing.T) {
	db := recordRuns(t, "")

	out, err := execute(t, "--format", "json", "status", "--db", db)
	require.NoError(t, err)

	var statuses []EngineStatus
	resp := decodeResponse(t, out, &statuses)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, statuses)
	for _, s := range statuses {
		require.NotNil(t, s.Snapshot, "engine %s", s.Engine)
		assert.True(t, s.InSync, "engine %s", s.Engine)
	}
}

func TestStatusOneEngine(t *testing.T) {
	db := recordRuns(t, "happy_path")

	out, err := execute(t, "--format", "json", "status", "--db", db)
	require.NoError(t, err)
	var statuses []EngineStatus
	decodeResponse(t, out, &statuses)
	require.Len(t, statuses, 1)
	engine := statuses[0].Engine

	out, err = execute(t, "--format", "json", "status", "--db", db, "--engine", engine)
	require.NoError(t, err)
	decodeResponse(t, out, &statuses)
	require.Len(t, statuses, 1)

	s := statuses[0]
	require.NotNil(t, s.Snapshot)
	assert.Equal(t, "1000000000000000000", s.Snapshot.Raised)
	assert.Equal(t, "1000000000000000000", s.Replayed)
	assert.Equal(t, uint64(100), s.Snapshot.StartHeight)
	assert.Equal(t, uint64(200), s.Snapshot.EndHeight)
	assert.True(t, s.InSync)

	require.Len(t, s.Grants, 2)
	held := make(map[string]GrantView)
	for _, g := range s.Grants {
		held[g.Capability] = g
	}
	assert.Equal(t, engine, held[string(ir.MintCapability)].Who)
	assert.Equal(t, engine, held[string(ir.ConfigureCapability)].Where)
}

func TestStatusUnknownEngine(t *testing.T) {
	db := recordRuns(t, "happy_path")
	unknown := "0x00000000000000000000000000000000000000ee"

	out, err := execute(t, "--format", "json", "status", "--db", db, "--engine", unknown)
	require.NoError(t, err)

	var statuses []EngineStatus
	decodeResponse(t, out, &statuses)
	require.Len(t, statuses, 1)
	assert.Nil(t, statuses[0].Snapshot)
	assert.Equal(t, "0", statuses[0].Replayed)
	assert.False(t, statuses[0].InSync)
	assert.Empty(t, statuses[0].Grants)
}

func TestStatusText(t *testing.T) {
	db := recordRuns(t, "happy_path")

	out, err := execute(t, "status", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Engine 0x")
	assert.Contains(t, out, "raised:   1000000000000000000")
	assert.Contains(t, out, "replayed: 1000000000000000000 ✓")
	assert.Contains(t, out, "grant(")
}

func TestStatusMissingDatabase(t *testing.T) {
	_, err := execute(t, "status", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
