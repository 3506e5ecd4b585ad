package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
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

const genesisEncoded = `{"asset":"0x00000000000000000000000000000000000000a0","cap":"10000000000000000000","end_height":"200","rate":"1000","start_height":"100"}`

const scenariosDir = "../harness/testdata/scenarios"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeResponse parses a JSON CLI response, decoding Data into data.
func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output: %s", out)
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}

// recordRuns runs the shipped scenarios into a fresh database.
func recordRuns(t *testing.T, filter string) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "runs.db")
	args := []string{"test", scenariosDir, "--db", db}
	if filter != "" {
		args = append(args, "--filter", filter)
	}
	_, err := execute(t, args...)
	require.NoError(t, err)
	return db
}
