package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const doorRules = `rules:
  - id: unlock_with_key
    requires: ['flag(player,"has_key")']
    effects: ['set_flag(door,"locked",false)']
    priority: 10
  - id: hallway_lockdown
    requires: ['location(player)=="hallway"']
    effects: ['set_flag(door,"locked",true)']
    priority: 5
`

const doorState = `{"entities":{"player":{"flags":{"has_key":true},"location":"hallway"},"door":{"flags":{"locked":true}}}}`

const keylessState = `{"entities":{"player":{"flags":{"has_key":false},"location":"hallway"},"door":{"flags":{"locked":true}}}}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// decodeData decodes a JSON CLIResponse and returns its data object.
func decodeData(t *testing.T, out string) map[string]any {
	t.Helper()
	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}
