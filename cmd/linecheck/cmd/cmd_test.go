package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/corey/linecheck/internal/app"
	"github.com/corey/linecheck/internal/config"
	"github.com/corey/linecheck/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFlag, logLevelFlag, logFormatFlag = "", "", ""
	configJSON = false
	queryAddr, queryInsecure = "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigCommand_JSON(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "config.json",
		`{"port": 4000, "reread_on_query": true, "shutdown_grace": "2s"}`)

	out, err := run(t, "config", "--config", path, "--json")
	require.NoError(t, err)

	var view map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, float64(4000), view["port"])
	assert.Equal(t, "anchored", view["strategy"])
	assert.Equal(t, "2s", view["shutdown_grace"])
	assert.Equal(t, "exact", view["match"])
}

func TestConfigCommand_Text(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "config.json", `{"match": "substring"}`)

	out, err := run(t, "config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "127.0.0.1:12345")
	assert.Contains(t, out, "scan (match=substring")
	assert.Contains(t, out, "reread_on_query=false is ignored")
}

func TestConfigCommand_EnvPath(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "custom.json", `{"port": 4100}`)
	t.Setenv(config.EnvConfigPath, path)

	out, err := run(t, "config", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"port": 4100`)
}

func TestConfigCommand_InvalidConfig(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "config.json", `{"match": "fuzzy"}`)

	_, err := run(t, "config", "--config", path)
	var cfgErr *config.Error
	assert.ErrorAs(t, err, &cfgErr)
}

func TestQueryCommand(t *testing.T) {
	cfg := config.Default()
	cfg.Port = 0
	cfg.FilePath = testutil.WriteFile(t, t.TempDir(), "data.txt", "green apple\nbanana\n")
	a, err := app.New(t.Context(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.Start())
	t.Cleanup(func() { _ = a.Stop() })
	addr := a.Addr().String()

	out, err := run(t, "query", "--addr", addr, "--tls=false", "banana")
	require.NoError(t, err)
	assert.Equal(t, "STRING EXISTS\n", out)

	out, err = run(t, "query", "--addr", addr, "--tls=false", "green", "apple")
	require.NoError(t, err)
	assert.Equal(t, "STRING EXISTS\n", out, "arguments are joined with spaces")

	out, err = run(t, "query", "--addr", addr, "--tls=false", "pineapple")
	require.NoError(t, err)
	assert.Equal(t, "STRING NOT FOUND\n", out)
}

func TestQueryCommand_RequiresText(t *testing.T) {
	_, err := run(t, "query", "--addr", "127.0.0.1:1", "--tls=false")
	assert.Error(t, err)
}
