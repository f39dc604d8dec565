package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/tableorder/internal/app"
	"github.com/roach88/tableorder/internal/testutil"
)

// cliEnv runs commands against one data directory with a shared
// deterministic clock and id sequence.
type cliEnv struct {
	t       *testing.T
	dataDir string
	clock   *testutil.Clock
	ids     *testutil.SequenceIDs
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Chdir(t.TempDir())
	return &cliEnv{
		t:       t,
		dataDir: t.TempDir(),
		clock:   testutil.NewClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)),
		ids:     testutil.NewSequenceIDs("id"),
	}
}

type result struct {
	code   int
	stdout string
	stderr string
}

func (h *cliEnv) run(args ...string) result {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--data-dir", h.dataDir, "--env-file", filepath.Join(h.dataDir, "none.env")}, args...)
	code := Execute(context.Background(), full, &stdout, &stderr,
		app.WithClock(h.clock),
		app.WithIDs(h.ids),
		app.WithHashCost(bcrypt.MinCost),
	)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// runJSON runs a command with --format json and decodes the envelope.
func (h *cliEnv) runJSON(args ...string) (int, envelope) {
	h.t.Helper()
	res := h.run(append([]string{"--format", "json"}, args...)...)
	var env envelope
	require.NoError(h.t, json.Unmarshal([]byte(res.stdout), &env), "stdout: %s\nstderr: %s", res.stdout, res.stderr)
	return res.code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "tableorder", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"seed"}, {"validate"},
		{"menu", "list"}, {"menu", "get"}, {"menu", "add"}, {"menu", "update"}, {"menu", "delete"},
		{"table", "create"}, {"table", "list"},
		{"session", "start"}, {"session", "end"}, {"session", "show"}, {"session", "expire"},
		{"order", "create"}, {"order", "get"}, {"order", "status"}, {"order", "delete"}, {"order", "list"},
		{"history"}, {"events"}, {"run"}, {"test"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	storeFlag := cmd.PersistentFlags().Lookup("store")
	require.NotNil(t, storeFlag)
	assert.Equal(t, DefaultStore, storeFlag.DefValue)

	for _, name := range []string{"config", "env-file", "data-dir"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestUsageErrors(t *testing.T) {
	h := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"invalid format", []string{"--format", "xml", "table", "list"}},
		{"bad table number", []string{"table", "create", "one", "--password", "1234"}},
		{"missing argument", []string{"session", "start"}},
		{"unknown flag", []string{"table", "list", "--colour"}},
		{"bad item", []string{"order", "create", "--table", "1", "--item", "m-1:two"}},
		{"bad date", []string{"history", "--table", "1", "--from", "yesterday"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.run(tt.args...)
			assert.Equal(t, ExitCommandError, res.code, "stderr: %s", res.stderr)
			assert.Contains(t, res.stderr, "Error [E002]")
		})
	}
}

func TestParseItem(t *testing.T) {
	item, err := parseItem("m-1:3")
	require.NoError(t, err)
	assert.Equal(t, "m-1", item.MenuID)
	assert.Equal(t, 3, item.Quantity)

	item, err = parseItem("m-2")
	require.NoError(t, err)
	assert.Equal(t, 1, item.Quantity)

	_, err = parseItem(":2")
	assert.Error(t, err)
}

func TestParseBound(t *testing.T) {
	b, err := parseBound("", false)
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = parseBound("2026-02-09", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 9, 23, 59, 59, 0, time.UTC), *b)

	b, err = parseBound("2026-02-09T10:00:00Z", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC), *b)
}
