package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/tableorder/internal/app"
	"github.com/roach88/tableorder/internal/config"
)

func (h *cliEnv) rootOptions() *RootOptions {
	return &RootOptions{
		Format:  "text",
		DataDir: h.dataDir,
		EnvFile: filepath.Join(h.dataDir, "none.env"),
		Store:   DefaultStore,
		AppOptions: []app.Option{
			app.WithClock(h.clock),
			app.WithIDs(h.ids),
			app.WithHashCost(bcrypt.MinCost),
		},
	}
}

func TestRunSweepsExpiredSessions(t *testing.T) {
	h := newCLIEnv(t)
	t.Setenv("TABLEORDER_SESSION_EXPIRY", "1h")

	require.Equal(t, ExitSuccess, h.run("table", "create", "1", "--password", "1234").code)
	require.Equal(t, ExitSuccess, h.run("session", "start", "1").code)
	h.clock.Advance(2 * time.Hour)

	ready := make(chan struct{})
	opts := &RunOptions{RootOptions: h.rootOptions(), Ready: ready}
	cmd := NewRunCommand(opts.RootOptions)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	cmd.SetContext(ctx)
	done := make(chan error, 1)
	go func() {
		done <- runLoop(opts, cmd)
	}()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not start")
	}
	assert.Contains(t, out.String(), "Maintenance loop started")

	assert.Eventually(t, func() bool {
		res := h.run("session", "show", "1")
		return res.code == ExitSuccess && strings.Contains(res.stdout, "no active session")
	}, 5*time.Second, 20*time.Millisecond, "the sweeper ends the expired session on its first pass")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}

	code, env := h.runJSON("history", "--table", "1")
	require.Equal(t, ExitSuccess, code)
	assert.JSONEq(t, "[]", string(env.Data), "a session without orders archives nothing")
}

func TestRunRejectsBadConfig(t *testing.T) {
	h := newCLIEnv(t)
	t.Setenv("TABLEORDER_SWEEP_INTERVAL", "0s")

	opts := &RunOptions{RootOptions: h.rootOptions()}
	cmd := NewRunCommand(opts.RootOptions)
	cmd.SetContext(context.Background())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := runLoop(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMetricsMux(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	a, err := app.New(cfg)
	require.NoError(t, err)
	defer a.Close()

	a.Bus.Publish("store001", "order_created", nil)

	srv := httptest.NewServer(metricsMux(a))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	resp404, err := srv.Client().Get(srv.URL + "/other")
	require.NoError(t, err)
	defer resp404.Body.Close()
	assert.Equal(t, 404, resp404.StatusCode)
}
