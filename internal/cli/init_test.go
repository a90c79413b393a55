package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expense/internal/log"
)

type fakeServer struct {
	listenErr   error
	shutdownErr error
	stopped     chan struct{}
	shutdowns   int
}

func newFakeServer() *fakeServer {
	return &fakeServer{stopped: make(chan struct{})}
}

func (s *fakeServer) ListenAndServe() error {
	if s.listenErr != nil {
		return s.listenErr
	}
	<-s.stopped
	return http.ErrServerClosed
}

func (s *fakeServer) Shutdown(context.Context) error {
	s.shutdowns++
	close(s.stopped)
	return s.shutdownErr
}

func discard() *log.Logger {
	return log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

func TestServe_StopsOnCancel(t *testing.T) {
	srv := newFakeServer()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, time.Second, discard()) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Equal(t, 1, srv.shutdowns)
}

func TestServe_ListenError(t *testing.T) {
	srv := newFakeServer()
	srv.listenErr = errors.New("address already in use")

	err := Serve(context.Background(), srv, time.Second, discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
	assert.Zero(t, srv.shutdowns)
}

func TestServe_ShutdownError(t *testing.T) {
	srv := newFakeServer()
	srv.shutdownErr = context.DeadlineExceeded
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Serve(ctx, srv, time.Millisecond, discard())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("EXPENSE_CLI_TEST_A=from-file\nEXPENSE_CLI_TEST_B=from-file\n"), 0o600))

	t.Setenv("EXPENSE_CLI_TEST_B", "from-env")
	t.Cleanup(func() { os.Unsetenv("EXPENSE_CLI_TEST_A") })

	require.NoError(t, LoadEnvFile(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("EXPENSE_CLI_TEST_A"))
	assert.Equal(t, "from-env", os.Getenv("EXPENSE_CLI_TEST_B"), "environment wins over the file")
}

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := SetupLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown")
	slog.Error("via default")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.True(t, strings.Contains(out, "via default"), "SetupLogger installs the default logger")
}

func TestLoadAndValidateConfig(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("AMQP_URL", "")
	cfg, err := LoadAndValidateConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Addr())

	t.Setenv("PORT", "not-a-port")
	_, err = LoadAndValidateConfig()
	assert.Error(t, err)
}
