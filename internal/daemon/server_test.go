package daemon

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mithrel/nettransport/internal/config"
	"github.com/mithrel/nettransport/internal/endpoint"
	"github.com/mithrel/nettransport/internal/wire"
)

const loopback = 0x7F000001

func newTestApp(t *testing.T) *wire.App {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)

	v := viper.New()
	require.NoError(t, config.Load(context.Background(), v))
	v.Set("listen_port", 0)
	v.Set("http_addr", "")
	v.Set("log.level", "silent")

	app, err := wire.BuildApp(context.Background(), v)
	require.NoError(t, err)
	return app
}

// startDaemon runs Run in the background and returns the bound port along
// with a stop function that waits for Run to return.
func startDaemon(t *testing.T, app *wire.App) (uint16, func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, app) }()

	require.Eventually(t, func() bool { return app.Transport.BoundPort() != 0 },
		time.Second, 5*time.Millisecond, "daemon did not bind")

	stopped := false
	stop := func() error {
		if stopped {
			return nil
		}
		stopped = true
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("daemon did not stop")
			return nil
		}
	}
	t.Cleanup(func() { _ = stop() })
	return app.Transport.BoundPort(), stop
}

type peer struct {
	mu       sync.Mutex
	received bytes.Buffer
	closed   chan bool
}

func connectPeer(t *testing.T, port uint16) (*endpoint.Connection, *peer) {
	t.Helper()
	p := &peer{closed: make(chan bool, 1)}
	conn := endpoint.NewConnection()
	require.NoError(t, conn.Connect(loopback, port))
	require.NoError(t, conn.Process(func(data []byte) {
		p.mu.Lock()
		p.received.Write(data)
		p.mu.Unlock()
	}, func(graceful bool) { p.closed <- graceful }))
	t.Cleanup(func() { conn.Close(false) })
	return conn, p
}

func (p *peer) waitFor(t *testing.T, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.received.String() == want
	}, time.Second, 5*time.Millisecond)
}

func TestRunEchoesAndQuits(t *testing.T) {
	app := newTestApp(t)
	port, _ := startDaemon(t, app)

	conn, p := connectPeer(t, port)
	conn.SendMessage([]byte("hello\n"))
	p.waitFor(t, "hello\n")

	conn.SendMessage([]byte("quit\n"))
	select {
	case graceful := <-p.closed:
		assert.True(t, graceful)
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not close the connection")
	}
	p.waitFor(t, "hello\nquit\n")
}

func TestRunReleasesNetworkOnCancel(t *testing.T) {
	app := newTestApp(t)
	port, stop := startDaemon(t, app)

	require.NoError(t, stop())
	assert.Zero(t, app.Transport.BoundPort())

	client := endpoint.NewConnection(endpoint.WithDialTimeout(time.Second))
	assert.Error(t, client.Connect(loopback, port))
}

func TestRunFailsWhenPortTaken(t *testing.T) {
	first := newTestApp(t)
	port, _ := startDaemon(t, first)

	second := newTestApp(t)
	second.Cfg.Set("listen_port", int(port))
	assert.Error(t, Run(context.Background(), second))
}

func TestHandlerHealthz(t *testing.T) {
	app := newTestApp(t)
	h := Handler(app)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	startDaemon(t, app)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHandlerMetrics(t *testing.T) {
	app := newTestApp(t)
	port, _ := startDaemon(t, app)
	conn, p := connectPeer(t, port)
	conn.SendMessage([]byte("ping"))
	p.waitFor(t, "ping")

	srv := httptest.NewServer(Handler(app))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "nettransport_connections_accepted_total 1")
	assert.Contains(t, string(body), "nettransport_bytes_sent_total 4")
}
