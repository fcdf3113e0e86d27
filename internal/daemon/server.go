package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mithrel/nettransport/internal/metrics"
	"github.com/mithrel/nettransport/internal/wire"
)

const shutdownTimeout = 5 * time.Second

// Run binds the app's transport with the echo protocol and serves the HTTP
// health and metrics endpoints until ctx is cancelled. The network is
// released before Run returns; connections already accepted keep running
// until their peers go away.
func Run(ctx context.Context, app *wire.App) error {
	port := uint16(app.Cfg.GetInt("listen_port"))
	if err := app.Transport.BindNetwork(port, Echo(app.Log.Named("echo"))); err != nil {
		return err
	}
	defer app.Transport.ReleaseNetwork()

	g, ctx := errgroup.WithContext(ctx)

	if addr := strings.TrimSpace(app.Cfg.GetString("http_addr")); addr != "" {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen http %s: %w", addr, err)
		}
		app.Log.Info("http listening", zap.String("addr", l.Addr().String()))
		g.Go(func() error { return Serve(ctx, l, Handler(app)) })
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	app.Log.Info("daemon started", zap.Uint16("port", app.Transport.BoundPort()))
	err := g.Wait()
	app.Log.Info("daemon stopped")
	return err
}

// Handler serves /healthz and /metrics for app.
func Handler(app *wire.App) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if app.Transport.BoundPort() == 0 {
			http.Error(w, "not bound", http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, "ok")
	})
	mux.Handle("/metrics", metrics.Handler(app.Registry))
	return mux
}

// Serve runs an HTTP server on l until ctx is done.
func Serve(ctx context.Context, l net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	if err := srv.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
