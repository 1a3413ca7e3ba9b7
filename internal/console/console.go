// Package console serves the JSON API behind the web console: service status,
// lifecycle actions, logs, connected clients and client config generation.
package console

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vpnconsole/vpnconsole/internal/clientcfg"
	"github.com/vpnconsole/vpnconsole/internal/logging"
	"github.com/vpnconsole/vpnconsole/internal/logs"
	"github.com/vpnconsole/vpnconsole/internal/metrics"
	"github.com/vpnconsole/vpnconsole/internal/scripts"
	"github.com/vpnconsole/vpnconsole/internal/service"
)

// DefaultUptimeTimeout bounds the uptime command.
const DefaultUptimeTimeout = 5 * time.Second

// ScriptRunner runs helper scripts and system commands.
type ScriptRunner interface {
	Run(ctx context.Context, name string, args ...string) scripts.Result
	Exec(ctx context.Context, bin string, args ...string) scripts.Result
}

// Options wires a Console to its components. Status, Actions, Logs and
// Scripts are required.
type Options struct {
	Status        *service.Aggregator
	Actions       *service.Dispatcher
	Logs          *logs.Aggregator
	Clients       *clientcfg.Generator
	Scripts       ScriptRunner
	StatusFile    string
	UptimeTimeout time.Duration
	Metrics       *metrics.Metrics // optional
	Logger        *log.Logger
	Version       string
}

// Console is the HTTP API server.
type Console struct {
	opts Options
	log  *log.Logger
	now  func() time.Time
}

// New returns a Console.
func New(opts Options) *Console {
	if opts.UptimeTimeout == 0 {
		opts.UptimeTimeout = DefaultUptimeTimeout
	}
	l := opts.Logger
	if l == nil {
		l = logging.Discard()
	}
	return &Console{opts: opts, log: l.With("component", "api"), now: time.Now}
}

// Handler returns the HTTP mux for the API, including /metrics when metrics
// are enabled.
func (c *Console) Handler() http.Handler {
	mux := http.NewServeMux()
	c.registerRoutes(mux)
	return mux
}

// Serve listens on addr and serves the API until ctx is cancelled.
func (c *Console) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	c.log.Info("listening", "addr", ln.Addr().String())
	return c.RunOnListener(ctx, ln)
}

// RunOnListener serves the API on listener and blocks until ctx is cancelled,
// then shuts down gracefully.
func (c *Console) RunOnListener(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		err := srv.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
	case err := <-done:
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = listener.Close()
	return <-done
}
