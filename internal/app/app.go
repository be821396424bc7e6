// Package app wires together the listener, the search strategy, and the
// optional target watcher and status endpoint.
// It provides lifecycle management for the server: create, run, stop.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/corey/linecheck/internal/adapters/bbolt"
	fsw "github.com/corey/linecheck/internal/adapters/fsnotify"
	"github.com/corey/linecheck/internal/adapters/tcp"
	"github.com/corey/linecheck/internal/adapters/web"
	"github.com/corey/linecheck/internal/config"
	"github.com/corey/linecheck/internal/domain/search"
	"github.com/corey/linecheck/internal/logging"
	"github.com/corey/linecheck/internal/ports"
)

// App is the top-level container wiring all components together.
type App struct {
	Config    *config.Config
	Target    ports.Target
	Strategy  ports.Strategy
	Server    *tcp.Server
	Metrics   *Stats
	Watcher   ports.Watcher // nil unless watch_target applies
	WebServer *web.Server   // nil unless status_port is set

	resolution Resolution
	tls        bool
	log        *slog.Logger

	ctx      context.Context // cancelled by Stop; bounds reloads
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopErr  error
}

// New creates an App with all dependencies wired. Does not start services.
// Snapshot strategies load the target here, so a large file delays New.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	log := logging.OrDiscard(logger)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := ResolveKind(cfg.Match, cfg.RereadOnQuery)
	if err != nil {
		return nil, err
	}
	if res.FlagIgnored {
		log.Warn("reread_on_query=false ignored, this match mode always reads the file fresh",
			"match", cfg.Match, "strategy", string(res.Kind))
	}

	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("tls: %w", err)
	}

	target := ports.Target{Path: cfg.FilePath, RereadOnQuery: cfg.RereadOnQuery}
	checkTarget(target.Path, log)

	strategy, err := newStrategy(ctx, res.Kind, target, cfg.ResolvedIndexPath(), log)
	if err != nil {
		return nil, fmt.Errorf("build %s strategy: %w", res.Kind, err)
	}
	log.Info("strategy selected",
		"strategy", string(res.Kind),
		"match", cfg.Match,
		"reread_on_query", cfg.RereadOnQuery,
		"target", target.Path)

	a := &App{
		Config:     cfg,
		Target:     target,
		Strategy:   strategy,
		Metrics:    NewStats(),
		resolution: res,
		tls:        tlsCfg != nil,
		log:        log,
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	_, reloadable := strategy.(ports.Reloader)
	if reloadable {
		a.Metrics.Loaded(time.Now(), false)
	}

	handler := tcp.NewHandler(strategy, tcp.HandlerConfig{
		MaxPayload:  cfg.MaxPayload,
		ReadTimeout: cfg.ReadTimeout,
	}, log)
	handler.SetObserver(a.Metrics.Observe)

	a.Server = tcp.NewServer(tcp.ServerConfig{
		Addr:           cfg.Addr(),
		TLS:            tlsCfg,
		PollInterval:   cfg.PollInterval,
		MaxConnections: cfg.MaxConnections,
		ShutdownGrace:  cfg.ShutdownGrace,
	}, handler, log)

	if cfg.WatchTarget {
		if reloadable {
			w, err := fsw.NewWatcher(0, log)
			if err != nil {
				a.closeStrategy()
				return nil, fmt.Errorf("create watcher: %w", err)
			}
			a.Watcher = w
		} else {
			log.Info("watch_target ignored, strategy already reads the file fresh", "strategy", string(res.Kind))
		}
	}

	if addr := cfg.StatusAddr(); addr != "" {
		a.WebServer = web.NewServer(a, log)
	}
	return a, nil
}

// checkTarget warns about targets that will answer every query with a miss.
func checkTarget(path string, log *slog.Logger) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn("target file does not exist, queries will not match until it appears", "target", path)
	case err != nil:
		log.Warn("target file not accessible", "target", path, "err", err)
	case info.IsDir():
		log.Warn("target is a directory", "target", path)
	case info.Size() == 0:
		log.Warn("target file is empty", "target", path)
	}
}

// Start begins the listener, then the optional watcher and status endpoint.
// Only a listener failure is fatal.
func (a *App) Start() error {
	if err := a.Server.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if a.Watcher != nil {
		if err := a.Watcher.Watch(a.Target.Path, a.onTargetChanged); err != nil {
			a.log.Warn("target watcher unavailable", "err", err)
		}
	}
	if a.WebServer != nil {
		if err := a.WebServer.Start(a.Config.StatusAddr()); err != nil {
			a.log.Warn("status endpoint unavailable", "err", err)
		}
	}
	return nil
}

// Run starts the app and blocks until ctx is cancelled or the listener
// fails, then stops everything.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		_ = a.Stop()
		return err
	}

	select {
	case <-ctx.Done():
		a.log.Info("shutdown requested")
	case <-a.Server.Done():
	}

	stopErr := a.Stop()
	if err := a.Server.Err(); err != nil {
		return fmt.Errorf("listener failed: %w", err)
	}
	return stopErr
}

// Stop shuts down all services and releases the strategy. Idempotent.
func (a *App) Stop() error {
	a.stopOnce.Do(func() {
		a.cancel()
		if a.Watcher != nil {
			if err := a.Watcher.Stop(); err != nil {
				a.log.Warn("stop watcher", "err", err)
			}
		}
		if a.WebServer != nil {
			a.WebServer.Stop()
		}
		if err := a.Server.Stop(); err != nil {
			a.stopErr = fmt.Errorf("stop server: %w", err)
		}
		a.closeStrategy()
		a.log.Info("stopped")
	})
	return a.stopErr
}

// Addr returns the listener's bound address, or nil before Start.
func (a *App) Addr() net.Addr {
	return a.Server.Addr()
}

// Kind returns the resolved strategy kind.
func (a *App) Kind() ports.Kind {
	return a.resolution.Kind
}

func (a *App) closeStrategy() {
	if c, ok := a.Strategy.(ports.Closer); ok {
		if err := c.Close(); err != nil {
			a.log.Warn("close strategy", "err", err)
		}
	}
}

// onTargetChanged reloads a snapshot strategy after the target changed on
// disk. On failure the previous snapshot keeps serving.
func (a *App) onTargetChanged(path string) {
	r, ok := a.Strategy.(ports.Reloader)
	if !ok {
		return
	}
	start := time.Now()
	if err := r.Reload(a.ctx); err != nil {
		a.log.Error("reload failed, keeping previous snapshot", "target", path, "err", err)
		return
	}
	a.Metrics.Loaded(time.Now(), true)
	a.log.Info("target reloaded", "target", path, "elapsed", time.Since(start).Round(time.Microsecond).String())
}

// Health implements web.StatusSource.
func (a *App) Health() web.HealthResult {
	uptime := ""
	if started := a.Server.Started(); !started.IsZero() {
		uptime = time.Since(started).Round(time.Second).String()
	}
	res := web.HealthResult{
		Status:   "ok",
		Strategy: string(a.resolution.Kind),
		Target:   a.Target.Path,
		TLS:      a.tls,
		Uptime:   uptime,
	}
	switch s := a.Strategy.(type) {
	case *search.Snapshot:
		res.Lines = s.Len()
	case *bbolt.Index:
		res.Lines = int(s.LineCount())
	}
	return res
}

// Stats implements web.StatusSource.
func (a *App) Stats() web.StatsResult {
	snap := a.Metrics.Snapshot()
	res := web.StatsResult{
		Accepted:  a.Server.Accepted(),
		Active:    a.Server.Active(),
		Handled:   snap.Handled,
		Responses: snap.Responses,
		AvgMicros: snap.Avg.Microseconds(),
		P50Micros: snap.P50.Microseconds(),
		MaxMicros: snap.Max.Microseconds(),
		Reloads:   snap.Reloads,
	}
	if !snap.LastLoad.IsZero() {
		res.LastLoad = snap.LastLoad.Format(time.RFC3339)
	}
	return res
}
