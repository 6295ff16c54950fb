package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CageChen/fxv/internal/config"
	"github.com/CageChen/fxv/internal/handler"
	"github.com/CageChen/fxv/internal/watcher"
	"github.com/CageChen/fxv/internal/workspace"
)

const (
	serveUse              = "serve [directories...]"
	serveShortDescription = "serve the configured workspaces over HTTP"
	serveLongDescription  = `Ingest every configured workspace and serve directory fetches under /api/v1.
Directories given as arguments are served as additional local workspaces.`
	serveUsageExample = `  # Serve the configured workspaces on port 9000
  fxv serve --port 9000

  # Serve two directories with simulated latency
  fxv serve ./docs ./src --latency-min 50 --latency-max 200`

	portFlagName         = "port"
	watchFlagName        = "watch"
	latencyMinFlagName   = "latency-min"
	latencyMaxFlagName   = "latency-max"
	refreshDelayFlagName = "refresh-delay"

	shutdownTimeout = 5 * time.Second
)

type serveOptions struct {
	port         int
	watch        bool
	latencyMin   int
	latencyMax   int
	refreshDelay time.Duration
}

func newServeCommand(global *globalOptions) *cobra.Command {
	opts := &serveOptions{}

	command := &cobra.Command{
		Use:     serveUse,
		Short:   serveShortDescription,
		Long:    serveLongDescription,
		Example: serveUsageExample,
		RunE: func(command *cobra.Command, arguments []string) error {
			cfg, err := global.loadConfig(command)
			if err != nil {
				return err
			}
			if err := opts.apply(command, cfg, arguments); err != nil {
				return err
			}
			logger, err := global.logger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}

	opts.bind(command)
	return command
}

func (o *serveOptions) bind(command *cobra.Command) {
	flags := command.Flags()
	flags.IntVar(&o.port, portFlagName, 8080, "port to listen on")
	flags.BoolVar(&o.watch, watchFlagName, true, "watch local workspaces and refresh on change")
	flags.IntVar(&o.latencyMin, latencyMinFlagName, 0, "minimum simulated request latency in milliseconds")
	flags.IntVar(&o.latencyMax, latencyMaxFlagName, 0, "maximum simulated request latency in milliseconds")
	flags.DurationVar(&o.refreshDelay, refreshDelayFlagName, 300*time.Millisecond, "debounce delay between a change and the refresh")
}

// apply overrides file values with the flags that were set and adds the argument
// directories as workspaces.
func (o *serveOptions) apply(command *cobra.Command, cfg *config.Config, arguments []string) error {
	flags := command.Flags()
	if flags.Changed(portFlagName) {
		cfg.Port = o.port
	}
	if flags.Changed(watchFlagName) {
		cfg.Watch = o.watch
	}
	if flags.Changed(latencyMinFlagName) {
		cfg.LatencyMS.Min = o.latencyMin
	}
	if flags.Changed(latencyMaxFlagName) {
		cfg.LatencyMS.Max = o.latencyMax
	}
	if flags.Changed(refreshDelayFlagName) {
		cfg.RefreshDelay = o.refreshDelay
	}
	for _, dir := range arguments {
		if _, err := cfg.AddWorkspace(config.Workspace{Path: dir}); err != nil {
			return fmt.Errorf("adding %s: %w", dir, err)
		}
	}
	return cfg.Normalize()
}

// serve runs the HTTP service until ctx is done.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	minLatency, maxLatency := cfg.LatencyMS.Range()
	registry := workspace.NewRegistry(logger, cfg.RefreshDelay, workspace.WithLatency(minLatency, maxLatency))
	defer registry.Close()

	for _, ws := range cfg.Workspaces {
		if _, err := registry.Add(ws, workspace.WithExclude(cfg.ExcludeFor(ws))); err != nil {
			return err
		}
	}
	if err := registry.LoadAll(ctx); err != nil {
		return err
	}

	wsHandler := handler.NewWSHandler()
	registry.OnChange(wsHandler.OnTreeChanged)

	deps := handler.Deps{Config: cfg, Registry: registry, WS: wsHandler, Logger: logger}
	if cfg.Watch {
		w, err := startWatcher(cfg, registry, wsHandler, logger)
		if err != nil {
			logger.Warn("file watcher disabled", zap.Error(err))
		} else {
			defer func() { _ = w.Stop() }()
			deps.Watch = w
		}
	}

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("server starting",
		zap.String("addr", server.Addr),
		zap.String("config", cfg.GetConfigFilePath()),
		zap.Int("workspaces", len(cfg.Workspaces)),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func startWatcher(cfg *config.Config, registry *workspace.Registry, wsHandler *handler.WSHandler, logger *zap.Logger) (*watcher.Watcher, error) {
	w, err := watcher.New(logger)
	if err != nil {
		return nil, err
	}
	for _, s := range registry.List() {
		dir, ok := s.LocalDir()
		if !ok {
			continue
		}
		target := watcher.Target{Workspace: s.Name(), Dir: dir, Exclude: cfg.ExcludeFor(s.Source())}
		if err := w.Add(target); err != nil {
			logger.Warn("cannot watch workspace", zap.String("workspace", s.Name()), zap.Error(err))
		}
	}
	w.OnChange(func(e watcher.Event) {
		wsHandler.OnFileChange(e)
		registry.ScheduleRefresh(e.Workspace)
	})
	w.Start()
	logger.Info("file watcher enabled")
	return w, nil
}
