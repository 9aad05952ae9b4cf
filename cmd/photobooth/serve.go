package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/foreach/photobooth/internal/config"
	"github.com/foreach/photobooth/internal/control"
	"github.com/foreach/photobooth/internal/engine"
	"github.com/foreach/photobooth/internal/filter"
	"github.com/foreach/photobooth/internal/frame"
	"github.com/foreach/photobooth/internal/frontend"
	"github.com/foreach/photobooth/internal/logging"
	"github.com/foreach/photobooth/internal/mock"
	"github.com/foreach/photobooth/internal/session"
	"github.com/foreach/photobooth/internal/stats"
	"github.com/foreach/photobooth/internal/ws"
)

const statsBuffer = 256

type serveOptions struct {
	port     int
	mock     bool
	noWatch  bool
	envFiles []string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the booth: control listener, session engine and HTTP/websocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 0, "override server.port")
	cmd.Flags().BoolVar(&opts.mock, "mock", false, "drive the booth with scripted demo triggers")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "disable config file watching (SIGHUP still reloads)")
	cmd.Flags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")
	return cmd
}

// booth holds the wired components of a running booth.
type booth struct {
	cfg         *config.Config
	log         *slog.Logger
	source      *frame.Source
	health      *engine.CameraHealth
	queue       *control.Queue
	store       *session.Store
	engine      *engine.Engine
	listener    *control.Listener
	tracker     *stats.Tracker
	broadcaster *ws.Broadcaster
	server      *ws.Server

	// portOverride is the --port flag, reapplied to every reloaded config.
	portOverride int
}

func newCamera(c config.CameraConfig) (frame.Camera, error) {
	switch c.Source {
	case "static":
		cam, err := frame.LoadStaticCamera(c.StaticImage)
		if err != nil {
			return nil, err
		}
		return cam, nil
	default:
		return frame.NewPatternCamera(c.Width, c.Height), nil
	}
}

// newBooth wires every component from cfg. Nothing runs until start.
func newBooth(cfg *config.Config, logger *slog.Logger) (*booth, error) {
	cam, err := newCamera(cfg.Camera)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}

	b := &booth{cfg: cfg, log: logger}
	b.health = engine.NewCameraHealth(cfg.Camera.FailureThreshold)
	b.source = frame.NewSource(cam, b.health.RecordFailure)

	params := filter.Params{Gain: cfg.Filter.Gain, Exponent: cfg.Filter.Exponent}
	machine, err := session.NewMachine(session.SettingsFromConfig(cfg.Booth), params, b.source, filter.NewCPU(), logging.Component(logger, "session"))
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	b.queue = control.NewQueue(cfg.Control.QueueSize)
	b.store = session.NewStore()
	b.engine = engine.New(cfg, machine, b.source, b.queue, b.store, b.health, logging.Component(logger, "engine"))

	addr := net.JoinHostPort(cfg.Control.ListenHost, strconv.Itoa(cfg.Control.Port))
	b.listener = control.NewListener(addr, b.queue, control.ListenerOptions{
		AddressPrefix: cfg.Control.AddressPrefix,
		RateLimit:     cfg.Control.RateLimit,
		Burst:         cfg.Control.Burst,
	}, logging.Component(logger, "control"))

	if cfg.Status.Enabled {
		b.engine.SetStatus(control.NewStatusSender(cfg.Status.Host, cfg.Status.Port, logging.Component(logger, "status")))
	}

	var events chan<- session.Event
	b.tracker, events = stats.NewTracker(statsBuffer, logging.Component(logger, "stats"))
	b.engine.SetStatsEvents(events)

	b.broadcaster = ws.NewBroadcaster(b.store, cfg.Broadcast.Throttle, cfg.Broadcast.SnapshotInterval, cfg.Broadcast.MaxConnections)
	b.broadcaster.SetLogger(logging.Component(logger, "ws"))
	b.broadcaster.SetHealthHook(b.health.Snapshot)
	b.engine.SetBroadcaster(b.broadcaster)
	b.tracker.OnMilestone(func(completed int) {
		logger.Info("milestone reached", "completed", completed)
		b.broadcaster.PublishMilestone(completed)
	})

	b.server = ws.NewServer(cfg, b.store, b.broadcaster, b.queue, frontend.Handler(), logging.Component(logger, "http"))
	b.server.SetStatsTracker(b.tracker)
	b.server.SetHealthSource(b.health.Snapshot)
	return b, nil
}

// reload hands a new config to the engine. Keys that need a restart are
// logged and otherwise ignored.
func (b *booth) reload(next *config.Config) {
	if b.portOverride > 0 {
		next.Server.Port = b.portOverride
	}
	changed := b.cfg.Diff(next)
	if len(changed) == 0 {
		b.log.Debug("config unchanged")
		return
	}
	if config.RestartRequired(changed) {
		b.log.Warn("some config changes need a restart", "changed", changed)
	}
	b.cfg = next
	b.engine.SetConfig(next)
}

func runServe(ctx context.Context, opts serveOptions) error {
	if err := config.LoadDotEnv(opts.envFiles...); err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if opts.port > 0 {
		cfg.Server.Port = opts.port
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(logger)

	b, err := newBooth(cfg, logger)
	if err != nil {
		return err
	}
	b.portOverride = opts.port
	if err := b.listener.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { b.engine.Run(ctx); return nil })
	g.Go(func() error { b.tracker.Run(ctx); return nil })
	g.Go(func() error { return b.listener.Serve(ctx) })
	g.Go(func() error {
		defer b.broadcaster.Stop()
		return ws.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, b.server.Handler(), logging.Component(logger, "http"))
	})
	g.Go(func() error { return watchReload(ctx, b, opts.noWatch) })

	if opts.mock {
		logger.Info("starting in mock mode")
		mock.NewGenerator(b.queue, b.store, cfg.Mock, logging.Component(logger, "mock")).Start(ctx)
	}

	logger.Info("photobooth started",
		"http", net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		"osc", b.listener.Addr().String(),
		"camera", cfg.Camera.Source,
	)
	err = g.Wait()
	logger.Info("photobooth stopped")
	return err
}

// watchReload reloads the config file on SIGHUP and, unless disabled, on
// every change to the file.
func watchReload(ctx context.Context, b *booth, noWatch bool) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	updates := make(chan *config.Config, 1)
	if !noWatch {
		go func() {
			err := config.Watch(ctx, configPath, config.DefaultWatchDebounce, b.log, func(c *config.Config) {
				select {
				case updates <- c:
				case <-ctx.Done():
				}
			})
			if err != nil {
				b.log.Warn("config watch disabled", "error", err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			next, err := config.LoadOrDefault(configPath)
			if err != nil {
				b.log.Error("config reload rejected", "path", configPath, "error", err)
				continue
			}
			b.log.Info("reloading config", "trigger", "SIGHUP")
			b.reload(next)
		case next := <-updates:
			b.log.Info("reloading config", "trigger", "file change")
			b.reload(next)
		}
	}
}
