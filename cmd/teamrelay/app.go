package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/teamrelay/commands"
	"github.com/c360studio/teamrelay/config"
	"github.com/c360studio/teamrelay/directory"
	"github.com/c360studio/teamrelay/metrics"
	"github.com/c360studio/teamrelay/policy"
	"github.com/c360studio/teamrelay/relay"
	"github.com/c360studio/teamrelay/storage"
	"github.com/c360studio/teamrelay/transport"
)

// App wires together all components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	embeddedServer *server.Server
	natsConn       *nats.Conn
	js             jetstream.JetStream

	dir     *directory.Directory
	relay   *relay.Relay
	inbound transport.Inbound
	watcher *directory.FileWatcher
}

// NewApp creates the application.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// Run starts everything and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.startNATS(); err != nil {
		return fmt.Errorf("start NATS: %w", err)
	}
	defer a.stopNATS()

	if err := a.wire(ctx); err != nil {
		return err
	}

	if a.cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, a.cfg.Metrics.Addr, a.logger); err != nil {
				a.logger.Error("metrics listener failed", slog.String("error", err.Error()))
			}
		}()
	}

	a.logger.Info("teamrelay ready",
		slog.String("version", Version),
		slog.String("roles_file", a.cfg.Relay.RolesFile))

	err := a.relay.Run(ctx, a.inbound)
	if err != nil && ctx.Err() != nil {
		err = nil // clean shutdown
	}

	if a.watcher != nil {
		_ = a.watcher.Stop()
	}
	return err
}

// wire builds the directory, stores, and relay on top of the NATS
// connection.
func (a *App) wire(ctx context.Context) error {
	dir, err := directory.LoadFile(a.cfg.Relay.RolesFile, a.logger)
	if err != nil {
		return fmt.Errorf("load role file: %w", err)
	}
	a.dir = dir

	if a.cfg.Relay.WatchRoles {
		watcher, err := directory.NewFileWatcher(dir, a.cfg.Relay.RolesFile, a.logger)
		if err != nil {
			return fmt.Errorf("create role watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start role watcher: %w", err)
		}
		a.watcher = watcher
	}

	pol, err := loadPolicy(a.cfg.Relay.PolicyFile)
	if err != nil {
		return err
	}

	handles, err := storage.NewKVHandles(ctx, a.js)
	if err != nil {
		return fmt.Errorf("open handle store: %w", err)
	}
	mutes, err := storage.NewKVMutes(ctx, a.js)
	if err != nil {
		return fmt.Errorf("open mute store: %w", err)
	}

	coordinators, err := parseCoordinators(a.cfg.Relay.Coordinators)
	if err != nil {
		return err
	}

	chat := transport.NewNATSChat(a.natsConn, a.logger)
	adminID := directory.Identity(a.cfg.Relay.AdminID)

	registry := commands.NewRegistry(commands.Deps{
		Dir:     dir,
		Handles: handles,
		Mutes:   mutes,
		AdminID: adminID,
		Save: func(d *directory.Directory) error {
			return directory.SaveFile(d, a.cfg.Relay.RolesFile)
		},
	})

	a.relay = relay.New(dir, pol, handles, mutes, chat, registry, relay.Options{
		AdminID:       adminID,
		Coordinators:  coordinators,
		AllowSelfSend: a.cfg.Relay.AllowSelfSend,
	}, a.logger)
	a.inbound = chat
	return nil
}

func loadPolicy(path string) (*policy.Policy, error) {
	if path == "" {
		return policy.Default(), nil
	}
	pol, err := policy.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load policy file: %w", err)
	}
	return pol, nil
}

func parseCoordinators(names []string) ([]directory.Role, error) {
	roles := make([]directory.Role, 0, len(names))
	for _, name := range names {
		role, err := directory.ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("relay.coordinators: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func (a *App) startNATS() error {
	if a.cfg.NATS.URL != "" && !a.cfg.NATS.Embedded {
		a.logger.Info("connecting to NATS", slog.String("url", a.cfg.NATS.URL))
		conn, err := nats.Connect(a.cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		a.natsConn = conn
	} else {
		a.logger.Info("starting embedded NATS server")
		opts := &server.Options{
			Port:      -1, // random available port
			JetStream: true,
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}
		go ns.Start()

		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return fmt.Errorf("embedded NATS server failed to start")
		}
		a.embeddedServer = ns

		conn, err := nats.Connect(ns.ClientURL())
		if err != nil {
			ns.Shutdown()
			return fmt.Errorf("connect to embedded NATS: %w", err)
		}
		a.natsConn = conn
	}

	js, err := jetstream.New(a.natsConn)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	a.js = js
	return nil
}

func (a *App) stopNATS() {
	if a.natsConn != nil {
		a.natsConn.Close()
	}
	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
	}
}
