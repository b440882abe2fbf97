package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"nonocoop/pkg/config"
	"nonocoop/pkg/fabric"
	"nonocoop/pkg/fabric/memory"
	redisfabric "nonocoop/pkg/fabric/redis"
	"nonocoop/pkg/logger"
	"nonocoop/pkg/node"
	"nonocoop/pkg/session"
	"nonocoop/pkg/ui/watch"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// loadRuntime loads config, installs the default logger and fills in a
// random player id when none is configured.
func loadRuntime() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}

	if strings.TrimSpace(cfg.Player.ID) == "" {
		cfg.Player.ID = uuid.NewString()
	}

	appLogger = logger.ForPlayer(appLogger, cfg.Player.ID)
	slog.SetDefault(appLogger)
	return cfg, appLogger, nil
}

// openFabric connects the configured fabric driver.
func openFabric(ctx context.Context, cfg *config.Config, log *slog.Logger) (fabric.Fabric, error) {
	switch cfg.Fabric.Driver {
	case config.DriverMemory:
		log.Warn("Memory fabric only reaches players in this process")
		return memory.NewHub().Member(cfg.Player.ID), nil
	case config.DriverRedis:
		fab, err := redisfabric.New(ctx, redisfabric.Config{
			Addr:      cfg.Fabric.Redis.Addr,
			Password:  cfg.Fabric.Redis.Password,
			DB:        cfg.Fabric.Redis.DB,
			KeyPrefix: cfg.Fabric.Redis.KeyPrefix,
		}, cfg.Player.ID, log)
		if err != nil {
			return nil, fmt.Errorf("connect redis fabric: %w", err)
		}
		return fab, nil
	default:
		return nil, fmt.Errorf("unsupported fabric driver %q", cfg.Fabric.Driver)
	}
}

// startNode loads everything a host or join command needs.
func startNode(ctx context.Context) (*node.Service, *slog.Logger, error) {
	cfg, log, err := loadRuntime()
	if err != nil {
		return nil, nil, err
	}

	fab, err := openFabric(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	svc, err := node.NewService(cfg, fab, log)
	if err != nil {
		return nil, nil, multierr.Append(err, fab.Close())
	}
	return svc, log, nil
}

// playSession runs the node and a console or TUI front end until the player
// quits or ctx is done.
func playSession(ctx context.Context, svc *node.Service, desc session.Descriptor, useTUI bool, in io.Reader, out io.Writer) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()

	var err error
	if useTUI {
		events, unsubscribe := svc.Bus().Subscribe(runCtx, 128)
		err = watch.Run(runCtx, events, func(line string) error {
			return submitLine(svc.Bus(), line)
		}, watch.Info{
			Player:    svc.Sessions().PlayerID(),
			SessionID: desc.SessionID(),
			Role:      desc.Role().String(),
		}, func() string {
			return svc.Bridge().State().String()
		})
		unsubscribe()
	} else {
		err = runConsole(runCtx, in, out, svc.Bus())
	}

	cancel()
	return multierr.Append(err, <-done)
}
