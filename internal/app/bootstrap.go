package app

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"tickfeed/internal/infra"
	"tickfeed/internal/storage"
)

// Bootstrap orchestrates the startup sequence shared by the feed client and server.
type Bootstrap struct {
	Config    *infra.Config
	TickStore *storage.TickStore // nil unless storage is enabled

	unlock func()
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the config at cfgPath (empty = resolve the default location),
// installs the logger and opens the tick store when storage is enabled.
// withStore=false skips the store even if enabled (the server only opens it for replays).
func (b *Bootstrap) Initialize(cfgPath string, withStore bool) error {
	if cfgPath == "" {
		cfgPath = infra.ResolveConfigPath()
	}
	cfg, err := infra.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("Config loaded", slog.String("path", cfgPath), slog.String("version", cfg.App.Version))

	if !withStore || !cfg.Storage.Enabled {
		return nil
	}
	return b.openStore()
}

// OpenStore opens the tick store regardless of storage.enabled (used for replays).
func (b *Bootstrap) OpenStore() error {
	if b.TickStore != nil {
		return nil
	}
	return b.openStore()
}

func (b *Bootstrap) openStore() error {
	dbPath := b.Config.Storage.Path
	if dbPath == "" {
		dbPath = infra.DefaultDBPath(infra.GetWorkspaceDir())
	}
	dataDir := filepath.Dir(dbPath)
	if err := infra.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	// One writer per database.
	unlock, err := infra.CreateLockFile(dataDir)
	if err != nil {
		return err
	}

	store, err := storage.NewTickStore(dbPath)
	if err != nil {
		unlock()
		return err
	}
	b.TickStore = store
	b.unlock = unlock
	slog.Info("TickStore initialized (WAL-mode)", slog.String("path", dbPath))
	return nil
}

// Close releases the store and its lock.
func (b *Bootstrap) Close() error {
	var err error
	if b.TickStore != nil {
		err = b.TickStore.Close()
		b.TickStore = nil
	}
	if b.unlock != nil {
		b.unlock()
		b.unlock = nil
	}
	return err
}
