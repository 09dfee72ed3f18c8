package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/nvandessel/nodenet/internal/config"
	"github.com/nvandessel/nodenet/internal/logging"
	"github.com/nvandessel/nodenet/internal/nodenet"
	"github.com/nvandessel/nodenet/internal/nodetype"
	"github.com/nvandessel/nodenet/internal/store"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nodenet",
		Short: "Build and step spreading-activation nodenets",
		Long: `nodenet builds, stores and steps nodenets: graphs of typed nodes
whose activation spreads along weighted links one step at a time.

Nodenets are kept in a SQLite store under the data directory
(~/.nodenet by default). Native module definitions are loaded from
native_modules.dir when it is configured.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.nodenet/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "Override storage.data_dir")
	rootCmd.PersistentFlags().String("log-level", "", "Override logging.level")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(),
		newNewCmd(),
		newListCmd(),
		newDeleteCmd(),
		newShowCmd(),
		newAddNodeCmd(),
		newAddNodespaceCmd(),
		newLinkCmd(),
		newUnlinkCmd(),
		newStepCmd(),
		newRunCmd(),
		newExportCmd(),
		newImportCmd(),
		newSnapshotsCmd(),
		newGraphCmd(),
		newGroupCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

// app bundles what most commands need: configuration, logger, the nodenet
// repository and native module definitions.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	repo    store.Repository
	natives []nodetype.Definition
}

// loadConfig reads the config file named by --config and applies the
// --data-dir and --log-level overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Storage.DataDir = config.ExpandPath(dir)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openApp loads the configuration and opens the repository. Callers must
// call close.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:    cfg,
		logger: logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()),
	}
	if cfg.NativeModules.Dir != "" {
		defs, err := nodetype.LoadDir(cfg.NativeModules.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to load native modules: %w", err)
		}
		a.natives = defs
	}
	repo, err := store.NewSQLiteStore(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.repo = repo
	return a, nil
}

func (a *app) close() error {
	return a.repo.Close()
}

func (a *app) options(uid, name string) (nodenet.Options, error) {
	reg := nodetype.NewRegistry(a.logger)
	if err := reg.ReplaceNatives(a.natives); err != nil {
		return nodenet.Options{}, fmt.Errorf("failed to register native modules: %w", err)
	}
	return nodenet.Options{
		UID:                uid,
		Name:               name,
		Registry:           reg,
		Logger:             a.logger,
		DefaultLockTimeout: a.cfg.Lock.DefaultTimeout,
	}, nil
}

// newNet creates an empty, unsaved nodenet.
func (a *app) newNet(uid, name string) (*nodenet.Nodenet, error) {
	opts, err := a.options(uid, name)
	if err != nil {
		return nil, err
	}
	return nodenet.New(opts)
}

// openNet loads a stored nodenet.
func (a *app) openNet(ctx context.Context, uid string) (*nodenet.Nodenet, error) {
	data, err := a.repo.Load(ctx, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("nodenet %q not found", uid)
		}
		return nil, fmt.Errorf("failed to load nodenet: %w", err)
	}
	return a.fromData(data)
}

func (a *app) fromData(data nodenet.Data) (*nodenet.Nodenet, error) {
	opts, err := a.options("", "")
	if err != nil {
		return nil, err
	}
	n, err := nodenet.NewFromData(data, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to restore nodenet: %w", err)
	}
	return n, nil
}

func (a *app) save(ctx context.Context, n *nodenet.Nodenet) error {
	if err := a.repo.Save(ctx, n.Export()); err != nil {
		return fmt.Errorf("failed to save nodenet: %w", err)
	}
	return nil
}

// mutate loads a nodenet, applies fn and saves the result.
func (a *app) mutate(ctx context.Context, uid string, fn func(n *nodenet.Nodenet) error) (*nodenet.Nodenet, error) {
	n, err := a.openNet(ctx, uid)
	if err != nil {
		return nil, err
	}
	if err := fn(n); err != nil {
		return nil, err
	}
	if err := a.save(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}
