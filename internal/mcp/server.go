// Package mcp provides an MCP (Model Context Protocol) server that lets
// agents build, step and inspect stored nodenets.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/nodenet/internal/nodenet"
	"github.com/nvandessel/nodenet/internal/nodetype"
	"github.com/nvandessel/nodenet/internal/ratelimit"
	"github.com/nvandessel/nodenet/internal/store"
)

// Server wraps the MCP SDK server and keeps the nodenets it has touched
// in memory. Every mutating tool writes the nodenet back to the repository.
type Server struct {
	server       *sdk.Server
	repo         store.Repository
	dataDir      string
	snapshotDir  string
	natives      []nodetype.Definition
	logger       *slog.Logger
	auditLogger  *AuditLogger
	toolLimiters ratelimit.ToolLimiters

	mu   sync.Mutex
	nets map[string]*nodenet.Nodenet
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "nodenet")
	Version string // Server version
	DataDir string // Directory holding nodenets.db, snapshots and the audit log

	// NativeModuleDir holds native module definitions. Empty disables them.
	NativeModuleDir string
	Logger          *slog.Logger

	// Repository overrides the SQLite store under DataDir.
	Repository store.Repository
}

// NewServer creates a new MCP server with the nodenet tools registered.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	var natives []nodetype.Definition
	if cfg.NativeModuleDir != "" {
		defs, err := nodetype.LoadDir(cfg.NativeModuleDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load native modules: %w", err)
		}
		natives = defs
	}

	repo := cfg.Repository
	if repo == nil {
		sqlite, err := store.NewSQLiteStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open nodenet store: %w", err)
		}
		repo = sqlite
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:       mcpServer,
		repo:         repo,
		dataDir:      cfg.DataDir,
		snapshotDir:  store.SnapshotDir(cfg.DataDir),
		natives:      natives,
		logger:       logger,
		auditLogger:  NewAuditLogger(filepath.Join(cfg.DataDir, auditFileName)),
		toolLimiters: ratelimit.NewToolLimiters(ratelimit.DefaultToolLimits),
		nets:         make(map[string]*nodenet.Nodenet),
	}

	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})
	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close releases the repository and the audit log.
func (s *Server) Close() error {
	return errors.Join(s.repo.Close(), s.auditLogger.Close())
}

// newNet builds an empty nodenet with the configured native modules.
func (s *Server) newNet(uid, name string) (*nodenet.Nodenet, error) {
	reg, err := s.registry()
	if err != nil {
		return nil, err
	}
	return nodenet.New(nodenet.Options{UID: uid, Name: name, Registry: reg, Logger: s.logger})
}

func (s *Server) registry() (*nodetype.Registry, error) {
	reg := nodetype.NewRegistry(s.logger)
	if err := reg.ReplaceNatives(s.natives); err != nil {
		return nil, fmt.Errorf("failed to register native modules: %w", err)
	}
	return reg, nil
}

// net returns the cached nodenet with uid, loading it from the repository
// on first use.
func (s *Server) net(ctx context.Context, uid string) (*nodenet.Nodenet, error) {
	if uid == "" {
		return nil, fmt.Errorf("'nodenet' parameter is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nets[uid]; ok {
		return n, nil
	}

	data, err := s.repo.Load(ctx, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("nodenet %q not found", uid)
		}
		return nil, fmt.Errorf("failed to load nodenet: %w", err)
	}
	reg, err := s.registry()
	if err != nil {
		return nil, err
	}
	n, err := nodenet.NewFromData(data, nodenet.Options{Registry: reg, Logger: s.logger})
	if err != nil {
		return nil, fmt.Errorf("failed to restore nodenet: %w", err)
	}
	s.nets[uid] = n
	return n, nil
}

// save writes n back to the repository and keeps it cached.
func (s *Server) save(ctx context.Context, n *nodenet.Nodenet) error {
	if err := s.repo.Save(ctx, n.Export()); err != nil {
		return fmt.Errorf("failed to save nodenet: %w", err)
	}
	s.mu.Lock()
	s.nets[n.UID()] = n
	s.mu.Unlock()
	return nil
}
