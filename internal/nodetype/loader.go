package nodetype

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DefinitionFile is the on-disk layout of a native module definition file.
// A file may hold a single definition or a list under "nodetypes".
type DefinitionFile struct {
	Nodetypes []Definition `yaml:"nodetypes"`
}

func isDefinitionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// LoadDir reads every *.yaml and *.yml file in dir and returns the native
// definitions they contain, sorted by name. A missing directory yields no
// definitions. Duplicate names across files are an error.
func LoadDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading native module dir: %w", err)
	}

	seen := make(map[string]string)
	var defs []Definition
	for _, e := range entries {
		if e.IsDir() || !isDefinitionFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		fileDefs, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, d := range fileDefs {
			if prev, dup := seen[d.Name]; dup {
				return nil, fmt.Errorf("nodetype %s defined in both %s and %s", d.Name, prev, path)
			}
			seen[d.Name] = path
			defs = append(defs, d)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// LoadFile parses one definition file.
func LoadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var file DefinitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(file.Nodetypes) > 0 {
		return file.Nodetypes, nil
	}
	var single Definition
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if single.Name == "" {
		return nil, fmt.Errorf("%s: no nodetype definitions found", path)
	}
	return []Definition{single}, nil
}

const watchDebounce = 200 * time.Millisecond

// Watch calls onChange whenever definition files in dir are created,
// modified, removed or renamed. Bursts of events are coalesced. Watch blocks
// until ctx is cancelled.
func Watch(ctx context.Context, dir string, logger *slog.Logger, onChange func()) error {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	logger.Debug("watching native modules", "dir", dir)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isDefinitionFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("native module changed", "path", ev.Name, "op", ev.Op.String())
			pending = time.After(watchDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("native module watcher error", "error", err)
		case <-pending:
			pending = nil
			onChange()
		}
	}
}
