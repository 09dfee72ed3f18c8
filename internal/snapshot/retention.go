package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Extension is the file extension of snapshots written by FileName.
const Extension = ".nodenet"

// Info describes a snapshot file on disk.
type Info struct {
	Path    string
	Size    int64
	ModTime time.Time
	Format  int
}

// FileName returns a sortable snapshot file name for a nodenet at a step.
func FileName(nodenetUID string, step int, at time.Time) string {
	return fmt.Sprintf("%s-%s-step%08d%s", nodenetUID, at.UTC().Format("20060102T150405"), step, Extension)
}

// List returns the snapshots in dir whose names start with prefix, newest
// first. A missing directory yields no snapshots.
func List(dir, prefix string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot directory: %w", err)
	}

	var out []Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, Extension) || !strings.HasPrefix(name, prefix) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, name)
		format, err := DetectFormat(path)
		if err != nil {
			continue
		}
		out = append(out, Info{Path: path, Size: fi.Size(), ModTime: fi.ModTime(), Format: format})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].Path > out[j].Path
	})
	return out, nil
}

// Prune keeps the newest keep snapshots in dir matching prefix and deletes
// the rest. It returns the removed paths.
func Prune(dir, prefix string, keep int) ([]string, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep must be non-negative, got %d", keep)
	}
	infos, err := List(dir, prefix)
	if err != nil {
		return nil, err
	}
	if len(infos) <= keep {
		return nil, nil
	}
	var removed []string
	for _, info := range infos[keep:] {
		if err := os.Remove(info.Path); err != nil {
			return removed, fmt.Errorf("removing %s: %w", info.Path, err)
		}
		removed = append(removed, info.Path)
	}
	return removed, nil
}
