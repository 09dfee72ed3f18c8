package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const auditFileName = "audit.jsonl"

// AuditEntry records one MCP tool invocation. It captures metadata about
// the call, never node parameters or file contents.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	Nodenet    string            `json:"nodenet,omitempty"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// AuditLogger appends audit entries to a JSONL file. It is safe for
// concurrent use. A nil AuditLogger is safe to use; all methods are no-ops
// on a nil receiver.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLogger opens path for appending, creating its directory. If the
// file cannot be opened a warning is printed to stderr and nil is returned.
func NewAuditLogger(path string) *AuditLogger {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create audit log directory: %v\n", err)
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open audit log: %v\n", err)
		return nil
	}
	return &AuditLogger{file: f}
}

// Log appends entry as a single line.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}
	_, _ = a.file.Write(data)
}

// Close closes the log file. Later calls to Log are dropped.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// safeValueParams are logged with their value.
var safeValueParams = map[string]bool{
	"type":      true,
	"nodespace": true,
	"gate":      true,
	"slot":      true,
	"steps":     true,
	"format":    true,
	"compress":  true,
	"weight":    true,
	"certainty": true,
}

// presenceOnlyParams are logged as "(set)" since their values may hold user
// text or file system layout.
var presenceOnlyParams = map[string]bool{
	"name":        true,
	"node":        true,
	"source":      true,
	"target":      true,
	"parameters":  true,
	"output_path": true,
}

// sanitizeToolParams extracts loggable metadata from tool parameters. Empty
// values and unknown keys are dropped. "_param_count" counts the non-empty
// parameters given.
func sanitizeToolParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}
	result := make(map[string]string)
	count := 0
	for key, val := range params {
		if isEmptyParam(val) {
			continue
		}
		count++
		switch {
		case safeValueParams[key]:
			result[key] = formatParam(val)
		case presenceOnlyParams[key]:
			result[key] = "(set)"
		}
	}
	result["_param_count"] = fmt.Sprintf("%d", count)
	return result
}

func formatParam(val any) string {
	switch v := val.(type) {
	case *float64:
		return fmt.Sprintf("%v", *v)
	case *bool:
		return fmt.Sprintf("%v", *v)
	}
	return fmt.Sprintf("%v", val)
}

func isEmptyParam(val any) bool {
	switch v := val.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case *float64:
		return v == nil
	case *bool:
		return v == nil
	case map[string]any:
		return len(v) == 0
	case int:
		return v == 0
	}
	return false
}

// auditTool logs a tool invocation against the nodenet it addressed.
func (s *Server) auditTool(tool, nodenetUID string, start time.Time, err error, params map[string]string) {
	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	s.auditLogger.Log(AuditEntry{
		Timestamp:  start,
		Tool:       tool,
		Nodenet:    nodenetUID,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     status,
		Error:      errMsg,
		Params:     params,
	})
}
