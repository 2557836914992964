package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// profiler is a minimal operation tracer: when enabled, foreground calls
// append one JSON line per enter/exit to a file under the configured work
// directory. This is the Go-shaped equivalent of the reference scheduler's
// set_profiler, which opens a raw binary trace file and writes a
// enter/exit timer record around each operation; a line-oriented JSON trace
// is easier to consume from outside this process than the reference's
// fixed binary record format, but records the same events.
type profiler struct {
	mu   sync.Mutex
	file *os.File
}

type profileEvent struct {
	Time      time.Time `json:"time"`
	Operation string    `json:"op"`
	Dentry    string    `json:"dentry,omitempty"`
	Phase     string    `json:"phase"` // "enter" or "exit"
}

// SetProfiler enables or disables operation tracing, the vtable-facing
// name for the reference scheduler's set_profiler. Enabling while already
// enabled, or disabling while already disabled, is a no-op.
func (s *Scheduler) SetProfiler(_ context.Context, workDir string, enable bool) error {
	s.profilerMu.Lock()
	defer s.profilerMu.Unlock()

	if !enable {
		if s.profiler != nil {
			s.profiler.mu.Lock()
			_ = s.profiler.file.Close()
			s.profiler.mu.Unlock()
			s.profiler = nil
		}
		return nil
	}

	if s.profiler != nil {
		return nil
	}
	if workDir == "" {
		return fmt.Errorf("scheduler: SetProfiler requires a work directory")
	}

	path := filepath.Join(workDir, fmt.Sprintf("tapesched-profile-%d.jsonl", time.Now().UnixNano()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("scheduler: opening profiler trace file: %w", err)
	}
	s.profiler = &profiler{file: f}
	return nil
}

// traceEnter and traceExit record one profiling event if tracing is
// currently enabled. Cheap no-ops otherwise.
func (s *Scheduler) traceEnter(op, dentry string) { s.trace(op, dentry, "enter") }
func (s *Scheduler) traceExit(op, dentry string)  { s.trace(op, dentry, "exit") }

func (s *Scheduler) trace(op, dentry, phase string) {
	s.profilerMu.Lock()
	p := s.profiler
	s.profilerMu.Unlock()
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	enc := json.NewEncoder(p.file)
	_ = enc.Encode(profileEvent{Time: time.Now(), Operation: op, Dentry: dentry, Phase: phase})
}
