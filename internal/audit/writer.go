package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Writer is the single append-only JSONL writer for one run (spec.md §4.11,
// §5 "the audit log is owned by a single writer worker; the core is the
// sole producer"). It is safe to share across goroutines, but the
// orchestrator is expected to hold exactly one.
type Writer struct {
	logger   *zap.Logger
	dir      string
	runID    string
	maxBytes int64

	mu      sync.Mutex
	seq     int
	file    *os.File
	written int64
}

// NewWriter opens (creating dir if absent) the first rotation file for runID.
func NewWriter(logger *zap.Logger, dir, runID string, maxBytes int64) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir %s: %w", dir, err)
	}
	w := &Writer{
		logger:   logger.Named("audit-writer"),
		dir:      dir,
		runID:    runID,
		maxBytes: maxBytes,
	}
	if err := w.openNext(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) currentPath() string {
	return filepath.Join(w.dir, fmt.Sprintf("events_%s_%04d.jsonl", w.runID, w.seq))
}

// openNext closes the current file (if any), flushing it, and opens the
// next rotation file with an incremented sequence suffix (spec.md §4.11).
func (w *Writer) openNext() error {
	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("flush %s: %w", w.file.Name(), err)
		}
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("close %s: %w", w.file.Name(), err)
		}
		w.seq++
	}
	path := w.currentPath()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	w.file = f
	w.written = 0
	w.logger.Info("audit file opened", zap.String("path", path))
	return nil
}

// Append serializes e as one canonical-JSON line and writes it with a single
// Write call: the full line, newline included, is assembled in memory first.
// A short write can still leave a partial final line in the file.
func (w *Writer) Append(e Event) error {
	line, err := e.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.EventType, err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.maxBytes > 0 && w.written > 0 && w.written+int64(len(line)) > w.maxBytes {
		if err := w.openNext(); err != nil {
			return err
		}
	}

	n, err := w.file.Write(line)
	if err != nil {
		return fmt.Errorf("write audit line: %w", err)
	}
	w.written += int64(n)
	return nil
}

// Close flushes and closes the current rotation file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	return w.file.Close()
}
