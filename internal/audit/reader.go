package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// Reader provides a restartable sequence of raw decoded events read back
// from one or more JSONL files written by Writer (spec.md §4.11).
type Reader struct {
	logger *zap.Logger
}

// NewReader creates a Reader. logger may be nil, in which case zap.NewNop() is used.
func NewReader(logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{logger: logger.Named("audit-reader")}
}

// ReadFile decodes every complete line in path into a map[string]interface{}
// (the natural shape of canonical JSON once decoded). A trailing partial
// line — one with no terminating newline, e.g. because the writer was
// killed mid-write — is skipped with a warning rather than treated as an error.
func (r *Reader) ReadFile(path string) ([]map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var events []map[string]interface{}
	br := bufio.NewReader(f)
	lineNo := 0
	for {
		lineNo++
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			trailingPartial := err == io.EOF
			if trailingPartial {
				r.logger.Warn("skipping trailing partial audit line",
					zap.String("path", path), zap.Int("line", lineNo))
				break
			}
			var m map[string]interface{}
			if decErr := json.Unmarshal(line, &m); decErr != nil {
				return nil, fmt.Errorf("%s:%d: decode event: %w", path, lineNo, decErr)
			}
			events = append(events, m)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return events, nil
}

// ReadFiles reads multiple rotation files in order and concatenates their events.
func (r *Reader) ReadFiles(paths []string) ([]map[string]interface{}, error) {
	var all []map[string]interface{}
	for _, p := range paths {
		events, err := r.ReadFile(p)
		if err != nil {
			return nil, err
		}
		all = append(all, events...)
	}
	return all, nil
}
