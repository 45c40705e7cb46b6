package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// JSONLWriter streams Records as JSON Lines, one record per line.
type JSONLWriter struct {
	enc *json.Encoder
}

// NewJSONLWriter wraps w as a JSONL sink.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{enc: enc}
}

// Write appends one record as a JSON line.
func (w *JSONLWriter) Write(r Record) error {
	return w.enc.Encode(r)
}

// WriteAll appends every record in order.
func (w *JSONLWriter) WriteAll(records []Record) error {
	for _, r := range records {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// InvocationLogs is the on-disk log bundle for one agent invocation:
//
//	<logs_dir>/<invocation-id>/
//	    stdout.log
//	    stderr.log
//	    events.jsonl
//	    config.json
//	    manifest.json
type InvocationLogs struct {
	Dir    string
	Stdout *os.File
	Stderr *os.File
	Events *JSONLWriter

	eventsFile *os.File
}

// OpenInvocationLogs creates the invocation's log directory and opens its
// stream files.
func OpenInvocationLogs(logsDir, invocationID string) (*InvocationLogs, error) {
	dir := filepath.Join(logsDir, invocationID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create invocation log dir: %w", err)
	}

	stdout, err := os.Create(filepath.Join(dir, "stdout.log"))
	if err != nil {
		return nil, fmt.Errorf("create stdout.log: %w", err)
	}
	stderr, err := os.Create(filepath.Join(dir, "stderr.log"))
	if err != nil {
		stdout.Close()
		return nil, fmt.Errorf("create stderr.log: %w", err)
	}
	events, err := os.Create(filepath.Join(dir, "events.jsonl"))
	if err != nil {
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("create events.jsonl: %w", err)
	}

	return &InvocationLogs{
		Dir:        dir,
		Stdout:     stdout,
		Stderr:     stderr,
		Events:     NewJSONLWriter(events),
		eventsFile: events,
	}, nil
}

// WriteConfig serializes the invocation's spawn configuration to
// config.json.
func (l *InvocationLogs) WriteConfig(cfg any) error {
	return writeJSONFile(filepath.Join(l.Dir, "config.json"), cfg)
}

// WriteManifest serializes the sandbox manifest the invocation ran under
// to manifest.json. Secret values never appear here: manifests carry
// secret names only, resolved at agent launch.
func (l *InvocationLogs) WriteManifest(manifest any) error {
	return writeJSONFile(filepath.Join(l.Dir, "manifest.json"), manifest)
}

// Close flushes and closes all stream files.
func (l *InvocationLogs) Close() error {
	var firstErr error
	for _, f := range []*os.File{l.Stdout, l.Stderr, l.eventsFile} {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
