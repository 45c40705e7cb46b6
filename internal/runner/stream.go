package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// parseLineFunc classifies one stdout line into an Event.
type parseLineFunc func(line string) Event

// runStreaming spawns name with args in dir, classifying stdout lines with
// parseLine and forwarding raw stderr lines as Stderr events. It blocks
// until the process exits or ctx is canceled, closes events on every return
// path, and reports the number of lines read from both streams in
// Result.OutputLines.
func runStreaming(ctx context.Context, name, dir string, args []string, parseLine parseLineFunc, events chan<- Event, log *zap.Logger) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		close(events)
		return Result{}, fmt.Errorf("pipe stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		close(events)
		return Result{}, fmt.Errorf("pipe stderr: %w", err)
	}
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		close(events)
		return Result{}, fmt.Errorf("spawn %s: %w", name, err)
	}

	// Both scanners bump the counter, so it must be atomic.
	var outputLines atomic.Int64
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scanLines(stdout, func(line string) {
			outputLines.Add(1)
			ev := parseLine(line)
			if !sendEvent(gctx, events, ev, log) {
				return
			}
		})
	})
	g.Go(func() error {
		return scanLines(stderr, func(line string) {
			outputLines.Add(1)
			sendEvent(gctx, events, Event{Kind: Stderr, Line: line}, log)
		})
	})

	scanErr := g.Wait()
	close(events)
	waitErr := cmd.Wait()

	result := Result{
		ExitCode:    exitCodeOf(waitErr),
		OutputLines: int(outputLines.Load()),
		Success:     waitErr == nil,
	}
	if scanErr != nil {
		if log != nil {
			log.Error("error reading agent output", zap.Error(scanErr))
		}
	}
	return result, nil
}

func sendEvent(ctx context.Context, events chan<- Event, ev Event, log *zap.Logger) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func scanLines(r io.Reader, onLine func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		onLine(scanner.Text())
	}
	return scanner.Err()
}
