package engine

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
)

const (
	defaultScanBuffer = 100 * 1024 * 1024
	initialScanBuffer = 64 * 1024
)

// CLIEngine drives the claude CLI in stream-json mode. Each Run starts one
// subprocess whose stdout lines are parsed into normalized events.
//
// The CLI cannot call back into the broker for tool approval, so runs are
// started with permissions bypassed and the Approve callback is not consulted.
// Engines that support an approval callback honor RunOptions.Approve.
type CLIEngine struct {
	// Command is the engine binary, "claude" by default.
	Command string
	logger  *logrus.Entry
}

// NewCLIEngine creates a CLIEngine for the given binary.
func NewCLIEngine(command string, logger *logrus.Entry) *CLIEngine {
	if command == "" {
		command = "claude"
	}
	return &CLIEngine{Command: command, logger: logger}
}

// Run starts one engine subprocess for the prompt.
func (e *CLIEngine) Run(ctx context.Context, opts RunOptions) (Stream, error) {
	args := buildArgs(opts)

	cmd := exec.CommandContext(ctx, e.Command, args...)
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine process: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"pid":    cmd.Process.Pid,
		"resume": opts.Resume != "",
	}).Debug("Engine process started")

	run := &cliRun{
		cmd:    cmd,
		events: make(chan Event, 16),
		logger: e.logger,
	}

	scanCap := opts.ScanBufferBytes
	if scanCap <= 0 {
		scanCap = defaultScanBuffer
	}

	// Collect stderr for the failure message. Bounded: a misbehaving engine
	// must not grow broker memory.
	var stderrBuf strings.Builder
	var stderrWg sync.WaitGroup
	stderrWg.Add(1)
	go func() {
		defer stderrWg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			if stderrBuf.Len() < 16*1024 {
				stderrBuf.WriteString(scanner.Text())
				stderrBuf.WriteString("\n")
			}
		}
	}()

	go func() {
		defer close(run.events)

		terminalSeen := false
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, initialScanBuffer), scanCap)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			ev, err := ParseLine(line)
			if err != nil {
				e.logger.WithError(err).Warn("Skipping unparseable engine output line")
				continue
			}
			if ev.Terminal() {
				terminalSeen = true
			}
			select {
			case run.events <- ev:
			case <-ctx.Done():
				stderrWg.Wait()
				_ = cmd.Wait()
				return
			}
		}

		scanErr := scanner.Err()
		stderrWg.Wait()
		waitErr := cmd.Wait()

		if terminalSeen || ctx.Err() != nil {
			return
		}

		// The process ended without a terminal event: synthesize one so the
		// run always finishes with exactly one result.
		msg := "engine exited without a result"
		if waitErr != nil {
			msg = fmt.Sprintf("engine exited: %v", waitErr)
		} else if scanErr != nil {
			msg = fmt.Sprintf("engine stream read failed: %v", scanErr)
		}
		if detail := strings.TrimSpace(stderrBuf.String()); detail != "" {
			msg = fmt.Sprintf("%s: %s", msg, detail)
		}
		select {
		case run.events <- ErrorResult(msg):
		case <-ctx.Done():
		}
	}()

	return run, nil
}

// buildArgs assembles the CLI invocation for one run.
func buildArgs(opts RunOptions) []string {
	args := []string{
		"-p", opts.Prompt,
		"--verbose",
		"--output-format", "stream-json",
		"--include-partial-messages",
		"--dangerously-skip-permissions",
	}
	if opts.Resume != "" {
		args = append(args, "--resume", opts.Resume)
	}
	if opts.AllowedTools != "" {
		args = append(args, "--allowedTools", opts.AllowedTools)
	}
	return args
}

type cliRun struct {
	cmd    *exec.Cmd
	events chan Event
	logger *logrus.Entry
}

func (r *cliRun) Events() <-chan Event {
	return r.events
}

// Interrupt sends SIGINT to the engine process. Advisory: the process may
// still flush trailing output before exiting.
func (r *cliRun) Interrupt() error {
	if r.cmd.Process == nil {
		return nil
	}
	if err := r.cmd.Process.Signal(syscall.SIGINT); err != nil {
		return fmt.Errorf("send interrupt signal: %w", err)
	}
	return nil
}
