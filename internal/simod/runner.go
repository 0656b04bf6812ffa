package simod

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"simodapi/internal/config"
)

// Package simod wraps the Simod command-line tool. The mining algorithm itself
// is an opaque external collaborator; this package only prepares its on-disk
// workspace, invokes the CLI and collects whatever it produced.

const (
	workspaceMode = 0o755
	// resultSubdir is where Simod places the winning candidate of a run.
	resultSubdir = "best_result"
)

// RunError reports a mining run that exited non-zero. Stderr carries the tail
// of the tool's own error text, which is relayed to the HTTP caller unchanged.
type RunError struct {
	ExitCode int
	Stderr   string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("simod exited with code %d: %s", e.ExitCode, e.Stderr)
}

// RunOutput captures the CLI's streams for logging.
type RunOutput struct {
	Stdout string
	Stderr string
}

// Workspace is the per-request directory layout the CLI operates on.
type Workspace struct {
	RequestID         string
	Dir               string
	EventLogPath      string
	ConfigurationPath string // empty when the run is one-shot
	OutputDir         string
}

// ResultDir returns the directory holding the run's results: best_result when
// present, the raw output directory otherwise.
func (ws *Workspace) ResultDir() (string, error) {
	best := filepath.Join(ws.OutputDir, resultSubdir)
	if st, err := os.Stat(best); err == nil && st.IsDir() {
		return best, nil
	}
	if st, err := os.Stat(ws.OutputDir); err == nil && st.IsDir() {
		return ws.OutputDir, nil
	}
	return "", fmt.Errorf("no output produced for request %s", ws.RequestID)
}

// Cleanup removes the whole workspace directory.
func (ws *Workspace) Cleanup() error {
	return os.RemoveAll(ws.Dir)
}

// Runner invokes the Simod CLI for one request at a time. It is safe for
// concurrent use; each run owns its own workspace.
type Runner struct {
	home        string
	storageRoot string
	timeout     time.Duration

	// overridable in tests
	shellPath string
	command   string
}

// NewRunner creates a Runner from configuration. Call AssertReady before serving.
func NewRunner(cfg config.SimodConfig) *Runner {
	return &Runner{
		home:        cfg.Home,
		storageRoot: cfg.StoragePath,
		timeout:     cfg.RunTimeout,
		shellPath:   "bash",
		// Simod lives in a poetry-managed virtual environment inside its image.
		command: "poetry run simod",
	}
}

// AssertReady verifies the shell binary exists and the workspace root is writable.
func (r *Runner) AssertReady(ctx context.Context) error {
	if _, err := exec.LookPath(r.shellPath); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", r.shellPath, err)
	}
	if err := os.MkdirAll(filepath.Join(r.storageRoot, "requests"), workspaceMode); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	return nil
}

// PrepareWorkspace writes the uploaded inputs into a fresh per-request directory.
// configuration may be nil; eventLogExt and configExt must include the leading dot.
func (r *Runner) PrepareWorkspace(requestID string, eventLog io.Reader, eventLogExt string, configuration io.Reader, configExt string) (*Workspace, error) {
	dir := filepath.Join(r.storageRoot, "requests", requestID)
	if err := os.MkdirAll(dir, workspaceMode); err != nil {
		return nil, fmt.Errorf("create request dir: %w", err)
	}

	ws := &Workspace{
		RequestID: requestID,
		Dir:       dir,
		OutputDir: filepath.Join(dir, "output"),
	}

	ws.EventLogPath = filepath.Join(dir, "event_log"+eventLogExt)
	if err := writeFile(ws.EventLogPath, eventLog); err != nil {
		ws.Cleanup()
		return nil, fmt.Errorf("save event log: %w", err)
	}

	if configuration != nil {
		ws.ConfigurationPath = filepath.Join(dir, "configuration"+configExt)
		if err := writeFile(ws.ConfigurationPath, configuration); err != nil {
			ws.Cleanup()
			return nil, fmt.Errorf("save configuration: %w", err)
		}
	}

	if err := os.MkdirAll(ws.OutputDir, workspaceMode); err != nil {
		ws.Cleanup()
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	return ws, nil
}

// Run executes the CLI for the given workspace and blocks until it finishes.
// A non-zero exit is returned as *RunError; the captured streams are always returned.
func (r *Runner) Run(ctx context.Context, ws *Workspace) (RunOutput, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var script string
	if ws.ConfigurationPath != "" {
		script = fmt.Sprintf("cd %s && %s --configuration %s --output %s",
			r.home, r.command, ws.ConfigurationPath, ws.OutputDir)
	} else {
		script = fmt.Sprintf("cd %s && %s --one-shot --event-log %s --output %s",
			r.home, r.command, ws.EventLogPath, ws.OutputDir)
	}

	cmd := exec.CommandContext(ctx, r.shellPath, "-c", script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := RunOutput{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return out, &RunError{ExitCode: exitErr.ExitCode(), Stderr: tail(out.Stderr, 2048)}
		}
		return out, fmt.Errorf("run simod: %w", err)
	}
	return out, nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// tail returns at most n trailing bytes of s, for relaying stderr without
// unbounded response bodies.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
