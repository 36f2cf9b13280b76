package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/dygy/melody-grep/internal/errors"
)

// Result holds command execution output
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes external commands with context support
type Runner struct {
	PythonPath string
	ScriptsDir string
}

// NewRunner creates a new command runner
func NewRunner(pythonPath, scriptsDir string) *Runner {
	if pythonPath == "" {
		// Try to find Python in virtual environment first
		venvPython := filepath.Join(scriptsDir, ".venv", "bin", "python")
		if _, err := os.Stat(venvPython); err == nil {
			pythonPath = venvPython
		} else {
			pythonPath = "python3"
		}
	}
	return &Runner{
		PythonPath: pythonPath,
		ScriptsDir: scriptsDir,
	}
}

// RunScript executes a Python script from the scripts directory
func (r *Runner) RunScript(ctx context.Context, script string, args ...string) (*Result, error) {
	scriptPath := filepath.Join(r.ScriptsDir, script)
	fullArgs := append([]string{scriptPath}, args...)
	return r.execute(ctx, "", r.PythonPath, fullArgs...)
}

// RunModule executes a Python module with -m flag
func (r *Runner) RunModule(ctx context.Context, module string, args ...string) (*Result, error) {
	result, err := r.execute(ctx, r.ScriptsDir, r.PythonPath, append([]string{"-m", module}, args...)...)
	if err != nil {
		return result, fmt.Errorf("module %s failed: %w", module, err)
	}
	return result, nil
}

// Run executes an arbitrary binary such as ffmpeg
func (r *Runner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	return r.execute(ctx, "", name, args...)
}

// execute runs a command and captures output
func (r *Runner) execute(ctx context.Context, dir, name string, args ...string) (*Result, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if dir != "" {
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), fmt.Sprintf("PYTHONPATH=%s", dir))
	}

	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
	}

	if err != nil {
		if ctx.Err() != nil {
			return result, fmt.Errorf("command %s: %w", name, ctx.Err())
		}
		return result, fmt.Errorf("command %s failed: %w", name, err)
	}

	return result, nil
}

// CheckPythonDependency verifies a Python package is importable.
func (r *Runner) CheckPythonDependency(ctx context.Context, packageName string) error {
	result, err := r.execute(ctx, "", r.PythonPath, "-c", fmt.Sprintf("import %s", packageName))
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: python package %s: %s", apperrors.ErrToolNotInstalled, packageName, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// LookPath reports whether a binary is available on PATH
func LookPath(name string) error {
	_, err := exec.LookPath(name)
	return err
}
