package exec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/dygy/melody-grep/internal/errors"
)

func requireShell(t *testing.T) {
	t.Helper()
	if err := LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunCapturesOutput(t *testing.T) {
	requireShell(t)
	r := NewRunner("python3", t.TempDir())

	result, err := r.Run(context.Background(), "sh", "-c", "echo out; echo err 1>&2")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "out" {
		t.Errorf("stdout = %q", result.Stdout)
	}
	if strings.TrimSpace(result.Stderr) != "err" {
		t.Errorf("stderr = %q", result.Stderr)
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d", result.ExitCode)
	}
}

func TestRunReportsExitCode(t *testing.T) {
	requireShell(t)
	r := NewRunner("python3", t.TempDir())

	result, err := r.Run(context.Background(), "sh", "-c", "echo nope 1>&2; exit 3")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if result == nil || result.ExitCode != 3 {
		t.Fatalf("exit code = %+v, want 3", result)
	}
	if !strings.Contains(result.Stderr, "nope") {
		t.Errorf("stderr = %q", result.Stderr)
	}
}

func TestRunHonorsContext(t *testing.T) {
	requireShell(t)
	r := NewRunner("python3", t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := r.Run(ctx, "sh", "-c", "sleep 5"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestNewRunnerDefaultsPython(t *testing.T) {
	r := NewRunner("", t.TempDir())
	if r.PythonPath != "python3" {
		t.Errorf("PythonPath = %q, want python3", r.PythonPath)
	}
}

func TestCheckPythonDependency(t *testing.T) {
	requireShell(t)
	python := filepath.Join(t.TempDir(), "python")
	script := "#!/bin/sh\n[ \"$2\" = \"import crepe\" ] && exit 0\necho \"No module named $2\" >&2\nexit 1\n"
	if err := os.WriteFile(python, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	r := NewRunner(python, t.TempDir())

	if err := r.CheckPythonDependency(context.Background(), "crepe"); err != nil {
		t.Errorf("crepe: %v", err)
	}

	err := r.CheckPythonDependency(context.Background(), "demucs")
	if !errors.Is(err, apperrors.ErrToolNotInstalled) {
		t.Fatalf("demucs err = %v, want ErrToolNotInstalled", err)
	}
	if !strings.Contains(err.Error(), "No module named") {
		t.Errorf("error lacks stderr: %v", err)
	}
}
