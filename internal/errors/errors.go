package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for expected failure modes
var (
	ErrFileNotFound      = errors.New("file not found")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrCorruptedFile     = errors.New("file corrupted or unreadable")
	ErrFileTooLarge      = errors.New("file exceeds size limit")
	ErrTimeout           = errors.New("operation timed out")
	ErrToolNotInstalled  = errors.New("required tool not installed")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrNoPitchFrames     = errors.New("no pitch frames detected")
	ErrNoVocals          = errors.New("vocals stem not found")
)

// Stage names used in ProcessError
const (
	StageDownload   = "download"
	StageSeparation = "vocal_separation"
	StageDetection  = "pitch_detection"
	StageConversion = "conversion"
)

// ProcessError represents a failure in an external process
type ProcessError struct {
	Tool     string // "demucs", "crepe", "yt-dlp", "ffmpeg"
	Stage    string // "download", "vocal_separation", "pitch_detection"
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed at %s (exit %d): %s", e.Tool, e.Stage, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s failed at %s (exit %d)", e.Tool, e.Stage, e.ExitCode)
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// IsRecoverable returns true if a fallback strategy exists for the stage.
// Separation falls back to the mixed audio; crepe falls back to YIN.
func (e *ProcessError) IsRecoverable() bool {
	switch e.Stage {
	case StageSeparation:
		return true
	case StageDetection:
		return e.Tool == "crepe"
	}
	return false
}

// NewProcessError creates a ProcessError
func NewProcessError(tool, stage string, exitCode int, stderr string, cause error) *ProcessError {
	return &ProcessError{
		Tool:     tool,
		Stage:    stage,
		ExitCode: exitCode,
		Stderr:   stderr,
		Cause:    cause,
	}
}

// IsRecoverable reports whether err carries a recoverable ProcessError.
func IsRecoverable(err error) bool {
	var pe *ProcessError
	if errors.As(err, &pe) {
		return pe.IsRecoverable()
	}
	return false
}
