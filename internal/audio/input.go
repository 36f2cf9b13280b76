package audio

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/dygy/melody-grep/internal/errors"
)

const (
	MaxFileSize = 200 * 1024 * 1024 // 200MB
)

// Format represents an audio file format
type Format string

const (
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatFLAC    Format = "flac"
	FormatOGG     Format = "ogg"
	FormatM4A     Format = "m4a"
	FormatUnknown Format = "unknown"
)

// ValidateInput checks if the input file is valid for processing
func ValidateInput(path string) (Format, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return FormatUnknown, fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, path)
	}
	if err != nil {
		return FormatUnknown, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return FormatUnknown, fmt.Errorf("%w: %s is a directory", apperrors.ErrUnsupportedFormat, path)
	}

	if info.Size() > MaxFileSize {
		return FormatUnknown, fmt.Errorf("%w: maximum size is 200MB", apperrors.ErrFileTooLarge)
	}

	format, err := detectFormat(path)
	if err != nil {
		return FormatUnknown, err
	}

	if format == FormatUnknown {
		return FormatUnknown, fmt.Errorf("%w: please provide a WAV, MP3, FLAC, OGG or M4A file", apperrors.ErrUnsupportedFormat)
	}

	return format, nil
}

// ValidateURL checks that a source URL is an absolute http(s) URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnsupportedFormat, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not an http(s) URL", apperrors.ErrUnsupportedFormat, raw)
	}
	return nil
}

// IsURL reports whether the input looks like a remote source rather than a path.
func IsURL(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}

// detectFormat checks file magic bytes to determine audio format
func detectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("%w: %v", apperrors.ErrCorruptedFile, err)
	}
	defer f.Close()

	header := make([]byte, 12)
	n, err := io.ReadFull(f, header)
	if err != nil && n < 4 {
		return FormatUnknown, fmt.Errorf("%w: could not read file header", apperrors.ErrCorruptedFile)
	}
	header = header[:n]

	// RIFF....WAVE
	if string(header[:4]) == "RIFF" && n >= 12 && string(header[8:12]) == "WAVE" {
		return FormatWAV, nil
	}
	if string(header[:4]) == "fLaC" {
		return FormatFLAC, nil
	}
	if string(header[:4]) == "OggS" {
		return FormatOGG, nil
	}
	if n >= 8 && string(header[4:8]) == "ftyp" {
		return FormatM4A, nil
	}
	if string(header[:3]) == "ID3" {
		return FormatMP3, nil
	}
	// MP3 frame sync
	if header[0] == 0xFF && (header[1]&0xE0) == 0xE0 {
		return FormatMP3, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return FormatWAV, nil
	case ".mp3":
		return FormatMP3, nil
	case ".flac":
		return FormatFLAC, nil
	case ".ogg":
		return FormatOGG, nil
	case ".m4a":
		return FormatM4A, nil
	}

	return FormatUnknown, nil
}
