package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/dygy/melody-grep/internal/errors"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
		want Format
	}{
		{"wav", "a.bin", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), FormatWAV},
		{"id3 mp3", "a.bin", []byte("ID3\x03\x00\x00\x00\x00\x00\x00\x00\x00"), FormatMP3},
		{"mp3 frame sync", "a.bin", []byte{0xFF, 0xFB, 0x90, 0x00, 0, 0, 0, 0}, FormatMP3},
		{"flac", "a.bin", []byte("fLaC\x00\x00\x00\x22"), FormatFLAC},
		{"ogg", "a.bin", []byte("OggS\x00\x02\x00\x00"), FormatOGG},
		{"m4a", "a.bin", []byte("\x00\x00\x00\x20ftypM4A "), FormatM4A},
		{"extension fallback", "a.mp3", []byte("garbage!"), FormatMP3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateInput(writeFile(t, tt.file, tt.data))
			if err != nil {
				t.Fatalf("ValidateInput: %v", err)
			}
			if got != tt.want {
				t.Errorf("format = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidateInputErrors(t *testing.T) {
	if _, err := ValidateInput(filepath.Join(t.TempDir(), "missing.wav")); !errors.Is(err, apperrors.ErrFileNotFound) {
		t.Errorf("missing file err = %v, want ErrFileNotFound", err)
	}
	if _, err := ValidateInput(writeFile(t, "notes.txt", []byte("hello world"))); !errors.Is(err, apperrors.ErrUnsupportedFormat) {
		t.Errorf("text file err = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := ValidateInput(writeFile(t, "tiny.wav", []byte("RI"))); !errors.Is(err, apperrors.ErrCorruptedFile) {
		t.Errorf("short file err = %v, want ErrCorruptedFile", err)
	}
	if _, err := ValidateInput(t.TempDir()); !errors.Is(err, apperrors.ErrUnsupportedFormat) {
		t.Errorf("directory err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestValidateURL(t *testing.T) {
	for _, ok := range []string{"https://youtu.be/abc", "http://example.com/a.mp3"} {
		if err := ValidateURL(ok); err != nil {
			t.Errorf("ValidateURL(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "ftp://example.com/a", "/tmp/a.wav", "https://"} {
		if err := ValidateURL(bad); err == nil {
			t.Errorf("ValidateURL(%q) succeeded", bad)
		}
	}
}
