package audio

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lrstanley/go-ytdlp"

	apperrors "github.com/dygy/melody-grep/internal/errors"
	"github.com/dygy/melody-grep/internal/exec"
)

var youtubePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(www\.)?youtube\.com/watch\?v=[\w-]+`),
	regexp.MustCompile(`^https?://(www\.)?youtube\.com/shorts/[\w-]+`),
	regexp.MustCompile(`^https?://(www\.)?youtube\.com/embed/[\w-]+`),
	regexp.MustCompile(`^https?://youtu\.be/[\w-]+`),
	regexp.MustCompile(`^https?://music\.youtube\.com/watch\?v=[\w-]+`),
}

// IsYouTubeURL checks if the given string is a YouTube URL
func IsYouTubeURL(raw string) bool {
	for _, pattern := range youtubePatterns {
		if pattern.MatchString(raw) {
			return true
		}
	}
	return false
}

// VideoID extracts the video identifier from a YouTube URL.
func VideoID(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Host)
	switch {
	case strings.Contains(host, "youtu.be"):
		id := strings.Trim(u.Path, "/")
		return id, id != ""
	case strings.Contains(host, "youtube.com"):
		if v := u.Query().Get("v"); v != "" {
			return v, true
		}
		for _, prefix := range []string{"/shorts/", "/embed/", "/v/"} {
			if strings.HasPrefix(u.Path, prefix) {
				id := strings.Trim(strings.TrimPrefix(u.Path, prefix), "/")
				return id, id != ""
			}
		}
	}
	return "", false
}

// YouTubeDownloader fetches audio from any URL yt-dlp understands.
type YouTubeDownloader struct {
	Format string // preferred audio format, "wav" by default
}

// NewYouTubeDownloader creates a new downloader
func NewYouTubeDownloader(format string) *YouTubeDownloader {
	if format == "" {
		format = "wav"
	}
	return &YouTubeDownloader{Format: format}
}

// Download writes the audio track of sourceURL into outputDir and returns the
// resulting file path. When the preferred format fails it retries as mp3.
func (d *YouTubeDownloader) Download(ctx context.Context, sourceURL, outputDir string) (string, error) {
	if err := exec.LookPath("yt-dlp"); err != nil {
		return "", fmt.Errorf("%w: yt-dlp (pip install yt-dlp)", apperrors.ErrToolNotInstalled)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	path, err := d.download(ctx, sourceURL, outputDir, d.Format)
	if err == nil || d.Format == "mp3" || ctx.Err() != nil {
		return path, err
	}
	return d.download(ctx, sourceURL, outputDir, "mp3")
}

func (d *YouTubeDownloader) download(ctx context.Context, sourceURL, outputDir, format string) (string, error) {
	tmpl := filepath.Join(outputDir, "input.%(ext)s")

	result, err := ytdlp.New().
		NoPlaylist().
		ExtractAudio().
		AudioFormat(format).
		AudioQuality("0").
		NoWarnings().
		Output(tmpl).
		Run(ctx, sourceURL)
	if err != nil {
		exitCode, stderr := 0, ""
		if result != nil {
			exitCode, stderr = result.ExitCode, result.Stderr
		}
		return "", apperrors.NewProcessError("yt-dlp", apperrors.StageDownload, exitCode, strings.TrimSpace(stderr), err)
	}

	path := filepath.Join(outputDir, "input."+format)
	if _, err := os.Stat(path); err != nil {
		matches, _ := filepath.Glob(filepath.Join(outputDir, "input.*"))
		if len(matches) == 0 {
			return "", fmt.Errorf("%w: yt-dlp produced no audio file", apperrors.ErrFileNotFound)
		}
		path = matches[0]
	}
	return path, nil
}
