package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dygy/melody-grep/internal/melody"
)

// ErrNotFound is returned when no melody is stored for a song code.
var ErrNotFound = errors.New("melody not found")

const (
	melodiesDir = "melodies"
	locksDir    = "locks"
)

// MelodyCache stores one JSON melody record per song code.
type MelodyCache struct {
	dir string
}

// Entry summarizes a stored melody without its notes.
type Entry struct {
	SongCode    string
	SongTitle   string
	TotalNotes  int
	Duration    float64
	ProcessedAt time.Time
	Size        int64
}

// New opens (creating if needed) a melody cache rooted at dir.
func New(dir string) (*MelodyCache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is required")
	}
	for _, sub := range []string{melodiesDir, locksDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return &MelodyCache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *MelodyCache) Dir() string {
	return c.dir
}

// Path returns the file a song's melody is stored in.
func (c *MelodyCache) Path(songCode string) string {
	return filepath.Join(c.dir, melodiesDir, songCode+".json")
}

// Exists reports whether a melody is stored for songCode.
func (c *MelodyCache) Exists(songCode string) bool {
	return fileExists(c.Path(songCode))
}

// Get loads the stored melody for songCode.
func (c *MelodyCache) Get(songCode string) (*melody.Record, error) {
	data, err := os.ReadFile(c.Path(songCode))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, songCode)
		}
		return nil, fmt.Errorf("read melody: %w", err)
	}

	var rec melody.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode melody %s: %w", songCode, err)
	}
	return &rec, nil
}

// Put stores rec, replacing any previous melody for the same song. The file
// is written to a temporary name and renamed so readers never see a partial
// record.
func (c *MelodyCache) Put(rec *melody.Record) error {
	if rec == nil || rec.SongCode == "" {
		return errors.New("melody record without song code")
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal melody: %w", err)
	}

	final := c.Path(rec.SongCode)
	tmp, err := os.CreateTemp(filepath.Dir(final), "."+rec.SongCode+"-*.tmp")
	if err != nil {
		return fmt.Errorf("write melody: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write melody: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write melody: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return fmt.Errorf("write melody: %w", err)
	}
	return nil
}

// Delete removes the stored melody for songCode.
func (c *MelodyCache) Delete(songCode string) error {
	err := os.Remove(c.Path(songCode))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, songCode)
	}
	return err
}

// List returns summaries of every stored melody, newest first. Unreadable
// files are skipped.
func (c *MelodyCache) List() ([]Entry, error) {
	dir := filepath.Join(c.dir, melodiesDir)
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache dir: %w", err)
	}

	var entries []Entry
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		rec, err := c.Get(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		var size int64
		if info, err := f.Info(); err == nil {
			size = info.Size()
		}
		entries = append(entries, Entry{
			SongCode:    rec.SongCode,
			SongTitle:   rec.SongTitle,
			TotalNotes:  rec.TotalNotes,
			Duration:    rec.Duration,
			ProcessedAt: rec.ProcessedAt,
			Size:        size,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ProcessedAt.Equal(entries[j].ProcessedAt) {
			return entries[i].SongCode < entries[j].SongCode
		}
		return entries[i].ProcessedAt.After(entries[j].ProcessedAt)
	})
	return entries, nil
}

// Size returns the total size of stored melodies in bytes and their count.
func (c *MelodyCache) Size() (int64, int, error) {
	entries, err := c.List()
	if err != nil {
		return 0, 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	return total, len(entries), nil
}

// SongCodeForURL derives a song code from a source URL
func SongCodeForURL(url string) string {
	videoID := extractYouTubeID(url)
	if videoID == "" {
		return "url_" + hashString(url)
	}
	return "yt_" + videoID
}

// SongCodeForFile derives a song code from a file's content hash
func SongCodeForFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}

	return "file_" + hex.EncodeToString(hash.Sum(nil))[:16], nil
}

var youtubeIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`youtube\.com/watch\?(?:.*&)?v=([\w-]+)`),
	regexp.MustCompile(`youtube\.com/shorts/([\w-]+)`),
	regexp.MustCompile(`youtu\.be/([\w-]+)`),
}

// extractYouTubeID extracts video ID from various YouTube URL formats
func extractYouTubeID(url string) string {
	for _, re := range youtubeIDPatterns {
		if matches := re.FindStringSubmatch(url); len(matches) > 1 {
			return matches[1]
		}
	}
	return ""
}

func hashString(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])[:16]
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
