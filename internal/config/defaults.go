package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dygy/melody-grep/internal/notes"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir:   defaultCacheDir(),
			WorkDir:    filepath.Join(os.TempDir(), "melody-grep"),
			ScriptsDir: "scripts/python",
		},
		Server: Server{
			Port:                8000,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 900,
		},
		Segmentation: Segmentation{
			MinDuration:    notes.DefaultMinDuration,
			MinConfidence:  notes.DefaultMinConfidence,
			ReferenceHz:    notes.StandardTuning.ReferenceHz,
			ReferenceIndex: notes.StandardTuning.ReferenceIndex,
		},
		Separation: Separation{
			Enabled:        true,
			Model:          "htdemucs",
			FallbackModel:  "mdx_extra",
			TimeoutSeconds: 600,
		},
		Pitch: Pitch{
			CrepeEnabled:       true,
			CrepeModelCapacity: "medium",
			CrepeStepMS:        10,
			CrepeViterbi:       true,
			YINThreshold:       0.15,
			YINFrameSize:       2048,
			YINHopSize:         512,
			SampleRate:         22050,
			MinHz:              65.41,   // C2
			MaxHz:              2093.00, // C7
			TimeoutSeconds:     600,
		},
		Download: Download{
			AudioFormat:    "wav",
			TimeoutSeconds: 300,
		},
		Logging: Logging{
			Format: "",
			Level:  "info",
		},
	}
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "melody-grep")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/melody-grep"
	}
	return filepath.Join(home, ".cache", "melody-grep")
}
