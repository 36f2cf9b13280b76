package cache

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process is extracting the same song.
var ErrLocked = errors.New("song is being extracted by another process")

// SongLock is an advisory file lock held for the duration of one extraction.
type SongLock struct {
	lock *flock.Flock
}

// LockSong takes the per-song lock without blocking. It returns ErrLocked when
// another holder, in this or another process, already has it.
func (c *MelodyCache) LockSong(songCode string) (*SongLock, error) {
	fl := flock.New(filepath.Join(c.dir, locksDir, songCode+".lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, songCode)
	}
	return &SongLock{lock: fl}, nil
}

// Unlock releases the lock. The lock file is left in place.
func (l *SongLock) Unlock() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
