package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dygy/melody-grep/internal/cache"
	"github.com/dygy/melody-grep/internal/melody"
	"github.com/dygy/melody-grep/internal/pipeline"
	"github.com/dygy/melody-grep/internal/progress"
)

// Extractor runs one extraction. *pipeline.Coordinator satisfies it.
type Extractor interface {
	Extract(ctx context.Context, req pipeline.Request, obs progress.Observer) (*melody.Record, error)
}

// Manager admits extraction jobs, records their status and persists results.
// At most one extraction per song code runs at a time, across processes
// sharing the same cache directory.
type Manager struct {
	store     Store
	cache     *cache.MelodyCache
	extractor Extractor
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	running map[string]*hub
	wg      sync.WaitGroup
}

// NewManager creates a job manager.
func NewManager(store Store, melodies *cache.MelodyCache, extractor Extractor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		cache:     melodies,
		extractor: extractor,
		logger:    logger.With("component", "jobs"),
		now:       time.Now,
		running:   make(map[string]*hub),
	}
}

// active is an admitted extraction holding the song lock.
type active struct {
	job  *Job
	hub  *hub
	lock *cache.SongLock
}

// Submit starts an extraction in the background and returns its job. If the
// song is already being extracted it returns the existing job together with
// ErrAlreadyProcessing. Invalid requests fail before any job is recorded.
func (m *Manager) Submit(ctx context.Context, req pipeline.Request) (*Job, error) {
	a, err := m.admit(ctx, req)
	if err != nil {
		return a.existing(), err
	}

	snapshot := a.job.Clone()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// Jobs outlive the request that started them.
		_, _ = m.execute(context.WithoutCancel(ctx), req, a)
	}()
	return snapshot, nil
}

// Run performs an extraction synchronously, recording status and persisting
// the result exactly like Submit. Cancelling ctx does not stop an admitted
// extraction; callers that stop waiting should poll Status instead.
func (m *Manager) Run(ctx context.Context, req pipeline.Request) (*melody.Record, error) {
	a, err := m.admit(ctx, req)
	if err != nil {
		return nil, err
	}
	m.wg.Add(1)
	defer m.wg.Done()
	return m.execute(context.WithoutCancel(ctx), req, a)
}

// existing returns the job an admission collided with, if any.
func (a *active) existing() *Job {
	if a == nil {
		return nil
	}
	return a.job.Clone()
}

func (m *Manager) admit(ctx context.Context, req pipeline.Request) (*active, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.running[req.SongCode]; busy {
		job, _ := m.store.Get(ctx, req.SongCode)
		return &active{job: job}, fmt.Errorf("%w: %s", ErrAlreadyProcessing, req.SongCode)
	}

	lock, err := m.cache.LockSong(req.SongCode)
	if err != nil {
		if errors.Is(err, cache.ErrLocked) {
			job, _ := m.store.Get(ctx, req.SongCode)
			return &active{job: job}, fmt.Errorf("%w: %s", ErrAlreadyProcessing, req.SongCode)
		}
		return nil, err
	}

	now := m.now()
	job := &Job{
		ID:        uuid.NewString(),
		SongCode:  req.SongCode,
		SongTitle: req.SongTitle,
		SourceURL: req.URL,
		Status:    StatusProcessing,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, job); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("record job: %w", err)
	}

	h := newHub()
	m.running[req.SongCode] = h
	return &active{job: job, hub: h, lock: lock}, nil
}

func (m *Manager) execute(ctx context.Context, req pipeline.Request, a *active) (*melody.Record, error) {
	job := a.job
	logger := m.logger.With("job_id", job.ID, "song_code", job.SongCode)

	defer func() {
		m.mu.Lock()
		delete(m.running, job.SongCode)
		m.mu.Unlock()
		a.hub.close()
		if err := a.lock.Unlock(); err != nil {
			logger.Warn("release song lock failed", "error", err)
		}
	}()

	obs := progress.ObserverFunc(func(e progress.Event) {
		job.Progress = e.Percent
		job.Stage = e.Stage.Name
		job.Message = e.Message
		job.UpdatedAt = m.now()
		if err := m.store.Update(ctx, job); err != nil {
			logger.Warn("update job progress failed", "error", err)
		}
		a.hub.Observe(e)
	})

	record, err := m.extractor.Extract(ctx, req, obs)
	if err == nil {
		err = m.cache.Put(record)
	}

	job.UpdatedAt = m.now()
	if err != nil {
		job.Status = StatusError
		job.Error = err.Error()
		logger.Error("extraction failed", "error", err)
	} else {
		job.Status = StatusCompleted
		job.Progress = progress.PercentDone
		logger.Info("melody stored", "notes", record.TotalNotes, "path", m.cache.Path(job.SongCode))
	}
	if uerr := m.store.Update(context.WithoutCancel(ctx), job); uerr != nil {
		logger.Warn("record final job status failed", "error", uerr)
	}
	a.hub.Observe(progress.Event{
		SongCode: job.SongCode,
		Percent:  job.Progress,
		Message:  string(job.Status),
		Warning:  job.Status == StatusError,
		At:       job.UpdatedAt,
	})

	if err != nil {
		return nil, err
	}
	return record, nil
}

// Status returns the job for songCode. When no job is recorded but a melody
// is cached, a completed status is synthesized.
func (m *Manager) Status(ctx context.Context, songCode string) (*Job, error) {
	job, err := m.store.Get(ctx, songCode)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if m.cache.Exists(songCode) {
		return &Job{SongCode: songCode, Status: StatusCompleted, Progress: progress.PercentDone}, nil
	}
	return nil, err
}

// Subscribe streams progress events for a running job. ok is false when the
// song has nothing in flight. The returned cancel must be called once the
// caller stops reading.
func (m *Manager) Subscribe(songCode string) (events <-chan progress.Event, cancel func(), ok bool) {
	m.mu.Lock()
	h, running := m.running[songCode]
	m.mu.Unlock()
	if !running {
		return nil, func() {}, false
	}
	ch, cancel := h.subscribe()
	return ch, cancel, true
}

// Delete removes the cached melody and job status for songCode. It returns
// cache.ErrNotFound when no melody is stored and ErrAlreadyProcessing while an
// extraction is running.
func (m *Manager) Delete(ctx context.Context, songCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.running[songCode]; busy {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessing, songCode)
	}
	lock, err := m.cache.LockSong(songCode)
	if err != nil {
		if errors.Is(err, cache.ErrLocked) {
			return fmt.Errorf("%w: %s", ErrAlreadyProcessing, songCode)
		}
		return err
	}
	defer lock.Unlock()

	if err := m.cache.Delete(songCode); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, songCode); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// FailInterrupted marks jobs left in processing by a process that no longer
// runs as failed. Jobs whose song lock is still held elsewhere are left alone.
// It returns the number of jobs updated.
func (m *Manager) FailInterrupted(ctx context.Context, message string) (int, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for _, job := range all {
		if job.Status != StatusProcessing {
			continue
		}
		if _, busy := m.running[job.SongCode]; busy {
			continue
		}
		lock, err := m.cache.LockSong(job.SongCode)
		if errors.Is(err, cache.ErrLocked) {
			m.logger.Info("job still running in another process", "song_code", job.SongCode)
			continue
		}
		if err != nil {
			return n, err
		}

		job.Status = StatusError
		job.Error = message
		job.UpdatedAt = m.now()
		err = m.store.Update(ctx, job)
		_ = lock.Unlock()
		if err != nil {
			return n, fmt.Errorf("fail interrupted job %s: %w", job.SongCode, err)
		}
		n++
	}
	return n, nil
}

// Melody returns the stored melody for songCode.
func (m *Manager) Melody(songCode string) (*melody.Record, error) {
	return m.cache.Get(songCode)
}

// Wait blocks until every background job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// hub fans progress events out to SSE subscribers.
type hub struct {
	mu     sync.Mutex
	subs   map[*progress.Channel]struct{}
	last   *progress.Event
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[*progress.Channel]struct{})}
}

func (h *hub) Observe(e progress.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &e
	for ch := range h.subs {
		ch.Observe(e)
	}
}

// subscribe registers a channel primed with the latest event.
func (h *hub) subscribe() (<-chan progress.Event, func()) {
	ch := progress.NewChannel(16)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ch.Close()
		return ch.Events(), func() {}
	}
	if h.last != nil {
		ch.Observe(*h.last)
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch.Events(), func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		ch.Close()
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		ch.Close()
	}
	h.subs = map[*progress.Channel]struct{}{}
}
