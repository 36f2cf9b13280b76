package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dygy/melody-grep/internal/cache"
	"github.com/dygy/melody-grep/internal/logging"
	"github.com/dygy/melody-grep/internal/melody"
	"github.com/dygy/melody-grep/internal/notes"
	"github.com/dygy/melody-grep/internal/pipeline"
	"github.com/dygy/melody-grep/internal/progress"
)

// blockingExtractor reports one progress event and then waits for release.
type blockingExtractor struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
	err     error
}

func newBlockingExtractor() *blockingExtractor {
	return &blockingExtractor{started: make(chan struct{}, 4), release: make(chan struct{})}
}

func (e *blockingExtractor) Extract(_ context.Context, req pipeline.Request, obs progress.Observer) (*melody.Record, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	obs.Observe(progress.Event{SongCode: req.SongCode, Stage: progress.StageDownload, Percent: progress.PercentStarted})
	e.started <- struct{}{}
	<-e.release
	if e.err != nil {
		return nil, e.err
	}
	obs.Observe(progress.Event{SongCode: req.SongCode, Stage: progress.StageSegment, Percent: progress.PercentDone})
	segs := []notes.Segment{{Start: 0, End: 1, Note: "C4", Index: 60, Frequency: 261.6, Confidence: 0.9}}
	return melody.NewRecord(req.SongCode, req.SongTitle, 1, segs, time.Now()), nil
}

func (e *blockingExtractor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func newManager(t *testing.T, ex Extractor) (*Manager, *cache.MelodyCache) {
	t.Helper()
	c, err := cache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewManager(NewMemoryStore(), c, ex, logging.Discard()), c
}

func req(code string) pipeline.Request {
	return pipeline.Request{URL: "https://youtu.be/" + code, SongCode: code, SongTitle: "Song " + code}
}

func waitStarted(t *testing.T, e *blockingExtractor) {
	t.Helper()
	select {
	case <-e.started:
	case <-time.After(5 * time.Second):
		t.Fatal("extraction did not start")
	}
}

func TestSubmitLifecycle(t *testing.T) {
	ex := newBlockingExtractor()
	m, c := newManager(t, ex)
	ctx := context.Background()

	job, err := m.Submit(ctx, req("S1"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != StatusProcessing || job.ID == "" || job.SongCode != "S1" {
		t.Errorf("submitted job = %+v", job)
	}
	waitStarted(t, ex)

	status, err := m.Status(ctx, "S1")
	if err != nil || status.Status != StatusProcessing || status.Progress != progress.PercentStarted {
		t.Errorf("in-flight status = %+v, %v", status, err)
	}

	close(ex.release)
	m.Wait()

	status, err = m.Status(ctx, "S1")
	if err != nil || status.Status != StatusCompleted || status.Progress != 100 {
		t.Errorf("final status = %+v, %v", status, err)
	}
	rec, err := m.Melody("S1")
	if err != nil || rec.TotalNotes != 1 || rec.SongTitle != "Song S1" {
		t.Errorf("stored melody = %+v, %v", rec, err)
	}
	if !c.Exists("S1") {
		t.Error("melody not cached")
	}
}

func TestSubmitDuplicateShortCircuits(t *testing.T) {
	ex := newBlockingExtractor()
	m, _ := newManager(t, ex)
	ctx := context.Background()

	first, err := m.Submit(ctx, req("S1"))
	if err != nil {
		t.Fatal(err)
	}
	waitStarted(t, ex)

	second, err := m.Submit(ctx, req("S1"))
	if !errors.Is(err, ErrAlreadyProcessing) {
		t.Fatalf("duplicate err = %v, want ErrAlreadyProcessing", err)
	}
	if second == nil || second.ID != first.ID {
		t.Errorf("duplicate returned %+v, want existing job %s", second, first.ID)
	}
	if _, err := m.Run(ctx, req("S1")); !errors.Is(err, ErrAlreadyProcessing) {
		t.Errorf("sync duplicate err = %v", err)
	}

	other, err := m.Submit(ctx, req("S2"))
	if err != nil || other.SongCode != "S2" {
		t.Errorf("other song = %+v, %v", other, err)
	}
	waitStarted(t, ex)

	close(ex.release)
	m.Wait()
	if n := ex.callCount(); n != 2 {
		t.Errorf("extractions = %d, want 2", n)
	}

	again, err := m.Submit(ctx, req("S1"))
	if err != nil {
		t.Fatalf("resubmit after completion: %v", err)
	}
	if again.ID == first.ID {
		t.Error("resubmission reused the old job id")
	}
	waitStarted(t, ex)
	m.Wait()
}

func TestSubmitLockedByAnotherProcess(t *testing.T) {
	ex := newBlockingExtractor()
	m, c := newManager(t, ex)

	lock, err := c.LockSong("S1")
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Unlock()

	if _, err := m.Submit(context.Background(), req("S1")); !errors.Is(err, ErrAlreadyProcessing) {
		t.Errorf("err = %v, want ErrAlreadyProcessing", err)
	}
	if ex.callCount() != 0 {
		t.Error("extraction ran while the song was locked")
	}
}

func TestSubmitFailureRecordsError(t *testing.T) {
	ex := newBlockingExtractor()
	ex.err = errors.New("yt-dlp failed at download")
	m, c := newManager(t, ex)
	ctx := context.Background()

	if _, err := m.Submit(ctx, req("S1")); err != nil {
		t.Fatal(err)
	}
	waitStarted(t, ex)
	close(ex.release)
	m.Wait()

	status, err := m.Status(ctx, "S1")
	if err != nil || status.Status != StatusError || status.Error != "yt-dlp failed at download" {
		t.Errorf("status = %+v, %v", status, err)
	}
	if c.Exists("S1") {
		t.Error("failed extraction persisted a melody")
	}
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	m, _ := newManager(t, newBlockingExtractor())
	job, err := m.Submit(context.Background(), pipeline.Request{SongCode: "bad code", URL: "https://youtu.be/x"})
	if err == nil || job != nil {
		t.Errorf("Submit = %+v, %v; want validation error", job, err)
	}
	if _, err := m.Status(context.Background(), "bad code"); !errors.Is(err, ErrNotFound) {
		t.Errorf("invalid request recorded a job: %v", err)
	}
}

func TestRunSynchronous(t *testing.T) {
	ex := newBlockingExtractor()
	close(ex.release)
	m, _ := newManager(t, ex)

	rec, err := m.Run(context.Background(), req("S1"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.SongCode != "S1" || rec.TotalNotes != 1 {
		t.Errorf("record = %+v", rec)
	}
	status, _ := m.Status(context.Background(), "S1")
	if status.Status != StatusCompleted {
		t.Errorf("status = %+v", status)
	}
}

func TestStatusFallsBackToCache(t *testing.T) {
	m, c := newManager(t, newBlockingExtractor())
	ctx := context.Background()

	if _, err := m.Status(ctx, "S9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown song err = %v", err)
	}

	if err := c.Put(melody.NewRecord("S9", "", 0, nil, time.Now())); err != nil {
		t.Fatal(err)
	}
	status, err := m.Status(ctx, "S9")
	if err != nil || status.Status != StatusCompleted || status.Progress != 100 {
		t.Errorf("status = %+v, %v", status, err)
	}
}

func TestDelete(t *testing.T) {
	ex := newBlockingExtractor()
	close(ex.release)
	m, _ := newManager(t, ex)
	ctx := context.Background()

	if err := m.Delete(ctx, "S1"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("delete missing err = %v", err)
	}
	if _, err := m.Run(ctx, req("S1")); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, "S1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Status(ctx, "S1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("status after delete err = %v", err)
	}
	if _, err := m.Melody("S1"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("melody after delete err = %v", err)
	}
}

func TestDeleteWhileLockedElsewhere(t *testing.T) {
	m, c := newManager(t, newBlockingExtractor())
	ctx := context.Background()

	if err := c.Put(melody.NewRecord("S1", "One", 0, nil, time.Now())); err != nil {
		t.Fatal(err)
	}
	other, err := cache.New(c.Dir())
	if err != nil {
		t.Fatal(err)
	}
	lock, err := other.LockSong("S1")
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Delete(ctx, "S1"); !errors.Is(err, ErrAlreadyProcessing) {
		t.Errorf("Delete while locked err = %v, want ErrAlreadyProcessing", err)
	}
	if !c.Exists("S1") {
		t.Error("melody removed while another process held the song lock")
	}

	if err := lock.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, "S1"); err != nil {
		t.Errorf("Delete after unlock: %v", err)
	}
}

func TestFailInterruptedSkipsLockedSongs(t *testing.T) {
	c, err := cache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := NewMemoryStore()
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, job := range []*Job{
		{ID: "a", SongCode: "S1", Status: StatusProcessing, CreatedAt: at, UpdatedAt: at},
		{ID: "b", SongCode: "S2", Status: StatusProcessing, CreatedAt: at, UpdatedAt: at},
		{ID: "c", SongCode: "S3", Status: StatusCompleted, Progress: 100, CreatedAt: at, UpdatedAt: at},
	} {
		if err := store.Create(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	other, err := cache.New(c.Dir())
	if err != nil {
		t.Fatal(err)
	}
	lock, err := other.LockSong("S2")
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Unlock()

	m := NewManager(store, c, newBlockingExtractor(), logging.Discard())
	n, err := m.FailInterrupted(ctx, "interrupted by restart")
	if err != nil || n != 1 {
		t.Fatalf("FailInterrupted = %d, %v; want 1", n, err)
	}

	s1, _ := store.Get(ctx, "S1")
	if s1.Status != StatusError || s1.Error != "interrupted by restart" || !s1.UpdatedAt.After(at) {
		t.Errorf("S1 = %+v", s1)
	}
	if s2, _ := store.Get(ctx, "S2"); s2.Status != StatusProcessing {
		t.Errorf("S2 running elsewhere was marked %s", s2.Status)
	}
	if s3, _ := store.Get(ctx, "S3"); s3.Status != StatusCompleted {
		t.Errorf("completed S3 changed to %s", s3.Status)
	}

	released, err := other.LockSong("S1")
	if err != nil {
		t.Fatalf("S1 lock not released: %v", err)
	}
	_ = released.Unlock()
}

func TestSubscribeStreamsUntilDone(t *testing.T) {
	ex := newBlockingExtractor()
	m, _ := newManager(t, ex)

	if _, _, ok := m.Subscribe("S1"); ok {
		t.Fatal("subscribe succeeded with nothing running")
	}

	if _, err := m.Submit(context.Background(), req("S1")); err != nil {
		t.Fatal(err)
	}
	waitStarted(t, ex)

	events, cancel, ok := m.Subscribe("S1")
	if !ok {
		t.Fatal("subscribe failed for running job")
	}
	defer cancel()

	close(ex.release)

	var got []int
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case e, open := <-events:
			if !open {
				done = true
				break
			}
			got = append(got, e.Percent)
		case <-timeout:
			t.Fatal("event stream did not close")
		}
	}
	m.Wait()

	if len(got) < 2 || got[0] != progress.PercentStarted || got[len(got)-1] != 100 {
		t.Errorf("percents = %v, want replay of 5 then through 100", got)
	}
}
