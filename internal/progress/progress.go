package progress

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Stage represents a processing stage
type Stage struct {
	Number      int
	Total       int
	Name        string
	Description string
}

// Predefined stages of a melody extraction
var (
	StageDownload = Stage{1, 4, "download", "Fetching audio..."}
	StageSeparate = Stage{2, 4, "separate", "Separating vocals... (this may take a moment)"}
	StageDetect   = Stage{3, 4, "detect", "Detecting pitch..."}
	StageSegment  = Stage{4, 4, "segment", "Grouping notes..."}
)

// Milestone percentages reported during an extraction. They only ever
// increase within one job.
const (
	PercentStarted    = 5
	PercentDownloaded = 20
	PercentSeparating = 25
	PercentSeparated  = 60
	PercentDetecting  = 65
	PercentDetected   = 90
	PercentDone       = 100
)

// Event is one progress notification for a job.
type Event struct {
	SongCode string
	Stage    Stage
	Percent  int
	Message  string
	Warning  bool
	At       time.Time
}

// Observer receives progress events. Implementations must not block for long;
// the pipeline calls Observe synchronously.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

// Nop discards all events.
var Nop Observer = ObserverFunc(func(Event) {})

// Multi fans an event out to several observers in order.
func Multi(observers ...Observer) Observer {
	return ObserverFunc(func(e Event) {
		for _, o := range observers {
			if o != nil {
				o.Observe(e)
			}
		}
	})
}

// Monotonic drops events whose percentage would move backwards.
func Monotonic(next Observer) Observer {
	var mu sync.Mutex
	last := 0
	return ObserverFunc(func(e Event) {
		mu.Lock()
		if e.Percent < last {
			e.Percent = last
		}
		last = e.Percent
		mu.Unlock()
		next.Observe(e)
	})
}

// Channel delivers events on a buffered channel. When the buffer is full the
// oldest undelivered event is dropped so the pipeline never blocks on a slow
// subscriber.
type Channel struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewChannel creates a channel observer with the given buffer size.
func NewChannel(size int) *Channel {
	if size < 1 {
		size = 1
	}
	return &Channel{ch: make(chan Event, size)}
}

// Observe enqueues the event.
func (c *Channel) Observe(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for {
		select {
		case c.ch <- e:
			return
		default:
			select {
			case <-c.ch:
			default:
			}
		}
	}
}

// Events returns the receive side.
func (c *Channel) Events() <-chan Event {
	return c.ch
}

// Close stops delivery and closes the channel. Safe to call twice.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

// Reporter handles CLI progress output
type Reporter struct {
	out       io.Writer
	startTime time.Time
	verbose   bool
	lastStage string
}

// NewReporter creates a new progress reporter
func NewReporter(out io.Writer, verbose bool) *Reporter {
	return &Reporter{
		out:       out,
		startTime: time.Now(),
		verbose:   verbose,
	}
}

// Observe prints stage headers once and sub-messages underneath them.
func (r *Reporter) Observe(e Event) {
	if e.Stage.Name != "" && e.Stage.Name != r.lastStage {
		r.lastStage = e.Stage.Name
		fmt.Fprintf(r.out, "[%d/%d] %s\n", e.Stage.Number, e.Stage.Total, e.Stage.Description)
	}
	switch {
	case e.Warning:
		r.Warning("%s", e.Message)
	case e.Message != "":
		r.StageComplete("%s", e.Message)
	case r.verbose:
		r.StageComplete("%d%%", e.Percent)
	}
}

// StageComplete shows completion message for a stage
func (r *Reporter) StageComplete(format string, args ...any) {
	fmt.Fprintf(r.out, "       %s\n", fmt.Sprintf(format, args...))
}

// Done announces successful completion
func (r *Reporter) Done(totalNotes int, outputPath string) {
	elapsed := time.Since(r.startTime)
	fmt.Fprintf(r.out, "Done! %d notes extracted.\n", totalNotes)
	if outputPath != "" {
		fmt.Fprintf(r.out, "Output saved to: %s\n", outputPath)
	}
	fmt.Fprintf(r.out, "Completed in %.1f seconds\n", elapsed.Seconds())
}

// Error announces an error
func (r *Reporter) Error(err error) {
	fmt.Fprintf(r.out, "Error: %s\n", err)
}

// Warning announces a non-fatal warning
func (r *Reporter) Warning(format string, args ...any) {
	fmt.Fprintf(r.out, "Warning: %s\n", fmt.Sprintf(format, args...))
}
