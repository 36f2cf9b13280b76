package progress

import (
	"bytes"
	"strings"
	"testing"
)

func TestMonotonicClampsRegression(t *testing.T) {
	var got []int
	obs := Monotonic(ObserverFunc(func(e Event) { got = append(got, e.Percent) }))

	for _, p := range []int{5, 20, 10, 60, 60, 100} {
		obs.Observe(Event{Percent: p})
	}

	want := []int{5, 20, 20, 60, 60, 100}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("percents = %v, want %v", got, want)
		}
	}
}

func TestChannelDropsOldestWhenFull(t *testing.T) {
	c := NewChannel(2)
	c.Observe(Event{Percent: 5})
	c.Observe(Event{Percent: 20})
	c.Observe(Event{Percent: 25})
	c.Close()
	c.Close()
	c.Observe(Event{Percent: 60})

	var got []int
	for e := range c.Events() {
		got = append(got, e.Percent)
	}
	if len(got) != 2 || got[0] != 20 || got[1] != 25 {
		t.Fatalf("events = %v, want [20 25]", got)
	}
}

func TestMultiFansOut(t *testing.T) {
	var a, b int
	obs := Multi(ObserverFunc(func(Event) { a++ }), nil, ObserverFunc(func(Event) { b++ }))
	obs.Observe(Event{})
	obs.Observe(Event{})
	if a != 2 || b != 2 {
		t.Errorf("a=%d b=%d, want 2 each", a, b)
	}
}

func TestReporterPrintsStagesOnce(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, false)

	r.Observe(Event{Stage: StageDownload, Percent: PercentStarted})
	r.Observe(Event{Stage: StageDownload, Percent: PercentDownloaded, Message: "Downloaded input.wav"})
	r.Observe(Event{Stage: StageSeparate, Percent: PercentSeparated, Message: "demucs failed", Warning: true})

	out := buf.String()
	if strings.Count(out, "[1/4]") != 1 {
		t.Errorf("download header should appear once:\n%s", out)
	}
	if !strings.Contains(out, "[2/4] Separating vocals") {
		t.Errorf("missing separation header:\n%s", out)
	}
	if !strings.Contains(out, "Warning: demucs failed") {
		t.Errorf("missing warning:\n%s", out)
	}
}
