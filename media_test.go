package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"testing"
	"time"
)

type fakeElement struct {
	mu         sync.Mutex
	calls      []string
	failOn     string
	onMetadata func()
}

func (f *fakeElement) record(call string) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	fail := f.failOn
	f.mu.Unlock()

	if fail != "" && fail == call {
		return fmt.Errorf("fake %s failed", call)
	}
	return nil
}

func (f *fakeElement) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.calls)
}

func (f *fakeElement) WaitMetadata(ctx context.Context) error {
	if f.onMetadata != nil {
		f.onMetadata()
	}
	return f.record("metadata")
}

func (f *fakeElement) Seek(ctx context.Context, t float64) error {
	return f.record(fmt.Sprintf("seek %g", t))
}

func (f *fakeElement) Play(ctx context.Context) error {
	return f.record("play")
}

func (f *fakeElement) Pause() error {
	return f.record("pause")
}

type fakeGraph struct {
	mu       sync.Mutex
	attaches int
	failures int
}

func (g *fakeGraph) Attach(ctx context.Context, el MediaElement, cfg AnalyserConfig) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.attaches++
	if g.failures > 0 {
		g.failures--
		return errors.New("analyser unavailable")
	}
	return nil
}

type mediaFixture struct {
	audio  *fakeElement
	video  *fakeElement
	graph  *fakeGraph
	errs   []error
	ctrl   *MediaController
	mu     sync.Mutex
	clock  time.Time
	ctx    context.Context
	cancel context.CancelFunc
}

func newMediaFixture(t *testing.T) *mediaFixture {
	t.Helper()

	f := &mediaFixture{
		audio: &fakeElement{},
		video: &fakeElement{},
		graph: &fakeGraph{},
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	f.ctrl = NewMediaController(f.audio, f.video, NewAudioTap(f.graph, defaultAnalyser), func(err error) {
		f.mu.Lock()
		f.errs = append(f.errs, err)
		f.mu.Unlock()
	})
	f.ctrl.now = func() time.Time { return f.clock }

	f.ctx, f.cancel = context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(f.cancel)

	return f
}

func (f *mediaFixture) reported() []error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.errs)
}

func equalCalls(got []string, want ...string) bool {
	return slices.Equal(got, want)
}

func TestClampSegment(t *testing.T) {
	t.Parallel()

	nan := math.NaN()

	cases := []struct {
		name       string
		start, end *float64
		want       Segment
	}{
		{"defaults", nil, nil, Segment{0, 2}},
		{"negative start", floatPtr(-3), nil, Segment{0, 2}},
		{"explicit", floatPtr(2), floatPtr(5), Segment{2, 5}},
		{"end before start", floatPtr(2), floatPtr(1), Segment{2, 4}},
		{"nan start", &nan, floatPtr(1), Segment{0, 1}},
	}

	for _, tc := range cases {
		if got := ClampSegment(tc.start, tc.end); got != tc.want {
			t.Fatalf("%s: expected %+v, got %+v", tc.name, tc.want, got)
		}
	}
}

func TestMediaPlayAudioSegment(t *testing.T) {
	t.Parallel()

	f := newMediaFixture(t)
	f.ctrl.Load("/video/a.mp4", floatPtr(2), floatPtr(5), false)
	f.ctrl.PlayAudio(f.ctx)

	if got := f.audio.Calls(); !equalCalls(got, "metadata", "seek 2", "play") {
		t.Fatalf("unexpected audio calls %v", got)
	}
	if len(f.video.Calls()) != 0 {
		t.Fatalf("video must stay idle during guess, got %v", f.video.Calls())
	}

	f.ctrl.HandleAudioEvent(EventPlay, 2)
	if s := f.ctrl.State(); !s.AudioPlaying || s.ShowReplay || !s.Visualize {
		t.Fatalf("expected playing with visualizer and no replay, got %+v", s)
	}

	f.ctrl.HandleAudioEvent(EventTimeUpdate, 4.5)
	if slices.Contains(f.audio.Calls(), "pause") {
		t.Fatal("paused before the segment end")
	}

	f.ctrl.HandleAudioEvent(EventTimeUpdate, 4.97)
	if got := f.audio.Calls(); got[len(got)-1] != "pause" {
		t.Fatalf("expected pause at segment end, got %v", got)
	}

	s := f.ctrl.State()
	if s.AudioPlaying || !s.AudioEnded || !s.ShowReplay || s.Visualize {
		t.Fatalf("expected ended with replay, got %+v", s)
	}

	f.ctrl.HandleAudioEvent(EventTimeUpdate, 5.1)
	pauses := 0
	for _, c := range f.audio.Calls() {
		if c == "pause" {
			pauses++
		}
	}
	if pauses != 1 {
		t.Fatalf("expected a single stop, got %d pauses", pauses)
	}
}

func TestMediaReplay(t *testing.T) {
	t.Parallel()

	f := newMediaFixture(t)
	f.ctrl.Load("/video/a.mp4", floatPtr(1), nil, false)
	f.ctrl.PlayAudio(f.ctx)
	f.ctrl.HandleAudioEvent(EventEnded, 3)

	f.ctrl.ReplayAudio(f.ctx)

	if got := f.audio.Calls(); !equalCalls(got, "metadata", "seek 1", "play", "pause", "metadata", "seek 1", "play") {
		t.Fatalf("unexpected replay calls %v", got)
	}
}

func TestMediaTapAttachedOnce(t *testing.T) {
	t.Parallel()

	f := newMediaFixture(t)
	f.ctrl.Load("/video/a.mp4", nil, nil, false)

	f.ctrl.PlayAudio(f.ctx)
	f.ctrl.PlayAudio(f.ctx)
	f.ctrl.Load("/video/b.mp4", nil, nil, false)
	f.ctrl.PlayAudio(f.ctx)

	if f.graph.attaches != 1 {
		t.Fatalf("expected a single analyser attach, got %d", f.graph.attaches)
	}
}

func TestAudioTapDetachStartsNewSession(t *testing.T) {
	t.Parallel()

	graph := &fakeGraph{}
	tap := NewAudioTap(graph, defaultAnalyser)
	ctx := context.Background()

	if tap.Attached() {
		t.Fatal("expected a new tap to start detached")
	}

	for range 2 {
		if err := tap.Ensure(ctx, &fakeElement{}); err != nil {
			t.Fatalf("ensure: %v", err)
		}
	}
	if graph.attaches != 1 || !tap.Attached() {
		t.Fatalf("expected one attach in the first session, got %d", graph.attaches)
	}

	tap.Detach()
	if tap.Attached() {
		t.Fatal("expected detach to clear the attach")
	}

	if err := tap.Ensure(ctx, &fakeElement{}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if graph.attaches != 2 || !tap.Attached() {
		t.Fatalf("expected a second attach for the new session, got %d", graph.attaches)
	}
}

func TestMediaFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	f := newMediaFixture(t)
	f.graph.failures = 1

	f.ctrl.Load("/video/a.mp4", nil, nil, false)
	f.ctrl.PlayAudio(f.ctx)

	if len(f.audio.Calls()) != 0 {
		t.Fatalf("expected playback to stop at the failed attach, got %v", f.audio.Calls())
	}
	if len(f.reported()) != 1 {
		t.Fatalf("expected one reported error, got %v", f.reported())
	}
	if s := f.ctrl.State(); !s.ShowReplay {
		t.Fatalf("expected replay after a failed play, got %+v", s)
	}

	f.ctrl.PlayAudio(f.ctx)
	if f.graph.attaches != 2 {
		t.Fatalf("expected attach retried, got %d", f.graph.attaches)
	}
	if got := f.audio.Calls(); !equalCalls(got, "metadata", "seek 0", "play") {
		t.Fatalf("expected retry to play, got %v", got)
	}

	f.audio.failOn = "play"
	f.ctrl.PlayAudio(f.ctx)
	if len(f.reported()) != 2 {
		t.Fatalf("expected play failure reported, got %v", f.reported())
	}
}

func TestMediaNoSource(t *testing.T) {
	t.Parallel()

	f := newMediaFixture(t)
	f.ctrl.Load("", nil, nil, false)

	f.ctrl.PlayAudio(f.ctx)
	f.ctrl.ReplayAudio(f.ctx)

	if len(f.audio.Calls()) != 0 || f.graph.attaches != 0 {
		t.Fatalf("expected no playback without a source, got %v", f.audio.Calls())
	}
	if len(f.reported()) != 0 {
		t.Fatalf("missing media is not an error, got %v", f.reported())
	}

	s := f.ctrl.State()
	if !s.Placeholder || s.ShowReplay {
		t.Fatalf("expected placeholder without replay, got %+v", s)
	}
}

func TestMediaRevealVideo(t *testing.T) {
	t.Parallel()

	f := newMediaFixture(t)

	f.ctrl.Load("/video/a.mp4", floatPtr(2), floatPtr(3), false)
	f.ctrl.PlayVideo(f.ctx)
	if len(f.video.Calls()) != 0 {
		t.Fatalf("video must not play before reveal, got %v", f.video.Calls())
	}

	f.ctrl.Load("/video/a.mp4", floatPtr(2), floatPtr(3), true)
	f.ctrl.PlayVideo(f.ctx)

	if got := f.video.Calls(); !equalCalls(got, "metadata", "pause", "seek 0", "play") {
		t.Fatalf("expected full clip from zero, got %v", got)
	}

	s := f.ctrl.State()
	if !s.ShowVideo || !s.ShowReplay {
		t.Fatalf("expected video and replay in reveal, got %+v", s)
	}

	f.ctrl.HandleVideoEvent(EventPlay)
	if s := f.ctrl.State(); !s.VideoPlaying {
		t.Fatalf("expected video playing, got %+v", s)
	}
	f.ctrl.HandleVideoEvent(EventEnded)
	if s := f.ctrl.State(); s.VideoPlaying || !s.VideoEnded {
		t.Fatalf("expected video ended, got %+v", s)
	}
}

func TestMediaSupersededPlayback(t *testing.T) {
	t.Parallel()

	f := newMediaFixture(t)
	f.audio.onMetadata = func() {
		f.ctrl.Load("/video/b.mp4", nil, nil, false)
	}

	f.ctrl.Load("/video/a.mp4", floatPtr(1), nil, false)
	f.ctrl.PlayAudio(f.ctx)

	if got := f.audio.Calls(); !equalCalls(got, "metadata") {
		t.Fatalf("expected stale playback to stop after metadata, got %v", got)
	}
	if len(f.reported()) != 0 {
		t.Fatalf("superseded playback is not an error, got %v", f.reported())
	}
	if s := f.ctrl.State(); s.Src != "/video/b.mp4" || s.ShowReplay {
		t.Fatalf("expected the newer load untouched, got %+v", s)
	}
}

func TestMediaListenHint(t *testing.T) {
	t.Parallel()

	f := newMediaFixture(t)

	f.ctrl.Load("/video/a.mp4", nil, nil, false)
	if s := f.ctrl.State(); s.ListenHintMs != 850 {
		t.Fatalf("expected 850ms hint, got %d", s.ListenHintMs)
	}

	f.clock = f.clock.Add(900 * time.Millisecond)
	if s := f.ctrl.State(); s.ListenHintMs != 0 {
		t.Fatalf("expected hint gone, got %d", s.ListenHintMs)
	}

	f.ctrl.Load("/video/a.mp4", nil, nil, true)
	if s := f.ctrl.State(); s.ListenHintMs != 0 {
		t.Fatalf("expected no hint during reveal, got %d", s.ListenHintMs)
	}
}
