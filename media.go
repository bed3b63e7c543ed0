/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	defaultSegmentLength = 2.0
	segmentEndTolerance  = 0.04
	listenHintDuration   = 850 * time.Millisecond
)

var (
	ErrNoSource    = errors.New("no media source")
	ErrMediaFailed = errors.New("media element reported an error")
	errSuperseded  = errors.New("playback superseded by a newer load")
)

// MediaEvent is a notification raised by a media element.
type MediaEvent string

const (
	EventLoadedMetadata MediaEvent = "loadedmetadata"
	EventSeeked         MediaEvent = "seeked"
	EventPlay           MediaEvent = "play"
	EventPause          MediaEvent = "pause"
	EventEnded          MediaEvent = "ended"
	EventTimeUpdate     MediaEvent = "timeupdate"
	EventError          MediaEvent = "error"
	EventAnalyserReady  MediaEvent = "analyserready"
)

// MediaElement is a player that can be positioned and started. Blocking
// calls return once the element confirms, or when ctx ends.
type MediaElement interface {
	WaitMetadata(ctx context.Context) error
	Seek(ctx context.Context, t float64) error
	Play(ctx context.Context) error
	Pause() error
}

// Segment is the [Start, End] window of the audio clip, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

// ClampSegment fills in the clip window: start defaults to 0 and is never
// negative, end defaults to two seconds after start.
func ClampSegment(start, end *float64) Segment {
	s := 0.0
	if finite(start) {
		s = math.Max(0, *start)
	}

	e := s + defaultSegmentLength
	if finite(end) && *end > s {
		e = *end
	}

	return Segment{Start: s, End: e}
}

// MediaState is what the browser needs to draw the media panel.
type MediaState struct {
	Src          string  `json:"src,omitempty"`
	Placeholder  bool    `json:"placeholder"`
	Segment      Segment `json:"segment"`
	StopWithin   float64 `json:"stopWithin"`
	ShowVideo    bool    `json:"showVideo"`
	AudioPlaying bool    `json:"audioPlaying"`
	AudioEnded   bool    `json:"audioEnded"`
	VideoPlaying bool    `json:"videoPlaying"`
	VideoEnded   bool    `json:"videoEnded"`
	ShowReplay   bool    `json:"showReplay"`
	ListenHintMs int64   `json:"listenHintMs"`
	Visualize    bool    `json:"visualize"`
}

// MediaController drives a hidden audio player, clipped to a segment, and a
// visible reveal video that always plays in full.
type MediaController struct {
	audio MediaElement
	video MediaElement
	tap   *AudioTap

	onError func(error)
	now     func() time.Time

	mu           sync.Mutex
	gen          uint64
	src          string
	segment      Segment
	reveal       bool
	listenUntil  time.Time
	audioPlaying bool
	audioEnded   bool
	audioFailed  bool
	videoPlaying bool
	videoEnded   bool
}

// NewMediaController wires the two players and the shared tap. onError
// receives swallowed playback failures and may be nil.
func NewMediaController(audio, video MediaElement, tap *AudioTap, onError func(error)) *MediaController {
	if tap == nil {
		tap = NewAudioTap(nil, defaultAnalyser)
	}

	return &MediaController{
		audio:   audio,
		video:   video,
		tap:     tap,
		onError: onError,
		now:     time.Now,
	}
}

// Load points the controller at a card. In the guess phase reveal is false.
func (m *MediaController) Load(src string, start, end *float64, reveal bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	m.src = src
	m.segment = ClampSegment(start, end)
	m.reveal = reveal
	m.audioPlaying = false
	m.audioEnded = false
	m.audioFailed = false
	m.videoPlaying = false
	m.videoEnded = false

	m.listenUntil = time.Time{}
	if !reveal {
		m.listenUntil = m.now().Add(listenHintDuration)
	}
}

func (m *MediaController) snapshot() (uint64, string, Segment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.gen, m.src, m.segment, m.reveal
}

func (m *MediaController) current(gen uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return errSuperseded
	}
	return nil
}

func (m *MediaController) swallow(what string, err error) {
	if err == nil || errors.Is(err, errSuperseded) || errors.Is(err, ErrNoSource) {
		return
	}
	if m.onError != nil {
		m.onError(fmt.Errorf("%s: %w", what, err))
	}
}

// PlayAudio plays the clip segment. Failures are swallowed; the replay
// affordance stays available.
func (m *MediaController) PlayAudio(ctx context.Context) {
	gen, _, _, _ := m.snapshot()

	err := m.playAudio(ctx, gen)
	if err != nil && !errors.Is(err, errSuperseded) && !errors.Is(err, ErrNoSource) {
		m.mu.Lock()
		if gen == m.gen {
			m.audioFailed = true
		}
		m.mu.Unlock()
	}

	m.swallow("play audio", err)
}

func (m *MediaController) playAudio(ctx context.Context, gen uint64) error {
	_, src, seg, _ := m.snapshot()
	if src == "" {
		return ErrNoSource
	}

	steps := []func() error{
		func() error { return m.tap.Ensure(ctx, m.audio) },
		func() error { return m.audio.WaitMetadata(ctx) },
		func() error { return m.audio.Seek(ctx, seg.Start) },
		func() error { return m.audio.Play(ctx) },
	}

	for _, step := range steps {
		if err := m.current(gen); err != nil {
			return err
		}
		if err := step(); err != nil {
			return err
		}
	}

	return nil
}

// ReplayAudio restarts the clip from the segment start.
func (m *MediaController) ReplayAudio(ctx context.Context) {
	_, src, _, _ := m.snapshot()
	if src == "" {
		return
	}

	if err := m.audio.Pause(); err != nil {
		m.swallow("pause audio", err)
	}
	m.PlayAudio(ctx)
}

// PlayVideo plays the reveal clip from the beginning to its natural end.
func (m *MediaController) PlayVideo(ctx context.Context) {
	m.swallow("play video", m.playVideo(ctx))
}

func (m *MediaController) playVideo(ctx context.Context) error {
	gen, src, _, reveal := m.snapshot()
	if src == "" || !reveal {
		return ErrNoSource
	}

	steps := []func() error{
		func() error { return m.video.WaitMetadata(ctx) },
		m.video.Pause,
		func() error { return m.video.Seek(ctx, 0) },
		func() error { return m.video.Play(ctx) },
	}

	for _, step := range steps {
		if err := m.current(gen); err != nil {
			return err
		}
		if err := step(); err != nil {
			return err
		}
	}

	return nil
}

// HandleAudioEvent updates playback flags from the hidden player and stops
// it at the segment end.
func (m *MediaController) HandleAudioEvent(ev MediaEvent, position float64) {
	m.mu.Lock()

	stop := false

	switch ev {
	case EventPlay:
		m.audioEnded = false
		m.audioFailed = false
		m.audioPlaying = true
	case EventPause:
		m.audioPlaying = false
	case EventEnded:
		m.audioPlaying = false
		m.audioEnded = true
	case EventTimeUpdate:
		if m.src != "" && position >= m.segment.End-segmentEndTolerance {
			stop = m.audioPlaying || !m.audioEnded
			m.audioPlaying = false
			m.audioEnded = true
		}
	}

	m.mu.Unlock()

	if stop {
		if err := m.audio.Pause(); err != nil {
			m.swallow("stop audio", err)
		}
	}
}

// HandleVideoEvent updates playback flags from the reveal player.
func (m *MediaController) HandleVideoEvent(ev MediaEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev {
	case EventPlay:
		m.videoEnded = false
		m.videoPlaying = true
	case EventPause:
		m.videoPlaying = false
	case EventEnded:
		m.videoPlaying = false
		m.videoEnded = true
	}
}

// State reports the flags that drive the media panel.
func (m *MediaController) State() MediaState {
	m.mu.Lock()
	defer m.mu.Unlock()

	var hint int64
	if remaining := m.listenUntil.Sub(m.now()); remaining > 0 {
		hint = remaining.Milliseconds()
	}

	return MediaState{
		Src:          m.src,
		Placeholder:  m.src == "",
		Segment:      m.segment,
		StopWithin:   segmentEndTolerance,
		ShowVideo:    m.reveal,
		AudioPlaying: m.audioPlaying,
		AudioEnded:   m.audioEnded,
		VideoPlaying: m.videoPlaying,
		VideoEnded:   m.videoEnded,
		ShowReplay:   m.src != "" && !m.audioPlaying && (m.reveal || m.audioEnded || m.audioFailed),
		ListenHintMs: hint,
		Visualize:    m.tap.Attached() && m.audioPlaying,
	}
}
