/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MediaCommandMessage asks the browser to act on one of its media elements.
type MediaCommandMessage struct {
	Type      string  `json:"type"`   // "media_command"
	Target    string  `json:"target"` // "audio" or "video"
	Op        string  `json:"op"`     // "seek", "play", "pause", "attach_analyser"
	Time      float64 `json:"time,omitempty"`
	FFTSize   int     `json:"fftSize,omitempty"`
	Smoothing float64 `json:"smoothing,omitempty"`
}

// remoteElement is a MediaElement living in the browser. Commands go out
// over the socket; the browser's media events complete them.
type remoteElement struct {
	target string
	send   func(msg any)

	mu      sync.Mutex
	src     string
	ready   bool
	waiters map[MediaEvent][]chan error
}

func newRemoteElement(target string, send func(msg any)) *remoteElement {
	return &remoteElement{
		target:  target,
		send:    send,
		waiters: make(map[MediaEvent][]chan error),
	}
}

// Reset points the element at src. Metadata must load again only when the
// source actually changes.
func (e *remoteElement) Reset(src string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if src == e.src {
		return
	}
	e.src = src
	e.ready = false
	e.failAllLocked(errSuperseded)
}

// Reload forgets readiness for the current source. A page that just joined
// loads it from scratch.
func (e *remoteElement) Reload() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ready = false
	e.failAllLocked(errSuperseded)
}

func (e *remoteElement) failAllLocked(err error) {
	for ev, chans := range e.waiters {
		for _, ch := range chans {
			ch <- err
		}
		delete(e.waiters, ev)
	}
}

// Deliver completes waiters for ev. Events for a source other than the
// current one are stale and dropped.
func (e *remoteElement) Deliver(ev MediaEvent, src string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if src != "" && e.src != "" && !strings.HasSuffix(src, e.src) {
		return
	}

	switch ev {
	case EventLoadedMetadata:
		e.ready = true
	case EventError:
		e.failAllLocked(ErrMediaFailed)
		return
	}

	for _, ch := range e.waiters[ev] {
		ch <- nil
	}
	delete(e.waiters, ev)
}

func (e *remoteElement) awaitLocked(ev MediaEvent) chan error {
	ch := make(chan error, 1)
	e.waiters[ev] = append(e.waiters[ev], ch)
	return ch
}

func (e *remoteElement) forget(ev MediaEvent, ch chan error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	chans := e.waiters[ev]
	for i, c := range chans {
		if c == ch {
			e.waiters[ev] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(e.waiters[ev]) == 0 {
		delete(e.waiters, ev)
	}
}

func (e *remoteElement) wait(ctx context.Context, ev MediaEvent, ch chan error) error {
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		e.forget(ev, ch)
		return fmt.Errorf("%s %s: %w", e.target, ev, ctx.Err())
	}
}

func (e *remoteElement) command(ctx context.Context, cmd MediaCommandMessage, ev MediaEvent) error {
	e.mu.Lock()
	ch := e.awaitLocked(ev)
	e.mu.Unlock()

	cmd.Type = "media_command"
	cmd.Target = e.target
	e.send(cmd)

	return e.wait(ctx, ev, ch)
}

func (e *remoteElement) WaitMetadata(ctx context.Context) error {
	e.mu.Lock()
	if e.ready {
		e.mu.Unlock()
		return nil
	}
	ch := e.awaitLocked(EventLoadedMetadata)
	e.mu.Unlock()

	return e.wait(ctx, EventLoadedMetadata, ch)
}

func (e *remoteElement) Seek(ctx context.Context, t float64) error {
	return e.command(ctx, MediaCommandMessage{Op: "seek", Time: t}, EventSeeked)
}

func (e *remoteElement) Play(ctx context.Context) error {
	return e.command(ctx, MediaCommandMessage{Op: "play"}, EventPlay)
}

func (e *remoteElement) Pause() error {
	e.send(MediaCommandMessage{Type: "media_command", Target: e.target, Op: "pause"})
	return nil
}

// remoteGraph builds the analyser in the browser's audio context.
type remoteGraph struct{}

func (remoteGraph) Attach(ctx context.Context, el MediaElement, cfg AnalyserConfig) error {
	re, ok := el.(*remoteElement)
	if !ok {
		return fmt.Errorf("cannot attach analyser to %T", el)
	}

	return re.command(ctx, MediaCommandMessage{
		Op:        "attach_analyser",
		FFTSize:   cfg.FFTSize,
		Smoothing: cfg.Smoothing,
	}, EventAnalyserReady)
}
