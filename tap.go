/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"sync"
	"sync/atomic"
)

// AnalyserConfig tunes the frequency/amplitude sampler behind the waveform.
type AnalyserConfig struct {
	FFTSize   int     `json:"fftSize"`
	Smoothing float64 `json:"smoothing"`
}

var defaultAnalyser = AnalyserConfig{
	FFTSize:   512,
	Smoothing: 0.92,
}

// AudioGraph creates an analysis tap on a media element. Most media APIs
// reject a second tap on the same element.
type AudioGraph interface {
	Attach(ctx context.Context, el MediaElement, cfg AnalyserConfig) error
}

// AudioTap owns the analyser for a page session and attaches it at most once
// per session. A failed attach may be retried. Detach starts a new session,
// for example when a freshly loaded page joins.
type AudioTap struct {
	mu    sync.Mutex
	graph AudioGraph
	cfg   AnalyserConfig

	// session counts Detach calls; attachedIn is the session the last
	// successful attach belonged to.
	session    atomic.Uint64
	attachedIn atomic.Uint64
}

func NewAudioTap(graph AudioGraph, cfg AnalyserConfig) *AudioTap {
	t := &AudioTap{
		graph: graph,
		cfg:   cfg,
	}
	t.session.Store(1)

	return t
}

// Ensure attaches the tap to el unless that already happened in the current
// session. Concurrent callers wait for the first attach to finish.
func (t *AudioTap) Ensure(ctx context.Context, el MediaElement) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	session := t.session.Load()
	if t.attachedIn.Load() == session || t.graph == nil {
		return nil
	}

	if err := t.graph.Attach(ctx, el, t.cfg); err != nil {
		return err
	}
	t.attachedIn.Store(session)

	return nil
}

// Detach forgets the attach so the next Ensure builds the analyser again.
// It never waits on an attach in progress; one that finishes afterwards
// counts for the old session only.
func (t *AudioTap) Detach() {
	t.session.Add(1)
}

// Attached does not wait on an attach in progress.
func (t *AudioTap) Attached() bool {
	return t.attachedIn.Load() == t.session.Load()
}
