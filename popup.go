/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"sync"
	"time"
)

const streakPopupDuration = 1000 * time.Millisecond

// StreakPopup tracks the transient "streak N" indicator. At most one
// dismissal timer is pending at any time.
type StreakPopup struct {
	mu       sync.Mutex
	duration time.Duration
	timer    *time.Timer
	gen      uint64
	streak   int
	visible  bool
	onHide   func()
}

// NewStreakPopup returns a popup that hides itself after d and then calls
// onHide, which may be nil.
func NewStreakPopup(d time.Duration, onHide func()) *StreakPopup {
	if d <= 0 {
		d = streakPopupDuration
	}
	return &StreakPopup{
		duration: d,
		onHide:   onHide,
	}
}

// Show replaces whatever is on screen with streak n and restarts the timer.
func (p *StreakPopup) Show(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.streak = n
	p.visible = true

	gen := p.gen
	p.timer = time.AfterFunc(p.duration, func() { p.expire(gen) })
}

// Hide removes the popup immediately and cancels any pending dismissal.
func (p *StreakPopup) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.visible = false
}

// Visible returns the streak shown and whether the popup is up.
func (p *StreakPopup) Visible() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.streak, p.visible
}

func (p *StreakPopup) stopLocked() {
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *StreakPopup) expire(gen uint64) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.visible = false
	p.timer = nil
	onHide := p.onHide
	p.mu.Unlock()

	if onHide != nil {
		onHide()
	}
}
