package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRemote(t *testing.T) (*remoteElement, chan any) {
	t.Helper()

	sent := make(chan any, 16)
	e := newRemoteElement("audio", func(msg any) { sent <- msg })
	e.Reset("/video/a.mp4")

	return e, sent
}

func nextCommand(t *testing.T, sent chan any) MediaCommandMessage {
	t.Helper()

	select {
	case msg := <-sent:
		cmd, ok := msg.(MediaCommandMessage)
		if !ok {
			t.Fatalf("expected media command, got %T", msg)
		}
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("no command sent")
	}
	return MediaCommandMessage{}
}

func TestRemoteSeekCompletesOnSeeked(t *testing.T) {
	t.Parallel()

	e, sent := newTestRemote(t)

	done := make(chan error, 1)
	go func() { done <- e.Seek(context.Background(), 2.5) }()

	cmd := nextCommand(t, sent)
	if cmd.Type != "media_command" || cmd.Target != "audio" || cmd.Op != "seek" || cmd.Time != 2.5 {
		t.Fatalf("unexpected command %+v", cmd)
	}

	e.Deliver(EventSeeked, "http://localhost:8080/video/a.mp4")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("seek: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("seek never completed")
	}
}

func TestRemoteIgnoresStaleSource(t *testing.T) {
	t.Parallel()

	e, sent := newTestRemote(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Play(ctx) }()

	nextCommand(t, sent)
	e.Deliver(EventPlay, "http://localhost:8080/video/old.mp4")

	err := <-done
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline after stale event, got %v", err)
	}

	e.mu.Lock()
	pending := len(e.waiters)
	e.mu.Unlock()
	if pending != 0 {
		t.Fatalf("expected abandoned waiter removed, %d left", pending)
	}
}

func TestRemoteMetadataReadiness(t *testing.T) {
	t.Parallel()

	e, _ := newTestRemote(t)
	e.Deliver(EventLoadedMetadata, "/video/a.mp4")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := e.WaitMetadata(ctx); err != nil {
		t.Fatalf("expected ready element, got %v", err)
	}

	e.Reset("/video/a.mp4")
	if err := e.WaitMetadata(ctx); err != nil {
		t.Fatalf("same source must stay ready, got %v", err)
	}

	e.Reset("/video/b.mp4")

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()

	if err := e.WaitMetadata(short); err == nil {
		t.Fatal("expected new source to need metadata again")
	}
}

func TestRemoteReloadNeedsMetadataAgain(t *testing.T) {
	t.Parallel()

	e, sent := newTestRemote(t)
	e.Deliver(EventLoadedMetadata, "/video/a.mp4")

	done := make(chan error, 1)
	go func() { done <- e.Play(context.Background()) }()
	nextCommand(t, sent)

	e.Reload()

	if err := <-done; !errors.Is(err, errSuperseded) {
		t.Fatalf("expected pending play superseded, got %v", err)
	}

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := e.WaitMetadata(short); err == nil {
		t.Fatal("expected a reloaded element to wait for metadata")
	}

	e.Deliver(EventLoadedMetadata, "/video/a.mp4")

	ctx, cancelReady := context.WithTimeout(context.Background(), time.Second)
	defer cancelReady()

	if err := e.WaitMetadata(ctx); err != nil {
		t.Fatalf("expected ready after metadata, got %v", err)
	}
}

func TestRemoteResetSupersedesWaiters(t *testing.T) {
	t.Parallel()

	e, sent := newTestRemote(t)

	done := make(chan error, 1)
	go func() { done <- e.Play(context.Background()) }()

	nextCommand(t, sent)
	e.Reset("/video/b.mp4")

	if err := <-done; !errors.Is(err, errSuperseded) {
		t.Fatalf("expected errSuperseded, got %v", err)
	}
}

func TestRemoteErrorFailsWaiters(t *testing.T) {
	t.Parallel()

	e, sent := newTestRemote(t)

	done := make(chan error, 1)
	go func() { done <- e.Play(context.Background()) }()

	nextCommand(t, sent)
	e.Deliver(EventError, "/video/a.mp4")

	if err := <-done; !errors.Is(err, ErrMediaFailed) {
		t.Fatalf("expected ErrMediaFailed, got %v", err)
	}
}

func TestRemotePauseIsFireAndForget(t *testing.T) {
	t.Parallel()

	e, sent := newTestRemote(t)
	if err := e.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if cmd := nextCommand(t, sent); cmd.Op != "pause" || cmd.Type != "media_command" {
		t.Fatalf("unexpected command %+v", cmd)
	}
}

func TestRemoteGraphAttach(t *testing.T) {
	t.Parallel()

	e, sent := newTestRemote(t)

	done := make(chan error, 1)
	go func() { done <- (remoteGraph{}).Attach(context.Background(), e, defaultAnalyser) }()

	cmd := nextCommand(t, sent)
	if cmd.Op != "attach_analyser" || cmd.FFTSize != 512 || cmd.Smoothing != 0.92 {
		t.Fatalf("unexpected analyser command %+v", cmd)
	}

	e.Deliver(EventAnalyserReady, "/video/a.mp4")
	if err := <-done; err != nil {
		t.Fatalf("attach: %v", err)
	}

	if err := (remoteGraph{}).Attach(context.Background(), &fakeElement{}, defaultAnalyser); err == nil {
		t.Fatal("expected attach to a non-remote element to fail")
	}
}
