/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

const watchDebounce = 250 * time.Millisecond

// cardEvent reports whether ev can change the card pool.
func cardEvent(ev fsnotify.Event) bool {
	if !slices.Contains(cardExtensions, strings.ToLower(filepath.Ext(ev.Name))) {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

// watchCards reloads the card pool whenever a card file changes, batching
// bursts of events, and hands every successful load to apply. It returns
// when ctx ends.
func watchCards(ctx context.Context, cfg *Config, fsys afero.Fs, apply func([]Card)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(cfg.cardsDir); err != nil {
		return fmt.Errorf("watch %s: %w", cfg.cardsDir, err)
	}

	logf(cfg, "WATCH: Watching %s for card changes", cfg.cardsDir)

	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !cardEvent(ev) {
				continue
			}

			logf(cfg, "WATCH: %s %s", ev.Op, filepath.Base(ev.Name))

			timer.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logf(cfg, "WATCH: Watcher error: %v", err)

		case <-timer.C:
			cards, err := LoadCards(fsys, cfg.cardsDir)
			if err != nil {
				logf(cfg, "CARDS: Reload failed, keeping previous pool: %v", err)
				continue
			}

			logf(cfg, "CARDS: Reloaded %d cards from %s", len(cards), cfg.cardsDir)

			apply(cards)
		}
	}
}
