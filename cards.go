/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"cmp"
	"fmt"
	"math"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cast"
)

// Guess is a player's answer to a round.
type Guess string

const (
	GuessYes Guess = "yes"
	GuessNo  Guess = "no"
)

// Kind distinguishes the intro card from normal playable cards.
type Kind string

const (
	KindStart Kind = "start"
	KindGuess Kind = "guess"
)

// Card is a single round, loaded from a front-matter file.
type Card struct {
	ID       int      `json:"id"`
	Title    string   `json:"title"`
	Kind     Kind     `json:"kind"`
	VideoSrc string   `json:"videoSrc,omitempty"` // empty when no media exists
	Start    *float64 `json:"start,omitempty"`
	End      *float64 `json:"end,omitempty"`
	Correct  Guess    `json:"correct,omitempty"` // empty when the round has no answer
	MDXFile  string   `json:"mdxFile"`
}

// HasAnswer reports whether the card can be scored.
func (c *Card) HasAnswer() bool {
	return c.Correct == GuessYes || c.Correct == GuessNo
}

// Validate discards a segment end that does not come after its start.
func (c *Card) Validate() {
	if c.Start != nil && c.End != nil && *c.End <= *c.Start {
		c.End = nil
	}
}

// MediaURL resolves VideoSrc against the media route.
func (c *Card) MediaURL(prefix string) string {
	src := strings.TrimSpace(c.VideoSrc)

	switch {
	case src == "":
		return ""
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return src
	case strings.HasPrefix(src, "/"):
		return prefix + src
	default:
		return prefix + "/video/" + src
	}
}

var cardExtensions = []string{".mdx", ".md"}

// LoadCards reads every card file in dir, start cards first, then by id.
// Only a failure to read the directory or a file is returned as an error;
// malformed metadata degrades to empty fields.
func LoadCards(fsys afero.Fs, dir string) ([]Card, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read cards directory %s: %w", dir, err)
	}

	cards := make([]Card, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !slices.Contains(cardExtensions, strings.ToLower(filepath.Ext(entry.Name()))) {
			continue
		}

		raw, err := afero.ReadFile(fsys, path.Join(filepath.ToSlash(dir), entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read card %s: %w", entry.Name(), err)
		}

		meta, _, err := splitFrontmatter(string(raw))
		if err != nil {
			meta = map[string]any{}
		}

		cards = append(cards, cardFromFrontmatter(meta, entry.Name()))
	}

	slices.SortStableFunc(cards, func(a, b Card) int {
		switch {
		case a.Kind == KindStart && b.Kind != KindStart:
			return -1
		case b.Kind == KindStart && a.Kind != KindStart:
			return 1
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return cards, nil
}

func cardFromFrontmatter(meta map[string]any, file string) Card {
	title := asString(meta["title"])
	if title == "" {
		title = asString(meta["name"])
	}
	if title == "" {
		title = strings.TrimSuffix(file, filepath.Ext(file))
	}

	kind := KindGuess
	if strings.EqualFold(strings.TrimSpace(asString(meta["kind"])), string(KindStart)) ||
		strings.Contains(strings.ToLower(file), string(KindStart)) {
		kind = KindStart
	}

	// Negative ids are reserved for interstitials.
	id, err := cast.ToIntE(meta["id"])
	if err != nil || id < 0 {
		id = 0
	}

	card := Card{
		ID:       id,
		Title:    title,
		Kind:     kind,
		VideoSrc: strings.TrimSpace(asString(meta["videoSrc"])),
		Start:    asSeconds(meta["start"]),
		End:      asSeconds(meta["end"]),
		Correct:  asGuess(meta["correct"]),
		MDXFile:  file,
	}
	card.Validate()

	return card
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	return cast.ToString(v)
}

func asGuess(v any) Guess {
	if b, ok := v.(bool); ok {
		if b {
			return GuessYes
		}
		return GuessNo
	}

	switch Guess(strings.ToLower(strings.TrimSpace(asString(v)))) {
	case GuessYes:
		return GuessYes
	case GuessNo:
		return GuessNo
	}
	return ""
}

func asSeconds(v any) *float64 {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
		if v == "" {
			return nil
		}
	}

	n, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil
	}

	return &n
}

// SplitStartCard returns the first start card, if any, and every other card.
func SplitStartCard(cards []Card) (*Card, []Card) {
	var start *Card
	pool := make([]Card, 0, len(cards))

	for i := range cards {
		if cards[i].Kind == KindStart {
			if start == nil {
				c := cards[i]
				start = &c
			}
			continue
		}
		pool = append(pool, cards[i])
	}

	return start, pool
}
