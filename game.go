/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// Phase is the stage of the current round.
type Phase string

const (
	PhaseStart  Phase = "start"
	PhaseGuess  Phase = "guess"
	PhaseReveal Phase = "reveal"
)

var (
	ErrNoCurrentCard = errors.New("no current card")
	ErrWrongPhase    = errors.New("action not allowed in current phase")
	ErrInvalidGuess  = errors.New("guess must be yes or no")
)

// Outcome describes what a single input did to the game.
type Outcome struct {
	Scored   bool  // a card was judged and the game moved to reveal
	Correct  *bool // nil when the card has no answer
	Streak   int
	Advanced bool // the game moved to the next item without a reveal
	Began    bool
}

// Game is the per-session state machine. It is not safe for concurrent use;
// the owning hub serializes access.
type Game struct {
	start  *Card
	pool   []Card
	deck   []DeckItem
	index  int
	phase  Phase
	streak int
	result *bool
	everyN int
	rng    *rand.Rand
	popup  *StreakPopup
}

// NewGame builds the first deck from cards. popup may be nil.
func NewGame(cards []Card, everyN int, rng *rand.Rand, popup *StreakPopup) *Game {
	g := &Game{
		everyN: everyN,
		rng:    rng,
		popup:  popup,
	}

	g.start, g.pool = SplitStartCard(cards)
	g.rebuild()

	g.phase = PhaseGuess
	if g.start != nil {
		g.phase = PhaseStart
	}

	return g
}

func (g *Game) rebuild() {
	g.deck = BuildDeck(g.pool, g.everyN, g.rng)
	g.index = 0
}

// SetPool replaces the card pool and reshuffles. Streak is kept; a pending
// reveal is dropped because the card it belonged to may be gone.
func (g *Game) SetPool(cards []Card) {
	g.start, g.pool = SplitStartCard(cards)
	g.rebuild()

	switch {
	case g.phase == PhaseStart && g.start == nil:
		g.phase = PhaseGuess
	case g.phase == PhaseReveal:
		g.phase = PhaseGuess
		g.result = nil
	}
}

func (g *Game) Phase() Phase        { return g.phase }
func (g *Game) Index() int          { return g.index }
func (g *Game) Streak() int         { return g.streak }
func (g *Game) Result() *bool       { return g.result }
func (g *Game) Deck() []DeckItem    { return g.deck }
func (g *Game) StartCard() *Card    { return g.start }
func (g *Game) Popup() *StreakPopup { return g.popup }

// Current returns the item on screen. During the start phase this is the
// start card.
func (g *Game) Current() (DeckItem, bool) {
	if g.phase == PhaseStart {
		if g.start == nil {
			return DeckItem{}, false
		}
		return cardItem(*g.start), true
	}
	if g.index < 0 || g.index >= len(g.deck) {
		return DeckItem{}, false
	}
	return g.deck[g.index], true
}

// Begin leaves the start card.
func (g *Game) Begin() (Outcome, error) {
	if g.phase != PhaseStart {
		return Outcome{}, fmt.Errorf("begin in %s: %w", g.phase, ErrWrongPhase)
	}
	g.phase = PhaseGuess
	return Outcome{Began: true, Streak: g.streak}, nil
}

// Submit is the single entry point for a guess, whatever the input channel.
func (g *Game) Submit(guess Guess) (Outcome, error) {
	if guess != GuessYes && guess != GuessNo {
		return Outcome{}, fmt.Errorf("%q: %w", guess, ErrInvalidGuess)
	}

	item, ok := g.Current()
	if !ok {
		return Outcome{}, ErrNoCurrentCard
	}

	switch g.phase {
	case PhaseStart:
		return g.Begin()
	case PhaseReveal:
		return Outcome{}, fmt.Errorf("submit in %s: %w", g.phase, ErrWrongPhase)
	}

	switch item.Kind {
	case ItemInterstitial:
		g.advance()
		return Outcome{Advanced: true, Streak: g.streak}, nil
	case ItemCard:
		return g.score(item.Card, guess), nil
	}

	panic(fmt.Sprintf("unknown deck item kind %v", item.Kind))
}

func (g *Game) score(card *Card, guess Guess) Outcome {
	var correct *bool
	if card.HasAnswer() {
		v := card.Correct == guess
		correct = &v
	}

	switch {
	case correct == nil:
	case *correct:
		g.streak++
		if g.popup != nil {
			g.popup.Show(g.streak)
		}
	default:
		g.streak = 0
		if g.popup != nil {
			g.popup.Hide()
		}
	}

	g.result = correct
	g.phase = PhaseReveal

	return Outcome{Scored: true, Correct: correct, Streak: g.streak}
}

// Next moves on from a reveal, or past an interstitial.
func (g *Game) Next() (Outcome, error) {
	item, ok := g.Current()
	if !ok {
		return Outcome{}, ErrNoCurrentCard
	}

	switch {
	case g.phase == PhaseReveal:
	case g.phase == PhaseGuess && item.Kind == ItemInterstitial:
	default:
		return Outcome{}, fmt.Errorf("next in %s: %w", g.phase, ErrWrongPhase)
	}

	g.advance()
	return Outcome{Advanced: true, Streak: g.streak}, nil
}

func (g *Game) advance() {
	g.result = nil
	g.phase = PhaseGuess

	if g.index+1 >= len(g.deck) {
		g.rebuild()
		return
	}
	g.index++
}

// Key handles a keyboard shortcut. Unbound keys do nothing.
func (g *Game) Key(key string) (Outcome, error) {
	if g.phase == PhaseReveal {
		switch key {
		case "Enter", " ", "Space", "Spacebar":
			return g.Next()
		}
		return Outcome{}, nil
	}

	switch key {
	case "ArrowLeft":
		return g.Submit(GuessNo)
	case "ArrowRight":
		return g.Submit(GuessYes)
	}
	return Outcome{}, nil
}

// View is a snapshot of everything the screen shows.
type View struct {
	Phase         Phase
	Title         string
	Item          *DeckItem
	Index         int
	DeckSize      int
	Streak        int
	StreakColor   string
	Result        *bool
	SwipeDisabled bool
}

func (g *Game) View() View {
	v := View{
		Phase:         g.phase,
		Title:         g.Title(),
		Index:         g.index,
		DeckSize:      len(g.deck),
		Streak:        g.streak,
		StreakColor:   g.StreakColor(),
		Result:        g.result,
		SwipeDisabled: g.Surface().Disabled,
	}

	if item, ok := g.Current(); ok {
		v.Item = &item
	}

	return v
}

// Surface returns the gesture surface for the current phase.
func (g *Game) Surface() Surface {
	return Surface{Disabled: g.phase == PhaseReveal}
}

// DragEnd handles a released swipe of dx logical units.
func (g *Game) DragEnd(dx float64) (Outcome, error) {
	guess, ok := g.Surface().Release(dx)
	if !ok {
		return Outcome{}, nil
	}
	return g.Submit(guess)
}

// Title is the card heading for the current state.
func (g *Game) Title() string {
	if g.phase == PhaseStart {
		return ""
	}
	if item, ok := g.Current(); ok && item.Kind == ItemInterstitial {
		return ""
	}
	if g.phase == PhaseReveal {
		switch {
		case g.result == nil:
			return "ANSWER"
		case *g.result:
			return "CORRECT"
		default:
			return "WRONG"
		}
	}
	return "GUESS"
}

// StreakColor darkens from white towards brown as the streak grows, capped
// at a streak of ten.
func (g *Game) StreakColor() string {
	t := float64(min(10, g.streak)) / 20

	lerp := func(a, b float64) int {
		return int(math.Round(a + (b-a)*t))
	}

	return fmt.Sprintf("rgb(%d, %d, %d)", lerp(255, 44), lerp(255, 24), lerp(255, 18))
}
