package main

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
)

func testRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func makePool(k int) []Card {
	pool := make([]Card, k)
	for i := range pool {
		pool[i] = Card{
			ID:      i + 1,
			Title:   fmt.Sprintf("card %d", i+1),
			Kind:    KindGuess,
			Correct: GuessYes,
			MDXFile: fmt.Sprintf("%02d.mdx", i+1),
		}
	}
	return pool
}

func TestBuildDeckShape(t *testing.T) {
	t.Parallel()

	for k := 0; k <= 45; k++ {
		pool := makePool(k)
		deck := BuildDeck(pool, 10, testRand(uint64(k)))

		if want := k + (k-1)/10; k > 0 && len(deck) != want {
			t.Fatalf("k=%d: expected length %d, got %d", k, want, len(deck))
		}
		if k == 0 && len(deck) != 0 {
			t.Fatalf("k=0: expected empty deck, got %d items", len(deck))
		}

		var ids []int
		run := 0
		for i, item := range deck {
			switch item.Kind {
			case ItemCard:
				ids = append(ids, item.ID())
				run++
			case ItemInterstitial:
				if i == len(deck)-1 {
					t.Fatalf("k=%d: interstitial after last card", k)
				}
				if run != 10 {
					t.Fatalf("k=%d: interstitial after %d cards", k, run)
				}
				if item.ID() >= 0 {
					t.Fatalf("k=%d: interstitial id %d is not negative", k, item.ID())
				}
				run = 0
			}
		}

		slices.Sort(ids)
		for i, id := range ids {
			if id != i+1 {
				t.Fatalf("k=%d: cards are not a permutation of the pool: %v", k, ids)
			}
		}
	}
}

func TestBuildDeckSmallPoolHasNoInterstitials(t *testing.T) {
	t.Parallel()

	deck := BuildDeck(makePool(9), 10, testRand(1))
	for _, item := range deck {
		if item.Kind == ItemInterstitial {
			t.Fatalf("unexpected interstitial in deck of 9")
		}
	}
}

func TestBuildDeckDoesNotMutatePool(t *testing.T) {
	t.Parallel()

	pool := makePool(20)
	before := slices.Clone(pool)

	_ = BuildDeck(pool, 10, testRand(7))

	for i := range pool {
		if pool[i].ID != before[i].ID {
			t.Fatalf("pool reordered at %d", i)
		}
	}
}

func TestBuildDeckDeterministicForSeed(t *testing.T) {
	t.Parallel()

	a := BuildDeck(makePool(25), 10, testRand(42))
	b := BuildDeck(makePool(25), 10, testRand(42))

	for i := range a {
		if a[i].Key() != b[i].Key() {
			t.Fatalf("decks diverge at %d: %s vs %s", i, a[i].Key(), b[i].Key())
		}
	}
}

func TestBuildDeckCadenceFallback(t *testing.T) {
	t.Parallel()

	deck := BuildDeck(makePool(21), 0, testRand(3))
	if len(deck) != 23 {
		t.Fatalf("expected default cadence of 10, got %d items", len(deck))
	}

	deck = BuildDeck(makePool(3), 1, testRand(3))
	if len(deck) != 5 || deck[1].Kind != ItemInterstitial || deck[3].Kind != ItemInterstitial {
		t.Fatalf("expected interstitial after every card, got %v", deck)
	}
}

func TestInterstitialContent(t *testing.T) {
	t.Parallel()

	deck := BuildDeck(makePool(31), 10, testRand(9))

	keys := map[string]bool{}
	for _, item := range deck {
		if keys[item.Key()] {
			t.Fatalf("duplicate key %s", item.Key())
		}
		keys[item.Key()] = true

		if item.Kind != ItemInterstitial {
			continue
		}

		ad := item.Interstitial
		if ad.Href != sponsorLink || ad.ImageSrc != sponsorImage || ad.ImageAlt != sponsorAlt {
			t.Fatalf("unexpected sponsor fields: %+v", ad)
		}
		if !slices.Contains(interstitialLines[:], ad.Title) {
			t.Fatalf("unexpected interstitial line %q", ad.Title)
		}
	}
}

func TestInterstitialIDRange(t *testing.T) {
	t.Parallel()

	rng := testRand(5)
	for seed := 1; seed <= 50; seed++ {
		id := interstitialID(seed, rng)
		if id > -seed*100000 || id <= -(seed*100000+10000) {
			t.Fatalf("seed %d: id %d outside reserved range", seed, id)
		}
	}
}

func TestItemKindString(t *testing.T) {
	t.Parallel()

	if ItemCard.String() != "card" || ItemInterstitial.String() != "interstitial" {
		t.Fatal("unexpected kind names")
	}
	if got := ItemKind(7).String(); got != "ItemKind(7)" {
		t.Fatalf("unexpected unknown kind %q", got)
	}
}
