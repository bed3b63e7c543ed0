/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"math/rand/v2"
)

const (
	defaultInterstitialEvery = 10

	sponsorLink  = "https://au.whogivesacrap.org/"
	sponsorImage = "https://au.whogivesacrap.org/cdn/shop/files/HomepageHeroBanner_b562845d-1697-4d6e-a299-79ee327eff57.png?v=1765434410&width=1600"
	sponsorAlt   = "Who Gives A Crap"
	sponsorBlurb = "Eco-Friendly Toilet Paper"
)

var interstitialLines = [...]string{
	"THAT NOISE WASN’T HARMLESS.",
	"ACTIONS. CONSEQUENCES.",
	"SOME SOUNDS ARE WARNINGS.",
	"THAT WASN’T JUST AIR.",
	"YOU HEARD THE WARNING.",
	"THE BODY HAS SPOKEN.",
	"THAT SOUND WAS PROPHETIC.",
	"EVENTS ARE NOW IN MOTION.",
	"THAT NOISE CHANGED THINGS.",
	"NOTHING ABOUT THAT WAS SAFE.",
}

// Interstitial is a sponsor card. It never scores.
type Interstitial struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Href     string `json:"href"`
	ImageSrc string `json:"imageSrc"`
	ImageAlt string `json:"imageAlt"`
	Blurb    string `json:"blurb"`
}

// ItemKind is the discriminant of a DeckItem.
type ItemKind int

const (
	ItemCard ItemKind = iota
	ItemInterstitial
)

func (k ItemKind) String() string {
	switch k {
	case ItemCard:
		return "card"
	case ItemInterstitial:
		return "interstitial"
	}
	return fmt.Sprintf("ItemKind(%d)", int(k))
}

// DeckItem is either a Card or an Interstitial, selected by Kind.
type DeckItem struct {
	Kind         ItemKind
	Card         *Card
	Interstitial *Interstitial
}

// ID returns the identifier of whichever variant the item holds.
func (d DeckItem) ID() int {
	switch d.Kind {
	case ItemCard:
		return d.Card.ID
	case ItemInterstitial:
		return d.Interstitial.ID
	}
	panic(fmt.Sprintf("unknown deck item kind %v", d.Kind))
}

// Key is stable for the lifetime of the item and safe to use as a render key.
func (d DeckItem) Key() string {
	switch d.Kind {
	case ItemCard:
		return d.Card.MDXFile
	case ItemInterstitial:
		return fmt.Sprintf("__interstitial_%d", -d.Interstitial.ID)
	}
	panic(fmt.Sprintf("unknown deck item kind %v", d.Kind))
}

func cardItem(c Card) DeckItem {
	return DeckItem{Kind: ItemCard, Card: &c}
}

// interstitialID lives in the negative id space, which LoadCards never
// produces.
func interstitialID(seed int, rng *rand.Rand) int {
	return -(seed*100000 + rng.IntN(10000))
}

func newInterstitial(seed int, rng *rand.Rand) DeckItem {
	return DeckItem{
		Kind: ItemInterstitial,
		Interstitial: &Interstitial{
			ID:       interstitialID(seed, rng),
			Title:    interstitialLines[rng.IntN(len(interstitialLines))],
			Href:     sponsorLink,
			ImageSrc: sponsorImage,
			ImageAlt: sponsorAlt,
			Blurb:    sponsorBlurb,
		},
	}
}

// shuffle is an in-place Fisher-Yates shuffle.
func shuffle[T any](s []T, rng *rand.Rand) {
	for i := len(s) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// BuildDeck shuffles a copy of pool and places an interstitial after every
// everyN cards, except after the last one.
func BuildDeck(pool []Card, everyN int, rng *rand.Rand) []DeckItem {
	if everyN < 1 {
		everyN = defaultInterstitialEvery
	}

	cards := make([]Card, len(pool))
	copy(cards, pool)
	shuffle(cards, rng)

	deck := make([]DeckItem, 0, len(cards)+len(cards)/everyN)

	for i, c := range cards {
		deck = append(deck, cardItem(c))

		if (i+1)%everyN == 0 && i != len(cards)-1 {
			deck = append(deck, newInterstitial(i+1, rng))
		}
	}

	return deck
}
