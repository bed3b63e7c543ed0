/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

const (
	swipeThreshold = 140.0

	swipeTiltRange = 240.0
	swipeMaxTilt   = 12.0

	swipeFadeNear = 26.0
	swipeFadeFar  = 128.0
)

// interpolate maps v from [inLo, inHi] onto [outLo, outHi], clamping at the
// ends.
func interpolate(v, inLo, inHi, outLo, outHi float64) float64 {
	if v <= inLo {
		return outLo
	}
	if v >= inHi {
		return outHi
	}
	return outLo + (outHi-outLo)*(v-inLo)/(inHi-inLo)
}

// Rotation is the card tilt in degrees for a horizontal displacement.
func Rotation(dx float64) float64 {
	return interpolate(dx, -swipeTiltRange, swipeTiltRange, -swipeMaxTilt, swipeMaxTilt)
}

// YesOpacity is the opacity of the right-hand "gas" indicator.
func YesOpacity(dx float64) float64 {
	return interpolate(dx, swipeFadeNear, swipeFadeFar, 0, 1)
}

// NoOpacity is the opacity of the left-hand "pass" indicator.
func NoOpacity(dx float64) float64 {
	return interpolate(dx, -swipeFadeFar, -swipeFadeNear, 1, 0)
}

// Decide turns a released drag into a guess once it passes the threshold.
func Decide(dx float64) (Guess, bool) {
	switch {
	case dx > swipeThreshold:
		return GuessYes, true
	case dx < -swipeThreshold:
		return GuessNo, true
	}
	return "", false
}

// SwipeFeedback is what the card shows while it is being dragged.
type SwipeFeedback struct {
	Rotation   float64 `json:"rotation"`
	YesOpacity float64 `json:"yesOpacity"`
	NoOpacity  float64 `json:"noOpacity"`
}

// Surface is the drag target for the current card.
type Surface struct {
	Disabled bool
}

// Feedback returns the visual state for dx. A disabled surface does not move.
func (s Surface) Feedback(dx float64) SwipeFeedback {
	if s.Disabled {
		dx = 0
	}
	return SwipeFeedback{
		Rotation:   Rotation(dx),
		YesOpacity: YesOpacity(dx),
		NoOpacity:  NoOpacity(dx),
	}
}

// Release returns the discrete guess for a finished drag, or false when the
// card should spring back.
func (s Surface) Release(dx float64) (Guess, bool) {
	if s.Disabled {
		return "", false
	}
	return Decide(dx)
}
