package anim

import (
	"sort"

	"github.com/Faultbox/bdae-viewer/pkg/formats"
	"github.com/Faultbox/bdae-viewer/pkg/math"
)

// Interpolate blends keyframe values a and b into out. Step returns a,
// Hermite eases t with a smoothstep curve before blending.
func Interpolate(mode formats.Interpolation, a, b []float32, t float32, out []float32) {
	switch mode {
	case formats.InterpLinear:
	case formats.InterpHermite:
		t = math.SmoothStep(t)
	default:
		copy(out, a)
		return
	}
	for i := range out {
		out[i] = math.Lerp(a[i], b[i], t)
	}
}

// InterpolateQuat blends two rotations. Hermite falls back to slerp.
func InterpolateQuat(mode formats.Interpolation, a, b math.Quat, t float32) math.Quat {
	switch mode {
	case formats.InterpLinear, formats.InterpHermite:
		return a.Slerp(b, t)
	default:
		return a
	}
}

// keyQuat reads a stored rotation keyframe, negating W to match node
// rotations.
func keyQuat(v []float32) math.Quat {
	return math.Quat{X: v[0], Y: v[1], Z: v[2], W: -v[3]}
}

// bracket finds keyframes i, j around at in the sorted times[:n] and the
// blend factor between them. Outside the keyed range it clamps to the
// nearest end with t = 0.
func bracket(times []float32, n int, at float32) (i, j int, t float32) {
	next := sort.Search(n, func(k int) bool { return times[k] > at })
	switch {
	case next == 0:
		return 0, 0, 0
	case next == n:
		return n - 1, n - 1, 0
	}
	i, j = next-1, next
	if span := times[j] - times[i]; span > 0 {
		t = (at - times[i]) / span
	}
	return i, j, t
}

// wrapWindow loops at within [first, last].
func wrapWindow(at, first, last float32) float32 {
	span := last - first
	if span <= 0 || at <= last {
		return at
	}
	return first + mod(at-first, span)
}

func mod(x, m float32) float32 {
	r := x - m*float32(int64(x/m))
	if r < 0 {
		r += m
	}
	return r
}
