package core

import "math"

// Vec3 is a position in the simulation's flat-world coordinate space.
// X and Y are ground-plane coordinates; Z is altitude in metres.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// HorizontalDistanceTo returns the ground-plane distance, ignoring altitude.
func (v Vec3) HorizontalDistanceTo(other Vec3) float64 {
	return math.Hypot(v.X-other.X, v.Y-other.Y)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Point2 is a point on the ground plane.
type Point2 struct {
	X, Y float64
}

// DistanceTo returns the Euclidean distance between two ground points.
func (p Point2) DistanceTo(other Point2) float64 {
	return math.Hypot(p.X-other.X, p.Y-other.Y)
}

// Midpoint returns the point halfway between p and other.
func (p Point2) Midpoint(other Point2) Point2 {
	return Point2{X: (p.X + other.X) / 2, Y: (p.Y + other.Y) / 2}
}

// perpendicularDistance returns the shortest distance from point p to the
// infinite line through a and b. A degenerate line (a == b) falls back to
// the point-to-point distance.
func perpendicularDistance(p, a, b Point2) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return p.DistanceTo(a)
	}
	// Cross product magnitude divided by segment length.
	return math.Abs(dy*p.X-dx*p.Y+b.X*a.Y-b.Y*a.X) / length
}

// clamp limits v to the closed interval [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampInt limits v to the closed interval [lo, hi].
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// isFinite reports whether v is neither NaN nor infinite.
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
