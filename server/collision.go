package main

import "math"

// PlayerRadius is the horizontal radius of a player body
const PlayerRadius = 0.35

// Shape is a sensor volume centred on a point
type Shape interface {
	// Contains reports whether a player body at p overlaps the volume centred at c
	Contains(c, p Vec3) bool
}

// Cylinder is a vertical cylinder
type Cylinder struct {
	Radius     float64
	HalfHeight float64
}

// Contains checks the horizontal circle overlap and the vertical extent
func (s Cylinder) Contains(c, p Vec3) bool {
	if math.Abs(p.Y-c.Y) > s.HalfHeight {
		return false
	}
	return CheckCollision(c.X, c.Z, s.Radius, p.X, p.Z, PlayerRadius)
}

// Box is an axis-aligned box
type Box struct {
	HalfExtents Vec3
}

// Contains checks the player point against the box grown by the body radius
func (s Box) Contains(c, p Vec3) bool {
	return math.Abs(p.X-c.X) <= s.HalfExtents.X+PlayerRadius &&
		math.Abs(p.Y-c.Y) <= s.HalfExtents.Y &&
		math.Abs(p.Z-c.Z) <= s.HalfExtents.Z+PlayerRadius
}

// CheckCollision checks if two circles overlap
func CheckCollision(x1, y1, r1, x2, y2, r2 float64) bool {
	dx := x2 - x1
	dy := y2 - y1
	dist2 := dx*dx + dy*dy
	radSum := r1 + r2
	return dist2 <= radSum*radSum
}
