package main

import "testing"

func TestCheckCollision(t *testing.T) {
	// Overlapping circles
	if !CheckCollision(0, 0, 10, 15, 0, 10) {
		t.Error("circles should collide (overlapping)")
	}

	// Touching circles
	if !CheckCollision(0, 0, 10, 20, 0, 10) {
		t.Error("circles should collide (touching)")
	}

	// Non-overlapping circles
	if CheckCollision(0, 0, 10, 25, 0, 10) {
		t.Error("circles should not collide")
	}

	// Same position
	if !CheckCollision(5, 5, 1, 5, 5, 1) {
		t.Error("same position should collide")
	}
}


func TestCylinderContains(t *testing.T) {
	c := Vec3{X: 15, Y: 9, Z: -4}
	cyl := Cylinder{Radius: 2, HalfHeight: 2}

	if !cyl.Contains(c, Vec3{X: 15, Y: 9, Z: -4}) {
		t.Error("centre should be inside")
	}
	if !cyl.Contains(c, Vec3{X: 17.2, Y: 10.5, Z: -4}) {
		t.Error("edge within body radius should be inside")
	}
	if cyl.Contains(c, Vec3{X: 15, Y: 11.5, Z: -4}) {
		t.Error("above the cylinder should be outside")
	}
	if cyl.Contains(c, Vec3{X: 18, Y: 9, Z: -4}) {
		t.Error("beyond the radius should be outside")
	}
}

func TestBoxContains(t *testing.T) {
	c := Vec3{X: 15, Y: -12, Z: -13}
	box := Box{HalfExtents: Vec3{X: 11, Y: 12, Z: 11}}

	// top surface of the lava sits at c.Y + 12
	if !box.Contains(c, Vec3{X: 15, Y: -0.5, Z: -13}) {
		t.Error("just below the surface should be inside")
	}
	if box.Contains(c, Vec3{X: 15, Y: 0.5, Z: -13}) {
		t.Error("above the surface should be outside")
	}
	if box.Contains(c, Vec3{X: 27, Y: -5, Z: -13}) {
		t.Error("outside the x extent should be outside")
	}
}
