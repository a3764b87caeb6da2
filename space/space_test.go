package space

import (
	"math/rand/v2"
	"testing"
)

func TestPositionEqual(t *testing.T) {
	p := Position{X: 1, Y: 2, Z: 3, Facing: FacingFrontLeft}

	tests := []struct {
		name string
		o    Position
		want bool
	}{
		{"same", Position{X: 1, Y: 2, Z: 3, Facing: FacingFrontLeft}, true},
		{"facing differs", Position{X: 1, Y: 2, Z: 3, Facing: FacingBackLeft}, false},
		{"no facing", Position{X: 1, Y: 2, Z: 3}, false},
		{"x differs", Position{X: 1.0001, Y: 2, Z: 3, Facing: FacingFrontLeft}, false},
	}
	for _, tt := range tests {
		if got := p.Equal(tt.o); got != tt.want {
			t.Errorf("%s: Equal = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestBoundsRandomStaysInside(t *testing.T) {
	b := Bounds{Min: [3]int{0, 5, -3}, Max: [3]int{39, 5, 3}}
	r := rand.New(rand.NewPCG(7, 7))
	for range 1000 {
		p := b.Random(r.IntN)
		if !b.Contains(p) {
			t.Fatalf("%v outside %+v", p, b)
		}
		if p.Y != 5 {
			t.Fatalf("degenerate axis drew %v", p.Y)
		}
	}
}

func TestBoundsValid(t *testing.T) {
	if !Cube(0, 40).Valid() {
		t.Error("Cube(0,40) should be valid")
	}
	if (Bounds{Min: [3]int{1, 0, 0}, Max: [3]int{0, 0, 0}}).Valid() {
		t.Error("inverted bounds reported valid")
	}
}

func TestPositionOffsetKeepsFacing(t *testing.T) {
	p := Position{X: 1, Y: 0, Z: 5, Facing: FacingBackRight}
	got := p.Offset(1, 0, -1)
	want := Position{X: 2, Y: 0, Z: 4, Facing: FacingBackRight}
	if got != want {
		t.Fatalf("Offset = %v, want %v", got, want)
	}
	if p.X != 1 {
		t.Fatalf("Offset mutated receiver: %v", p)
	}
}
