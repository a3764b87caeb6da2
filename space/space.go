// Package space holds the value types shared by every part of the bot and
// the contract it expects from the room platform.
package space

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPlatformUnavailable is transient: retry the surrounding operation or
	// skip the current loop iteration.
	ErrPlatformUnavailable = errors.New("platform unavailable")
	// ErrEntityGone is terminal for anything targeting that entity.
	ErrEntityGone = errors.New("entity gone")
	// ErrNotFound is returned by registry lookups.
	ErrNotFound = errors.New("entity not found")
	// ErrAnchored is returned when an operation needs the coordinates of a
	// seated entity.
	ErrAnchored = errors.New("entity is seated")
)

type Facing string

const (
	FacingNone       Facing = ""
	FacingFrontRight Facing = "FrontRight"
	FacingFrontLeft  Facing = "FrontLeft"
	FacingBackRight  Facing = "BackRight"
	FacingBackLeft   Facing = "BackLeft"
)

// Position is an immutable point in the room. Two positions are equal only
// when all three coordinates and the facing match exactly.
type Position struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Z      float64 `json:"z" yaml:"z"`
	Facing Facing  `json:"facing,omitempty" yaml:"facing,omitempty"`
}

func (p Position) Equal(o Position) bool {
	return p == o
}

// Offset returns p moved by (dx, dy, dz), keeping the facing.
func (p Position) Offset(dx, dy, dz float64) Position {
	return Position{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz, Facing: p.Facing}
}

func (p Position) String() string {
	if p.Facing == FacingNone {
		return fmt.Sprintf("(%g, %g, %g)", p.X, p.Y, p.Z)
	}
	return fmt.Sprintf("(%g, %g, %g %s)", p.X, p.Y, p.Z, p.Facing)
}

// Bounds is an axis-aligned box with inclusive integer corners.
type Bounds struct {
	Min [3]int `json:"min" yaml:"min"`
	Max [3]int `json:"max" yaml:"max"`
}

// Cube returns the bounds [lo,hi] on all three axes.
func Cube(lo, hi int) Bounds {
	return Bounds{Min: [3]int{lo, lo, lo}, Max: [3]int{hi, hi, hi}}
}

func (b Bounds) Valid() bool {
	for i := range 3 {
		if b.Min[i] > b.Max[i] {
			return false
		}
	}
	return true
}

func (b Bounds) Contains(p Position) bool {
	c := [3]float64{p.X, p.Y, p.Z}
	for i := range 3 {
		if c[i] < float64(b.Min[i]) || c[i] > float64(b.Max[i]) {
			return false
		}
	}
	return true
}

// Random draws each coordinate uniformly from its inclusive integer range.
func (b Bounds) Random(intn func(n int) int) Position {
	var c [3]float64
	for i := range 3 {
		c[i] = float64(b.Min[i] + intn(b.Max[i]-b.Min[i]+1))
	}
	return Position{X: c[0], Y: c[1], Z: c[2]}
}

// Entity is a user present in the room.
type Entity struct {
	ID   string `json:"id"`
	Name string `json:"username"`
}

// Occupant is one row of a room snapshot. An anchored occupant is seated
// on furniture and has no coordinates; its Position is the zero value.
type Occupant struct {
	Entity   Entity
	Position Position
	Anchored bool
}

// Platform is what the bot needs from the room it is connected to.
// SendRoomMessage and SendDirectMessage are best-effort.
type Platform interface {
	GetEntities(ctx context.Context) ([]Occupant, error)
	MoveEntity(ctx context.Context, entityID string, pos Position) error
	WalkTo(ctx context.Context, pos Position) error
	TriggerAnimation(ctx context.Context, animationID, entityID string) error
	SendRoomMessage(ctx context.Context, text string) error
	SendDirectMessage(ctx context.Context, entityID, text string) error
	GetPrivilegeFlag(ctx context.Context, entityID string) (bool, error)
	Kick(ctx context.Context, entityID string) error
}
