// Package camera implements the orbiting viewer camera driven by the engine.
package camera

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	fovY        = 45.0
	nearPlane   = 0.1
	farPlane    = 1000.0
	minDistance = 0.5
	maxDistance = 500.0

	// radians per pixel of cursor travel
	rotateSpeed = 0.005
	// fraction of the current distance per scroll unit
	zoomSpeed  = 0.1
	pitchLimit = math.Pi/2 - 0.01
)

var ErrZeroSize = errors.New("camera: viewport has zero size")

var worldUp = mgl32.Vec3{0, 1, 0}

// Snapshot is the immutable camera state handed to the renderer each frame.
type Snapshot struct {
	View        mgl32.Mat4
	Proj        mgl32.Mat4
	ViewInverse mgl32.Mat4
	ProjInverse mgl32.Mat4
	Position    mgl32.Vec3
	Direction   mgl32.Vec3
	Near, Far   float32
}

// Camera orbits a target point at a distance, parameterised by yaw and pitch.
type Camera struct {
	target   mgl32.Vec3
	distance float32
	yaw      float32
	pitch    float32
	aspect   float32
}

// New returns a camera for a viewport of the given size in physical pixels.
func New(width, height int) (*Camera, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrZeroSize
	}
	return &Camera{
		distance: 6,
		yaw:      float32(math.Pi / 4),
		pitch:    float32(math.Pi / 6),
		aspect:   float32(width) / float32(height),
	}, nil
}

// SetAspectRatio updates the projection for a new viewport size. Zero sizes
// (minimized window) are ignored.
func (c *Camera) SetAspectRatio(width, height int) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	c.aspect = float32(width) / float32(height)
	return true
}

func (c *Camera) AspectRatio() float32 { return c.aspect }

// Rotate orbits around the target by a cursor delta in pixels.
func (c *Camera) Rotate(delta mgl64.Vec2) {
	c.yaw -= float32(delta.X() * rotateSpeed)
	c.pitch += float32(delta.Y() * rotateSpeed)
	c.pitch = mgl32.Clamp(c.pitch, -pitchLimit, pitchLimit)
	c.yaw = float32(math.Mod(float64(c.yaw), 2*math.Pi))
}

// Zoom moves towards (positive) or away from (negative) the target.
func (c *Camera) Zoom(scroll float64) {
	c.distance *= float32(1 - scroll*zoomSpeed)
	c.distance = mgl32.Clamp(c.distance, minDistance, maxDistance)
}

func (c *Camera) SetTarget(target mgl32.Vec3) { c.target = target }

func (c *Camera) Target() mgl32.Vec3 { return c.target }

func (c *Camera) Distance() float32 { return c.distance }

func (c *Camera) Position() mgl32.Vec3 {
	cosPitch := float32(math.Cos(float64(c.pitch)))
	offset := mgl32.Vec3{
		cosPitch * float32(math.Sin(float64(c.yaw))),
		float32(math.Sin(float64(c.pitch))),
		cosPitch * float32(math.Cos(float64(c.yaw))),
	}
	return c.target.Add(offset.Mul(c.distance))
}

func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position(), c.target, worldUp)
}

// Proj returns a perspective projection with Vulkan's inverted clip-space Y.
func (c *Camera) Proj() mgl32.Mat4 {
	proj := mgl32.Perspective(mgl32.DegToRad(fovY), c.aspect, nearPlane, farPlane)
	proj[5] *= -1
	return proj
}

func (c *Camera) Snapshot() Snapshot {
	view := c.View()
	proj := c.Proj()
	pos := c.Position()
	return Snapshot{
		View:        view,
		Proj:        proj,
		ViewInverse: view.Inv(),
		ProjInverse: proj.Inv(),
		Position:    pos,
		Direction:   c.target.Sub(pos).Normalize(),
		Near:        nearPlane,
		Far:         farPlane,
	}
}
