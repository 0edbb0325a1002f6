// Package cursor tracks the mouse between engine frames and detects drags.
package cursor

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/dave-is-dave/Goshenite/internal/window"
)

// buttons in drag priority order
var buttons = [...]window.MouseButton{window.MouseLeft, window.MouseRight, window.MouseMiddle}

type buttonStates [len(buttons)]bool

func (s *buttonStates) set(b window.MouseButton, pressed bool) bool {
	if int(b) < 0 || int(b) >= len(s) {
		return false
	}
	s[b] = pressed
	return true
}

func (s buttonStates) get(b window.MouseButton) bool { return s[b] }

// IconSetter changes the cursor shape.
type IconSetter interface {
	SetCursorIcon(icon window.CursorIcon)
}

// State is the cursor as seen by the engine.
type State struct {
	icons IconSetter
	// requireBothAxes counts a frame as movement only when x and y both changed
	requireBothAxes bool

	inWindow       bool
	position       mgl64.Vec2
	positionPrev   mgl64.Vec2
	positionChange mgl64.Vec2
	pressed        buttonStates
	pressedPrev    buttonStates
	dragging       window.MouseButton
	isDragging     bool
	scroll         mgl64.Vec2
}

func New(icons IconSetter, requireBothAxes bool) *State {
	return &State{icons: icons, requireBothAxes: requireBothAxes}
}

func (s *State) SetPosition(x, y float64) { s.position = mgl64.Vec2{x, y} }

func (s *State) Position() mgl64.Vec2 { return s.position }

// SetClickState records a button press or release. A press over captured
// UI is recorded as released. It reports false for unsupported buttons.
func (s *State) SetClickState(b window.MouseButton, pressed, captured bool) bool {
	return s.pressed.set(b, pressed && !captured)
}

func (s *State) SetInWindow(in bool) { s.inWindow = in }

func (s *State) InWindow() bool { return s.inWindow }

// AddScroll accumulates wheel movement until TakeScroll.
func (s *State) AddScroll(dx, dy float64) {
	s.scroll = s.scroll.Add(mgl64.Vec2{dx, dy})
}

// TakeScroll returns and clears the accumulated wheel movement.
func (s *State) TakeScroll() mgl64.Vec2 {
	d := s.scroll
	s.scroll = mgl64.Vec2{}
	return d
}

// ProcessFrame updates the per-frame movement and the drag state. Call once
// per engine frame after all events were applied.
func (s *State) ProcessFrame() {
	s.positionChange = s.position.Sub(s.positionPrev)
	s.positionPrev = s.position

	if s.isDragging {
		if !s.pressed.get(s.dragging) {
			s.isDragging = false
			s.icons.SetCursorIcon(window.CursorDefault)
		}
	} else if s.hasMoved() {
		for _, b := range buttons {
			if s.pressed.get(b) && s.pressedPrev.get(b) {
				s.dragging = b
				s.isDragging = true
				s.icons.SetCursorIcon(window.CursorGrabbing)
				break
			}
		}
	}
	s.pressedPrev = s.pressed
}

func (s *State) hasMoved() bool {
	d := s.positionChange
	if s.requireBothAxes {
		return d.X() != 0 && d.Y() != 0
	}
	return d.X() != 0 || d.Y() != 0
}

// PositionFrameChange is the movement between the last two frames.
func (s *State) PositionFrameChange() mgl64.Vec2 { return s.positionChange }

// WhichDragging returns the button being dragged with, if any.
func (s *State) WhichDragging() (window.MouseButton, bool) {
	return s.dragging, s.isDragging
}
