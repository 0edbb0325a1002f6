// Package window wraps the OS window. Events are produced on the window
// thread and queued to the engine; the Handle is safe to use from any thread.
package window

import "fmt"

// Event is a window event forwarded to the engine thread.
type Event interface {
	isEvent()
}

type CloseRequested struct{}

// Resized carries the new framebuffer size in physical pixels.
type Resized struct {
	Width, Height int
}

type ScaleFactorChanged struct {
	ScaleFactor float64
}

// CursorMoved carries the cursor position in physical pixels.
type CursorMoved struct {
	X, Y float64
}

type MouseInput struct {
	Button  MouseButton
	Pressed bool
}

type MouseWheel struct {
	DeltaX, DeltaY float64
}

type CursorEntered struct{}

type CursorLeft struct{}

type KeyInput struct {
	Key     Key
	Pressed bool
}

func (CloseRequested) isEvent()     {}
func (Resized) isEvent()            {}
func (ScaleFactorChanged) isEvent() {}
func (CursorMoved) isEvent()        {}
func (MouseInput) isEvent()         {}
func (MouseWheel) isEvent()         {}
func (CursorEntered) isEvent()      {}
func (CursorLeft) isEvent()         {}
func (KeyInput) isEvent()           {}

type MouseButton int

const (
	MouseLeft MouseButton = iota
	MouseRight
	MouseMiddle
	MouseOther
)

func (b MouseButton) String() string {
	switch b {
	case MouseLeft:
		return "left"
	case MouseRight:
		return "right"
	case MouseMiddle:
		return "middle"
	default:
		return fmt.Sprintf("MouseButton(%d)", int(b))
	}
}

// Key identifies the keys the engine reacts to.
type Key int

const (
	KeyUnknown Key = iota
	KeyEscape
	KeyF1
	KeyHome
)

type CursorIcon int32

const (
	CursorDefault CursorIcon = iota
	CursorGrabbing
)
