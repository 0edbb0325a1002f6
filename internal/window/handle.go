package window

// Handle is the read-mostly view of the window shared with the engine and
// render threads. Mutations are queued and applied by the window thread.
type Handle interface {
	// Size returns the framebuffer size in physical pixels.
	Size() (width, height int)
	ScaleFactor() float64
	SetCursorIcon(icon CursorIcon)
	SetTitle(title string)
}
