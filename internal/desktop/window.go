// Package desktop implements the window provider on top of GLFW.
package desktop

import (
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/vulkan-go/glfw/v3.3/glfw"

	"github.com/dave-is-dave/Goshenite/internal/config"
	"github.com/dave-is-dave/Goshenite/internal/logging"
	"github.com/dave-is-dave/Goshenite/internal/window"
)

// Init initializes GLFW. It must be called from the main OS thread, which
// must stay locked for the rest of the program.
func Init() error {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("init glfw: %w", err)
	}
	return nil
}

func Terminate() { glfw.Terminate() }

// Window is a GLFW window created on the main thread. Only Size, ScaleFactor,
// SetCursorIcon, SetTitle and Wake may be called from other threads.
type Window struct {
	win *glfw.Window
	log *slog.Logger

	width, height atomic.Int32
	scale         atomic.Uint64

	pendingIcon  atomic.Int32
	pendingTitle atomic.Pointer[string]
	grabCursor   *glfw.Cursor

	handler func(window.Event)
}

const noPendingIcon = -1

// Open creates the window and installs its event callbacks.
func Open(cfg config.Window, logger *slog.Logger) (*Window, error) {
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	if cfg.StartMaximized {
		glfw.WindowHint(glfw.Maximized, glfw.True)
	}
	win, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}

	w := &Window{
		win:        win,
		log:        logging.OrNop(logger),
		grabCursor: glfw.CreateStandardCursor(glfw.HandCursor),
		handler:    func(window.Event) {},
	}
	w.pendingIcon.Store(noPendingIcon)
	w.storeSize(win.GetFramebufferSize())
	sx, _ := win.GetContentScale()
	w.storeScale(float64(sx))
	w.installCallbacks()

	width, height := w.Size()
	w.log.Info("window created", "width", width, "height", height, "scale_factor", w.ScaleFactor())
	return w, nil
}

// WaitForArea pumps events until the framebuffer has a non-zero size.
func (w *Window) WaitForArea() {
	for {
		width, height := w.win.GetFramebufferSize()
		if width > 0 && height > 0 {
			w.storeSize(width, height)
			return
		}
		glfw.WaitEventsTimeout(0.01)
	}
}

// Raw exposes the GLFW window for GPU surface creation.
func (w *Window) Raw() *glfw.Window { return w.win }

func (w *Window) Size() (int, int) {
	return int(w.width.Load()), int(w.height.Load())
}

func (w *Window) ScaleFactor() float64 {
	return math.Float64frombits(w.scale.Load())
}

func (w *Window) SetCursorIcon(icon window.CursorIcon) {
	w.pendingIcon.Store(int32(icon))
	glfw.PostEmptyEvent()
}

func (w *Window) SetTitle(title string) {
	w.pendingTitle.Store(&title)
	glfw.PostEmptyEvent()
}

// Wake interrupts a blocking WaitEvents.
func (w *Window) Wake() { glfw.PostEmptyEvent() }

// SetEventHandler sets the function receiving every event. It runs on the
// window thread from inside WaitEvents.
func (w *Window) SetEventHandler(fn func(window.Event)) {
	if fn == nil {
		fn = func(window.Event) {}
	}
	w.handler = fn
}

// WaitEvents processes events, blocking for at most timeout.
func (w *Window) WaitEvents(timeout time.Duration) {
	glfw.WaitEventsTimeout(timeout.Seconds())
}

// ApplyPending performs cursor and title changes requested from other threads.
func (w *Window) ApplyPending() {
	if icon := w.pendingIcon.Swap(noPendingIcon); icon != noPendingIcon {
		switch window.CursorIcon(icon) {
		case window.CursorGrabbing:
			w.win.SetCursor(w.grabCursor)
		default:
			w.win.SetCursor(nil)
		}
	}
	if title := w.pendingTitle.Swap(nil); title != nil {
		w.win.SetTitle(*title)
	}
}

func (w *Window) Destroy() {
	if w.grabCursor != nil {
		w.grabCursor.Destroy()
	}
	w.win.Destroy()
}

func (w *Window) storeSize(width, height int) {
	w.width.Store(int32(width))
	w.height.Store(int32(height))
}

func (w *Window) storeScale(s float64) {
	if s <= 0 {
		s = 1
	}
	w.scale.Store(math.Float64bits(s))
}

func (w *Window) emit(e window.Event) { w.handler(e) }

func (w *Window) installCallbacks() {
	w.win.SetCloseCallback(func(*glfw.Window) {
		w.emit(window.CloseRequested{})
	})
	w.win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.storeSize(width, height)
		w.emit(window.Resized{Width: width, Height: height})
	})
	w.win.SetContentScaleCallback(func(_ *glfw.Window, x, _ float32) {
		w.storeScale(float64(x))
		w.log.Debug("window scale factor changed", "scale_factor", w.ScaleFactor())
		w.emit(window.ScaleFactorChanged{ScaleFactor: w.ScaleFactor()})
	})
	w.win.SetCursorPosCallback(func(win *glfw.Window, x, y float64) {
		// cursor positions are in screen coordinates, convert to framebuffer pixels
		winW, winH := win.GetSize()
		fbW, fbH := win.GetFramebufferSize()
		if winW > 0 && winH > 0 {
			x *= float64(fbW) / float64(winW)
			y *= float64(fbH) / float64(winH)
		}
		w.emit(window.CursorMoved{X: x, Y: y})
	})
	w.win.SetCursorEnterCallback(func(_ *glfw.Window, entered bool) {
		if entered {
			w.emit(window.CursorEntered{})
		} else {
			w.emit(window.CursorLeft{})
		}
	})
	w.win.SetMouseButtonCallback(func(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		if action == glfw.Repeat {
			return
		}
		w.emit(window.MouseInput{Button: mouseButton(button), Pressed: action == glfw.Press})
	})
	w.win.SetScrollCallback(func(_ *glfw.Window, dx, dy float64) {
		w.emit(window.MouseWheel{DeltaX: dx, DeltaY: dy})
	})
	w.win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action == glfw.Repeat {
			return
		}
		if key == glfw.KeyEscape && action == glfw.Press {
			w.emit(window.CloseRequested{})
			return
		}
		if k := keyOf(key); k != window.KeyUnknown {
			w.emit(window.KeyInput{Key: k, Pressed: action == glfw.Press})
		}
	})
}

func mouseButton(b glfw.MouseButton) window.MouseButton {
	switch b {
	case glfw.MouseButtonLeft:
		return window.MouseLeft
	case glfw.MouseButtonRight:
		return window.MouseRight
	case glfw.MouseButtonMiddle:
		return window.MouseMiddle
	default:
		return window.MouseOther
	}
}

func keyOf(k glfw.Key) window.Key {
	switch k {
	case glfw.KeyEscape:
		return window.KeyEscape
	case glfw.KeyF1:
		return window.KeyF1
	case glfw.KeyHome:
		return window.KeyHome
	default:
		return window.KeyUnknown
	}
}
