// Package engine runs the simulation thread: it consumes window events,
// updates the camera and GUI, and drives the render thread.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dave-is-dave/Goshenite/internal/camera"
	"github.com/dave-is-dave/Goshenite/internal/channel"
	"github.com/dave-is-dave/Goshenite/internal/config"
	"github.com/dave-is-dave/Goshenite/internal/cursor"
	"github.com/dave-is-dave/Goshenite/internal/gpu"
	"github.com/dave-is-dave/Goshenite/internal/gui"
	"github.com/dave-is-dave/Goshenite/internal/logging"
	"github.com/dave-is-dave/Goshenite/internal/render"
	"github.com/dave-is-dave/Goshenite/internal/scene"
	"github.com/dave-is-dave/Goshenite/internal/thread"
	"github.com/dave-is-dave/Goshenite/internal/window"
)

var (
	ErrWindowDisconnected = errors.New("engine: window thread disconnected")
	ErrRenderThreadClosed = errors.New("engine: render thread closed its channels")
)

// Command is sent by the window thread to the engine thread.
type Command int32

const (
	CommandRun Command = iota
	CommandQuit
)

func (c Command) String() string {
	switch c {
	case CommandRun:
		return "run"
	case CommandQuit:
		return "quit"
	default:
		return fmt.Sprintf("Command(%d)", int32(c))
	}
}

// WindowChannels are the engine's receiving ends from the window thread.
type WindowChannels struct {
	Commands *channel.ValueReceiver[Command]
	Events   *channel.QueueReceiver[window.Event]
}

// BackendFactory opens the GPU device for the window. It is called on the
// engine thread.
type BackendFactory func() (gpu.Backend, error)

type Engine struct {
	cfg    config.Config
	log    *slog.Logger
	window window.Handle
	in     WindowChannels

	scaleFactor float64
	cursor      *cursor.State
	camera      *camera.Camera
	overlay     *gui.Overlay
	objects     *scene.Collection
	fps         gui.FrameCounter

	frame        uint64
	resized      bool
	scaleChanged bool

	renderThread *thread.Handle
	render       *render.Channels
}

// New builds the engine state and starts the render thread.
func New(win window.Handle, in WindowChannels, newBackend BackendFactory, cfg config.Config, logger *slog.Logger) (*Engine, error) {
	log := logging.ForThread(logger, "engine")

	scaleFactor := win.ScaleFactor()
	if cfg.Engine.ScaleFactorOverride > 0 {
		scaleFactor = cfg.Engine.ScaleFactorOverride
		log.Info("using scale factor override", "scale_factor", scaleFactor, "env", config.EnvScaleFactor)
	}

	cam, err := camera.New(win.Size())
	if err != nil {
		return nil, fmt.Errorf("init camera: %w", err)
	}
	objects := scene.NewCollection()
	scene.Demo(objects)
	cam.SetTarget(objects.Centroid())

	backend, err := newBackend()
	if err != nil {
		return nil, fmt.Errorf("init gpu backend: %w", err)
	}
	manager, err := render.NewManager(backend, win, cfg.Renderer, logging.ForThread(logger, "render"))
	if err != nil {
		backend.Destroy()
		return nil, fmt.Errorf("init render manager: %w", err)
	}

	e := &Engine{
		cfg:          cfg,
		log:          log,
		window:       win,
		in:           in,
		scaleFactor:  scaleFactor,
		cursor:       cursor.New(win, cfg.Engine.DragRequiresBothAxes),
		camera:       cam,
		overlay:      gui.NewOverlay(scaleFactor),
		objects:      objects,
		scaleChanged: true,
	}
	e.renderThread, e.render = render.Start(manager, cfg.Renderer.IdleInterval, logger)
	log.Info("engine initialized", "objects", objects.Len(), "scale_factor", scaleFactor)
	return e, nil
}

// Run processes ticks until the window thread asks to quit or a fatal error
// occurs. The render thread is stopped before Run returns.
func (e *Engine) Run() error {
	ticker := time.NewTicker(e.cfg.Engine.TickInterval)
	defer ticker.Stop()

	for {
		cmd, err := e.in.Commands.Latest()
		if err != nil {
			e.log.Error("window thread closed the command channel")
			return errors.Join(ErrWindowDisconnected, e.stopRenderThread())
		}
		if cmd == CommandQuit {
			e.log.Info("engine received quit command")
			return e.stopRenderThread()
		}

		events, err := e.in.Events.Drain()
		if err != nil {
			e.log.Error("window thread closed the event queue")
			return errors.Join(ErrWindowDisconnected, e.stopRenderThread())
		}
		for _, ev := range events {
			e.processInput(ev)
		}

		if err := e.processFrame(); err != nil {
			e.log.Error("engine frame failed", "err", err)
			return errors.Join(err, e.stopRenderThread())
		}

		<-ticker.C
	}
}

// Close stops the render thread if Run did not already.
func (e *Engine) Close() error {
	return e.stopRenderThread()
}

func (e *Engine) processInput(ev window.Event) {
	switch ev := ev.(type) {
	case window.Resized:
		if e.camera.SetAspectRatio(ev.Width, ev.Height) {
			e.resized = true
		}
	case window.ScaleFactorChanged:
		if e.cfg.Engine.ScaleFactorOverride > 0 {
			return
		}
		e.scaleFactor = ev.ScaleFactor
		e.overlay.SetScaleFactor(ev.ScaleFactor)
		e.scaleChanged = true
	case window.CursorMoved:
		e.cursor.SetPosition(ev.X, ev.Y)
	case window.CursorEntered:
		e.cursor.SetInWindow(true)
	case window.CursorLeft:
		e.cursor.SetInWindow(false)
	case window.MouseInput:
		pos := e.cursor.Position()
		captured := e.overlay.Contains(pos.X(), pos.Y())
		if !e.cursor.SetClickState(ev.Button, ev.Pressed, captured) {
			e.log.Debug("ignoring unsupported mouse button", "button", ev.Button)
		}
	case window.MouseWheel:
		e.cursor.AddScroll(ev.DeltaX, ev.DeltaY)
	case window.KeyInput:
		if !ev.Pressed {
			return
		}
		switch ev.Key {
		case window.KeyF1:
			e.overlay.ToggleVisible()
		case window.KeyHome:
			e.camera.SetTarget(e.objects.Centroid())
		}
	}
}

func (e *Engine) processFrame() error {
	e.frame++

	e.cursor.ProcessFrame()
	if b, dragging := e.cursor.WhichDragging(); dragging && b == window.MouseLeft {
		e.camera.Rotate(e.cursor.PositionFrameChange())
	}
	if scroll := e.cursor.TakeScroll(); scroll.Y() != 0 {
		e.camera.Zoom(scroll.Y())
	}

	stamp, err := e.render.LatestStamp()
	if err != nil {
		return ErrRenderThreadClosed
	}
	if fps, updated := e.fps.Observe(stamp.Frame, time.Now()); updated {
		e.window.SetTitle(fmt.Sprintf("%s - %.0f fps", e.cfg.Window.Title, fps))
	}
	e.overlay.Update(gui.Stats{
		EngineFrame: e.frame,
		RenderFrame: stamp.Frame,
		RenderFPS:   e.fps.FPS(),
		Generation:  stamp.Generation,
		Objects:     e.objects.Len(),
		ScaleFactor: e.scaleFactor,
	})

	if err := e.publishFrame(); err != nil {
		if errors.Is(err, channel.ErrClosed) {
			return ErrRenderThreadClosed
		}
		return err
	}
	return nil
}

func (e *Engine) publishFrame() error {
	if err := e.render.UpdateCamera(e.camera.Snapshot()); err != nil {
		return err
	}
	if e.resized {
		if err := e.render.NotifyResized(); err != nil {
			return err
		}
		e.resized = false
	}
	if e.scaleChanged {
		if err := e.render.SetScaleFactor(float32(e.scaleFactor)); err != nil {
			return err
		}
		e.scaleChanged = false
	}
	if err := e.render.UpdateTextures(e.overlay.TakeTexturesDelta()); err != nil {
		return err
	}
	if err := e.render.SetPrimitives(e.overlay.Primitives()); err != nil {
		return err
	}
	return e.render.SetCommand(render.CommandRenderFrame)
}

// stopRenderThread asks the render thread to quit and joins it within the
// configured timeout. A render thread that does not finish in time is
// logged and abandoned. It is a no-op once the thread was joined.
func (e *Engine) stopRenderThread() error {
	if e.renderThread == nil {
		return nil
	}
	h := e.renderThread
	e.renderThread = nil

	if err := e.render.SetCommand(render.CommandQuit); err != nil {
		e.log.Debug("render thread already stopped before quit command")
	}
	err := thread.JoinAndReport(e.log, h, e.cfg.Engine.RenderThreadWaitTimeout)
	e.render.Close()
	if err != nil && !errors.Is(err, thread.ErrJoinTimeout) {
		return fmt.Errorf("render thread: %w", err)
	}
	return nil
}
