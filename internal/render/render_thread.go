package render

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dave-is-dave/Goshenite/internal/camera"
	"github.com/dave-is-dave/Goshenite/internal/channel"
	"github.com/dave-is-dave/Goshenite/internal/gpu"
	"github.com/dave-is-dave/Goshenite/internal/gui"
	"github.com/dave-is-dave/Goshenite/internal/logging"
	"github.com/dave-is-dave/Goshenite/internal/thread"
)

// Command tells the render thread what to do on its next iteration.
type Command int32

const (
	// CommandNone idles the render thread.
	CommandNone Command = iota
	CommandRenderFrame
	CommandQuit
)

func (c Command) String() string {
	switch c {
	case CommandNone:
		return "none"
	case CommandRenderFrame:
		return "render frame"
	case CommandQuit:
		return "quit"
	default:
		return fmt.Sprintf("Command(%d)", int32(c))
	}
}

// FrameStamp reports the last frame the render thread submitted.
type FrameStamp struct {
	Frame      uint64
	Generation uint64
	Extent     gpu.Extent2D
	At         time.Time
}

// Channels is the engine's end of the render thread's channels.
type Channels struct {
	command    *channel.ValueSender[Command]
	camera     *channel.ValueSender[camera.Snapshot]
	resized    *channel.ValueSender[bool]
	scale      *channel.ValueSender[float32]
	primitives *channel.ValueSender[gui.Primitives]
	textures   *channel.QueueSender[gui.TexturesDelta]
	stamps     *channel.ValueReceiver[FrameStamp]
}

func (c *Channels) SetCommand(cmd Command) error { return c.command.Publish(cmd) }

func (c *Channels) UpdateCamera(s camera.Snapshot) error { return c.camera.Publish(s) }

// NotifyResized tells the render thread the window size changed.
func (c *Channels) NotifyResized() error { return c.resized.Publish(true) }

func (c *Channels) SetScaleFactor(f float32) error { return c.scale.Publish(f) }

func (c *Channels) SetPrimitives(p gui.Primitives) error { return c.primitives.Publish(p) }

func (c *Channels) UpdateTextures(d gui.TexturesDelta) error {
	if d.IsEmpty() {
		return nil
	}
	return c.textures.Send(d)
}

// LatestStamp returns the most recent frame stamp, zero before the first frame.
func (c *Channels) LatestStamp() (FrameStamp, error) { return c.stamps.Latest() }

// Close closes the engine's endpoints.
func (c *Channels) Close() {
	c.command.Close()
	c.camera.Close()
	c.resized.Close()
	c.scale.Close()
	c.primitives.Close()
	c.textures.Close()
	c.stamps.Close()
}

type threadChannels struct {
	command    *channel.ValueReceiver[Command]
	camera     *channel.ValueReceiver[camera.Snapshot]
	resized    *channel.ValueReceiver[bool]
	scale      *channel.ValueReceiver[float32]
	primitives *channel.ValueReceiver[gui.Primitives]
	textures   *channel.QueueReceiver[gui.TexturesDelta]
	stamps     *channel.ValueSender[FrameStamp]
}

func (c *threadChannels) close() {
	c.command.Close()
	c.camera.Close()
	c.resized.Close()
	c.scale.Close()
	c.primitives.Close()
	c.textures.Close()
	c.stamps.Close()
}

// snapshot gathers everything the engine published since the last frame.
func (c *threadChannels) snapshot() (FrameSnapshot, error) {
	var snap FrameSnapshot

	cam, fresh, err := c.camera.Take()
	if err != nil {
		return snap, err
	}
	if fresh {
		snap.Camera = &cam
	}
	if snap.Resized, _, err = c.resized.Take(); err != nil {
		return snap, err
	}
	scale, fresh, err := c.scale.Take()
	if err != nil {
		return snap, err
	}
	if fresh {
		snap.ScaleFactor = scale
	}
	if snap.Primitives, err = c.primitives.Latest(); err != nil {
		return snap, err
	}
	if snap.Textures, err = c.textures.Drain(); err != nil {
		return snap, err
	}
	return snap, nil
}

// Start hands m to a new render thread. The thread owns m from now on and
// destroys it on exit. The returned Channels drive it; it starts idle.
func Start(m *Manager, idle time.Duration, logger *slog.Logger) (*thread.Handle, *Channels) {
	commandTx, commandRx := channel.NewValue[Command]()
	cameraTx, cameraRx := channel.NewValue[camera.Snapshot]()
	resizedTx, resizedRx := channel.NewValue[bool]()
	scaleTx, scaleRx := channel.NewValue[float32]()
	primitivesTx, primitivesRx := channel.NewValue[gui.Primitives]()
	texturesTx, texturesRx := channel.NewQueue[gui.TexturesDelta]()
	stampsTx, stampsRx := channel.NewValue[FrameStamp]()

	engineSide := &Channels{
		command:    commandTx,
		camera:     cameraTx,
		resized:    resizedTx,
		scale:      scaleTx,
		primitives: primitivesTx,
		textures:   texturesTx,
		stamps:     stampsRx,
	}
	renderSide := &threadChannels{
		command:    commandRx,
		camera:     cameraRx,
		resized:    resizedRx,
		scale:      scaleRx,
		primitives: primitivesRx,
		textures:   texturesRx,
		stamps:     stampsTx,
	}

	log := logging.ForThread(logger, "render")
	h := thread.Spawn("render", func() error {
		return run(m, renderSide, idle, log)
	}, thread.WithLockedOSThread())
	return h, engineSide
}

func run(m *Manager, ch *threadChannels, idle time.Duration, log *slog.Logger) error {
	defer ch.close()
	defer m.Destroy()

	log.Info("render thread started")
	for {
		cmd, err := ch.command.Latest()
		if err != nil {
			log.Error("engine closed the command channel")
			return ErrEngineDisconnected
		}

		switch cmd {
		case CommandQuit:
			log.Info("render thread received quit command")
			return nil
		case CommandRenderFrame:
		default:
			time.Sleep(idle)
			continue
		}

		snap, err := ch.snapshot()
		if err != nil {
			log.Error("engine closed a frame channel")
			return ErrEngineDisconnected
		}

		rendered, err := m.RenderFrame(snap)
		if err != nil {
			log.Error("render frame failed", "err", err)
			return err
		}
		if !rendered {
			time.Sleep(idle)
			continue
		}

		stats := m.Stats()
		err = ch.stamps.Publish(FrameStamp{
			Frame:      stats.FramesRendered,
			Generation: stats.Generation,
			Extent:     stats.Extent,
			At:         time.Now(),
		})
		if err != nil {
			log.Error("engine stopped reading frame stamps")
			return ErrEngineDisconnected
		}
	}
}
