// Package app runs the window thread: it pumps OS events, forwards them to
// the engine thread and shuts the engine down when the window closes.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dave-is-dave/Goshenite/internal/channel"
	"github.com/dave-is-dave/Goshenite/internal/config"
	"github.com/dave-is-dave/Goshenite/internal/engine"
	"github.com/dave-is-dave/Goshenite/internal/logging"
	"github.com/dave-is-dave/Goshenite/internal/thread"
	"github.com/dave-is-dave/Goshenite/internal/window"
)

// Platform is the window as seen by the window thread.
type Platform interface {
	window.Handle
	SetEventHandler(fn func(window.Event))
	// WaitEvents dispatches pending events to the handler, blocking for at
	// most timeout.
	WaitEvents(timeout time.Duration)
	// ApplyPending performs mutations requested from other threads.
	ApplyPending()
	// Wake interrupts WaitEvents from another thread.
	Wake()
}

// Run spawns the engine thread and pumps window events until the window is
// closed or the engine stops. It returns the engine thread's error, if any.
// An engine thread that does not finish in time is logged and abandoned.
func Run(p Platform, newBackend engine.BackendFactory, cfg config.Config, logger *slog.Logger) error {
	log := logging.ForThread(logger, "window")

	commandTx, commandRx := channel.NewValue[engine.Command]()
	eventTx, eventRx := channel.NewQueue[window.Event]()
	defer commandTx.Close()
	defer eventTx.Close()

	engineThread := thread.Spawn("engine", func() error {
		defer p.Wake()
		defer commandRx.Close()
		defer eventRx.Close()

		e, err := engine.New(p, engine.WindowChannels{Commands: commandRx, Events: eventRx}, newBackend, cfg, logger)
		if err != nil {
			return err
		}
		return e.Run()
	}, thread.WithLockedOSThread())

	if err := commandTx.Publish(engine.CommandRun); err != nil {
		log.Error("engine thread exited before it was started", "err", err)
	}

	exit := false
	p.SetEventHandler(func(ev window.Event) {
		if exit {
			return
		}
		if _, ok := ev.(window.CloseRequested); ok {
			log.Info("close requested, stopping engine")
			exit = true
			return
		}
		if err := eventTx.Send(ev); err != nil {
			log.Error("engine thread stopped receiving window events")
			exit = true
		}
	})
	defer p.SetEventHandler(nil)

	for !exit {
		p.WaitEvents(cfg.App.EventWaitTimeout)
		p.ApplyPending()
		if engineThread.IsFinished() {
			log.Warn("engine thread finished on its own")
			exit = true
		}
	}

	if err := commandTx.Publish(engine.CommandQuit); err != nil {
		log.Debug("engine thread already gone, quit not delivered")
	}
	err := thread.JoinAndReport(log, engineThread, cfg.App.EngineThreadWaitTimeout)
	switch {
	case errors.Is(err, thread.ErrJoinTimeout):
		// reported above, the abandoned thread ends with the process
		return nil
	case err != nil:
		return fmt.Errorf("engine thread: %w", err)
	}
	return nil
}
