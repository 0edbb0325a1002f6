package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/dave-is-dave/Goshenite/internal/app"
	"github.com/dave-is-dave/Goshenite/internal/config"
	"github.com/dave-is-dave/Goshenite/internal/desktop"
	"github.com/dave-is-dave/Goshenite/internal/engine"
	"github.com/dave-is-dave/Goshenite/internal/gpu"
	"github.com/dave-is-dave/Goshenite/internal/logging"
	"github.com/dave-is-dave/Goshenite/internal/vk"
)

func init() {
	// GLFW needs the main OS thread.
	runtime.LockOSThread()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "goshenite: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()
	warnings := cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.ParseFlags(flag.CommandLine, os.Args[1:]); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)
	logging.SetDefault(logger)
	for _, w := range warnings {
		logger.Warn(w)
	}

	if err := desktop.Init(); err != nil {
		return err
	}
	defer desktop.Terminate()

	win, err := desktop.Open(cfg.Window, logger)
	if err != nil {
		return err
	}
	defer win.Destroy()
	win.WaitForArea()

	var newBackend engine.BackendFactory = func() (gpu.Backend, error) {
		b, err := vk.NewBackend(win.Raw(), cfg.Renderer, logging.ForThread(logger, "engine"))
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	if err := app.Run(win, newBackend, cfg, logger); err != nil {
		return err
	}
	logger.Info("exited cleanly")
	return nil
}
