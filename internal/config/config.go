// Package config holds every tunable of the application in one structure.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dave-is-dave/Goshenite/internal/logging"
)

// Environment variables read by ApplyEnv.
const (
	EnvScaleFactor = "GOSHENITE_SCALE_FACTOR"
	EnvValidation  = "VK_VALIDATION"
	EnvLogLevel    = "GOSHENITE_LOG"
)

type Window struct {
	Title          string
	Width, Height  int
	StartMaximized bool
}

type App struct {
	// EngineThreadWaitTimeout bounds the window thread's join of the engine thread.
	EngineThreadWaitTimeout time.Duration
	// EventWaitTimeout bounds each blocking wait of the event pump.
	EventWaitTimeout time.Duration
}

type Engine struct {
	TickInterval time.Duration
	// RenderThreadWaitTimeout bounds the engine thread's join of the render thread.
	RenderThreadWaitTimeout time.Duration
	// DragRequiresBothAxes makes drag detection require movement on both
	// axes in the same frame. When false, movement on either axis counts.
	DragRequiresBothAxes bool
	// ScaleFactorOverride replaces the platform scale factor when non-zero.
	ScaleFactorOverride float64
}

type Renderer struct {
	MaxFramesInFlight int
	// FenceTimeout bounds each wait for a frame's GPU completion.
	FenceTimeout time.Duration
	// MaxConsecutiveFenceTimeouts is the number of back-to-back fence
	// timeouts after which the device is treated as hung.
	MaxConsecutiveFenceTimeouts int
	// IdleInterval is how long the render thread sleeps when it has no command.
	IdleInterval     time.Duration
	EnableValidation bool
}

type Config struct {
	Window   Window
	App      App
	Engine   Engine
	Renderer Renderer
	LogLevel slog.Level
}

func Default() Config {
	return Config{
		Window: Window{
			Title:  "Goshenite",
			Width:  800,
			Height: 800,
		},
		App: App{
			EngineThreadWaitTimeout: 5 * time.Second,
			EventWaitTimeout:        100 * time.Millisecond,
		},
		Engine: Engine{
			TickInterval:            time.Second / 120,
			RenderThreadWaitTimeout: 2 * time.Second,
			DragRequiresBothAxes:    true,
		},
		Renderer: Renderer{
			MaxFramesInFlight:           2,
			FenceTimeout:                time.Second,
			MaxConsecutiveFenceTimeouts: 3,
			IdleInterval:                time.Millisecond,
			EnableValidation:            true,
		},
		LogLevel: slog.LevelInfo,
	}
}

// PreferredImageCount is the swapchain image count the renderer asks for.
func (r Renderer) PreferredImageCount() uint32 {
	return uint32(r.MaxFramesInFlight)
}

func (c Config) Validate() error {
	var errs []error
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d must be positive", c.Window.Width, c.Window.Height))
	}
	if c.App.EngineThreadWaitTimeout <= 0 {
		errs = append(errs, errors.New("engine thread wait timeout must be positive"))
	}
	if c.App.EventWaitTimeout <= 0 {
		errs = append(errs, errors.New("event wait timeout must be positive"))
	}
	if c.Engine.TickInterval <= 0 {
		errs = append(errs, errors.New("engine tick interval must be positive"))
	}
	if c.Engine.RenderThreadWaitTimeout <= 0 {
		errs = append(errs, errors.New("render thread wait timeout must be positive"))
	}
	if c.Engine.ScaleFactorOverride < 0 {
		errs = append(errs, fmt.Errorf("scale factor override %v must not be negative", c.Engine.ScaleFactorOverride))
	}
	if c.Renderer.MaxFramesInFlight < 1 || c.Renderer.MaxFramesInFlight > 3 {
		errs = append(errs, fmt.Errorf("max frames in flight %d outside [1, 3]", c.Renderer.MaxFramesInFlight))
	}
	if c.Renderer.FenceTimeout <= 0 {
		errs = append(errs, errors.New("fence timeout must be positive"))
	}
	if c.Renderer.MaxConsecutiveFenceTimeouts < 1 {
		errs = append(errs, errors.New("max consecutive fence timeouts must be at least 1"))
	}
	if c.Renderer.IdleInterval <= 0 {
		errs = append(errs, errors.New("render idle interval must be positive"))
	}
	return errors.Join(errs...)
}

// ApplyEnv overrides fields from the environment. lookup is usually
// os.LookupEnv. Invalid values are ignored and reported as warnings so the
// platform defaults stay in effect.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) []string {
	var warnings []string

	if v, ok := lookup(EnvScaleFactor); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		switch {
		case err != nil:
			warnings = append(warnings, fmt.Sprintf("%s=%q is not a number, using the window scale factor", EnvScaleFactor, v))
		case f <= 0:
			warnings = append(warnings, fmt.Sprintf("%s=%q must be positive, using the window scale factor", EnvScaleFactor, v))
		default:
			c.Engine.ScaleFactorOverride = f
		}
	}

	if v, ok := lookup(EnvValidation); ok && v != "" {
		switch v {
		case "0", "false", "False", "FALSE":
			c.Renderer.EnableValidation = false
		default:
			c.Renderer.EnableValidation = true
		}
	}

	if v, ok := lookup(EnvLogLevel); ok {
		lvl, err := logging.ParseLevel(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", EnvLogLevel, err))
		} else {
			c.LogLevel = lvl
		}
	}

	return warnings
}

// ParseFlags applies command-line overrides on top of c. Every flag defaults
// to the value c already holds, so only flags present in args take effect
// and -validation=false wins over the environment.
func (c *Config) ParseFlags(fs *flag.FlagSet, args []string) error {
	fs.IntVar(&c.Window.Width, "width", c.Window.Width, "initial window width")
	fs.IntVar(&c.Window.Height, "height", c.Window.Height, "initial window height")
	fs.BoolVar(&c.Window.StartMaximized, "maximized", c.Window.StartMaximized, "start with a maximized window")
	fs.BoolVar(&c.Renderer.EnableValidation, "validation", c.Renderer.EnableValidation, "enable Vulkan validation layers")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *logLevel != "" {
		lvl, err := logging.ParseLevel(*logLevel)
		if err != nil {
			return err
		}
		c.LogLevel = lvl
	}
	return nil
}
