package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dave-is-dave/Goshenite/internal/config"
	"github.com/dave-is-dave/Goshenite/internal/gpu"
	"github.com/dave-is-dave/Goshenite/internal/gpu/gputest"
	"github.com/dave-is-dave/Goshenite/internal/logging"
	"github.com/dave-is-dave/Goshenite/internal/window"
)

// fakePlatform replays scripted events, one batch per WaitEvents call.
type fakePlatform struct {
	mu      sync.Mutex
	batches [][]window.Event
	handler func(window.Event)
	applied int
	titles  []string
}

func (p *fakePlatform) Size() (int, int)                { return 640, 480 }
func (p *fakePlatform) ScaleFactor() float64            { return 1 }
func (p *fakePlatform) SetCursorIcon(window.CursorIcon) {}
func (p *fakePlatform) Wake()                           {}

func (p *fakePlatform) SetTitle(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.titles = append(p.titles, title)
}

func (p *fakePlatform) SetEventHandler(fn func(window.Event)) { p.handler = fn }

func (p *fakePlatform) WaitEvents(timeout time.Duration) {
	time.Sleep(min(timeout, 5*time.Millisecond))
	p.mu.Lock()
	var batch []window.Event
	if len(p.batches) > 0 {
		batch = p.batches[0]
		p.batches = p.batches[1:]
	}
	p.mu.Unlock()
	for _, ev := range batch {
		if p.handler != nil {
			p.handler(ev)
		}
	}
}

func (p *fakePlatform) ApplyPending() { p.applied++ }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Engine.TickInterval = time.Millisecond
	cfg.App.EventWaitTimeout = 5 * time.Millisecond
	return cfg
}

func idle(n int) [][]window.Event {
	return make([][]window.Event, n)
}

func TestCloseRequestShutsDownCleanly(t *testing.T) {
	backend := gputest.New(640, 480)
	p := &fakePlatform{}
	p.batches = append(idle(10),
		[]window.Event{window.CursorMoved{X: 300, Y: 200}, window.Resized{Width: 640, Height: 480}},
	)
	p.batches = append(p.batches, idle(10)...)
	p.batches = append(p.batches, []window.Event{window.CloseRequested{}})

	err := Run(p, func() (gpu.Backend, error) { return backend, nil }, testConfig(), logging.Nop())
	require.NoError(t, err)

	stats := backend.Stats()
	assert.Equal(t, 1, stats.Destroyed, "render thread tore the backend down")
	assert.Positive(t, p.applied)
}

func TestEngineStartupFailureEndsPump(t *testing.T) {
	boom := errors.New("no suitable gpu")
	p := &fakePlatform{}

	done := make(chan error, 1)
	go func() {
		done <- Run(p, func() (gpu.Backend, error) { return nil, boom }, testConfig(), logging.Nop())
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, boom)
	case <-time.After(3 * time.Second):
		t.Fatal("window thread kept pumping after the engine failed")
	}
}

func TestHungEngineIsAbandonedOnClose(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	p := &fakePlatform{}
	p.batches = append(idle(3), []window.Event{window.CloseRequested{}})

	cfg := testConfig()
	cfg.App.EngineThreadWaitTimeout = 100 * time.Millisecond
	factory := func() (gpu.Backend, error) {
		<-release
		return nil, errors.New("released")
	}

	start := time.Now()
	err := Run(p, factory, cfg, logging.Nop())
	assert.NoError(t, err)
	assert.Less(t, time.Since(start), cfg.App.EngineThreadWaitTimeout+time.Second)
}

func TestEngineFailureIsReturned(t *testing.T) {
	backend := gputest.New(640, 480)
	p := &fakePlatform{}
	p.batches = idle(5)

	done := make(chan error, 1)
	go func() {
		done <- Run(p, func() (gpu.Backend, error) { return backend, nil }, testConfig(), logging.Nop())
	}()

	require.Eventually(t, func() bool {
		return len(backend.Stats().Submissions) >= 2
	}, 3*time.Second, time.Millisecond)
	backend.SetHung(true)

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine failure did not stop the window thread")
	}
}
