package gui

import "time"

// FrameCounter turns a monotonically increasing frame number into a frame
// rate averaged over at least one second.
type FrameCounter struct {
	lastFrame uint64
	lastTime  time.Time
	fps       float64
}

// Observe records that frame had been reached at now. It reports true when
// the rate was recomputed.
func (c *FrameCounter) Observe(frame uint64, now time.Time) (float64, bool) {
	if c.lastTime.IsZero() || frame < c.lastFrame {
		c.lastFrame = frame
		c.lastTime = now
		return c.fps, false
	}
	elapsed := now.Sub(c.lastTime)
	if elapsed < time.Second {
		return c.fps, false
	}
	c.fps = float64(frame-c.lastFrame) / elapsed.Seconds()
	c.lastFrame = frame
	c.lastTime = now
	return c.fps, true
}

func (c *FrameCounter) FPS() float64 { return c.fps }
