package render

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRecreateFailed     = errors.New("render: swapchain recreation failed")
	ErrEngineDisconnected = errors.New("render: engine thread disconnected")
)

// DeviceTimeoutError is returned when the GPU repeatedly fails to finish a
// frame within the fence timeout.
type DeviceTimeoutError struct {
	Timeout     time.Duration
	Consecutive int
}

func (e *DeviceTimeoutError) Error() string {
	return fmt.Sprintf("render: gpu did not finish %d consecutive frames within %v", e.Consecutive, e.Timeout)
}
