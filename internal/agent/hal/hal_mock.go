//go:build !linux

package hal

import (
	"fmt"
	"sync"
	"time"

	"github.com/skystation-io/skystation/pkg/log"
)

var (
	count int
	mu    sync.Mutex
)

// MockHAL simulates the device hardware for development hosts.
type MockHAL struct {
	id    string
	ledOn bool
}

func NewHAL() HAL {
	id := DiscoverDeviceID()
	if id == "" {
		mu.Lock()
		count++
		id = fmt.Sprintf("MSTN%08d%04d", time.Now().Unix()%100000000, count)
		mu.Unlock()
	}

	return &MockHAL{id: id}
}

func (h *MockHAL) DeviceID() string {
	return h.id
}

func (h *MockHAL) Reboot() error {
	log.Warn("[HAL-Mock] >>> REBOOT REQUESTED <<<")
	log.Warn("[HAL-Mock] A real device would reset here; the mock keeps running.")
	return nil
}

func (h *MockHAL) ToggleLED() error {
	h.ledOn = !h.ledOn
	log.Info("[HAL-Mock] LED toggled", "on", h.ledOn)
	return nil
}
