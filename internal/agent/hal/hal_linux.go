//go:build linux

package hal

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/skystation-io/skystation/pkg/log"
)

const defaultLEDPath = "/sys/class/leds/status/brightness"

type linuxHAL struct {
	id      string
	ledPath string
}

func NewHAL() HAL {
	id := DiscoverDeviceID()
	if id == "" {
		// Without a provisioned identity the agent cannot address its topics.
		if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
			id = strings.TrimSpace(string(machineID))
			log.Warn("Device ID not provisioned, falling back to machine-id", "id", id)
		}
	}

	ledPath := os.Getenv("SKYSTATION_LED_PATH")
	if ledPath == "" {
		ledPath = defaultLEDPath
	}

	return &linuxHAL{id: id, ledPath: ledPath}
}

func (h *linuxHAL) DeviceID() string {
	return h.id
}

// Reboot flushes filesystem buffers and resets the board. It only returns
// on failure; on success the kernel takes over.
func (h *linuxHAL) Reboot() error {
	log.Warn("Hardware reboot requested")
	syscall.Sync()
	if err := syscall.Reboot(syscall.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reboot syscall: %w", err)
	}
	return nil
}

func (h *linuxHAL) ToggleLED() error {
	current, err := os.ReadFile(h.ledPath)
	if err != nil {
		return fmt.Errorf("read led state: %w", err)
	}

	next := "1"
	if strings.TrimSpace(string(current)) != "0" {
		next = "0"
	}

	if err := os.WriteFile(h.ledPath, []byte(next), 0o644); err != nil {
		return fmt.Errorf("write led state: %w", err)
	}
	return nil
}
