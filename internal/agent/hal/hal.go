package hal

import (
	"os"
	"strings"

	"github.com/skystation-io/skystation/pkg/log"
)

// HAL is the narrow hardware interface the agent core drives. Both calls
// are fire-and-forget: synchronous, side-effect-only, never retried.
type HAL interface {
	// DeviceID returns the stable identity of this device.
	DeviceID() string

	// Reboot performs a hardware reset. On success no further code runs.
	Reboot() error

	// ToggleLED flips the status LED.
	ToggleLED() error
}

// DiscoverDeviceID resolves the device identity from the environment.
// A privileged provisioning step is expected to have written it to the
// environment or the identity file; the HAL falls back to a generated ID
// when neither exists (useful only for local development).
func DiscoverDeviceID() string {
	if envID := os.Getenv("SKYSTATION_DEVICE_ID"); envID != "" {
		log.Info("Device ID detected from env", "id", envID)
		return envID
	}

	if content, err := os.ReadFile("/etc/skystation/device-id"); err == nil {
		id := strings.TrimSpace(string(content))
		if id != "" {
			log.Info("Device ID detected from file", "id", id)
			return id
		}
	}

	return ""
}
