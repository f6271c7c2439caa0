package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*TelemetryOptions)(nil)

// TelemetryOptions configures the periodic sensor-reading publish loop.
type TelemetryOptions struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Interval between published readings.
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

func NewTelemetryOptions() *TelemetryOptions {
	return &TelemetryOptions{
		Enabled:  true,
		Interval: time.Minute,
	}
}

func (o *TelemetryOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.Enabled && o.Interval <= 0 {
		errors = append(errors, fmt.Errorf("telemetry.interval must be positive"))
	}

	return errors
}

func (o *TelemetryOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "telemetry.enabled", o.Enabled, "Enable the periodic telemetry publish loop.")
	fs.DurationVar(&o.Interval, "telemetry.interval", o.Interval, "Interval between telemetry readings.")
}
