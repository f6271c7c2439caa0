// Package options aggregates the flag and config surface of the agent.
package options

import (
	"github.com/spf13/pflag"

	"github.com/skystation-io/skystation/internal/agent"
	"github.com/skystation-io/skystation/pkg/log"
	genericoptions "github.com/skystation-io/skystation/pkg/options"
)

// AgentOptions holds every configurable knob of the agent process.
type AgentOptions struct {
	Mqtt      *genericoptions.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	Source    *genericoptions.SourceOptions    `json:"source" mapstructure:"source"`
	S3        *genericoptions.S3Options        `json:"s3" mapstructure:"s3"`
	Update    *genericoptions.UpdateOptions    `json:"update" mapstructure:"update"`
	Http      *genericoptions.HttpOptions      `json:"http" mapstructure:"http"`
	Telemetry *genericoptions.TelemetryOptions `json:"telemetry" mapstructure:"telemetry"`
	Log       *log.Options                     `json:"log" mapstructure:"log"`
}

// NewAgentOptions returns options populated with defaults.
func NewAgentOptions() *AgentOptions {
	return &AgentOptions{
		Mqtt:      genericoptions.NewMqttOptions(),
		Source:    genericoptions.NewSourceOptions(),
		S3:        genericoptions.NewS3Options(),
		Update:    genericoptions.NewUpdateOptions(),
		Http:      genericoptions.NewHttpOptions(),
		Telemetry: genericoptions.NewTelemetryOptions(),
		Log:       log.NewOptions(),
	}
}

// AddFlags registers every section's flags on fs.
func (o *AgentOptions) AddFlags(fs *pflag.FlagSet) {
	o.Mqtt.AddFlags(fs)
	o.Source.AddFlags(fs)
	o.S3.AddFlags(fs)
	o.Update.AddFlags(fs)
	o.Http.AddFlags(fs)
	o.Telemetry.AddFlags(fs)
	o.Log.AddFlags(fs)
}

// Validate collects the validation errors of every section.
func (o *AgentOptions) Validate() []error {
	var errs []error
	errs = append(errs, o.Mqtt.Validate()...)
	errs = append(errs, o.Source.Validate()...)
	errs = append(errs, o.S3.Validate()...)
	errs = append(errs, o.Update.Validate()...)
	errs = append(errs, o.Http.Validate()...)
	errs = append(errs, o.Telemetry.Validate()...)
	return errs
}

// Config assembles the runtime config the agent is built from.
func (o *AgentOptions) Config() *agent.Config {
	return &agent.Config{
		Mqtt:      o.Mqtt,
		Source:    o.Source,
		S3:        o.S3,
		Update:    o.Update,
		Http:      o.Http,
		Telemetry: o.Telemetry,
	}
}
