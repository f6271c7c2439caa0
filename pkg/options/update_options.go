package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*UpdateOptions)(nil)

// UpdateOptions configures the update state machine's policy values.
type UpdateOptions struct {
	// Root is the device's writable root; every update target must resolve
	// under it. The staging file for a target lives next to it.
	Root string `json:"root" mapstructure:"root"`

	// MaxAttempts bounds fetch retries for one update job.
	MaxAttempts int `json:"max-attempts" mapstructure:"max-attempts"`

	// RetryBackoff is the fixed delay between fetch attempts.
	RetryBackoff time.Duration `json:"retry-backoff" mapstructure:"retry-backoff"`
}

// NewUpdateOptions creates an UpdateOptions object with default parameters.
func NewUpdateOptions() *UpdateOptions {
	return &UpdateOptions{
		Root:         "/var/lib/skystation",
		MaxAttempts:  3,
		RetryBackoff: 5 * time.Second,
	}
}

func (o *UpdateOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.Root == "" {
		errors = append(errors, fmt.Errorf("update.root is required"))
	}
	if o.MaxAttempts < 1 {
		errors = append(errors, fmt.Errorf("update.max-attempts must be at least 1"))
	}
	if o.RetryBackoff < 0 {
		errors = append(errors, fmt.Errorf("update.retry-backoff must not be negative"))
	}

	return errors
}

func (o *UpdateOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Root, "update.root", o.Root, "Writable root directory that update targets resolve under.")
	fs.IntVar(&o.MaxAttempts, "update.max-attempts", o.MaxAttempts, "Maximum fetch attempts per update job.")
	fs.DurationVar(&o.RetryBackoff, "update.retry-backoff", o.RetryBackoff, "Fixed delay between fetch attempts.")
}
