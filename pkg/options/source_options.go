package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*SourceOptions)(nil)

// Source providers understood by the fetch layer.
const (
	SourceProviderHTTP = "http"
	SourceProviderS3   = "s3"
)

// SourceOptions configures where the agent fetches updated files from.
// The remote source mirrors the device's own tree: files are addressed by
// the same relative path on both sides.
type SourceOptions struct {
	// Provider selects the fetch backend: "http" or "s3".
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL is the root of the mirrored tree for the http provider,
	// e.g. "https://raw.githubusercontent.com/acme/station-sw/main".
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// Timeout bounds a single fetch attempt.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxBytes caps the payload size; larger files fail the update.
	// Device memory is bounded, so the whole payload must fit comfortably.
	MaxBytes int64 `json:"max-bytes" mapstructure:"max-bytes"`
}

// NewSourceOptions creates a SourceOptions object with default parameters.
func NewSourceOptions() *SourceOptions {
	return &SourceOptions{
		Provider: SourceProviderHTTP,
		Timeout:  15 * time.Second,
		MaxBytes: 1 << 20, // 1 MiB
	}
}

func (o *SourceOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	switch o.Provider {
	case SourceProviderHTTP:
		if o.BaseURL == "" {
			errors = append(errors, fmt.Errorf("source.base-url is required for the http provider"))
		} else if _, err := url.Parse(o.BaseURL); err != nil {
			errors = append(errors, fmt.Errorf("invalid source.base-url: %w", err))
		}
	case SourceProviderS3:
		// Endpoint and credentials are validated by S3Options.
	default:
		errors = append(errors, fmt.Errorf("unknown source.provider %q", o.Provider))
	}

	if o.MaxBytes <= 0 {
		errors = append(errors, fmt.Errorf("source.max-bytes must be positive"))
	}

	return errors
}

func (o *SourceOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Provider, "source.provider", o.Provider, "Fetch backend for updates ('http' or 's3').")
	fs.StringVar(&o.BaseURL, "source.base-url", o.BaseURL, "Base URL of the mirrored source tree (http provider).")
	fs.DurationVar(&o.Timeout, "source.timeout", o.Timeout, "Timeout for a single fetch attempt.")
	fs.Int64Var(&o.MaxBytes, "source.max-bytes", o.MaxBytes, "Maximum size in bytes of a fetched file.")
}
