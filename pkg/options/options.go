package options

import (
	"fmt"
	"net"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every per-concern options struct so the
// application layer can aggregate them uniformly.
type IOptions interface {
	// Validate checks the options and returns all problems found.
	Validate() []error

	// AddFlags registers the options as command-line flags.
	AddFlags(fs *pflag.FlagSet)
}

// ValidateAddress checks that addr is a valid "host:port" listen address.
func ValidateAddress(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	return nil
}
