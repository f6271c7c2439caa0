package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/skystation-io/skystation/pkg/options"
)

// Sentinel errors distinguishing fetch failure classes. ErrNetwork is the
// only transient one; the update orchestrator retries it and gives up on
// everything else.
var (
	ErrNotFound = errors.New("not found in source repository")
	ErrTooLarge = errors.New("payload exceeds size limit")
	ErrNetwork  = errors.New("network error")
)

// Fetcher retrieves the current bytes of a file from the remote source
// repository. Paths are the same relative slash-separated paths used on the
// device; the "latest" content at a path is always what is returned, there
// is no version pinning.
type Fetcher interface {
	Fetch(ctx context.Context, relPath string) ([]byte, error)
}

// New builds the Fetcher selected by the source options.
func New(src *options.SourceOptions, s3 *options.S3Options) (Fetcher, error) {
	switch src.Provider {
	case options.SourceProviderHTTP:
		return newHTTPFetcher(src), nil
	case options.SourceProviderS3:
		return newS3Fetcher(src, s3)
	default:
		return nil, fmt.Errorf("unknown source provider %q", src.Provider)
	}
}
