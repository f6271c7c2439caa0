package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/skystation-io/skystation/pkg/log"
	"github.com/skystation-io/skystation/pkg/options"
)

// httpFetcher reads files from an HTTP mirror of the source tree, e.g. a
// raw content endpoint of a git hosting service.
type httpFetcher struct {
	baseURL  string
	maxBytes int64
	client   *http.Client
}

func newHTTPFetcher(src *options.SourceOptions) *httpFetcher {
	return &httpFetcher{
		baseURL:  strings.TrimRight(src.BaseURL, "/"),
		maxBytes: src.MaxBytes,
		client: &http.Client{
			Timeout: src.Timeout,
		},
	}
}

func (f *httpFetcher) Fetch(ctx context.Context, relPath string) ([]byte, error) {
	url := f.baseURL + "/" + relPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		// Timeouts, DNS, TLS and connection failures all land here.
		return nil, fmt.Errorf("%w: GET %s: %v", ErrNetwork, url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, relPath)
	default:
		return nil, fmt.Errorf("%w: GET %s: unexpected status %s", ErrNetwork, url, resp.Status)
	}

	// Fail before reading when the server declares the size up front.
	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, relPath, resp.ContentLength, f.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrNetwork, url, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, relPath, f.maxBytes)
	}

	log.Debug("Fetched file over HTTP", "path", relPath, "bytes", len(data))
	return data, nil
}
