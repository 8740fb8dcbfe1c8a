package plugin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultMaxManifestBytes caps fetched manifests; a command definition
	// has no business being larger.
	DefaultMaxManifestBytes = 64 << 10

	defaultFetchTimeout = 15 * time.Second
)

// Fetcher downloads manifests over HTTP so members can install commands by
// URL.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(client *http.Client, maxBytes int64) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxManifestBytes
	}
	return &Fetcher{client: client, maxBytes: maxBytes}
}

// Fetch downloads and parses the manifest at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Manifest, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Manifest{}, fmt.Errorf("plugin: parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Manifest{}, ErrUnsupportedURLScheme
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Manifest{}, fmt.Errorf("plugin: build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Manifest{}, fmt.Errorf("plugin: fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Manifest{}, fmt.Errorf("%w: %s", ErrUnexpectedFetchStatus, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return Manifest{}, fmt.Errorf("plugin: read manifest body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return Manifest{}, ErrManifestTooLarge
	}
	return Parse(data)
}
