// Package blob fetches file bytes for the pipeline. The core has no
// upload responsibility; it only consumes fetchable URLs, either gs://
// objects or plain http(s) URLs.
package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Fetcher retrieves the content behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// fetchTimeout bounds a single fetch. A timeout is a per-item failure
// handled upstream, never a batch-level abort.
const fetchTimeout = 60 * time.Second

// GCSFetcher reads gs:// objects through a shared storage client.
type GCSFetcher struct {
	client *storage.Client
}

// NewGCSFetcher builds a fetcher over an explicit storage client; the
// client lifecycle belongs to the caller.
func NewGCSFetcher(client *storage.Client) *GCSFetcher {
	return &GCSFetcher{client: client}
}

// Fetch downloads the object bytes behind a gs:// URI.
func (f *GCSFetcher) Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return nil, fmt.Errorf("blob: invalid GCS URI: %s", gcsURI)
	}

	trimmed := strings.TrimPrefix(gcsURI, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("blob: invalid GCS URI (no object path): %s", gcsURI)
	}
	bucketName, objectPath := parts[0], parts[1]

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	rc, err := f.client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("blob: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("blob: reading bytes: %w", err)
	}
	return data, nil
}

// HTTPFetcher reads http(s) URLs.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds an HTTP fetcher with a per-call timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: fetchTimeout}}
}

// Fetch downloads the bytes behind an http(s) URL.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("blob: build request for %s: %w", url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blob: fetch %s: http %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("blob: read body of %s: %w", url, err)
	}
	return data, nil
}

// Mux dispatches on URL scheme.
type Mux struct {
	gcs  Fetcher
	http Fetcher
}

// NewMux builds a scheme-dispatching fetcher. Either backend may be nil
// when not configured.
func NewMux(gcs, httpFetcher Fetcher) *Mux {
	return &Mux{gcs: gcs, http: httpFetcher}
}

// Fetch implements Fetcher.
func (m *Mux) Fetch(ctx context.Context, url string) ([]byte, error) {
	switch {
	case strings.HasPrefix(url, "gs://"):
		if m.gcs == nil {
			return nil, fmt.Errorf("blob: no GCS fetcher configured for %s", url)
		}
		return m.gcs.Fetch(ctx, url)
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		if m.http == nil {
			return nil, fmt.Errorf("blob: no HTTP fetcher configured for %s", url)
		}
		return m.http.Fetch(ctx, url)
	default:
		return nil, fmt.Errorf("blob: unsupported URL scheme: %s", url)
	}
}
