// Package assets resolves advertisement asset references: inline data URIs,
// http(s) URLs, or s3:// keys in the ads bucket.
package assets

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/akashbiswas0/Avenger/pkg/storage"
)

const maxAssetBytes = storage.MaxAdFileSize

// Fetcher loads ad asset bytes from whatever reference a rental carries.
type Fetcher struct {
	httpClient *http.Client
	s3         *storage.S3 // nil when S3 is not configured
}

// NewFetcher creates an asset fetcher. s3 may be nil.
func NewFetcher(s3 *storage.S3) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		s3:         s3,
	}
}

// Fetch resolves ref to raw image bytes.
func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "data:image"):
		return decodeDataURI(ref)
	case strings.HasPrefix(ref, "s3://"):
		if f.s3 == nil {
			return nil, fmt.Errorf("s3 asset %q but storage is not configured", ref)
		}
		return f.s3.Download(ctx, strings.TrimPrefix(ref, "s3://"))
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return f.fetchHTTP(ctx, ref)
	default:
		return nil, fmt.Errorf("unsupported asset reference %q", ref)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch asset: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}
	if len(data) > maxAssetBytes {
		return nil, fmt.Errorf("asset exceeds max size")
	}
	return data, nil
}

func decodeDataURI(uri string) ([]byte, error) {
	idx := strings.Index(uri, ",")
	if idx < 0 {
		return nil, fmt.Errorf("malformed data URI")
	}
	data, err := base64.StdEncoding.DecodeString(uri[idx+1:])
	if err != nil {
		return nil, fmt.Errorf("decode data URI: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data URI")
	}
	return data, nil
}
