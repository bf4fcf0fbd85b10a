package media

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	"tgreddit/internal/metrics"
)

// HTTPDownloader fetches images and gallery items over plain HTTP.
type HTTPDownloader struct {
	client *resty.Client
}

// NewHTTPDownloader creates an HTTPDownloader with the given request timeout.
func NewHTTPDownloader(userAgent string, timeout time.Duration) *HTTPDownloader {
	return &HTTPDownloader{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent),
	}
}

// Download saves the body of rawURL into a temporary directory.
func (d *HTTPDownloader) Download(ctx context.Context, rawURL string) (*File, error) {
	dir, err := tempDir("tgreddit-media-")
	if err != nil {
		return nil, err
	}

	dst := filepath.Join(dir, "media"+extension(rawURL))
	resp, err := d.client.R().
		SetContext(ctx).
		SetOutput(dst).
		Get(rawURL)
	if err == nil && resp.IsError() {
		err = fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		metrics.MediaDownloads.WithLabelValues("http", metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}

	metrics.MediaDownloads.WithLabelValues("http", metrics.OutcomeSuccess).Inc()
	return &File{Path: dst, dir: dir}, nil
}

func extension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := path.Ext(u.Path)
	if len(ext) > 6 {
		return ""
	}
	return ext
}
