package collyfetcher

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
)

// Downloader saves documents to disk through a Fetcher.
type Downloader struct {
	fetcher   crawler.Fetcher
	userAgent string
}

var _ crawler.Downloader = (*Downloader)(nil)

// NewDownloader returns a Downloader that sends userAgent with every request.
func NewDownloader(fetcher crawler.Fetcher, userAgent string) *Downloader {
	return &Downloader{fetcher: fetcher, userAgent: userAgent}
}

// Download fetches url and writes the body to dest, replacing any previous
// content.
func (d *Downloader) Download(ctx context.Context, url string, dest string) error {
	headers := http.Header{}
	if d.userAgent != "" {
		headers.Set("User-Agent", d.userAgent)
	}
	resp, err := d.fetcher.Fetch(ctx, crawler.FetchRequest{URL: url, Headers: headers})
	if err != nil {
		return &crawler.Failure{Kind: crawler.ErrTransport, Op: "download", URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &crawler.Failure{
			Kind:       crawler.ErrTransport,
			Op:         "download",
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &crawler.Failure{Kind: crawler.ErrFilesystem, Op: "download", Path: dest, Err: err}
	}
	if err := os.WriteFile(dest, resp.Body, 0o644); err != nil {
		return &crawler.Failure{Kind: crawler.ErrFilesystem, Op: "download", Path: dest, Err: err}
	}
	return nil
}
