package retriever

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
)

// CurlDownloader shells out to curl, following redirects.
type CurlDownloader struct {
	Path      string
	UserAgent string
	// MaxTime bounds one transfer; zero leaves curl unbounded.
	MaxTime time.Duration
}

var _ crawler.Downloader = (*CurlDownloader)(nil)

// NewCurlDownloader returns a CurlDownloader. An empty path means "curl" on PATH.
func NewCurlDownloader(path, userAgent string) *CurlDownloader {
	if path == "" {
		path = "curl"
	}
	return &CurlDownloader{Path: path, UserAgent: userAgent}
}

// Download writes url to dest.
func (d *CurlDownloader) Download(ctx context.Context, url string, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &crawler.Failure{Kind: crawler.ErrFilesystem, Op: "download", Path: dest, Err: err}
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.Path, d.args(url, dest)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return &crawler.Failure{Kind: crawler.ErrTransport, Op: "download", URL: url, Err: err}
	}
	return nil
}

func (d *CurlDownloader) args(url, dest string) []string {
	args := []string{"-L", "--fail", "--silent", "--show-error", "-o", dest}
	if d.MaxTime > 0 {
		secs := int64((d.MaxTime + time.Second - 1) / time.Second)
		args = append(args, "--max-time", strconv.FormatInt(secs, 10))
	}
	if d.UserAgent != "" {
		args = append(args, "-H", "User-Agent: "+d.UserAgent)
	}
	return append(args, url)
}
