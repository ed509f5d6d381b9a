package visuals

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"json2video/config"
	"json2video/lifecycle"
)

// minAssetBytes rejects tiny bodies, which are usually error pages
const minAssetBytes = 100

// Fetcher downloads a remote asset into a compile's work directory
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, tracker *lifecycle.Tracker) (string, error)
}

// Downloader fetches assets over HTTP. Concurrent fetches of the same URL in
// the same run share one download.
type Downloader struct {
	httpClient *http.Client
	timeout    time.Duration
	maxBytes   int64
	group      singleflight.Group
	log        *zap.SugaredLogger

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is a shared download. It runs detached from any one caller and is
// cancelled only once every caller waiting on it has given up.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func NewDownloader(cfg *config.Config, logger *zap.Logger) *Downloader {
	timeout := config.Timeout(cfg.Assets.DownloadTimeoutSec)
	return &Downloader{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		maxBytes:   cfg.Assets.MaxDownloadBytes,
		log:        logger.Named("download").Sugar(),
		flights:    make(map[string]*flight),
	}
}

// Fetch downloads rawURL and returns the local path. The destination is
// tracked before the first byte is written. A caller whose ctx ends stops
// waiting without failing the other callers of the same download.
func (d *Downloader) Fetch(ctx context.Context, rawURL string, tracker *lifecycle.Tracker) (string, error) {
	key := tracker.RunID() + "|" + rawURL
	fl := d.join(ctx, key)
	ch := d.group.DoChan(key, func() (any, error) {
		return d.download(fl.ctx, rawURL, tracker)
	})

	select {
	case res := <-ch:
		d.leave(key, fl)
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			d.log.Debugf("shared download of %s", truncate(rawURL, 80))
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		if d.leave(key, fl) {
			// last one out: wait for the cancelled download so nothing is
			// written after the caller returns
			<-ch
		}
		return "", ctx.Err()
	}
}

func (d *Downloader) join(ctx context.Context, key string) *flight {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fl, ok := d.flights[key]; ok {
		fl.waiters++
		return fl
	}
	fctx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if d.timeout > 0 {
		fctx, cancel = context.WithTimeout(fctx, d.timeout)
	} else {
		fctx, cancel = context.WithCancel(fctx)
	}
	fl := &flight{ctx: fctx, cancel: cancel, waiters: 1}
	d.flights[key] = fl
	return fl
}

// leave reports whether fl was left without waiters, in which case it has
// been cancelled and forgotten
func (d *Downloader) leave(key string, fl *flight) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	fl.waiters--
	if fl.waiters > 0 {
		return false
	}
	fl.cancel()
	if d.flights[key] == fl {
		delete(d.flights, key)
		d.group.Forget(key)
	}
	return true
}

func (d *Downloader) download(ctx context.Context, rawURL string, tracker *lifecycle.Tracker) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("not an http(s) URL: %q", truncate(rawURL, 80))
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: HTTP %d", u.Host, resp.StatusCode)
	}
	if d.maxBytes > 0 && resp.ContentLength > d.maxBytes {
		return "", fmt.Errorf("download %s: %d bytes exceeds limit of %d", u.Host, resp.ContentLength, d.maxBytes)
	}

	outFile, err := tracker.NewFile("asset", extFor(u, resp.Header.Get("Content-Type")))
	if err != nil {
		return "", err
	}
	f, err := os.Create(outFile)
	if err != nil {
		return "", err
	}

	var body io.Reader = resp.Body
	if d.maxBytes > 0 {
		body = io.LimitReader(resp.Body, d.maxBytes+1)
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("download %s: %w", u.Host, err)
	}
	if d.maxBytes > 0 && n > d.maxBytes {
		return "", fmt.Errorf("download %s: body exceeds limit of %d bytes", u.Host, d.maxBytes)
	}
	if n < minAssetBytes {
		return "", fmt.Errorf("download %s: response too small (%d bytes)", u.Host, n)
	}

	d.log.Infof("downloaded %s (%d bytes) -> %s", truncate(rawURL, 60), n, outFile)
	return outFile, nil
}

// extFor prefers the URL's extension and falls back to the content type
func extFor(u *url.URL, contentType string) string {
	switch ext := strings.ToLower(path.Ext(u.Path)); ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".mp4", ".mp3", ".wav":
		return ext
	}
	switch {
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/gif"):
		return ".gif"
	case strings.HasPrefix(contentType, "image/webp"):
		return ".webp"
	case strings.HasPrefix(contentType, "video/mp4"):
		return ".mp4"
	}
	return ".jpg"
}
