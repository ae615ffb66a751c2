// Package fetch retrieves listing pages and article documents over HTTP with
// bounded retry, a redirect cap, optional rate limiting and a conditional GET
// through the on-disk cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/newsfuse/internal/cache"
)

// Content type prefixes accepted by a Client.
var (
	HTMLTypes     = []string{"text/html", "application/xhtml+xml"}
	DocumentTypes = []string{"application/pdf", "application/octet-stream", "binary/octet-stream"}
)

// Getter is the read side of Client used by the listing crawler and the
// document downloader.
type Getter interface {
	Get(ctx context.Context, rawURL string) ([]byte, string, error)
}

// StatusError is returned for a non-2xx, non-304 response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Status)
}

// Transient reports whether retrying might help.
func (e *StatusError) Transient() bool { return e.Status >= 500 && e.Status <= 599 }

// ErrContentType is wrapped when the response content type is not accepted.
var ErrContentType = errors.New("unsupported content type")

// Client wraps http.Client. The zero value fetches HTML with a single attempt.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// Accept lists content type prefixes the caller can handle. Nil means HTMLTypes.
	Accept []string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request.
	PerRequestTimeout time.Duration
	// Backoff is the base delay between attempts; attempt n waits n*Backoff.
	// Zero means 200ms.
	Backoff time.Duration
	// Limiter, when set, is waited on before every request. Clients that share
	// one limiter share its budget.
	Limiter *rate.Limiter

	Cache *cache.HTTPCache
	// BypassCache skips conditional headers but still stores fresh responses.
	BypassCache bool

	// RedirectMaxHops caps redirect following. Zero means 5.
	RedirectMaxHops int
	// MaxConcurrent limits in-flight requests for this client. Zero means unlimited.
	MaxConcurrent int

	sem     chan struct{}
	semOnce sync.Once
}

var _ Getter = (*Client)(nil)

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		// Copy so the redirect policy does not leak into the caller's client.
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirect()
		return &base
	}
	return &http.Client{Timeout: c.PerRequestTimeout, CheckRedirect: c.checkRedirect()}
}

// Get fetches rawURL and returns its body and content type. A 304 answer to a
// conditional request is served from the cache.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, string, error) {
	var etag, lastMod string
	if c.Cache != nil && !c.BypassCache {
		if meta, err := c.Cache.LoadMeta(ctx, rawURL); err == nil && meta != nil {
			etag, lastMod = meta.ETag, meta.LastModified
		}
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		res, err := c.tryOnce(ctx, rawURL, etag, lastMod)
		if err == nil {
			if res.status == http.StatusNotModified && c.Cache != nil {
				if cached, err := c.Cache.LoadBody(ctx, rawURL); err == nil {
					log.Debug().Str("url", rawURL).Msg("not modified, served from cache")
					ct := res.contentType
					if meta, err := c.Cache.LoadMeta(ctx, rawURL); err == nil && meta.ContentType != "" {
						ct = meta.ContentType
					}
					return cached, ct, nil
				}
				// Metadata without a body; refetch unconditionally.
				etag, lastMod = "", ""
				continue
			}
			if c.Cache != nil && res.status == http.StatusOK {
				if err := c.Cache.Save(ctx, rawURL, res.contentType, res.etag, res.lastMod, res.body); err != nil {
					log.Warn().Err(err).Str("url", rawURL).Msg("cache save failed")
				}
			}
			return res.body, res.contentType, nil
		}
		lastErr = err
		if !isTransient(err) || i == attempts-1 {
			return nil, "", err
		}
		log.Debug().Err(err).Str("url", rawURL).Int("attempt", i+1).Msg("retrying")
		if err := sleep(ctx, time.Duration(i+1)*c.backoff()); err != nil {
			return nil, "", err
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no attempt succeeded")
	}
	return nil, "", lastErr
}

type response struct {
	body        []byte
	contentType string
	etag        string
	lastMod     string
	status      int
}

func (c *Client) tryOnce(ctx context.Context, rawURL, etag, lastMod string) (*response, error) {
	c.acquire()
	defer c.release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if !isHTTPScheme(req.URL) {
		return nil, fmt.Errorf("unsupported URL scheme: %q", req.URL.String())
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", strings.Join(c.accept(), ", "))
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}
	if c.PerRequestTimeout > 0 {
		tctx, cancel := context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
		req = req.WithContext(tctx)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	res := &response{
		contentType: resp.Header.Get("Content-Type"),
		etag:        resp.Header.Get("ETag"),
		lastMod:     resp.Header.Get("Last-Modified"),
		status:      resp.StatusCode,
	}
	if resp.StatusCode == http.StatusNotModified {
		return res, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: rawURL, Status: resp.StatusCode}
	}
	if !c.accepts(res.contentType) {
		return nil, fmt.Errorf("GET %s: %w: %s", rawURL, ErrContentType, res.contentType)
	}
	if res.body, err = io.ReadAll(resp.Body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return res, nil
}

func (c *Client) accept() []string {
	if c.Accept == nil {
		return HTMLTypes
	}
	return c.Accept
}

func (c *Client) accepts(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	for _, p := range c.accept() {
		if strings.HasPrefix(ct, p) {
			return true
		}
	}
	return false
}

func (c *Client) backoff() time.Duration {
	if c.Backoff > 0 {
		return c.Backoff
	}
	return 200 * time.Millisecond
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Transient()
}

func (c *Client) checkRedirect() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		if !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func (c *Client) acquire() {
	if c.MaxConcurrent <= 0 {
		return
	}
	c.semOnce.Do(func() { c.sem = make(chan struct{}, c.MaxConcurrent) })
	c.sem <- struct{}{}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.sem == nil {
		return
	}
	<-c.sem
}
