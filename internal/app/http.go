package app

import (
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/newsfuse/internal/fetch"
)

// newHTTPClient returns a client with a cookie jar. The pool is sized for
// the download concurrency; the archive is a single host behind a proxy.
func newHTTPClient(concurrency int) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		concurrency = 1
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   concurrency,
		MaxConnsPerHost:       concurrency + 1,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: transport, Jar: jar}, nil
}

// seedCookies stores the pairs of a Cookie header value in jar for the
// registrable domain of rawURL, so that every host under it (the listing
// pages and the document server) receives them. IP hosts get host-only
// cookies.
func seedCookies(jar http.CookieJar, rawURL, header string) (int, error) {
	if jar == nil || header == "" {
		return 0, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("cookie url: %w", err)
	}
	cookies := (&http.Request{Header: http.Header{"Cookie": {header}}}).Cookies()
	if len(cookies) == 0 {
		return 0, fmt.Errorf("no cookies in session cookie value")
	}
	host := u.Hostname()
	domain := ""
	if net.ParseIP(host) == nil {
		if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
			domain = d
		}
	}
	for _, c := range cookies {
		c.Domain = domain
		c.Path = "/"
	}
	jar.SetCookies(u, cookies)
	return len(cookies), nil
}

// newLimiter returns nil when rps is not positive.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// clients builds the listing page client and the document client. Both share
// the cookie jar and the limiter; only documents go through the cache.
func (a *App) clients() (pages, docs *fetch.Client) {
	pages = &fetch.Client{
		HTTPClient:        a.httpClient,
		UserAgent:         a.cfg.UserAgent,
		Accept:            fetch.HTMLTypes,
		MaxAttempts:       a.cfg.MaxAttempts,
		PerRequestTimeout: a.cfg.RequestTimeout,
		Limiter:           a.limiter,
	}
	docs = &fetch.Client{
		HTTPClient:        a.httpClient,
		UserAgent:         a.cfg.UserAgent,
		Accept:            fetch.DocumentTypes,
		MaxAttempts:       a.cfg.MaxAttempts,
		PerRequestTimeout: a.cfg.RequestTimeout,
		Limiter:           a.limiter,
		Cache:             a.httpCache,
		MaxConcurrent:     a.cfg.Concurrency,
	}
	return pages, docs
}
