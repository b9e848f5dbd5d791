// Package fetch implements the download stage using gocolly.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/harvester/internal/harvest"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultMaxRedirects   = 5
	defaultMaxBodyBytes   = 5 << 20
	defaultUserAgent      = "harvester/1.0"
)

var errRedirectLimit = errors.New("redirect limit exceeded")

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	MaxRedirects   int
	MaxBodyBytes   int64
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = defaultMaxRedirects
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	return c
}

// Fetcher implements harvest.Fetcher using a Colly collector cloned per
// request.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	cfg = cfg.withDefaults()
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport(cfg.ConnectTimeout))
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET and classifies the response. Only HTML
// content proceeds; every other outcome is a *Error carrying a FailureKind.
func (f *Fetcher) Fetch(ctx context.Context, request harvest.FetchRequest) (harvest.FetchResult, error) {
	var (
		result   harvest.FetchResult
		fetchErr error
	)
	start := time.Now()

	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.RequestTimeout)
	// One extra byte so a body at exactly the cap is distinguishable from a
	// truncated one.
	collector.MaxBodySize = int(f.cfg.MaxBodyBytes) + 1

	var redirects atomic.Int64
	collector.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		redirects.Store(int64(len(via)))
		if len(via) > f.cfg.MaxRedirects {
			return errRedirectLimit
		}
		return nil
	})

	collector.OnResponse(func(r *colly.Response) {
		result = harvest.FetchResult{
			URL:           request.URL,
			FinalURL:      r.Request.URL.String(),
			StatusCode:    r.StatusCode,
			ContentType:   r.Headers.Get("Content-Type"),
			Body:          append([]byte(nil), r.Body...),
			RedirectCount: int(redirects.Load()),
			Duration:      time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			result.StatusCode = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				result.FinalURL = r.Request.URL.String()
			}
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(request.URL)
	}()

	select {
	case <-ctx.Done():
		return harvest.FetchResult{}, &Error{
			Kind:   harvest.FailCancelled,
			Detail: "fetch canceled",
			Err:    ctx.Err(),
		}
	case err := <-done:
		if err == nil {
			err = fetchErr
		}
		if err != nil {
			return harvest.FetchResult{}, classify(err, result.StatusCode)
		}
	}

	return f.classifyResponse(request, result)
}

func (f *Fetcher) classifyResponse(request harvest.FetchRequest, result harvest.FetchResult) (harvest.FetchResult, error) {
	if result.StatusCode >= 400 {
		return harvest.FetchResult{}, &Error{
			Kind:       harvest.FailHTTPStatus,
			StatusCode: result.StatusCode,
			Detail:     fmt.Sprintf("status %d fetching %s", result.StatusCode, request.URL),
		}
	}
	if int64(len(result.Body)) > f.cfg.MaxBodyBytes {
		return harvest.FetchResult{}, &Error{
			Kind:   harvest.FailTooLarge,
			Detail: fmt.Sprintf("response exceeds %d bytes", f.cfg.MaxBodyBytes),
		}
	}
	if !htmlContentType(result.ContentType) {
		return harvest.FetchResult{}, &Error{
			Kind:   harvest.FailUnsupportedType,
			Detail: fmt.Sprintf("unsupported content type %q", result.ContentType),
		}
	}
	if result.FinalURL == "" {
		result.FinalURL = request.URL
	}
	return result, nil
}

func htmlContentType(value string) bool {
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		// Servers omitting the header get the benefit of the doubt; the
		// parser will reject non-HTML bodies downstream.
		return value == ""
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}

// Error is a classified fetch failure.
type Error struct {
	Kind       harvest.FailureKind
	StatusCode int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch failed (%s): %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("fetch failed (%s): %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether a failed fetch is eligible for the single
// automatic retry: network errors, timeouts, and 5xx responses. Client
// errors and parse failures never retry.
func Transient(err error) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	switch fe.Kind {
	case harvest.FailNetwork, harvest.FailTimeout:
		return true
	case harvest.FailHTTPStatus:
		return fe.StatusCode >= 500
	default:
		return false
	}
}

func classify(err error, statusCode int) *Error {
	if errors.Is(err, errRedirectLimit) {
		return &Error{Kind: harvest.FailRedirectLimit, Detail: "too many redirects", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: harvest.FailTimeout, Detail: "request deadline exceeded", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: harvest.FailTimeout, Detail: "network timeout", Err: err}
	}
	if statusCode >= 400 {
		return &Error{
			Kind:       harvest.FailHTTPStatus,
			StatusCode: statusCode,
			Detail:     fmt.Sprintf("status %d", statusCode),
			Err:        err,
		}
	}
	if strings.Contains(err.Error(), "Forbidden domain") {
		return &Error{Kind: harvest.FailInvalidURL, Detail: "domain not allowed", Err: err}
	}
	return &Error{Kind: harvest.FailNetwork, Detail: "request failed", Err: err}
}

func newHTTPTransport(connectTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
