package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aotpy/username-checker-backend/shared"
	"github.com/sirupsen/logrus"
)

// FetchFailureKind classifies why an outbound fetch produced no usable page.
type FetchFailureKind string

const (
	FetchFailureTimeout    FetchFailureKind = "timeout"
	FetchFailureConnection FetchFailureKind = "connection_error"
	FetchFailureStatus     FetchFailureKind = "non_success_status"
)

// FetchFailure is a typed fetch error. For FetchFailureStatus the body is
// still carried: the Telegram resolver serves classifiable markup on non-2xx
// statuses too, so callers decide whether a 404 is an answer or a failure.
type FetchFailure struct {
	Kind       FetchFailureKind
	StatusCode int
	Body       []byte
	Err        error
}

func (f *FetchFailure) Error() string {
	if f.Kind == FetchFailureStatus {
		return fmt.Sprintf("fetch failed: HTTP %d", f.StatusCode)
	}
	return fmt.Sprintf("fetch failed (%s): %v", f.Kind, f.Err)
}

func (f *FetchFailure) Unwrap() error {
	return f.Err
}

// FetchResult is a successful (2xx/3xx) fetch.
type FetchResult struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Text returns the body as a string.
func (r *FetchResult) Text() string {
	return string(r.Body)
}

// Fetcher issues outbound HTTP requests against the third-party origins with
// browser-like headers and a per-request timeout. It does no parsing; keeping
// fetch and parse separate lets the classifiers run against captured fixtures
// without network access.
type Fetcher struct {
	clientFactory *shared.HTTPClientFactory
	httpMetrics   *shared.HTTPMetrics
}

// NewFetcher creates a fetcher with pooled HTTP clients.
func NewFetcher() *Fetcher {
	return &Fetcher{
		clientFactory: shared.NewHTTPClientFactory(15 * time.Second),
		httpMetrics:   shared.NewHTTPMetrics(),
	}
}

// HTTPMetrics exposes the outbound request counters.
func (f *Fetcher) HTTPMetrics() *shared.HTTPMetrics {
	return f.httpMetrics
}

// LogMetricsSummary writes the outbound HTTP counters to the log.
func (f *Fetcher) LogMetricsSummary() {
	f.httpMetrics.LogHTTPSummary()
}

// Fetch executes a single HTTP request. form may be nil; referer may be
// empty. Statuses >= 400 come back as a FetchFailure of kind
// FetchFailureStatus with the body attached.
func (f *Fetcher) Fetch(ctx context.Context, target, method string, form url.Values, timeout time.Duration, referer string) (*FetchResult, *FetchFailure) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "Fetcher",
		"url":       target,
		"method":    method,
	})

	var bodyReader io.Reader
	contentType := ""
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	requestCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, method, target, bodyReader)
	if err != nil {
		return nil, &FetchFailure{Kind: FetchFailureConnection, Err: err}
	}

	accept := "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	if form != nil {
		accept = "application/json, text/plain, */*"
	}
	shared.SetBrowserLikeHeaders(request, accept, referer)
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}

	client := f.clientFactory.ClientWithTimeout(timeout)
	response, err := client.Do(request)
	if err != nil {
		kind := classifyTransportError(err)
		f.httpMetrics.RecordHTTPRequest(false, 0, kind == FetchFailureTimeout)
		logger.WithError(err).WithField("failure_kind", kind).Warn("Outbound fetch failed")
		return nil, &FetchFailure{Kind: kind, Err: err}
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		f.httpMetrics.RecordHTTPRequest(false, response.StatusCode, false)
		return nil, &FetchFailure{Kind: FetchFailureConnection, Err: err}
	}

	if response.StatusCode >= 400 {
		f.httpMetrics.RecordHTTPRequest(false, response.StatusCode, false)
		logger.WithField("status_code", response.StatusCode).Debug("Outbound fetch returned non-success status")
		return nil, &FetchFailure{
			Kind:       FetchFailureStatus,
			StatusCode: response.StatusCode,
			Body:       body,
		}
	}

	f.httpMetrics.RecordHTTPRequest(true, response.StatusCode, false)
	return &FetchResult{
		StatusCode: response.StatusCode,
		Body:       body,
		Headers:    response.Header,
	}, nil
}

// FetchWithRetry executes a GET with exponential backoff on transport errors
// and non-200 statuses. Only for idempotent JSON endpoints where a transient
// 5xx is worth another attempt; the scraped origins go through Fetch, where a
// non-2xx body is still an answer.
func (f *Fetcher) FetchWithRetry(ctx context.Context, target string, timeout time.Duration, maxRetries int) (*FetchResult, *FetchFailure) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchFailure{Kind: FetchFailureConnection, Err: err}
	}
	shared.SetBrowserLikeHeaders(request, "application/json, text/plain, */*", "")

	client := f.clientFactory.ClientWithTimeout(timeout)
	response, err := shared.ExecuteHTTPRequestWithRetry(client, request, maxRetries)
	if err != nil {
		kind := classifyTransportError(err)
		f.httpMetrics.RecordHTTPRequest(false, 0, kind == FetchFailureTimeout)
		return nil, &FetchFailure{Kind: kind, Err: err}
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		f.httpMetrics.RecordHTTPRequest(false, response.StatusCode, false)
		return nil, &FetchFailure{Kind: FetchFailureConnection, Err: err}
	}

	f.httpMetrics.RecordHTTPRequest(true, response.StatusCode, false)
	return &FetchResult{
		StatusCode: response.StatusCode,
		Body:       body,
		Headers:    response.Header,
	}, nil
}

func classifyTransportError(err error) FetchFailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FetchFailureTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FetchFailureTimeout
	}

	return FetchFailureConnection
}
