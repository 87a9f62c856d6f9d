package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"sitemirror/pkg/config"
	"sitemirror/pkg/utils"
)

// Fetcher issues GET requests against the target origin with retry on transient failures
type Fetcher struct {
	client *http.Client
	cfg    *config.AppConfig
	target *url.URL
	log    *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, cfg *config.AppConfig, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client: client,
		cfg:    cfg,
		target: cfg.TargetURL(),
		log:    log,
	}
}

// Get fetches a host-relative path from the origin. headers are added to the request,
// typically the revalidation headers from ConditionalHeaders.
// The caller must close the body of any non-nil response.
func (f *Fetcher) Get(ctx context.Context, path string, headers http.Header) (*http.Response, error) {
	path, _, _ = strings.Cut(path, "#")
	rawURL := f.target.Scheme + "://" + f.target.Host + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", utils.ErrRequestCreation, rawURL, err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	return f.FetchWithRetry(ctx, req)
}

// FetchWithRetry performs req, retrying network errors, 5xx and 429 with exponential
// backoff and jitter. 2xx and 304 return the response with a nil error. Other statuses
// return the response together with a wrapped ErrClientHTTPError or ErrOtherHTTPError
// so the caller can inspect the code.
func (f *Fetcher) FetchWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	reqLog := f.log.WithField("url", req.URL.String())
	maxRetries := f.cfg.MaxRetries

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := f.backoff(attempt)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": maxRetries, "delay": delay}).Warn("Retrying request...")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled (%v) during retry delay after error: %w", ctx.Err(), lastErr)
			}
		}

		resp, err := f.client.Do(req.WithContext(ctx))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			reqLog.WithField("attempt", attempt).Errorf("Network error: %v", err)
			lastErr = err
			continue
		}

		code := resp.StatusCode
		resLog := reqLog.WithFields(logrus.Fields{"status_code": code, "attempt": attempt})
		switch {
		case code >= 200 && code < 300:
			resLog.Debug("Fetched")
			return resp, nil
		case code == http.StatusNotModified:
			resLog.Debug("Not modified")
			return resp, nil
		case code >= 500:
			resLog.Warn("Server error, retrying...")
			lastErr = fmt.Errorf("%w: status %d", utils.ErrServerHTTPError, code)
			drain(resp)
		case code == http.StatusTooManyRequests:
			resLog.Warn("Received 429 Too Many Requests, retrying...")
			lastErr = fmt.Errorf("%w: status %d", utils.ErrClientHTTPError, code)
			drain(resp)
		case code >= 400:
			resLog.Debug("Client error (4xx), not retrying")
			return resp, fmt.Errorf("%w: status %d", utils.ErrClientHTTPError, code)
		default:
			resLog.Warnf("Unexpected status %d, not retrying", code)
			return resp, fmt.Errorf("%w: status %d", utils.ErrOtherHTTPError, code)
		}
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", maxRetries+1, lastErr)
	if lastErr == nil {
		return nil, utils.ErrRetryFailed
	}
	return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

// backoff is initial * 2^(attempt-1), capped at max_retry_delay, with +/-10% jitter
func (f *Fetcher) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(f.cfg.InitialRetryDelay) * math.Pow(2, float64(attempt-1)))
	if delay <= 0 || delay > f.cfg.MaxRetryDelay {
		delay = f.cfg.MaxRetryDelay
	}
	if spread := int64(delay) / 5; spread > 0 {
		delay += time.Duration(rand.Int63n(spread)) - delay/10
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
