// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/absmach/mpdemux/pkg/breaker"
	mperrors "github.com/absmach/mpdemux/pkg/errors"
	"github.com/absmach/mpdemux/pkg/handler"
	"github.com/absmach/mpdemux/pkg/hmac"
	"github.com/absmach/mpdemux/pkg/metrics"
	"github.com/absmach/mpdemux/pkg/parser/multipart"
	"github.com/absmach/mpdemux/pkg/ratelimit"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// DefaultAddress is the public document service endpoint.
const DefaultAddress = "cloud.hotdocs.ws"

const (
	headerAuthorization = "Authorization"
	headerDate          = "x-hd-date"
	dateLayout          = "Mon, 2 Jan 2006 15:04:05 GMT"

	maxErrorBody = 512
)

// errServerStatus marks 5xx responses as breaker failures.
var errServerStatus = errors.New("server error status")

// Config holds the document service client configuration.
type Config struct {
	SubscriberID string
	SigningKey   string

	// Address is the service host with an optional port (default DefaultAddress).
	Address string
	// Scheme is the URL scheme (default "https").
	Scheme string
	// Proxy is an optional HTTP proxy URL.
	Proxy string

	// HTTPClient overrides the client built from Timeout and Proxy.
	HTTPClient *http.Client
	// Timeout bounds a whole exchange, body included (default 5m).
	Timeout time.Duration

	// BufferSize is the window capacity used to demultiplex multipart responses.
	BufferSize int

	Breaker *breaker.CircuitBreaker
	Limiter *ratelimit.TokenBucket
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Now returns the signing timestamp (default time.Now).
	Now func() time.Time
}

// Client sends signed requests to the document service.
// A Client is safe for concurrent use.
type Client struct {
	subscriberID string
	signingKey   string
	scheme       string
	address      string
	bufferSize   int

	http    *http.Client
	breaker *breaker.CircuitBreaker
	limiter *ratelimit.TokenBucket
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a new document service client.
func New(cfg Config) (*Client, error) {
	if cfg.SubscriberID == "" || cfg.SigningKey == "" {
		return nil, fmt.Errorf("%w: subscriber ID and signing key are required", mperrors.ErrInvalidInput)
	}
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Breaker == nil {
		cfg.Breaker = breaker.New(breaker.Config{})
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.Proxy != "" {
			proxyURL, err := url.Parse(cfg.Proxy)
			if err != nil {
				return nil, fmt.Errorf("%w: proxy: %w", mperrors.ErrInvalidInput, err)
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
		httpClient = &http.Client{Transport: transport, Timeout: cfg.Timeout}
	}

	return &Client{
		subscriberID: cfg.SubscriberID,
		signingKey:   cfg.SigningKey,
		scheme:       cfg.Scheme,
		address:      cfg.Address,
		bufferSize:   cfg.BufferSize,
		http:         httpClient,
		breaker:      cfg.Breaker,
		limiter:      cfg.Limiter,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}, nil
}

// Do sends req and returns the raw response. When the service answers 404
// and req has a package source, the package is uploaded and req is sent
// again. If the upload fails with any status other than 409 (package already
// cached), the upload response is returned instead.
//
// The caller must close the response body.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusNotFound || req.PackageSource() == nil {
		return resp, nil
	}

	c.logger.Info("package not cached, uploading",
		slog.String("package", req.PackageID()))

	upload := &UploadPackage{Package: Package{ID: req.PackageID(), Source: req.PackageSource()}}
	uploadResp, err := c.send(ctx, upload)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	c.observeUpload(uploadResp.StatusCode)

	switch {
	case ok(uploadResp.StatusCode):
		drain(uploadResp)
		drain(resp)
		return c.send(ctx, req)
	case uploadResp.StatusCode != http.StatusConflict:
		drain(resp)
		return uploadResp, nil
	default:
		drain(uploadResp)
		return resp, nil
	}
}

// Send sends req and returns the response body. Non-2xx responses are
// returned as errors matching errors.ErrUnexpectedStatus.
func (c *Client) Send(ctx context.Context, req Request) (string, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if !ok(resp.StatusCode) {
		return "", statusError(resp)
	}

	body, err := decode(resp)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(data), nil
}

// SendTo sends req and stores the response under path. A multipart response
// is demultiplexed into the directory path, one file per part that names a
// filename; any other response is written to the file path. It returns the
// HTTP status code.
func (c *Client) SendTo(ctx context.Context, req Request, path string) (int, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if !ok(resp.StatusCode) {
		return resp.StatusCode, statusError(resp)
	}

	body, err := decode(resp)
	if err != nil {
		return resp.StatusCode, err
	}
	defer body.Close()

	contentType := resp.Header.Get("Content-Type")
	if multipart.IsMultipart(contentType) {
		return resp.StatusCode, c.demux(ctx, body, contentType, path)
	}
	return resp.StatusCode, writeFile(body, path)
}

func (c *Client) demux(ctx context.Context, body io.Reader, contentType, dir string) error {
	boundary, err := multipart.Boundary(contentType)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	p, err := multipart.New(multipart.Config{BufferSize: c.bufferSize, Logger: c.logger})
	if err != nil {
		return err
	}

	hctx := &handler.Context{
		SessionID:  uuid.NewString(),
		RemoteAddr: c.address,
		Boundary:   boundary,
	}
	parse := func() error {
		return p.Parse(ctx, body, handler.NewDir(dir), hctx)
	}
	if c.metrics != nil {
		return c.metrics.ObserveDemux("client", parse)
	}
	return parse()
}

func writeFile(r io.Reader, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// send performs one signed exchange through the rate limiter and breaker.
func (c *Client) send(ctx context.Context, req Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if errors.Is(err, ratelimit.ErrRateLimitExceeded) && c.metrics != nil {
				c.metrics.RateLimitedRequests.WithLabelValues("client", "global").Inc()
			}
			return nil, err
		}
	}

	var resp *http.Response
	exchange := func() (int, error) {
		httpReq, err := c.newRequest(ctx, req)
		if err != nil {
			return 0, err
		}

		err = c.breaker.Call(func() error {
			var err error
			resp, err = c.http.Do(httpReq)
			if err != nil {
				return err
			}
			if resp.StatusCode >= http.StatusInternalServerError {
				return errServerStatus
			}
			return nil
		})
		switch {
		case errors.Is(err, errServerStatus):
			return resp.StatusCode, nil
		case err != nil:
			return 0, fmt.Errorf("%w: %w", mperrors.ErrBackendUnavailable, err)
		}
		return resp.StatusCode, nil
	}

	var status int
	var err error
	if c.metrics != nil {
		status, err = c.metrics.ObserveBackend(c.address, exchange)
	} else {
		status, err = exchange()
	}
	if err != nil {
		c.logger.Warn("document service request failed",
			slog.String("method", req.Method()),
			slog.String("path", req.PathPrefix()),
			slog.String("error", err.Error()))
		return nil, err
	}

	c.logger.Debug("document service response",
		slog.String("method", req.Method()),
		slog.String("path", req.PathPrefix()),
		slog.Int("status", status))
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	path := req.PathPrefix() + "/" + c.subscriberID
	if id := req.PackageID(); id != "" {
		path += "/" + id
	}
	if name := req.TemplateName(); name != "" {
		path += "/" + name
	}
	u := url.URL{
		Scheme:   c.scheme,
		Host:     c.address,
		Path:     path,
		RawQuery: req.Query(),
	}

	var body io.ReadCloser
	var length int64
	method := req.Method()
	if src := req.Content(); src != nil && (method == http.MethodPost || method == http.MethodPut) {
		rc, n, err := src.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open request content: %w", err)
		}
		body, length = rc, n
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		if body != nil {
			body.Close()
		}
		return nil, fmt.Errorf("%w: %w", mperrors.ErrInvalidInput, err)
	}
	httpReq.ContentLength = length
	if length == 0 && body != nil {
		body.Close()
		httpReq.Body = http.NoBody
	}
	httpReq.Header.Set("Accept-Encoding", acceptEncoding)
	c.sign(httpReq.Header, req.HMACParams())

	return httpReq, nil
}

// sign sets the signature and date headers. The signature covers the
// timestamp, the subscriber ID and the request parameters.
func (c *Client) sign(h http.Header, params []any) {
	ts := c.now().UTC().Truncate(time.Second)
	all := append([]any{ts, c.subscriberID}, params...)
	h.Set(headerAuthorization, hmac.Sign(c.signingKey, all...))
	h.Set(headerDate, ts.Format(dateLayout))
}

func (c *Client) observeUpload(status int) {
	if c.metrics == nil {
		return
	}
	outcome := "uploaded"
	switch {
	case status == http.StatusConflict:
		outcome = "cached"
	case !ok(status):
		outcome = "failed"
	}
	c.metrics.PackageUploads.WithLabelValues(outcome).Inc()
}

func ok(status int) bool {
	return status/100 == 2
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(data) == 0 {
		return fmt.Errorf("%w: %s", mperrors.ErrUnexpectedStatus, resp.Status)
	}
	return fmt.Errorf("%w: %s: %s", mperrors.ErrUnexpectedStatus, resp.Status, data)
}
