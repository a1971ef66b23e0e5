// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cloud

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	stdmultipart "mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/absmach/mpdemux/pkg/breaker"
	mperrors "github.com/absmach/mpdemux/pkg/errors"
	"github.com/absmach/mpdemux/pkg/hmac"
	"github.com/absmach/mpdemux/pkg/metrics"
	"github.com/absmach/mpdemux/pkg/ratelimit"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSubscriber = "sub"
	testKey        = "key"
)

func newTestClient(t *testing.T, srv *httptest.Server, cfg Config) *Client {
	t.Helper()
	cfg.SubscriberID = testSubscriber
	cfg.SigningKey = testKey
	cfg.Scheme = "http"
	cfg.Address = strings.TrimPrefix(srv.URL, "http://")
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

// recordedRequest keeps what a handler saw after the exchange is over.
type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

type fakeService struct {
	mu       sync.Mutex
	requests []recordedRequest
	handle   func(w http.ResponseWriter, r recordedRequest)
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rec := recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   string(body),
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
	f.handle(w, rec)
}

func (f *fakeService) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method {
			n++
		}
	}
	return n
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{SigningKey: "k"})
	assert.ErrorIs(t, err, mperrors.ErrInvalidInput)

	_, err = New(Config{SubscriberID: "s"})
	assert.ErrorIs(t, err, mperrors.ErrInvalidInput)

	_, err = New(Config{SubscriberID: "s", SigningKey: "k", Proxy: "://bad"})
	assert.ErrorIs(t, err, mperrors.ErrInvalidInput)

	c, err := New(Config{SubscriberID: "s", SigningKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultAddress, c.address)
	assert.Equal(t, "https", c.scheme)
}

func TestClient_SignedRequest(t *testing.T) {
	now := time.Date(2013, 4, 5, 6, 7, 8, 0, time.UTC)
	svc := &fakeService{handle: func(w http.ResponseWriter, r recordedRequest) {
		_, _ = w.Write([]byte("assembled"))
	}}
	srv := httptest.NewServer(svc)
	defer srv.Close()

	c := newTestClient(t, srv, Config{Now: func() time.Time { return now }})
	settings := map[string]string{"b": "2", "a": "x y"}
	req := &AssembleDocument{
		Package:    Package{ID: "pkg"},
		Template:   "letter.docx",
		BillingRef: "ref",
		Answers:    "<AnswerSet/>",
		Format:     PDF,
		Settings:   settings,
	}

	out, err := c.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "assembled", out)

	require.Len(t, svc.requests, 1)
	got := svc.requests[0]
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/hdcs/assemble/sub/pkg/letter.docx", got.Path)
	assert.Equal(t, "format=PDF&a=x+y&b=2", got.Query)
	assert.Equal(t, "<AnswerSet/>", got.Body)
	assert.Equal(t, "Fri, 5 Apr 2013 06:07:08 GMT", got.Header.Get("x-hd-date"))

	want := hmac.Sign(testKey, now, testSubscriber, "pkg", "letter.docx", false, "ref", PDF, settings)
	assert.Equal(t, want, got.Header.Get("Authorization"))
}

func TestClient_UploadOnCacheMiss(t *testing.T) {
	var mu sync.Mutex
	cached := false
	svc := &fakeService{}
	svc.handle = func(w http.ResponseWriter, r recordedRequest) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodPut && r.Path == "/hdcs/sub/pkg":
			if r.Body != "package bytes" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			cached = true
			w.WriteHeader(http.StatusCreated)
		case !cached:
			w.WriteHeader(http.StatusNotFound)
		default:
			_, _ = w.Write([]byte("info"))
		}
	}
	srv := httptest.NewServer(svc)
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New("test", reg)
	c := newTestClient(t, srv, Config{Metrics: m})

	req := &GetComponentInfo{
		Package:        Package{ID: "pkg", Source: StringSource("package bytes")},
		Template:       "t.docx",
		IncludeDialogs: true,
	}
	out, err := c.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "info", out)

	assert.Equal(t, 2, svc.count(http.MethodGet))
	assert.Equal(t, 1, svc.count(http.MethodPut))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PackageUploads.WithLabelValues("uploaded")))

	put := svc.requests[1]
	want := hmac.Sign(testKey, mustParseDate(t, put.Header.Get("x-hd-date")), testSubscriber, "pkg", nil, true, "")
	assert.Equal(t, want, put.Header.Get("Authorization"))
}

func mustParseDate(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(dateLayout, s)
	require.NoError(t, err)
	return ts
}

func TestClient_UploadOutcomes(t *testing.T) {
	tests := []struct {
		name         string
		uploadStatus int
		wantStatus   int
		wantBody     string
	}{
		{name: "upload rejected", uploadStatus: http.StatusForbidden, wantStatus: http.StatusForbidden, wantBody: "upload"},
		{name: "already cached", uploadStatus: http.StatusConflict, wantStatus: http.StatusNotFound, wantBody: "original"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{handle: func(w http.ResponseWriter, r recordedRequest) {
				if r.Method == http.MethodPut {
					w.WriteHeader(tt.uploadStatus)
					_, _ = w.Write([]byte("upload"))
					return
				}
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte("original"))
			}}
			srv := httptest.NewServer(svc)
			defer srv.Close()

			c := newTestClient(t, srv, Config{})
			req := &AssembleDocument{Package: Package{ID: "pkg", Source: StringSource("zip")}}

			resp, err := c.Do(context.Background(), req)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantBody, string(body))
			assert.Equal(t, 1, svc.count(http.MethodPost))
			assert.Equal(t, 1, svc.count(http.MethodPut))

			_, err = c.Send(context.Background(), req)
			assert.ErrorIs(t, err, mperrors.ErrUnexpectedStatus)
			assert.Contains(t, err.Error(), tt.wantBody)
		})
	}
}

func TestClient_NoPackageSource(t *testing.T) {
	svc := &fakeService{handle: func(w http.ResponseWriter, r recordedRequest) {
		w.WriteHeader(http.StatusNotFound)
	}}
	srv := httptest.NewServer(svc)
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	resp, err := c.Do(context.Background(), &AssembleDocument{Package: Package{ID: "pkg"}})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Zero(t, svc.count(http.MethodPut))
}

func writeMultipart(t *testing.T, w http.ResponseWriter, encode func(io.Writer) io.WriteCloser) {
	t.Helper()
	var buf bytes.Buffer
	mw := stdmultipart.NewWriter(&buf)
	for _, p := range []struct{ disp, body string }{
		{`attachment; filename="letter.pdf"`, "%PDF-1.4 letter"},
		{`form-data; name="answers"`, "<AnswerSet/>"},
		{`attachment; filename="envelope.pdf"`, "%PDF-1.4 envelope"},
	} {
		pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Disposition": {p.disp}})
		require.NoError(t, err)
		_, err = pw.Write([]byte(p.body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	w.Header().Set("Content-Type", "multipart/mixed; boundary="+mw.Boundary())
	if encode == nil {
		_, _ = w.Write(buf.Bytes())
		return
	}
	enc := encode(w)
	_, _ = enc.Write(buf.Bytes())
	_ = enc.Close()
}

func TestClient_SendToMultipart(t *testing.T) {
	encoders := map[string]func(io.Writer) io.WriteCloser{
		"identity": nil,
		"zstd": func(w io.Writer) io.WriteCloser {
			enc, err := zstd.NewWriter(w)
			require.NoError(t, err)
			return enc
		},
	}

	for name, encode := range encoders {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if encode != nil {
					w.Header().Set("Content-Encoding", name)
				}
				writeMultipart(t, w, encode)
			}))
			defer srv.Close()

			reg := prometheus.NewRegistry()
			m := metrics.New("test", reg)
			c := newTestClient(t, srv, Config{BufferSize: 128, Metrics: m})

			dir := filepath.Join(t.TempDir(), "out")
			status, err := c.SendTo(context.Background(), &AssembleDocument{Package: Package{ID: "pkg"}}, dir)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, status)

			for file, want := range map[string]string{
				"letter.pdf":   "%PDF-1.4 letter",
				"envelope.pdf": "%PDF-1.4 envelope",
			} {
				data, err := os.ReadFile(filepath.Join(dir, file))
				require.NoError(t, err)
				assert.Equal(t, want, string(data))
			}
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, 2)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.DemuxTotal.WithLabelValues("client", "success")))
		})
	}
}

func TestClient_SendToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 single"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	path := filepath.Join(t.TempDir(), "doc.pdf")
	status, err := c.SendTo(context.Background(), &AssembleDocument{Format: PDF}, path)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 single", string(data))
}

func TestClient_SendToError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad answers", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	path := filepath.Join(t.TempDir(), "doc.pdf")
	status, err := c.SendTo(context.Background(), &AssembleDocument{}, path)
	assert.ErrorIs(t, err, mperrors.ErrUnexpectedStatus)
	assert.Equal(t, http.StatusBadRequest, status)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestClient_GzipResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			_, _ = w.Write([]byte("plain"))
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		_, _ = zw.Write([]byte("<ComponentInfo/>"))
		_ = zw.Close()
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	out, err := c.Send(context.Background(), &GetComponentInfo{Package: Package{ID: "pkg"}})
	require.NoError(t, err)
	assert.Equal(t, "<ComponentInfo/>", out)
}

func TestClient_UnsupportedEncoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write([]byte("???"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	_, err := c.Send(context.Background(), &GetComponentInfo{})
	assert.ErrorIs(t, err, mperrors.ErrInvalidInput)
}

func TestClient_Breaker(t *testing.T) {
	svc := &fakeService{handle: func(w http.ResponseWriter, r recordedRequest) {
		w.WriteHeader(http.StatusBadGateway)
	}}
	srv := httptest.NewServer(svc)
	defer srv.Close()

	cb := breaker.New(breaker.Config{MaxFailures: 1, ResetTimeout: time.Hour})
	c := newTestClient(t, srv, Config{Breaker: cb})

	_, err := c.Send(context.Background(), &GetComponentInfo{})
	assert.ErrorIs(t, err, mperrors.ErrUnexpectedStatus)
	assert.Equal(t, breaker.StateOpen, cb.State())

	_, err = c.Send(context.Background(), &GetComponentInfo{})
	assert.ErrorIs(t, err, mperrors.ErrBackendUnavailable)
	assert.ErrorIs(t, err, breaker.ErrCircuitOpen)
	assert.Equal(t, 1, svc.count(http.MethodGet))
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := newTestClient(t, srv, Config{})
	srv.Close()

	_, err := c.Send(context.Background(), &GetComponentInfo{})
	assert.ErrorIs(t, err, mperrors.ErrBackendUnavailable)
}

func TestClient_RateLimited(t *testing.T) {
	svc := &fakeService{handle: func(w http.ResponseWriter, r recordedRequest) {}}
	srv := httptest.NewServer(svc)
	defer srv.Close()

	c := newTestClient(t, srv, Config{Limiter: ratelimit.NewTokenBucket(0, 0)})
	_, err := c.Send(context.Background(), &GetComponentInfo{})
	assert.ErrorIs(t, err, mperrors.ErrRateLimited)
	assert.Empty(t, svc.requests)
}

func TestClient_ResumeSession(t *testing.T) {
	svc := &fakeService{handle: func(w http.ResponseWriter, r recordedRequest) {
		_, _ = w.Write([]byte("session"))
	}}
	srv := httptest.NewServer(svc)
	defer srv.Close()

	snapshot := "eyJQYWNrYWdlSUQiOiJwMSIsIkJpbGxpbmdSZWYiOiJiMSJ9#state"
	c := newTestClient(t, srv, Config{})
	out, err := c.Send(context.Background(), &ResumeSession{Snapshot: snapshot})
	require.NoError(t, err)
	assert.Equal(t, "session", out)

	got := svc.requests[0]
	assert.Equal(t, "/embed/resumesession/sub/p1", got.Path)
	assert.Equal(t, snapshot, got.Body)
}
