package httpsource

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pagedseq/internal/testutil"
	"github.com/Sternrassler/pagedseq/pkg/stream"
)

const testUserAgent = "pagedseq-test/1.0 (test@example.com)"

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func newTestSource(t *testing.T, baseURL string, retry RetryConfig) *Source[int] {
	t.Helper()
	nop := zerolog.Nop()
	cfg := DefaultConfig(baseURL, testUserAgent)
	cfg.Retry = retry
	cfg.Logger = &nop

	src, err := New[int](cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return src
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing base url",
			cfg:     Config{UserAgent: testUserAgent},
			wantErr: "base url is required",
		},
		{
			name:    "missing user agent",
			cfg:     Config{BaseURL: "http://localhost/items"},
			wantErr: "user-agent is required",
		},
		{
			name:    "unsupported scheme",
			cfg:     Config{BaseURL: "ftp://localhost/items", UserAgent: testUserAgent},
			wantErr: "must be http or https",
		},
		{
			name: "valid minimal config",
			cfg:  Config{BaseURL: "http://localhost/items", UserAgent: testUserAgent},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := New[int](tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				if src.config.OffsetParam != "offset" || src.config.LimitParam != "limit" {
					t.Errorf("params = %q/%q, want offset/limit", src.config.OffsetParam, src.config.LimitParam)
				}
				if src.config.TotalHeader != "X-Total-Count" {
					t.Errorf("TotalHeader = %q, want X-Total-Count", src.config.TotalHeader)
				}
				if src.httpClient.Timeout != 30*time.Second {
					t.Errorf("Timeout = %v, want 30s", src.httpClient.Timeout)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("http://localhost/items", testUserAgent)

	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.InitialBackoff != 100*time.Millisecond {
		t.Errorf("Retry.InitialBackoff = %v, want 100ms", cfg.Retry.InitialBackoff)
	}
}

func TestPageURL_KeepsQueryAndCustomNames(t *testing.T) {
	nop := zerolog.Nop()
	src, err := New[int](Config{
		BaseURL:     "http://localhost/items?status=open",
		OffsetParam: "start",
		LimitParam:  "count",
		UserAgent:   testUserAgent,
		Logger:      &nop,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	u, err := url.Parse(src.pageURL(40, 20))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if q.Get("status") != "open" || q.Get("start") != "40" || q.Get("count") != "20" {
		t.Errorf("query = %v", q)
	}
}

func TestFetch_Window(t *testing.T) {
	mock := testutil.NewMockPagedAPI(testutil.Ints(0, 25))
	defer mock.Close()

	src := newTestSource(t, mock.URL()+"/items", NoRetry())

	page, err := src.Fetch(context.Background(), 10, 5)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !slices.Equal(page.Items, testutil.Ints(10, 15)) {
		t.Errorf("Items = %v, want 10..14", page.Items)
	}
	if page.Total != 25 {
		t.Errorf("Total = %d, want 25", page.Total)
	}

	if got := mock.GetWindows(); !slices.Equal(got, []testutil.Window{{Offset: 10, Limit: 5}}) {
		t.Errorf("windows = %v", got)
	}
	if ua := mock.GetLastRequestHeader().Get("User-Agent"); ua != testUserAgent {
		t.Errorf("User-Agent = %q, want %q", ua, testUserAgent)
	}
}

func TestFetch_PastEnd(t *testing.T) {
	mock := testutil.NewMockPagedAPI(testutil.Ints(0, 25))
	defer mock.Close()

	page, err := newTestSource(t, mock.URL(), NoRetry()).Fetch(context.Background(), 30, 5)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(page.Items) != 0 || page.Total != 25 {
		t.Errorf("page = %+v, want empty with total 25", page)
	}
}

func TestFetch_MissingTotal(t *testing.T) {
	mock := testutil.NewMockPagedAPI(testutil.Ints(0, 5))
	defer mock.Close()
	mock.OmitTotal(true)

	_, err := newTestSource(t, mock.URL(), fastRetry()).Fetch(context.Background(), 0, 5)
	if !errors.Is(err, ErrMissingTotal) {
		t.Errorf("error = %v, want ErrMissingTotal", err)
	}
	if n := mock.GetRequestCount(); n != 1 {
		t.Errorf("requests = %d, want 1 (not retried)", n)
	}
}

func TestFetch_RetryOnServerError(t *testing.T) {
	mock := testutil.NewMockPagedAPI(testutil.Ints(0, 5))
	defer mock.Close()
	mock.FailNext(http.StatusInternalServerError)

	before := promtest.ToFloat64(retriesTotal.WithLabelValues(string(ErrorClassServer)))

	page, err := newTestSource(t, mock.URL(), fastRetry()).Fetch(context.Background(), 0, 5)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(page.Items) != 5 {
		t.Errorf("items = %d, want 5", len(page.Items))
	}
	if n := mock.GetRequestCount(); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
	if d := promtest.ToFloat64(retriesTotal.WithLabelValues(string(ErrorClassServer))) - before; d != 1 {
		t.Errorf("retries metric delta = %v, want 1", d)
	}
}

func TestFetch_RetryOnRateLimit(t *testing.T) {
	mock := testutil.NewMockPagedAPI(testutil.Ints(0, 5))
	defer mock.Close()
	mock.FailNext(http.StatusTooManyRequests)

	if _, err := newTestSource(t, mock.URL(), fastRetry()).Fetch(context.Background(), 0, 5); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if n := mock.GetRequestCount(); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestFetch_NoRetryOnClientError(t *testing.T) {
	mock := testutil.NewMockPagedAPI(testutil.Ints(0, 5))
	defer mock.Close()
	mock.FailNext(http.StatusNotFound)

	_, err := newTestSource(t, mock.URL(), fastRetry()).Fetch(context.Background(), 0, 5)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusNotFound || statusErr.Class != ErrorClassClient {
		t.Errorf("StatusError = %+v, want 404 client", statusErr)
	}
	if n := mock.GetRequestCount(); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestFetch_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockPagedAPI(testutil.Ints(0, 5))
	defer mock.Close()
	mock.FailNext(http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusServiceUnavailable)

	before := promtest.ToFloat64(retryExhaustedTotal.WithLabelValues(string(ErrorClassServer)))

	_, err := newTestSource(t, mock.URL(), fastRetry()).Fetch(context.Background(), 0, 5)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("error = %v, want wrapped 503 StatusError", err)
	}
	if n := mock.GetRequestCount(); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
	if d := promtest.ToFloat64(retryExhaustedTotal.WithLabelValues(string(ErrorClassServer))) - before; d != 1 {
		t.Errorf("exhausted metric delta = %v, want 1", d)
	}
}

func TestFetch_SingleAttemptReturnsStatusError(t *testing.T) {
	mock := testutil.NewMockPagedAPI(testutil.Ints(0, 5))
	defer mock.Close()
	mock.FailNext(http.StatusBadGateway)

	_, err := newTestSource(t, mock.URL(), NoRetry()).Fetch(context.Background(), 0, 5)
	if errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error = %v, want plain StatusError", err)
	}
	if classOf(err) != ErrorClassServer {
		t.Errorf("class = %q, want server", classOf(err))
	}
}

func TestFetch_ContextCancelledDuringBackoff(t *testing.T) {
	mock := testutil.NewMockPagedAPI(testutil.Ints(0, 5))
	defer mock.Close()
	mock.FailNext(http.StatusInternalServerError, http.StatusInternalServerError)

	retry := fastRetry()
	retry.InitialBackoff = 5 * time.Second
	retry.MaxBackoff = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestSource(t, mock.URL(), retry).Fetch(ctx, 0, 5)
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("error = %v, want ErrContextCancelled", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want wrapped DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("took %v, backoff did not stop on cancel", elapsed)
	}
}

func TestFetch_NetworkError(t *testing.T) {
	mock := testutil.NewMockPagedAPI(testutil.Ints(0, 5))
	addr := mock.URL()
	mock.Close()

	_, err := newTestSource(t, addr, NoRetry()).Fetch(context.Background(), 0, 5)
	if classOf(err) != ErrorClassNetwork {
		t.Errorf("error = %v, want network class", err)
	}
}

func TestSource_ParallelStream(t *testing.T) {
	mock := testutil.NewMockPagedAPI(testutil.Ints(0, 200))
	defer mock.Close()
	mock.SetDelay(20 * time.Millisecond)

	nop := zerolog.Nop()
	src := newTestSource(t, mock.URL(), fastRetry())
	got, err := stream.NewBuilder[int](src).
		PageSize(30).
		Parallel(true).
		MaxConcurrency(8).
		Logger(nop).
		Build().
		Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if !slices.Equal(got, testutil.Ints(0, 200)) {
		t.Errorf("got %d items out of order", len(got))
	}

	windows := mock.GetWindows()
	if len(windows) != 7 {
		t.Errorf("requests = %d, want 7 (one per page)", len(windows))
	}
	seen := make(map[int64]bool)
	for _, w := range windows {
		if seen[w.Offset] || w.Offset%30 != 0 {
			t.Errorf("unexpected window %+v", w)
		}
		seen[w.Offset] = true
	}
}
