// Package testutil provides testing utilities for paged sources and streams.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// TotalHeader is the header MockPagedAPI reports the total count in.
const TotalHeader = "X-Total-Count"

// Window is one (offset, limit) request observed by a mock or source.
type Window struct {
	Offset int64
	Limit  int64
}

// MockPagedAPI is a configurable offset/limit JSON API for testing.
//
// Every path answers GET ?offset=&limit= with a JSON array of the items in
// that window and the total count in the X-Total-Count header.
type MockPagedAPI struct {
	server *httptest.Server
	mu     sync.RWMutex

	items     []int
	delay     time.Duration
	failures  []int
	omitTotal bool
	rateLimit *[2]int

	// Tracking
	RequestCount      int
	Windows           []Window
	LastRequestHeader http.Header
}

// NewMockPagedAPI creates a mock API serving items.
func NewMockPagedAPI(items []int) *MockPagedAPI {
	mock := &MockPagedAPI{items: items}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockPagedAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPagedAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters and queued failures.
func (m *MockPagedAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Windows = nil
	m.LastRequestHeader = nil
	m.failures = nil
}

// SetItems replaces the served items. The next request sees the new total.
func (m *MockPagedAPI) SetItems(items []int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = items
}

// SetDelay makes every request sleep for d before answering.
func (m *MockPagedAPI) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// FailNext queues status codes returned by the next requests, one each.
func (m *MockPagedAPI) FailNext(statusCodes ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, statusCodes...)
}

// OmitTotal stops (or resumes) sending the total header.
func (m *MockPagedAPI) OmitTotal(omit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omitTotal = omit
}

// SetRateLimit makes every response report remaining requests and the
// seconds until the budget resets in X-RateLimit-Remaining and
// X-RateLimit-Reset.
func (m *MockPagedAPI) SetRateLimit(remaining, resetSeconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimit = &[2]int{remaining, resetSeconds}
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockPagedAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockPagedAPI) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// GetWindows returns a copy of the windows requested so far.
func (m *MockPagedAPI) GetWindows() []Window {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Window(nil), m.Windows...)
}

func (m *MockPagedAPI) handle(w http.ResponseWriter, r *http.Request) {
	offset, errOffset := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)
	limit, errLimit := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)

	m.mu.Lock()
	m.RequestCount++
	m.LastRequestHeader = r.Header.Clone()
	m.Windows = append(m.Windows, Window{Offset: offset, Limit: limit})

	status := http.StatusOK
	if len(m.failures) > 0 {
		status = m.failures[0]
		m.failures = m.failures[1:]
	}
	delay := m.delay
	omitTotal := m.omitTotal
	items := m.items
	rateLimit := m.rateLimit
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if rateLimit != nil {
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rateLimit[0]))
		w.Header().Set("X-RateLimit-Reset", strconv.Itoa(rateLimit[1]))
	}

	if errOffset != nil || errLimit != nil || offset < 0 || limit <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid offset or limit"}`))
		return
	}

	if status != http.StatusOK {
		w.WriteHeader(status)
		w.Write([]byte(`{"error": "` + http.StatusText(status) + `"}`))
		return
	}

	n := int64(len(items))
	lo := min(offset, n)
	hi := min(offset+limit, n)
	if !omitTotal {
		w.Header().Set(TotalHeader, strconv.FormatInt(n, 10))
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(items[lo:hi])
}
