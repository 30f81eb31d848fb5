package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSubmission(t *testing.T) {
	m := New()

	m.RecordSubmission("TW", OutcomeForwarded)
	m.RecordSubmission("TW", OutcomeForwarded)
	m.RecordSubmission("", OutcomeInvalid)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Submissions.WithLabelValues("TW", OutcomeForwarded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues("unknown", OutcomeInvalid)))
}

func TestObserveUpstream(t *testing.T) {
	m := New()

	m.ObserveUpstream("webhook", 20*time.Millisecond, nil)
	m.ObserveUpstream("webhook", 30*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamCalls.WithLabelValues("webhook", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamCalls.WithLabelValues("webhook", "error")))
}

func TestObserveEndpoint_StatusClass(t *testing.T) {
	m := New()

	m.ObserveEndpoint("/api/submit", http.MethodPost, http.StatusCreated, time.Millisecond)
	m.ObserveEndpoint("/api/submit", http.MethodPost, http.StatusBadRequest, time.Millisecond)
	m.ObserveEndpoint("/api/submit", http.MethodPost, http.StatusBadGateway, time.Millisecond)

	for _, class := range []string{"2xx", "4xx", "5xx"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("/api/submit", http.MethodPost, class)), class)
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New()
	m.CatalogBooks.Set(8)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "bookdigest_catalog_books 8")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNew_Independent(t *testing.T) {
	// Separate registries: two instances must not panic on duplicate registration.
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
