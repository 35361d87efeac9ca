package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	m := New(prometheus.NewRegistry())

	h := m.Middleware("/api/pets/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "ok")
	}))

	for _, path := range []string{"/api/pets/1", "/api/pets/2", "/api/pets/missing"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/pets/{id}", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/pets/{id}", "GET", "404")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestObserve(t *testing.T) {
	m := New(nil)

	m.ObserveSubmission(KindUser, OutcomeAccepted)
	m.ObserveSubmission(KindUser, OutcomeConflict)
	m.ObserveSubmission(KindUser, OutcomeConflict)
	m.ObserveNotification(nil)
	m.ObserveNotification(errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues(KindUser, OutcomeAccepted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.submissions.WithLabelValues(KindUser, OutcomeConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues(OutcomeDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues(OutcomeFailed)))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveSubmission(KindContact, OutcomeAccepted)
	m.ObserveNotification(nil)

	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
	m.Middleware("/", next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveSubmission(KindContact, OutcomeAccepted)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `shelter_submissions_total{kind="contact",outcome="accepted"} 1`)
}
