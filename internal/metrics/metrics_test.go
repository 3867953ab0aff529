package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.SignIn(SignInCreated)
	m.SignIn(SignInCreated)
	m.SignIn(SignInSyncFailed)
	m.LikeMutation("like", "ok")
	m.LikeMutation("like", "conflict")
	m.CacheLookup(CacheHit)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.signIns.WithLabelValues(SignInCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signIns.WithLabelValues(SignInSyncFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.likeMutations.WithLabelValues("like", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues(CacheHit)))
}

func TestObserveRequest(t *testing.T) {
	m := New()

	m.ObserveRequest(http.MethodGet, "/api/items/{id}", 404, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/items/{id}", "404")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.SignIn(SignInLinked)
		m.LikeMutation("unlike", "ok")
		m.CacheLookup(CacheMiss)
		m.ObserveRequest("GET", "/", 200, time.Millisecond)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.SignIn(SignInLinked)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.Contains(t, string(body), `atlas_sign_ins_total{outcome="linked"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
