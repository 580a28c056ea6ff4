package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/reelgrab/pkg/models"
)

func TestSessionStateGauge(t *testing.T) {
	m := New()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionState.WithLabelValues(string(models.StateLoggedOut))))

	m.ObserveSessionState(models.StateLoggingIn)
	m.ObserveSessionState(models.StateLoggedIn)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.sessionState.WithLabelValues(string(models.StateLoggedOut))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionState.WithLabelValues(string(models.StateLoggedIn))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loginAttempts.WithLabelValues("success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.loginAttempts.WithLabelValues("failure")))
}

func TestObserveExtraction(t *testing.T) {
	m := New()
	m.ObserveExtraction(models.KindReel, "success", 3*time.Second)
	m.ObserveExtraction(models.KindReel, "missing_streams", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.extractions.WithLabelValues("reel", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.extractions.WithLabelValues("reel", "missing_streams")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTP("/api/content", "200")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "reelgrab_http_requests_total")
	assert.Contains(t, string(body), "reelgrab_session_state")
}
