package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordLaunch(nil)
	m.RecordLaunch(nil)
	m.RecordLaunch(errors.New("boom"))
	m.RecordCharge(3)
	m.RecordCharge(0)
	m.RecordReconcile("succeeded", true)
	m.RecordEnhancement(errors.New("boom"))
	m.RecordPublishFailure()
	m.RecordWorkerOutcome("requeued")
	m.RecordWorkerOutcome("requeued")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LaunchesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LaunchesTotal.WithLabelValues("failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.UsageCharged))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcilesTotal.WithLabelValues("succeeded", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnhancementsTotal.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueuePublishFailed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WorkerMessagesTotal.WithLabelValues("requeued")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordLaunch(nil)
		m.RecordCharge(1)
		m.RecordReconcile("starting", false)
		m.RecordEnhancement(nil)
		m.RecordPublishFailure()
		m.RecordWorkerOutcome("acked")
	})
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/ping", "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), `http_requests_total{method="GET",path="/ping",status="200"} 1`)
}
