package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	status int
}

type recorderStub struct {
	requests []recordedRequest
	streams  []string
}

func (r *recorderStub) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	r.requests = append(r.requests, recordedRequest{method: method, path: path, status: status})
}

func (r *recorderStub) ObserveStream(path string, _ time.Duration) {
	r.streams = append(r.streams, path)
}

func metricsRouter(recorder RequestRecorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(recorder, "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/timetables/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/api/v1/events", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.SSEvent("ping", "{}")
	})
	return r
}

func serveMetrics(r *gin.Engine, path string) {
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
}

func TestMetricsRecordsRoutePattern(t *testing.T) {
	recorder := &recorderStub{}
	r := metricsRouter(recorder)

	serveMetrics(r, "/api/v1/timetables/week-a")
	serveMetrics(r, "/health")

	require.Len(t, recorder.requests, 1)
	assert.Equal(t, recordedRequest{method: http.MethodGet, path: "/api/v1/timetables/:id", status: http.StatusNotFound}, recorder.requests[0])
	assert.Empty(t, recorder.streams)
}

func TestMetricsRecordsEventStreamsSeparately(t *testing.T) {
	recorder := &recorderStub{}
	serveMetrics(metricsRouter(recorder), "/api/v1/events")

	assert.Empty(t, recorder.requests)
	assert.Equal(t, []string{"/api/v1/events"}, recorder.streams)
}

func TestMetricsWithoutRecorder(t *testing.T) {
	w := httptest.NewRecorder()
	metricsRouter(nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
