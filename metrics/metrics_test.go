package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest("GET", "/canvases/:id", 200, 15*time.Millisecond)
	c.RecordHTTPRequest("GET", "/canvases/:id", 200, 25*time.Millisecond)
	c.RecordHTTPRequest("GET", "/canvases/:id", 404, time.Millisecond)
	c.RecordUploadRequested("image/png")
	c.RecordAssetsDeleted("cleanup", 3)
	c.RecordBlobDeleteFailure()
	c.RecordSessionSaves(2)
	c.RecordWSConnection(1)
	c.RecordWSConnection(1)
	c.RecordWSConnection(-1)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "/canvases/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "/canvases/:id", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.uploadsRequested.WithLabelValues("image/png")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.assetsDeleted.WithLabelValues("cleanup")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.blobDeleteFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.sessionSaves))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.wsConnections))
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordBlobDeleteFailure()

	server := httptest.NewServer(Handler(reg))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "easel_blob_delete_failures_total 1")
}
