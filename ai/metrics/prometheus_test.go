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

func TestPrometheusExporter_Turns(t *testing.T) {
	e := NewPrometheusExporter(DefaultConfig())

	e.TurnStarted()
	e.TurnStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(e.turnsActive))

	e.TurnFinished(true, 200*time.Millisecond, "")
	e.TurnFinished(false, time.Second, "completion")
	assert.Equal(t, 0.0, testutil.ToFloat64(e.turnsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.turnsTotal.WithLabelValues("completed", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.turnsTotal.WithLabelValues("failed", "completion")))

	e.TurnRejected("turn_in_progress")
	assert.Equal(t, 1.0, testutil.ToFloat64(e.turnRejected.WithLabelValues("turn_in_progress")))
}

func TestPrometheusExporter_Documents(t *testing.T) {
	e := NewPrometheusExporter(DefaultConfig())
	e.RecordChunksEmbedded(4)
	e.RecordChunksEmbedded(2)
	e.RecordVectorsDeleted(3)
	e.RecordCacheHit("embedding")
	e.RecordCacheMiss("embedding")

	assert.Equal(t, 6.0, testutil.ToFloat64(e.chunksEmbedded))
	assert.Equal(t, 3.0, testutil.ToFloat64(e.vectorsDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.cacheHits.WithLabelValues("embedding")))
}

func TestPrometheusExporter_Handler(t *testing.T) {
	e := NewPrometheusExporter(DefaultConfig())
	e.TurnStarted()
	e.TurnFinished(true, 100*time.Millisecond, "")

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "vectorwave_chat_turns_total")
	assert.Contains(t, string(body), "vectorwave_chat_turn_latency_seconds")
}
