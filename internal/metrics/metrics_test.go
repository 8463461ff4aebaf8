package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New(time.Now())
	m.BytesIn(120)
	m.BytesOut(7)
	m.MessageFlushed("prompt")
	m.MessageFlushed("prompt")
	m.Estimated("strong", 3*time.Millisecond)
	m.WalkFinished("aborted", "stuck")
	m.SetCurrentRoom(42)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(body)

	assert.Contains(t, out, "nightfall_bytes_received_total 120")
	assert.Contains(t, out, "nightfall_bytes_sent_total 7")
	assert.Contains(t, out, `nightfall_messages_total{reason="prompt"} 2`)
	assert.Contains(t, out, `nightfall_estimates_total{confidence="strong"} 1`)
	assert.Contains(t, out, `nightfall_walks_total{reason="stuck",state="aborted"} 1`)
	assert.Contains(t, out, "nightfall_current_room 42")
	assert.Contains(t, out, "nightfall_uptime_seconds")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BytesIn(1)
		m.BytesOut(1)
		m.MessageFlushed("timeout")
		m.Estimated("none", time.Millisecond)
		m.EstimateDropped()
		m.WalkFinished("arrived", "")
		m.SetCurrentRoom(1)
	})
}
