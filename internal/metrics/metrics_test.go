package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/srg/blesail/internal/connector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSession struct {
	stats []connector.SourceStats
	state connector.State
}

func (s *staticSession) Stats() []connector.SourceStats { return s.stats }
func (s *staticSession) State() connector.State         { return s.state }

func (s *staticSession) Subscribed() int { return len(s.stats) }

func newStaticSession() *staticSession {
	return &staticSession{
		state: connector.Streaming,
		stats: []connector.SourceStats{
			{Name: "wind_speed", Received: 10, Dropped: 1, Decoded: 8, Failed: 1},
			{Name: "wind_angle", Received: 4, Decoded: 4},
		},
	}
}

func TestCollectorReportsSourceCounters(t *testing.T) {
	// GOAL: Verify every source gets its own counters labelled by name
	//
	// TEST SCENARIO: Two sources with known stats → decoded and failed counters match per label

	c := NewCollector(newStaticSession())

	expected := `
# HELP blesail_source_decoded_total Values written to the sink.
# TYPE blesail_source_decoded_total counter
blesail_source_decoded_total{source="wind_angle"} 4
blesail_source_decoded_total{source="wind_speed"} 8
# HELP blesail_source_failed_total Payloads the decoder rejected.
# TYPE blesail_source_failed_total counter
blesail_source_failed_total{source="wind_angle"} 0
blesail_source_failed_total{source="wind_speed"} 1
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"blesail_source_decoded_total", "blesail_source_failed_total")
	require.NoError(t, err, "per-source counters MUST match the session stats")

	// 4 counters per source plus two session gauges
	assert.Equal(t, 10, testutil.CollectAndCount(c))
}

func TestCollectorStreamingGauge(t *testing.T) {
	s := newStaticSession()
	c := NewCollector(s)

	expected := `
# HELP blesail_session_streaming 1 while the session is streaming.
# TYPE blesail_session_streaming gauge
blesail_session_streaming 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "blesail_session_streaming"))

	s.state = connector.Closed
	expected = strings.Replace(expected, "blesail_session_streaming 1", "blesail_session_streaming 0", 1)
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "blesail_session_streaming"),
		"a closed session MUST report 0")
}

func TestHandlerExposition(t *testing.T) {
	h, err := Handler(newStaticSession())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `blesail_source_received_total{source="wind_speed"} 10`)
	assert.Contains(t, rec.Body.String(), "blesail_sources_subscribed 2")
}

func TestServerServesUntilCancelled(t *testing.T) {
	// GOAL: Verify the server answers scrapes and stops with its context
	//
	// TEST SCENARIO: Listen on a free port → GET /metrics → cancel → Serve returns nil

	srv, err := Listen("127.0.0.1:0", newStaticSession(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + srv.Addr() + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, body, "blesail_session_streaming 1")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "Serve MUST return nil after cancellation")
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
