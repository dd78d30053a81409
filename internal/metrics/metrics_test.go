package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHandlerExposesRecordedMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ConnectionOpened()
	m.Inbound("start_interview")
	m.Outbound("interview_started")
	m.Transcript(true)
	m.Generation("suggestion", true, 0.2)
	m.Broadcast("delivered")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		"interview_ai_connections_active 1",
		`interview_ai_inbound_frames_total{type="start_interview"} 1`,
		`interview_ai_transcript_events_total{kind="final"} 1`,
		`interview_ai_generator_results_total{kind="suggestion",result="fallback"} 1`,
		`interview_ai_broadcasts_total{result="delivered"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, text)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.Inbound("x")
	m.Generation("x", false, 1)
	m.Broadcast("failed")
}

func TestNewWithNilRegistry(t *testing.T) {
	a := New(nil)
	b := New(nil)
	a.ConnectionOpened()
	b.ConnectionOpened()
}
