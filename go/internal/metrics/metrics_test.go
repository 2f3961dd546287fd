package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncEventsEmitted("game.chat")
	m.IncPublishFailures("game.chat")
	m.IncLoops()
	m.SetPlaybackTime(1000)
	m.IncVotes("side")
	m.IncPollsClosed("side")
	m.IncControlCommands("SEEK")
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestCounters(t *testing.T) {
	m := New()
	m.IncEventsEmitted("game.chat")
	m.IncEventsEmitted("game.chat")
	m.IncLoops()
	m.SetPlaybackTime(4000)
	m.IncVotes("side")

	body := scrape(t, m)
	for _, want := range []string{
		`livestream_events_emitted_total{channel="game.chat"} 2`,
		"livestream_loops_total 1",
		"livestream_playback_time_ms 4000",
		`livestream_votes_total{poll_type="side"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestHandlerAndMiddleware(t *testing.T) {
	m := New()
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	body := scrape(t, m)
	for _, want := range []string{"livestream_http_requests_total 1", "livestream_http_errors_total 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
