package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/autopeer-io/robofleet/internal/fleet/cache"
	"github.com/autopeer-io/robofleet/internal/fleet/core/model"
	"github.com/autopeer-io/robofleet/pkg/options"
)

type fakeRobots struct {
	state *cache.RobotState
	alive map[string]bool
}

func (f *fakeRobots) Snapshot(id string) cache.Snapshot { return f.state.Snapshot(id) }
func (f *fakeRobots) IsOnline(id string) bool          { return f.alive[id] }

func newTestServer(checks map[string]ReadinessCheck) (*Server, *fakeRobots) {
	robots := &fakeRobots{state: cache.NewRobotState(), alive: map[string]bool{}}
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "robofleet_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := NewServer(Config{
		Options:  options.NewHttpOptions(),
		Gatherer: reg,
		Robots:   robots,
		Checks:   checks,
	})
	return s, robots
}

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestProbes(t *testing.T) {
	ready := true
	s, _ := newTestServer(map[string]ReadinessCheck{
		"mqtt": func(context.Context) error {
			if !ready {
				return errors.New("not connected")
			}
			return nil
		},
	})

	if rec := do(t, s.Handler(), "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("/healthz = %d", rec.Code)
	}
	if rec := do(t, s.Handler(), "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("/readyz = %d, want 200", rec.Code)
	}

	ready = false
	rec := do(t, s.Handler(), "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not connected") {
		t.Fatalf("/readyz body = %q", rec.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(nil)
	rec := do(t, s.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "robofleet_test_total 1") {
		t.Fatalf("/metrics missing counter:\n%s", rec.Body.String())
	}
}

func TestDebugRobot(t *testing.T) {
	s, robots := newTestServer(nil)
	robots.state.Battery.Put("R7", model.Battery{Percentage: 80})
	robots.alive["R7"] = true

	rec := do(t, s.Handler(), "/debug/robots/R7")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		RobotID string         `json:"robotId"`
		Battery *model.Battery `json:"battery"`
		Alive   bool           `json:"alive"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RobotID != "R7" || !got.Alive || got.Battery == nil || got.Battery.Percentage != 80 {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	rec = do(t, s.Handler(), "/debug/robots/R8")
	if !strings.Contains(rec.Body.String(), `"alive":false`) {
		t.Fatalf("unknown robot body: %s", rec.Body.String())
	}
}
