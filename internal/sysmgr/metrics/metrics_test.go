package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetState(t *testing.T) {
	c := NewCollector()
	all := []string{"Running", "Shutdown", "ShutdownReady"}

	c.SetState("Running", all)
	c.SetState("Shutdown", all)

	if v := testutil.ToFloat64(c.systemState.WithLabelValues("Shutdown")); v != 1 {
		t.Errorf("Shutdown = %v, want 1", v)
	}
	if v := testutil.ToFloat64(c.systemState.WithLabelValues("Running")); v != 0 {
		t.Errorf("Running = %v, want 0", v)
	}
}

func TestCloseRound(t *testing.T) {
	c := NewCollector()
	c.CloseRound("regular_close", []string{"svcB"}, nil)
	c.CloseRound("power_off", nil, []string{"svcB"})
	c.CloseRound("regular_close", nil, nil)

	if v := testutil.ToFloat64(c.closeRounds.WithLabelValues("regular_close")); v != 2 {
		t.Errorf("regular_close rounds = %v, want 2", v)
	}
	if v := testutil.ToFloat64(c.unresponsive.WithLabelValues("svcB")); v != 1 {
		t.Errorf("unresponsive svcB = %v, want 1", v)
	}
	if v := testutil.ToFloat64(c.killed.WithLabelValues("svcB")); v != 1 {
		t.Errorf("killed svcB = %v, want 1", v)
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	c.SetCPULevel(4)
	c.SetRegistered("services", 7)
	c.ObserveStart("ServiceDB", 20*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		"msys_sysmgr_cpu_frequency_level 4",
		`msys_sysmgr_registered_services{collection="services"} 7`,
		`msys_sysmgr_service_start_seconds_count{service="ServiceDB"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
