package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphummel/rackops/internal/metrics"
	"github.com/tphummel/rackops/internal/models"
	"github.com/tphummel/rackops/internal/sim"
)

type fakeSim struct{ st *models.State }

func (f fakeSim) Snapshot() *models.State { return f.st.Clone() }
func (f fakeSim) Stats() sim.Stats        { return sim.Stats{Ticks: 42, DaemonFirings: 3, DaemonErrors: 1} }

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics: got %d", rec.Code)
	}
	b, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestCollector(t *testing.T) {
	st := models.NewState(1234.5, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	st.Power.Load = 765
	st.Layout = append(st.Layout, &models.RackSlot{ID: "A1", Contents: []*models.DeviceInstance{
		{ID: "a", Type: "srv_web_01", Status: models.StatusOnline},
		{ID: "b", Type: "srv_web_01", Status: models.StatusOnline},
		{ID: "c", Type: "srv_web_01", Status: models.StatusOfflineHeat},
	}})
	st.Tasks = append(st.Tasks, &models.Task{ID: "t1", Status: models.TaskPending})
	st.Employees = append(st.Employees, &models.Employee{ID: "e1", Status: models.EmployeeIdle})
	st.Staging = append(st.Staging, models.StagedHardwareItem{ID: "s1", Type: "rack_std_01"})

	reg := prometheus.NewRegistry()
	metrics.Register(reg, fakeSim{st: st})
	body := scrape(t, reg)

	for _, want := range []string{
		"rackops_cash 1234.5",
		`rackops_power_watts{kind="load"} 765`,
		`rackops_devices{status="ONLINE"} 2`,
		`rackops_devices{status="OFFLINE_HEAT"} 1`,
		`rackops_tasks{status="Pending"} 1`,
		`rackops_tasks{status="In Progress"} 0`,
		`rackops_employees{status="Idle"} 1`,
		"rackops_staged_items 1",
		"rackops_ticks_total 42",
		"rackops_daemon_firings_total 3",
		"rackops_daemon_errors_total 1",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.Register(reg, fakeSim{st: models.NewState(0, time.Now())})

	h := metrics.Middleware("GET /api/v1/tasks/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/tasks/abc", nil))

	body := scrape(t, reg)
	want := `rackops_http_requests_total{method="GET",path="GET /api/v1/tasks/{id}",status="418"} 1`
	if !strings.Contains(body, want) {
		t.Errorf("scrape missing %q", want)
	}
	if !strings.Contains(body, "rackops_http_requests_in_flight 0") {
		t.Error("in-flight gauge should return to 0")
	}
}
