package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphummel/rackops/internal/models"
	"github.com/tphummel/rackops/internal/sim"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rackops_http_requests_total",
			Help: "Total number of HTTP requests by method, route, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rackops_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rackops_http_requests_in_flight",
		Help: "Current number of HTTP requests being processed.",
	})
)

// Simulation is the subset of sim.Engine needed to collect game metrics.
type Simulation interface {
	Snapshot() *models.State
	Stats() sim.Stats
}

// simCollector reads a snapshot of the running game on every scrape.
type simCollector struct {
	sim Simulation

	cash       *prometheus.Desc
	power      *prometheus.Desc
	cooling    *prometheus.Desc
	temp       *prometheus.Desc
	bandwidth  *prometheus.Desc
	energy     *prometheus.Desc
	tasks      *prometheus.Desc
	devices    *prometheus.Desc
	employees  *prometheus.Desc
	staged     *prometheus.Desc
	ticks      *prometheus.Desc
	firings    *prometheus.Desc
	ruleErrors *prometheus.Desc
}

func newSimCollector(s Simulation) *simCollector {
	return &simCollector{
		sim:        s,
		cash:       prometheus.NewDesc("rackops_cash", "Cash on hand.", nil, nil),
		power:      prometheus.NewDesc("rackops_power_watts", "Electrical capacity and load.", []string{"kind"}, nil),
		cooling:    prometheus.NewDesc("rackops_cooling_watts", "Cooling capacity and heat load.", []string{"kind"}, nil),
		temp:       prometheus.NewDesc("rackops_server_room_celsius", "Derived server room temperature.", nil, nil),
		bandwidth:  prometheus.NewDesc("rackops_bandwidth_mbps", "Uplink capacity and client demand.", []string{"kind"}, nil),
		energy:     prometheus.NewDesc("rackops_energy_consumed_kwh_total", "Energy consumed since the game started.", nil, nil),
		tasks:      prometheus.NewDesc("rackops_tasks", "Queued tasks, partitioned by status.", []string{"status"}, nil),
		devices:    prometheus.NewDesc("rackops_devices", "Installed devices, partitioned by status.", []string{"status"}, nil),
		employees:  prometheus.NewDesc("rackops_employees", "Employees, partitioned by status.", []string{"status"}, nil),
		staged:     prometheus.NewDesc("rackops_staged_items", "Hardware waiting in staging.", nil, nil),
		ticks:      prometheus.NewDesc("rackops_ticks_total", "Simulation ticks processed.", nil, nil),
		firings:    prometheus.NewDesc("rackops_daemon_firings_total", "Daemon rule actions dispatched.", nil, nil),
		ruleErrors: prometheus.NewDesc("rackops_daemon_errors_total", "Daemon rules that failed to evaluate or dispatch.", nil, nil),
	}
}

func (c *simCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.cash, c.power, c.cooling, c.temp, c.bandwidth, c.energy,
		c.tasks, c.devices, c.employees, c.staged, c.ticks, c.firings, c.ruleErrors,
	} {
		ch <- d
	}
}

func (c *simCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.sim.Snapshot()
	stats := c.sim.Stats()

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}

	gauge(c.cash, st.Cash)
	gauge(c.power, st.Power.Capacity, "capacity")
	gauge(c.power, st.Power.Load, "load")
	gauge(c.cooling, st.Cooling.Capacity, "capacity")
	gauge(c.cooling, st.Cooling.Load, "load")
	gauge(c.temp, st.ServerRoomTemp)
	gauge(c.bandwidth, st.Network.Capacity, "capacity")
	gauge(c.bandwidth, st.Network.Load, "load")
	counter(c.energy, st.Power.TotalConsumedKWh)
	gauge(c.staged, float64(len(st.Staging)))

	tasks := map[string]int{string(models.TaskPending): 0, string(models.TaskInProgress): 0}
	for _, t := range st.Tasks {
		tasks[string(t.Status)]++
	}
	for status, n := range tasks {
		gauge(c.tasks, float64(n), status)
	}

	devices := map[string]int{}
	for _, slot := range st.Layout {
		for _, d := range slot.Contents {
			devices[string(d.Status)]++
		}
	}
	for status, n := range devices {
		gauge(c.devices, float64(n), status)
	}

	employees := map[string]int{string(models.EmployeeIdle): 0, string(models.EmployeeWorking): 0}
	for _, e := range st.Employees {
		employees[string(e.Status)]++
	}
	for status, n := range employees {
		gauge(c.employees, float64(n), status)
	}

	counter(c.ticks, float64(stats.Ticks))
	counter(c.firings, float64(stats.DaemonFirings))
	counter(c.ruleErrors, float64(stats.DaemonErrors))
}

// Register registers all metrics with reg. Call once at startup after the
// engine is created.
func Register(reg prometheus.Registerer, s Simulation) {
	reg.MustRegister(
		// Standard Go runtime and process metrics
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),

		// HTTP service metrics
		httpRequestsTotal,
		httpRequestDuration,
		httpRequestsInFlight,

		// Game metrics
		newSimCollector(s),
	)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// responseWriter wraps http.ResponseWriter to capture the response status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware wraps an http.Handler to record HTTP metrics.
// pattern should be the route pattern string (e.g. "/api/v1/tasks/{id}")
// so the path label has bounded cardinality.
func Middleware(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			httpRequestsInFlight.Dec()
			status := strconv.Itoa(rw.status)
			httpRequestsTotal.WithLabelValues(r.Method, pattern, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		}()

		next.ServeHTTP(rw, r)
	})
}
