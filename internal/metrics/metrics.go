package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gensched_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gensched_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gensched_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gensched_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	dbConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gensched_db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	eventStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gensched_event_streams",
			Help: "Number of open websocket event streams",
		},
	)

	executionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gensched_executions_total",
			Help: "Total number of attempt sequences by outcome",
		},
		[]string{"job", "status"},
	)

	executionAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gensched_execution_attempts",
			Help:    "Attempts used per attempt sequence",
			Buckets: []float64{1, 2, 3, 5, 10},
		},
		[]string{"job"},
	)

	executionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gensched_execution_duration_seconds",
			Help:    "Attempt sequence duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"job"},
	)

	jobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gensched_jobs_in_flight",
			Help: "Number of jobs currently holding a parallelism slot",
		},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gensched_queue_depth",
			Help: "Number of tasks waiting in the dispatch queue",
		},
	)

	workersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gensched_workers_active",
			Help: "Number of dispatch workers, including those waiting for eligibility",
		},
	)

	missfiresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gensched_trigger_missfires_total",
			Help: "Total number of triggers flagged as missed",
		},
	)

	stuckResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gensched_stuck_task_resets_total",
			Help: "Total number of Running tasks reset to Ready by recovery",
		},
	)

	pollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gensched_poll_cycles_total",
			Help: "Total number of poll cycles by result",
		},
		[]string{"result"},
	)

	pollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gensched_poll_duration_seconds",
			Help:    "Poll cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	historyPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gensched_history_pruned_total",
			Help: "Total number of history records removed by retention",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func IncrementInFlight() {
	httpRequestsInFlight.Inc()
}

func DecrementInFlight() {
	httpRequestsInFlight.Dec()
}

func UpdateDBStats(open, inUse int) {
	dbConnectionsOpen.Set(float64(open))
	dbConnectionsInUse.Set(float64(inUse))
}

func UpdateEventStreams(n int) {
	eventStreams.Set(float64(n))
}

// RecordExecution records one finished attempt sequence.
func RecordExecution(jobType, status string, attempts int, duration time.Duration) {
	executionsTotal.WithLabelValues(jobType, status).Inc()
	executionAttempts.WithLabelValues(jobType).Observe(float64(attempts))
	executionDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

func JobStarted() {
	jobsInFlight.Inc()
}

func JobFinished() {
	jobsInFlight.Dec()
}

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

func WorkerStarted() {
	workersActive.Inc()
}

func WorkerFinished() {
	workersActive.Dec()
}

func AddMissfires(n int) {
	missfiresTotal.Add(float64(n))
}

func AddStuckResets(n int) {
	stuckResetsTotal.Add(float64(n))
}

func AddHistoryPruned(n int) {
	historyPruned.Add(float64(n))
}

// RecordPoll records one poll cycle; result is "ok" or "error".
func RecordPoll(result string, duration time.Duration) {
	pollCycles.WithLabelValues(result).Inc()
	pollDuration.Observe(duration.Seconds())
}

// NormalizePath collapses a ServeMux pattern such as "GET /api/tasks/{id}"
// into a low-cardinality label like "/api/tasks/:id".
func NormalizePath(path string) string {
	if i := strings.IndexByte(path, ' '); i >= 0 {
		path = path[i+1:]
	}
	if len(path) > 100 {
		path = path[:100]
	}

	return pathParams.Replace(path)
}

var pathParams = strings.NewReplacer("{", ":", "}", "", "...", "")
