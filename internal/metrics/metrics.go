package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AttemptsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cbt_attempts_started_total",
		Help: "Attempts moved to IN_PROGRESS",
	})

	AttemptsResumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cbt_attempts_resumed_total",
		Help: "Start calls that returned an existing live attempt",
	})

	AttemptsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbt_attempts_finished_total",
			Help: "Attempts that reached a terminal state",
		},
		[]string{"status", "reason"},
	)

	AnswersSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cbt_answers_saved_total",
		Help: "Answer submissions persisted",
	})

	GradingAnomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbt_grading_anomalies_total",
			Help: "Questions that could not be auto-graded because of bad data",
		},
		[]string{"question_type"},
	)

	TabSwitches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cbt_tab_switches_total",
		Help: "Tab switches recorded on live attempts",
	})

	WatchdogSweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbt_watchdog_sweeps_total",
			Help: "Timeout watchdog sweeps by outcome",
		},
		[]string{"outcome"},
	)

	WatchdogAutoSubmits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbt_watchdog_auto_submits_total",
			Help: "Per-attempt auto-submit results of the timeout watchdog",
		},
		[]string{"result"},
	)

	ProctorEventsPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cbt_proctor_events_persisted_total",
		Help: "Proctoring events written to attempt_events",
	})

	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"method", "endpoint"},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more
// than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			AttemptsStarted, AttemptsResumed, AttemptsFinished, AnswersSaved,
			GradingAnomalies, TabSwitches, WatchdogSweeps, WatchdogAutoSubmits,
			ProctorEventsPersisted, RequestCounter, RequestDuration,
		)
	})
}

// Middleware records count and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		RequestCounter.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry for scraping.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
