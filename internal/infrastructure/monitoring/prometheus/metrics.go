package prometheus

import (
	"strconv"
	"time"
)

// Default buckets.
var (
	DefaultHTTPDurationBuckets  = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultBatchDurationBuckets = []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300, 600}
)

// AppMetrics holds the engine's metrics.  It satisfies the Metrics ports of
// the scheduling, holiday and rollover packages.
type AppMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	// Queue
	QueueEntriesTotal  CounterVec
	ClientBuildsTotal  CounterVec
	BatchDuration      HistogramVec
	LastBatchTimestamp GaugeVec

	// Rollover
	RolloversTotal CounterVec

	// Holidays
	HolidayFetchesTotal CounterVec

	// Credentials
	CredentialRefreshesTotal CounterVec

	// Health
	HealthCheckStatus GaugeVec
}

// NewAppMetrics registers every metric on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "route", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "route")

	m.QueueEntriesTotal = collector.RegisterCounter("queue_entries_total", "Reminder queue entries by lifecycle action", "action")
	m.ClientBuildsTotal = collector.RegisterCounter("client_builds_total", "Per-client queue rebuilds by outcome", "outcome")
	m.BatchDuration = collector.RegisterHistogram("batch_duration_seconds", "Duration of scheduled batch jobs", DefaultBatchDurationBuckets, "job")
	m.LastBatchTimestamp = collector.RegisterGauge("batch_last_run_timestamp_seconds", "Unix time a batch job last finished", "job")

	m.RolloversTotal = collector.RegisterCounter("rollovers_total", "Filing rollovers by outcome", "outcome")
	m.HolidayFetchesTotal = collector.RegisterCounter("holiday_fetches_total", "Bank holiday lookups by region and result", "region", "result")
	m.CredentialRefreshesTotal = collector.RegisterCounter("credential_refreshes_total", "Accounting credential refreshes by outcome", "outcome")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")

	return m
}

// RecordEntries counts queue entries created, retired, promoted, sent or failed.
func (m *AppMetrics) RecordEntries(action string, n int) {
	if n <= 0 {
		return
	}
	m.QueueEntriesTotal.WithLabelValues(action).Add(float64(n))
}

func (m *AppMetrics) RecordClientBuild(outcome string) {
	m.ClientBuildsTotal.WithLabelValues(outcome).Inc()
}

func (m *AppMetrics) ObserveBatch(job string, d time.Duration) {
	m.BatchDuration.WithLabelValues(job).Observe(d.Seconds())
	m.LastBatchTimestamp.WithLabelValues(job).Set(float64(time.Now().Unix()))
}

func (m *AppMetrics) RecordRollover(outcome string) {
	m.RolloversTotal.WithLabelValues(outcome).Inc()
}

func (m *AppMetrics) RecordHolidayFetch(region, result string) {
	m.HolidayFetchesTotal.WithLabelValues(region, result).Inc()
}

func (m *AppMetrics) RecordCredentialRefresh(outcome string) {
	m.CredentialRefreshesTotal.WithLabelValues(outcome).Inc()
}

func (m *AppMetrics) RecordHTTPRequest(method, route string, statusCode int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *AppMetrics) SetHealth(component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}
