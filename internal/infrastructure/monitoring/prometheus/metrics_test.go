package prometheus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/holiday"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/rollover"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/scheduling"
)

var (
	_ scheduling.Metrics = (*AppMetrics)(nil)
	_ holiday.Metrics    = (*AppMetrics)(nil)
	_ rollover.Metrics   = (*AppMetrics)(nil)
)

func TestAppMetrics_Queue(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.RecordEntries(scheduling.ActionCreated, 4)
	m.RecordEntries(scheduling.ActionRetired, 0)
	m.RecordClientBuild(scheduling.OutcomeSuccess)
	m.ObserveBatch("rebuild_all", 2*time.Second)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_queue_entries_total{action="created"} 4`)
	assert.NotContains(t, out, `action="retired"`)
	assert.Contains(t, out, `test_unit_client_builds_total{outcome="success"} 1`)
	assert.Contains(t, out, `test_unit_batch_duration_seconds_count{job="rebuild_all"} 1`)
	assert.Contains(t, out, `test_unit_batch_last_run_timestamp_seconds{job="rebuild_all"}`)
}

func TestAppMetrics_RolloverHolidaysHTTP(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.RecordRollover("success")
	m.RecordHolidayFetch("scotland", holiday.ResultStale)
	m.RecordCredentialRefresh("refreshed")
	m.RecordHTTPRequest("GET", "/api/v1/clients/{clientID}/deadlines", 200, 15*time.Millisecond)
	m.SetHealth("postgres", true)
	m.SetHealth("redis", false)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_rollovers_total{outcome="success"} 1`)
	assert.Contains(t, out, `test_unit_holiday_fetches_total{region="scotland",result="stale"} 1`)
	assert.Contains(t, out, `test_unit_credential_refreshes_total{outcome="refreshed"} 1`)
	assert.Contains(t, out, `status_code="200"`)
	assert.Contains(t, out, `test_unit_health_check_status{component="postgres"} 1`)
	assert.Contains(t, out, `test_unit_health_check_status{component="redis"} 0`)
}
