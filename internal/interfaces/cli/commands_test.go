package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/rollover"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
)

func TestRolloverListCmd(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "rollover", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "CLIENT"))
	assert.Contains(t, lines[2], "acme")
	assert.Contains(t, lines[2], "2026-10-01")
	assert.Contains(t, lines[3], "companies_house")

	out, err = h.run(t, "rollover", "list", "--client", "bolt")
	require.NoError(t, err)
	assert.NotContains(t, out, "acme")

	out, err = h.run(t, "rollover", "list", "--client", "nobody")
	require.NoError(t, err)
	assert.Equal(t, "no rollover candidates\n", out)
}

func TestRolloverExecuteCmd_Targets(t *testing.T) {
	h := newHarness()

	_, err := h.run(t, "rollover", "execute", "acme:ct600_filing", "bolt:vat_return")
	require.NoError(t, err)
	assert.Equal(t, []rollover.Candidate{
		{ClientID: "acme", FilingType: filing.CT600Filing},
		{ClientID: "bolt", FilingType: filing.VATReturn},
	}, h.executor.got)
}

func TestRolloverExecuteCmd_All(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "rollover", "execute", "--all", "-o", "json")
	require.NoError(t, err)
	assert.Len(t, h.executor.got, 2)
	assert.Contains(t, out, `"succeeded": 2`)
}

func TestRolloverExecuteCmd_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no targets", []string{"rollover", "execute"}, "--all"},
		{"missing separator", []string{"rollover", "execute", "acme"}, "want client:filing_type"},
		{"unknown filing type", []string{"rollover", "execute", "acme:stamp_duty"}, "invalid target"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			_, err := h.run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Empty(t, h.executor.got)
			assert.Zero(t, h.built)
		})
	}
}

func TestParseTargets(t *testing.T) {
	got, err := parseTargets([]string{"acme:self_assessment"})
	require.NoError(t, err)
	assert.Equal(t, []rollover.Candidate{{ClientID: "acme", FilingType: filing.SelfAssessment}}, got)

	_, err = parseTargets([]string{":vat_return"})
	assert.Error(t, err)
}

func TestDeadlinesCmd_Table(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "deadlines", "--client", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "FILING TYPE")
	assert.Contains(t, out, "ct600_filing")
	assert.Contains(t, out, "2027-02-01")
	assert.Contains(t, out, "upcoming")
	assert.Contains(t, out, "vat_return")
	assert.Contains(t, out, "unresolved")
}

func TestDeadlinesCmd_RequiresClient(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "deadlines")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"client"`)
}

func TestDeadlinesCmd_ICS(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "deadlines", "--client", "acme", "--ics", "-")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR"))

	path := filepath.Join(t.TempDir(), "acme.ics")
	out, err = h.run(t, "deadlines", "--client", "acme", "--ics", path)
	require.NoError(t, err)
	assert.Contains(t, out, "OK: wrote")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "END:VCALENDAR")
}

func TestDeadlinesCmd_Export(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "deadlines", "--client", "acme", "--export", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "https://exports.example.com/acme.ics")

	_, err = h.run(t, "deadlines", "--client", "acme", "--export", "--ics", "-")
	assert.Error(t, err)
}

func TestTemplatesResolveCmd(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "templates", "resolve", "--client", "acme", "--filing-type", "ct600_filing")
	require.NoError(t, err)
	assert.Contains(t, out, "{{client_name}}")
	assert.Contains(t, out, "subject")
	assert.Contains(t, out, "30d")

	out, err = h.run(t, "templates", "resolve", "--client", "acme", "--filing-type", "ct600_filing", "--due", "2027-01-31")
	require.NoError(t, err)
	assert.Contains(t, out, "Acme Ltd: CT600 due")
	assert.NotContains(t, out, "{{client_name}}")
}

func TestTemplatesResolveCmd_BadInput(t *testing.T) {
	h := newHarness()

	_, err := h.run(t, "templates", "resolve", "--client", "acme", "--filing-type", "stamp_duty")
	assert.Error(t, err)

	_, err = h.run(t, "templates", "resolve", "--client", "acme", "--filing-type", "ct600_filing", "--due", "31/01/2027")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --due")
}

func TestHolidaysCmd(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "holidays", "--year", "2026")
	require.NoError(t, err)
	assert.Equal(t, "scotland", h.holidays.region)
	assert.Contains(t, out, "2026-12-25  Friday")
	assert.Contains(t, out, "2026-12-28  Monday")
	assert.NotContains(t, out, "2027-01-01")

	_, err = h.run(t, "holidays", "--region", "england-and-wales", "--year", "2027")
	require.NoError(t, err)
	assert.Equal(t, "england-and-wales", h.holidays.region)
}

func TestRecordsCmd(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "records", "received", "--client", "acme", "--filing-type", "vat_return", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, "received", h.records.last)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "acme", got["client_id"])

	_, err = h.run(t, "records", "unreceived", "--client", "acme", "--filing-type", "vat_return")
	require.NoError(t, err)
	assert.Equal(t, "not_received", h.records.last)
}

func TestMigrateCmds(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "migrate", "up")
	require.NoError(t, err)
	assert.Equal(t, "OK: schema is up to date\n", out)
	assert.Equal(t, 1, h.migrator.ups)

	_, err = h.run(t, "migrate", "down", "--steps", "2")
	require.NoError(t, err)
	assert.Equal(t, 2, h.migrator.downSteps)

	_, err = h.run(t, "migrate", "down", "--steps", "0")
	assert.Error(t, err)

	out, err = h.run(t, "migrate", "status")
	require.NoError(t, err)
	assert.Equal(t, "version 3\n", out)

	_, err = h.run(t, "migrate", "force", "2")
	require.NoError(t, err)
	assert.Equal(t, 2, h.migrator.forced)

	_, err = h.run(t, "migrate", "force", "two")
	assert.Error(t, err)

	// Migrations never build the service graph.
	assert.Zero(t, h.built)
}

func TestMigrationStatus_Dirty(t *testing.T) {
	s := migrationStatus{Version: 4, Dirty: true}
	assert.Contains(t, s.String(), "migrate force 4")
}

func TestCredentialsRefreshCmd(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "credentials", "refresh", "--connection", "xero-main", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"connection_id": "xero-main"`)
	assert.NotContains(t, out, "tok")
}

func TestFormatTable(t *testing.T) {
	out := FormatTable([]string{"A", "LONG"}, [][]string{{"xyz", "1"}, {"q"}})
	assert.Equal(t, "A    LONG\n---  ----\nxyz  1\nq    \n", out)
	assert.Empty(t, FormatTable(nil, nil))
}
