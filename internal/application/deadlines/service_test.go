package deadlines

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/deadline"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/testutil"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

var fixedNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

type mockObjects struct{ mock.Mock }

func (m *mockObjects) Put(ctx context.Context, name string, data []byte, contentType string) error {
	return m.Called(ctx, name, data, contentType).Error(0)
}

func (m *mockObjects) PresignedGetURL(ctx context.Context, name string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, name, expiry)
	return args.String(0), args.Error(1)
}

func newStore(t *testing.T) *testutil.MemStore {
	t.Helper()
	store := testutil.NewMemStore()
	ye := calendar.MustParseDate("2026-01-31")
	stagger := 1
	store.AddClient(&filing.Client{
		ID: "acme", CompanyName: "Acme, Ltd", ClientType: filing.ClientLimitedCompany, YearEnd: &ye,
		VATRegistered: true, VATStaggerGroup: &stagger,
		RecordsReceivedFor: []filing.FilingType{filing.CT600Filing},
	})
	require.NoError(t, store.DeadlineOverrides().Upsert(context.Background(), filing.DeadlineOverride{
		ClientID: "acme", FilingType: filing.VATReturn, Date: calendar.MustParseDate("2026-10-10"), Reason: "agreed with HMRC",
	}))
	store.AddClient(&filing.Client{ID: "newco", ClientType: filing.ClientLimitedCompany})
	return store
}

func TestForClient(t *testing.T) {
	svc := NewService(newStore(t), nil, "england-and-wales", testutil.NewMockLogger(), WithClock(calendar.FixedClock{T: fixedNow}))

	l, err := svc.ForClient(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, l.Items, 4)

	vat := l.Items[0]
	assert.Equal(t, filing.VATReturn, vat.FilingType)
	assert.Equal(t, deadline.SourceOverride, vat.Source)
	assert.Equal(t, -8, vat.DaysRemaining)
	assert.Equal(t, StatusOverdue, vat.Status)

	ch := l.Items[1]
	assert.Equal(t, filing.CompaniesHouseAccounts, ch.FilingType)
	assert.Equal(t, calendar.MustParseDate("2026-10-31"), ch.Deadline)
	assert.Equal(t, calendar.MustParseDate("2026-11-02"), ch.WorkingDay)
	assert.Equal(t, 13, ch.DaysRemaining)
	assert.Equal(t, StatusDueSoon, ch.Status)

	assert.Equal(t, filing.CorporationTaxPayment, l.Items[2].FilingType)
	assert.Equal(t, 14, l.Items[2].DaysRemaining)

	ct600 := l.Items[3]
	assert.Equal(t, 105, ct600.DaysRemaining)
	assert.Equal(t, StatusUpcoming, ct600.Status)
	assert.True(t, ct600.RecordsReceived)
}

func TestForClient_MissingFacts(t *testing.T) {
	svc := NewService(newStore(t), nil, "", testutil.NewMockLogger(), WithClock(calendar.FixedClock{T: fixedNow}))

	l, err := svc.ForClient(context.Background(), "newco")
	require.NoError(t, err)
	assert.Empty(t, l.Items)
	assert.ElementsMatch(t, []filing.FilingType{filing.CompaniesHouseAccounts, filing.CorporationTaxPayment, filing.CT600Filing}, l.Missing)

	_, err = svc.ForClient(context.Background(), "ghost")
	assert.True(t, errors.IsNotFound(err))
}

func TestBuildICS(t *testing.T) {
	svc := NewService(newStore(t), nil, "", testutil.NewMockLogger(), WithClock(calendar.FixedClock{T: fixedNow}))
	data, _, err := svc.ICS(context.Background(), "acme")
	require.NoError(t, err)

	ics := string(data)
	assert.True(t, strings.HasPrefix(ics, "BEGIN:VCALENDAR\r\n"))
	assert.True(t, strings.HasSuffix(ics, "END:VCALENDAR\r\n"))
	assert.Equal(t, 4, strings.Count(ics, "BEGIN:VEVENT"))
	assert.Equal(t, 12, strings.Count(ics, "BEGIN:VALARM"))
	assert.Contains(t, ics, "X-WR-CALNAME:Acme\\, Ltd filing deadlines\r\n")
	assert.Contains(t, ics, "UID:acme-companies_house-20261031@reminders\r\n")
	assert.Contains(t, ics, "DTSTART;VALUE=DATE:20261031\r\nDTEND;VALUE=DATE:20261101\r\n")
	assert.Contains(t, ics, "next working day 2 November 2026")
	assert.Contains(t, ics, "DTSTAMP:20261018T090000Z\r\n")
}

func TestExportICS(t *testing.T) {
	objects := &mockObjects{}
	name := "deadlines/acme/20261018T090000Z.ics"
	objects.On("Put", mock.Anything, name, mock.Anything, "text/calendar; charset=utf-8").Return(nil)
	objects.On("PresignedGetURL", mock.Anything, name, time.Hour).Return("https://minio.local/exports/"+name+"?sig=x", nil)

	svc := NewService(newStore(t), nil, "", testutil.NewMockLogger(),
		WithClock(calendar.FixedClock{T: fixedNow}), WithObjectStore(objects, time.Hour))

	exp, err := svc.ExportICS(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, name, exp.ObjectName)
	assert.Contains(t, exp.URL, "sig=x")
	assert.Equal(t, fixedNow.Add(time.Hour), exp.ExpiresAt)
	assert.Greater(t, exp.Size, 0)
	objects.AssertExpectations(t)
}

func TestExportICS_Failures(t *testing.T) {
	svc := NewService(newStore(t), nil, "", testutil.NewMockLogger())
	_, err := svc.ExportICS(context.Background(), "acme")
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))

	objects := &mockObjects{}
	objects.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(fmt.Errorf("bucket gone"))
	svc = NewService(newStore(t), nil, "", testutil.NewMockLogger(), WithObjectStore(objects, 0))
	_, err = svc.ExportICS(context.Background(), "acme")
	assert.True(t, errors.IsCode(err, errors.ErrCodeExternalService))
}
