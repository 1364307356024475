package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritetech/rcm-intake/internal/cache"
	"github.com/ritetech/rcm-intake/internal/messaging"
	"github.com/ritetech/rcm-intake/internal/model"
	"github.com/ritetech/rcm-intake/internal/service/audit"
	"github.com/ritetech/rcm-intake/internal/store"
)

type fakeStore struct {
	tables map[string][]store.Row
}

func (f *fakeStore) ReadAll(_ context.Context, table string) ([]store.Row, error) {
	return f.tables[table], nil
}

func (f *fakeStore) AppendRow(_ context.Context, table string, headers, values []string) error {
	row := store.Row{}
	for i, h := range headers {
		if i < len(values) {
			row[h] = values[i]
		}
	}
	f.tables[table] = append(f.tables[table], row)
	return nil
}

func (f *fakeStore) UpsertByKey(context.Context, string, string, []string, store.Row) error {
	return nil
}
func (f *fakeStore) EnsureSchema(context.Context, string, []string) error { return nil }

type fakeDeliverer struct {
	res  *messaging.SendResult
	err  error
	sent []messaging.Document
}

func (f *fakeDeliverer) Send(_ context.Context, doc messaging.Document, _ string) (*messaging.SendResult, error) {
	f.sent = append(f.sent, doc)
	return f.res, f.err
}

type fakeMailer struct {
	err      error
	subjects []string
}

func (f *fakeMailer) SendReport(_ context.Context, subject, _, _ string, _ []byte) error {
	f.subjects = append(f.subjects, subject)
	return f.err
}

func dataRow(serviceDate, erx string) store.Row {
	return store.Row{
		"Timestamp":   "2025-01-05T09:00:00Z",
		"ServiceDate": serviceDate,
		"ERXNumber":   erx,
		"MemberID":    "M1",
		"Net":         "150.00",
	}
}

func newTestService(st *fakeStore, deliverer messaging.Deliverer, mailer *fakeMailer, now time.Time) *Service {
	reader := cache.NewReader(st, cache.NewMemory(time.Minute), &cache.Options{BackoffUnit: time.Millisecond}, zerolog.Nop())
	auditor := audit.NewService(st, reader, zerolog.Nop())
	svc := NewService(reader, auditor, deliverer, mailer, zerolog.Nop())
	svc.now = func() time.Time { return now }
	return svc
}

func csvServiceDates(t *testing.T, raw []byte) []string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, model.DataColumns, records[0])

	var dates []string
	for _, rec := range records[1:] {
		dates = append(dates, rec[1])
	}
	return dates
}

func TestBuildReportPeriodBoundariesInclusive(t *testing.T) {
	st := &fakeStore{tables: map[string][]store.Row{
		model.DataTable: {
			dataRow("2025-01-01", "E1"),
			dataRow("2025-01-02", "E2"),
			dataRow("2025-01-03", "E3"),
			dataRow("2025-01-04", "E4"),
			dataRow("2025-01-05", "E5"),
		},
	}}
	svc := newTestService(st, &fakeDeliverer{}, &fakeMailer{}, time.Date(2025, 1, 5, 14, 30, 0, 0, time.UTC))

	rep, err := svc.BuildReport(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.RowCount)
	assert.Equal(t, []string{"2025-01-03", "2025-01-04", "2025-01-05"}, csvServiceDates(t, rep.CSV))
	assert.Equal(t, "rcm_intake_20250105_last3d.csv", rep.Filename)
}

func TestBuildReportSingleDay(t *testing.T) {
	st := &fakeStore{tables: map[string][]store.Row{
		model.DataTable: {
			dataRow("2025-01-04", "E4"),
			dataRow("2025-01-05", "E5"),
		},
	}}
	svc := newTestService(st, &fakeDeliverer{}, &fakeMailer{}, time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC))

	rep, err := svc.BuildReport(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-05"}, csvServiceDates(t, rep.CSV))
}

func TestBuildReportSkipsMalformedDates(t *testing.T) {
	st := &fakeStore{tables: map[string][]store.Row{
		model.DataTable: {
			dataRow("not-a-date", "E1"),
			dataRow("2025-01-05", "E2"),
		},
	}}
	svc := newTestService(st, &fakeDeliverer{}, &fakeMailer{}, time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC))

	rep, err := svc.BuildReport(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.RowCount)
}

func TestBuildReportEmptyPeriodStillProducesHeader(t *testing.T) {
	st := &fakeStore{tables: map[string][]store.Row{}}
	svc := newTestService(st, &fakeDeliverer{}, &fakeMailer{}, time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC))

	rep, err := svc.BuildReport(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.RowCount)
	assert.Empty(t, csvServiceDates(t, rep.CSV))
}

func TestBuildReportRejectsBadPeriod(t *testing.T) {
	svc := newTestService(&fakeStore{tables: map[string][]store.Row{}}, &fakeDeliverer{}, &fakeMailer{}, time.Now())

	_, err := svc.BuildReport(context.Background(), 0)
	require.Error(t, err)
	_, err = svc.BuildReport(context.Background(), -2)
	require.Error(t, err)
}

func TestSendRecordsAuditEntry(t *testing.T) {
	st := &fakeStore{tables: map[string][]store.Row{
		model.DataTable: {dataRow("2025-01-05", "E1")},
	}}
	deliverer := &fakeDeliverer{res: &messaging.SendResult{
		MediaRef:  "media-1",
		Documents: []messaging.StepResult{{Recipient: "9715550001", OK: true}},
	}}
	svc := newTestService(st, deliverer, &fakeMailer{}, time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC))

	rep, err := svc.BuildReport(context.Background(), 1)
	require.NoError(t, err)

	res, err := svc.Send(context.Background(), "admin", rep)
	require.NoError(t, err)
	assert.Equal(t, "media-1", res.MediaRef)
	require.Len(t, deliverer.sent, 1)
	assert.Equal(t, rep.Filename, deliverer.sent[0].Filename)
	assert.Equal(t, "text/csv", deliverer.sent[0].MIMEType)

	require.Len(t, st.tables[model.LogsTable], 1)
	assert.Equal(t, model.AuditActionSendReport, st.tables[model.LogsTable][0]["Action"])
}

func TestSendGatewayFailureIsDeliveryError(t *testing.T) {
	st := &fakeStore{tables: map[string][]store.Row{}}
	deliverer := &fakeDeliverer{err: errors.New("gateway down")}
	svc := newTestService(st, deliverer, &fakeMailer{}, time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC))

	rep, err := svc.BuildReport(context.Background(), 1)
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), "admin", rep)
	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "whatsapp", derr.Channel)
	assert.Empty(t, st.tables[model.LogsTable], "no audit entry for a failed delivery")
}

func TestSendPartialDocumentDeliveryFails(t *testing.T) {
	st := &fakeStore{tables: map[string][]store.Row{}}
	deliverer := &fakeDeliverer{res: &messaging.SendResult{
		MediaRef: "media-1",
		Documents: []messaging.StepResult{
			{Recipient: "9715550001", OK: true},
			{Recipient: "9715550002", OK: false, Error: "blocked"},
		},
	}}
	svc := newTestService(st, deliverer, &fakeMailer{}, time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC))

	rep, err := svc.BuildReport(context.Background(), 1)
	require.NoError(t, err)

	res, err := svc.Send(context.Background(), "admin", rep)
	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.NotNil(t, res, "partial results still surface per-recipient outcomes")
}

func TestSendEmailFallback(t *testing.T) {
	st := &fakeStore{tables: map[string][]store.Row{
		model.DataTable: {dataRow("2025-01-05", "E1")},
	}}
	mailer := &fakeMailer{}
	svc := newTestService(st, &fakeDeliverer{}, mailer, time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC))

	rep, err := svc.BuildReport(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, svc.SendEmail(context.Background(), "admin", rep))
	require.Len(t, mailer.subjects, 1)
	assert.Contains(t, mailer.subjects[0], "1 rows")
	require.Len(t, st.tables[model.LogsTable], 1)

	mailer.err = errors.New("smtp refused")
	err = svc.SendEmail(context.Background(), "admin", rep)
	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "email", derr.Channel)
}
