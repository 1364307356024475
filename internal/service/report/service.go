// Package report builds the recent-rows CSV export and hands it to the
// delivery collaborators.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ritetech/rcm-intake/internal/cache"
	"github.com/ritetech/rcm-intake/internal/email"
	"github.com/ritetech/rcm-intake/internal/messaging"
	"github.com/ritetech/rcm-intake/internal/model"
	"github.com/ritetech/rcm-intake/internal/service/audit"
	"github.com/ritetech/rcm-intake/pkg/metrics"
)

// DeliveryError marks a built report that could not be delivered. The
// CSV itself is intact; export-to-file remains available.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("report delivery via %s failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Report is one built export. An empty RowCount is a legitimate,
// reportable outcome; the caller decides whether to suppress sending.
type Report struct {
	PeriodDays int
	RowCount   int
	Filename   string
	CSV        []byte
}

type Service struct {
	reader    *cache.Reader
	auditor   *audit.Service
	deliverer messaging.Deliverer
	mailer    email.Sender
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(reader *cache.Reader, auditor *audit.Service, deliverer messaging.Deliverer, mailer email.Sender, logger zerolog.Logger) *Service {
	return &Service{
		reader:    reader,
		auditor:   auditor,
		deliverer: deliverer,
		mailer:    mailer,
		logger:    logger.With().Str("component", "report").Logger(),
		now:       time.Now,
	}
}

// BuildReport reads the current rows and keeps those whose service date
// lies in [today-(periodDays-1), today] inclusive, serialized as CSV in
// the fixed Data column order with a header row.
func (s *Service) BuildReport(ctx context.Context, periodDays int) (*Report, error) {
	if periodDays < 1 {
		return nil, fmt.Errorf("period must be at least 1 day, got %d", periodDays)
	}

	rows, err := s.reader.Read(ctx, model.DataTable)
	if err != nil {
		return nil, fmt.Errorf("read step: %w", err)
	}

	today := dateOnly(s.now())
	start := today.AddDate(0, 0, -(periodDays - 1))

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(model.DataColumns); err != nil {
		return nil, err
	}

	count := 0
	for _, row := range rows {
		sd, err := model.ParseServiceDate(row["ServiceDate"])
		if err != nil {
			continue
		}
		sd = dateOnly(sd)
		if sd.Before(start) || sd.After(today) {
			continue
		}
		rec := make([]string, len(model.DataColumns))
		for i, col := range model.DataColumns {
			rec[i] = row[col]
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
		count++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return &Report{
		PeriodDays: periodDays,
		RowCount:   count,
		Filename:   fmt.Sprintf("rcm_intake_%s_last%dd.csv", today.Format("20060102"), periodDays),
		CSV:        buf.Bytes(),
	}, nil
}

// Send delivers the report over the messaging gateway. The document
// send is fatal; the text note is best effort. On successful delivery a
// send-report audit entry is written.
func (s *Service) Send(ctx context.Context, user string, rep *Report) (*messaging.SendResult, error) {
	doc := messaging.Document{
		Filename: rep.Filename,
		MIMEType: "text/csv",
		Data:     rep.CSV,
	}
	note := fmt.Sprintf("RCM intake export: %d rows, last %d days", rep.RowCount, rep.PeriodDays)

	res, err := s.deliverer.Send(ctx, doc, note)
	if err != nil {
		metrics.ReportsSent.WithLabelValues("whatsapp", "error").Inc()
		return nil, &DeliveryError{Channel: "whatsapp", Err: err}
	}
	if !res.DocumentsDelivered() {
		metrics.ReportsSent.WithLabelValues("whatsapp", "error").Inc()
		return res, &DeliveryError{Channel: "whatsapp", Err: fmt.Errorf("document not delivered to all recipients")}
	}
	metrics.ReportsSent.WithLabelValues("whatsapp", "ok").Inc()

	if err := s.auditor.Log(ctx, user, model.AuditActionSendReport, model.SendReportDetail{
		RowCount:   rep.RowCount,
		PeriodDays: rep.PeriodDays,
	}); err != nil {
		// Delivery already happened; report the missing trail only.
		s.logger.Error().Err(err).Msg("send-report audit failed")
	}
	return res, nil
}

// SendEmail is the fallback channel for when the messaging gateway is
// unreachable.
func (s *Service) SendEmail(ctx context.Context, user string, rep *Report) error {
	subject := fmt.Sprintf("RCM intake export (%d rows, last %d days)", rep.RowCount, rep.PeriodDays)
	body := "Attached: " + rep.Filename
	if err := s.mailer.SendReport(ctx, subject, body, rep.Filename, rep.CSV); err != nil {
		metrics.ReportsSent.WithLabelValues("email", "error").Inc()
		return &DeliveryError{Channel: "email", Err: err}
	}
	metrics.ReportsSent.WithLabelValues("email", "ok").Inc()

	if err := s.auditor.Log(ctx, user, model.AuditActionSendReport, model.SendReportDetail{
		RowCount:   rep.RowCount,
		PeriodDays: rep.PeriodDays,
	}); err != nil {
		s.logger.Error().Err(err).Msg("send-report audit failed")
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
