// Package intake orchestrates a single submission: validate, duplicate
// check, append, audit, cache invalidate. The pipeline is strictly
// ordered and each step either completes or surfaces an error naming
// the step that failed.
package intake

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ritetech/rcm-intake/internal/cache"
	"github.com/ritetech/rcm-intake/internal/model"
	"github.com/ritetech/rcm-intake/internal/service/audit"
	"github.com/ritetech/rcm-intake/internal/service/dedup"
	"github.com/ritetech/rcm-intake/internal/store"
	"github.com/ritetech/rcm-intake/pkg/metrics"
)

// ErrDuplicate is returned when the submission matches an existing row
// and the override flag is not set. The caller may resubmit with
// Override to force acceptance.
var ErrDuplicate = errors.New("duplicate submission")

// ValidationError names the fields a submission is missing or carrying
// malformed values in. Nothing is written when validation fails.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid submission: " + strings.Join(e.Fields, ", ")
}

// SubmitRequest is one clerk-entered intake form.
type SubmitRequest struct {
	ServiceDate string `json:"service_date" binding:"required"`
	PatientName string `json:"patient_name"`
	EmiratesID  string `json:"emirates_id"`
	Insurance   string `json:"insurance"`
	MemberID    string `json:"member_id"`
	PolicyNo    string `json:"policy_number"`
	ERXNumber   string `json:"erx_number"`
	Payer       string `json:"payer"`
	Clinician   string `json:"clinician"`
	NetAmount   string `json:"net_amount"`
	Remarks     string `json:"remarks"`
	Override    bool   `json:"override"`
}

// SubmitResult reports an accepted submission. AuditErr is non-nil when
// the row was committed but the audit append failed; the submission
// still counts as accepted.
type SubmitResult struct {
	Record   model.IntakeRecord `json:"record"`
	Override bool               `json:"override"`
	AuditErr error              `json:"-"`
}

type Options struct {
	// StrictEmiratesID rejects non-empty Emirates IDs that do not
	// match the 784-YYYY-NNNNNNN-C format.
	StrictEmiratesID bool
}

type Service struct {
	store    store.Store
	reader   *cache.Reader
	detector *dedup.Detector
	auditor  *audit.Service
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(st store.Store, reader *cache.Reader, detector *dedup.Detector, auditor *audit.Service, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		store:    st,
		reader:   reader,
		detector: detector,
		auditor:  auditor,
		opts:     opts,
		logger:   logger.With().Str("component", "intake").Logger(),
		now:      time.Now,
	}
}

var emiratesIDPattern = regexp.MustCompile(`^784-\d{4}-\d{7}-\d$`)

// Submit runs the full pipeline for one submission. Side effects are
// strictly ordered: the append must commit before the audit entry is
// written, and the audit entry before the cache invalidation.
func (s *Service) Submit(ctx context.Context, user string, req *SubmitRequest) (*SubmitResult, error) {
	started := s.now()

	net, serviceDate, err := s.validate(req)
	if err != nil {
		metrics.Submissions.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, err
	}

	// The duplicate check runs against the cached snapshot. History
	// that cannot be fetched or parsed never blocks a submission.
	rows, readErr := s.reader.Read(ctx, model.DataTable)
	if readErr != nil {
		s.logger.Warn().Err(readErr).Msg("duplicate check skipped, history unavailable")
	}
	if readErr == nil && s.detector.IsDuplicate(rows, req.ERXNumber, req.MemberID, req.NetAmount, serviceDate) {
		if !req.Override {
			metrics.Submissions.WithLabelValues(metrics.OutcomeDuplicate).Inc()
			return nil, fmt.Errorf("%w: erx %s on %s", ErrDuplicate, req.ERXNumber, req.ServiceDate)
		}
	}

	rec := model.IntakeRecord{
		Timestamp:   s.now(),
		ServiceDate: serviceDate,
		PatientName: strings.TrimSpace(req.PatientName),
		EmiratesID:  strings.TrimSpace(req.EmiratesID),
		Insurance:   strings.TrimSpace(req.Insurance),
		MemberID:    strings.TrimSpace(req.MemberID),
		PolicyNo:    strings.TrimSpace(req.PolicyNo),
		ERXNumber:   strings.TrimSpace(req.ERXNumber),
		Payer:       strings.TrimSpace(req.Payer),
		Clinician:   strings.TrimSpace(req.Clinician),
		Net:         net,
		Remarks:     req.Remarks,
		EnteredBy:   user,
	}

	if err := s.store.AppendRow(ctx, model.DataTable, model.DataColumns, rec.Values()); err != nil {
		metrics.Submissions.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("append step: %w", err)
	}

	action := model.AuditActionSubmit
	outcome := metrics.OutcomeAccepted
	if req.Override {
		action = model.AuditActionOverrideSubmit
		outcome = metrics.OutcomeOverride
	}
	detail := model.SubmitDetail{
		ServiceDate: serviceDate.Format(model.ServiceDateLayout),
		MemberID:    rec.MemberID,
		ERXNumber:   rec.ERXNumber,
		NetAmount:   rec.Net.StringFixed(2),
		Override:    req.Override,
	}
	auditErr := s.auditor.Log(ctx, user, action, detail)
	if auditErr != nil {
		// Row is committed; missing audit trail is reported, not fatal.
		s.logger.Error().Err(auditErr).Str("erx", rec.ERXNumber).Msg("audit step failed after commit")
	}

	s.reader.Invalidate(ctx, model.DataTable)

	metrics.Submissions.WithLabelValues(outcome).Inc()
	metrics.SubmissionDuration.Observe(s.now().Sub(started).Seconds())
	s.logger.Info().
		Str("erx", rec.ERXNumber).
		Str("member_id", rec.MemberID).
		Bool("override", req.Override).
		Msg("submission accepted")

	return &SubmitResult{Record: rec, Override: req.Override, AuditErr: auditErr}, nil
}

func (s *Service) validate(req *SubmitRequest) (decimal.Decimal, time.Time, error) {
	var missing []string
	if strings.TrimSpace(req.ERXNumber) == "" {
		missing = append(missing, "erx")
	}
	if strings.TrimSpace(req.MemberID) == "" {
		missing = append(missing, "member_id")
	}
	if strings.TrimSpace(req.NetAmount) == "" {
		missing = append(missing, "net_amount")
	}
	if len(missing) > 0 {
		return decimal.Decimal{}, time.Time{}, &ValidationError{Fields: missing}
	}

	net, err := decimal.NewFromString(strings.TrimSpace(req.NetAmount))
	if err != nil || net.IsNegative() {
		return decimal.Decimal{}, time.Time{}, &ValidationError{Fields: []string{"net_amount"}}
	}

	serviceDate, err := model.ParseServiceDate(strings.TrimSpace(req.ServiceDate))
	if err != nil {
		return decimal.Decimal{}, time.Time{}, &ValidationError{Fields: []string{"service_date"}}
	}

	if s.opts.StrictEmiratesID {
		if eid := strings.TrimSpace(req.EmiratesID); eid != "" && !emiratesIDPattern.MatchString(eid) {
			return decimal.Decimal{}, time.Time{}, &ValidationError{Fields: []string{"emirates_id"}}
		}
	}

	return net, serviceDate, nil
}
