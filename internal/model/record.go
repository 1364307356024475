package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sheet/table titles as they appear in the workbook. Backends normalize
// these to whatever naming the store requires.
const (
	DataTable      = "Data"
	LogsTable      = "Logs"
	ReferenceTable = "Reference"
	UsersTable     = "Users"
)

// DataColumns is the fixed header order for the Data table. Appends and
// CSV exports must use exactly this order.
var DataColumns = []string{
	"Timestamp",
	"ServiceDate",
	"PatientName",
	"EmiratesID",
	"Insurance",
	"MemberID",
	"PolicyNumber",
	"ERXNumber",
	"Payer",
	"Clinician",
	"Net",
	"Remarks",
	"EnteredBy",
}

// ServiceDateLayout is the canonical service-date format. Legacy rows may
// still carry ServiceDateLayoutLegacy.
const (
	ServiceDateLayout       = "2006-01-02"
	ServiceDateLayoutLegacy = "02/01/2006"
)

// IntakeRecord is one patient-service submission. Records are write-once:
// they are appended to the Data table and never mutated or deleted.
type IntakeRecord struct {
	Timestamp   time.Time       `json:"timestamp"`
	ServiceDate time.Time       `json:"service_date"`
	PatientName string          `json:"patient_name"`
	EmiratesID  string          `json:"emirates_id"`
	Insurance   string          `json:"insurance"`
	MemberID    string          `json:"member_id"`
	PolicyNo    string          `json:"policy_number"`
	ERXNumber   string          `json:"erx_number"`
	Payer       string          `json:"payer"`
	Clinician   string          `json:"clinician"`
	Net         decimal.Decimal `json:"net"`
	Remarks     string          `json:"remarks"`
	EnteredBy   string          `json:"entered_by"`
}

// Values renders the record in DataColumns order.
func (r *IntakeRecord) Values() []string {
	return []string{
		r.Timestamp.Format(time.RFC3339),
		r.ServiceDate.Format(ServiceDateLayout),
		r.PatientName,
		r.EmiratesID,
		r.Insurance,
		r.MemberID,
		r.PolicyNo,
		r.ERXNumber,
		r.Payer,
		r.Clinician,
		r.Net.StringFixed(2),
		r.Remarks,
		r.EnteredBy,
	}
}

// ParseServiceDate accepts the canonical layout and the legacy
// day-first layout still present in migrated rows.
func ParseServiceDate(s string) (time.Time, error) {
	if t, err := time.Parse(ServiceDateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(ServiceDateLayoutLegacy, s)
}
