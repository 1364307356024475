package model

import (
	"encoding/json"
	"time"
)

// LogsColumns is the fixed header order for the Logs table.
var LogsColumns = []string{"TS", "User", "Action", "DetailsJSON"}

const (
	// Action types
	AuditActionSubmit         = "submit"
	AuditActionOverrideSubmit = "override-submit"
	AuditActionSendReport     = "send-report"
	AuditActionReferenceEdit  = "reference-edit"
	AuditActionLogin          = "login"
)

// AuditEntry is one recorded state-changing action. Entries are
// append-only and never rewritten.
type AuditEntry struct {
	TS      time.Time       `json:"ts"`
	User    string          `json:"user"`
	Action  string          `json:"action"`
	Details json.RawMessage `json:"details"`
}

// SubmitDetail is the structured payload written for submit and
// override-submit actions.
type SubmitDetail struct {
	ServiceDate string `json:"serviceDate"`
	MemberID    string `json:"memberId"`
	ERXNumber   string `json:"erxNumber"`
	NetAmount   string `json:"netAmount"`
	Override    bool   `json:"override"`
}

// SendReportDetail is the structured payload written for send-report.
type SendReportDetail struct {
	RowCount   int `json:"rowCount"`
	PeriodDays int `json:"periodDays"`
}
