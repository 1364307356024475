package model

// ReferenceColumns is the fixed header order for the Reference table.
var ReferenceColumns = []string{"Kind", "Code", "Label"}

const (
	ReferenceKindPayer     = "payer"
	ReferenceKindInsurer   = "insurer"
	ReferenceKindClinician = "clinician"
)

// ReferenceOption is one dropdown source value. Read-only from the
// intake path; admins maintain the set through upserts keyed by Code.
type ReferenceOption struct {
	Kind  string `json:"kind"`
	Code  string `json:"code"`
	Label string `json:"label"`
}

// Fallback option sets used when the Reference table is empty or
// unreachable, mirroring the seed lists shipped with the workbook.
var (
	DefaultPayers = []ReferenceOption{
		{Kind: ReferenceKindPayer, Code: "DAMAN", Label: "Daman"},
		{Kind: ReferenceKindPayer, Code: "THIQA", Label: "Thiqa"},
		{Kind: ReferenceKindPayer, Code: "NEXTCARE", Label: "Nextcare"},
		{Kind: ReferenceKindPayer, Code: "NAS", Label: "NAS"},
		{Kind: ReferenceKindPayer, Code: "CASH", Label: "Cash"},
	}
	DefaultInsurers = []ReferenceOption{
		{Kind: ReferenceKindInsurer, Code: "ADNIC", Label: "ADNIC"},
		{Kind: ReferenceKindInsurer, Code: "AXA", Label: "AXA"},
		{Kind: ReferenceKindInsurer, Code: "METLIFE", Label: "MetLife"},
		{Kind: ReferenceKindInsurer, Code: "OMAN", Label: "Oman Insurance"},
		{Kind: ReferenceKindInsurer, Code: "ORIENT", Label: "Orient"},
	}
	DefaultClinicians []ReferenceOption
)

// DefaultOptions returns the hardcoded fallback set for a kind.
func DefaultOptions(kind string) []ReferenceOption {
	switch kind {
	case ReferenceKindPayer:
		return DefaultPayers
	case ReferenceKindInsurer:
		return DefaultInsurers
	case ReferenceKindClinician:
		return DefaultClinicians
	}
	return nil
}
