// Package dedup decides whether a candidate submission is a probable
// re-entry of a row already in the Data table. The check is exact-match
// on the business key (ERX number, member ID, net amount, service date);
// there is no fuzzy matching and no look-back beyond the same calendar
// service date.
package dedup

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ritetech/rcm-intake/internal/model"
	"github.com/ritetech/rcm-intake/internal/store"
)

// Detector compares candidates against the current row snapshot.
type Detector struct{}

func New() *Detector { return &Detector{} }

// IsDuplicate reports whether some existing row matches the candidate on
// ERX number, member ID, net amount, and service date. Rows that cannot
// be parsed are skipped: history that is malformed must never block a
// submission, so the check fails open.
func (d *Detector) IsDuplicate(existing []store.Row, erx, memberID, net string, serviceDate time.Time) bool {
	candNet, netOK := parseAmount(net)
	erx = canon(erx)
	memberID = canon(memberID)
	day := serviceDate.Format(model.ServiceDateLayout)

	for _, row := range existing {
		rowDate, err := model.ParseServiceDate(strings.TrimSpace(row["ServiceDate"]))
		if err != nil || rowDate.Format(model.ServiceDateLayout) != day {
			continue
		}
		if canon(row["ERXNumber"]) != erx || canon(row["MemberID"]) != memberID {
			continue
		}
		rowNet, ok := parseAmount(row["Net"])
		if !ok || !netOK {
			// Amounts that do not parse cannot be compared; skip
			// rather than reject.
			continue
		}
		if rowNet.Equal(candNet) {
			return true
		}
	}
	return false
}

// parseAmount reads a net amount as a decimal so that "150" and
// "150.00" compare equal.
func parseAmount(s string) (decimal.Decimal, bool) {
	dec, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return dec, true
}

func canon(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
