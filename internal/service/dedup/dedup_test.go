package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ritetech/rcm-intake/internal/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsDuplicateExactMatch(t *testing.T) {
	existing := []store.Row{
		{"ServiceDate": "2025-01-05", "ERXNumber": "E100", "MemberID": "M1", "Net": "150.00"},
	}
	d := New()

	assert.True(t, d.IsDuplicate(existing, "E100", "M1", "150.00", day(2025, 1, 5)))
}

func TestIsDuplicateAmountDecimalEqual(t *testing.T) {
	existing := []store.Row{
		{"ServiceDate": "2025-01-05", "ERXNumber": "E100", "MemberID": "M1", "Net": "150.00"},
	}
	d := New()

	// "150" and "150.00" are the same amount.
	assert.True(t, d.IsDuplicate(existing, "E100", "M1", "150", day(2025, 1, 5)))
	assert.False(t, d.IsDuplicate(existing, "E100", "M1", "150.01", day(2025, 1, 5)))
}

func TestIsDuplicateCaseAndWhitespaceInsensitive(t *testing.T) {
	existing := []store.Row{
		{"ServiceDate": "2025-01-05", "ERXNumber": "e100 ", "MemberID": " m1", "Net": "150"},
	}
	d := New()

	assert.True(t, d.IsDuplicate(existing, " E100", "M1 ", "150.000", day(2025, 1, 5)))
}

func TestIsDuplicateDifferentDayOrKey(t *testing.T) {
	existing := []store.Row{
		{"ServiceDate": "2025-01-04", "ERXNumber": "E100", "MemberID": "M1", "Net": "150"},
		{"ServiceDate": "2025-01-05", "ERXNumber": "E101", "MemberID": "M1", "Net": "150"},
		{"ServiceDate": "2025-01-05", "ERXNumber": "E100", "MemberID": "M2", "Net": "150"},
	}
	d := New()

	assert.False(t, d.IsDuplicate(existing, "E100", "M1", "150", day(2025, 1, 5)))
}

func TestIsDuplicateLegacyDateLayout(t *testing.T) {
	existing := []store.Row{
		{"ServiceDate": "05/01/2025", "ERXNumber": "E100", "MemberID": "M1", "Net": "150"},
	}
	d := New()

	assert.True(t, d.IsDuplicate(existing, "E100", "M1", "150", day(2025, 1, 5)))
}

func TestIsDuplicateFailsOpenOnMalformedRows(t *testing.T) {
	existing := []store.Row{
		{"ServiceDate": "not-a-date", "ERXNumber": "E100", "MemberID": "M1", "Net": "150"},
		{"ServiceDate": "2025-01-05", "ERXNumber": "E100", "MemberID": "M1", "Net": "abc"},
		{},
	}
	d := New()

	// Rows that cannot be parsed never block a submission.
	assert.False(t, d.IsDuplicate(existing, "E100", "M1", "150", day(2025, 1, 5)))
	assert.False(t, d.IsDuplicate(existing, "E100", "M1", "not-a-number", day(2025, 1, 5)))
}

func TestIsDuplicateEmptyHistory(t *testing.T) {
	d := New()
	assert.False(t, d.IsDuplicate(nil, "E100", "M1", "150", day(2025, 1, 5)))
}
