package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTableName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Data", "data"},
		{"Logs", "logs"},
		{"MS:Insurance", "ms_insurance"},
		{"  Daily Report  ", "daily_report"},
		{"a--b__c", "a_b_c"},
		{"__edge__", "edge"},
		{"2024 Claims", "2024_claims"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizeTableName(c.in), "input %q", c.in)
	}
}

func TestIsTransient(t *testing.T) {
	base := errors.New("boom")

	assert.True(t, IsTransient(NewTransient("read", "data", base)))
	assert.False(t, IsTransient(NewPermanent("read", "data", base)))
	assert.False(t, IsTransient(base))
	assert.False(t, IsTransient(nil))

	// Classification survives wrapping.
	wrapped := fmt.Errorf("read step: %w", NewTransient("read", "data", base))
	assert.True(t, IsTransient(wrapped))
}

func TestStoreErrorUnwrap(t *testing.T) {
	base := errors.New("connection refused")
	err := NewTransient("append", "logs", base)

	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "transient")
	assert.Contains(t, NewPermanent("append", "logs", base).Error(), "permanent")
}
