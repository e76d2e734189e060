package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "gatepass/pkg/domain-errors"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0501234567", "380501234567"},
		{"380501234567", "380501234567"},
		{"+38 (050) 123-45-67", "380501234567"},
		{"501234567", "380501234567"},
		{"12345", "12345"},
		{"", ""},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizePhone(tc.in))
		})
	}

	t.Run("is idempotent", func(t *testing.T) {
		for _, tc := range cases {
			once := NormalizePhone(tc.in)
			assert.Equal(t, once, NormalizePhone(once), "input %q", tc.in)
		}
	})

	t.Run("national and international forms agree", func(t *testing.T) {
		assert.Equal(t, NormalizePhone("0501234567"), NormalizePhone("380501234567"))
	})
}

func TestLookupKeys(t *testing.T) {
	assert.Equal(t, []string{"0501234567", "380501234567"}, LookupKeys("0501234567"))
	assert.Equal(t, []string{"380501234567"}, LookupKeys("380501234567"))
	assert.Nil(t, LookupKeys("  "))
}

func TestNewResident(t *testing.T) {
	now := time.Now()

	t.Run("normalizes fields", func(t *testing.T) {
		r, err := NewResident(42, "  Olena Petrenko ", " 12a ", "050 123 45 67", now)
		require.NoError(t, err)
		assert.Equal(t, "Olena Petrenko", r.FullName)
		assert.Equal(t, "12A", r.Flat)
		assert.Equal(t, "380501234567", r.Phone)
	})

	t.Run("rejects missing identity", func(t *testing.T) {
		_, err := NewResident(0, "Name", "1", "0501234567", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects blank flat", func(t *testing.T) {
		_, err := NewResident(42, "Name", "   ", "0501234567", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}
