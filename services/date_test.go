package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
		wantErr  bool
	}{
		{
			name:     "Valid date",
			input:    "2026-01-27",
			expected: time.Date(2026, 1, 27, 0, 0, 0, 0, time.Local),
		},
		{
			name:     "Surrounding spaces",
			input:    " 2026-01-27 ",
			expected: time.Date(2026, 1, 27, 0, 0, 0, 0, time.Local),
		},
		{
			name:    "Invalid format",
			input:   "27-01-2026",
			wantErr: true,
		},
		{
			name:    "Invalid day",
			input:   "2026-01-32",
			wantErr: true,
		},
		{
			name:    "Empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate("date", tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
				assert.True(t, tt.expected.Equal(got))
			}
		})
	}
}

func TestParseOptionalDate(t *testing.T) {
	got, err := ParseOptionalDate("from", "")
	assert.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = ParseOptionalDate("from", "demain")
	assert.ErrorIs(t, err, ErrValidation)
}
