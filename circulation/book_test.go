package circulation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/libraryops/circulation-go/circulation"
)

func Test_BookFields_NormalizedQuantity(t *testing.T) {
	tests := []struct {
		name     string
		quantity *int
		expected int
	}{
		{
			name:     "absent_quantity_coerces_to_zero",
			quantity: nil,
			expected: 0,
		},
		{
			name:     "negative_quantity_coerces_to_zero",
			quantity: intPtr(-3),
			expected: 0,
		},
		{
			name:     "zero_quantity_is_kept",
			quantity: intPtr(0),
			expected: 0,
		},
		{
			name:     "positive_quantity_is_kept",
			quantity: intPtr(7),
			expected: 7,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fields := circulation.BookFields{Quantity: tc.quantity}

			assert.Equal(t, tc.expected, fields.NormalizedQuantity())
		})
	}
}

func Test_BookFields_ValidateForUpdate(t *testing.T) {
	tests := []struct {
		name        string
		quantity    *int
		expectedErr error
	}{
		{
			name:        "absent_quantity_is_rejected",
			quantity:    nil,
			expectedErr: circulation.ErrInvalidQuantity,
		},
		{
			name:        "negative_quantity_is_rejected",
			quantity:    intPtr(-1),
			expectedErr: circulation.ErrInvalidQuantity,
		},
		{
			name:     "zero_quantity_is_accepted",
			quantity: intPtr(0),
		},
		{
			name:     "positive_quantity_is_accepted",
			quantity: intPtr(12),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fields := circulation.BookFields{Quantity: tc.quantity}

			err := fields.ValidateForUpdate()

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				assert.ErrorIs(t, err, circulation.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func intPtr(value int) *int {
	return &value
}
