package database

import (
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPQError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    string
		status  int
		details map[string]string
		message string
	}{
		{
			name:    "negative lot quantity",
			err:     &pq.Error{Code: "23514", Constraint: "lots_quantity_non_negative"},
			code:    "VALIDATION_ERROR",
			status:  400,
			details: map[string]string{"quantity": "must not be negative"},
		},
		{
			name:    "discount out of range",
			err:     &pq.Error{Code: "23514", Constraint: "expiry_categories_discount_range"},
			code:    "VALIDATION_ERROR",
			status:  400,
			details: map[string]string{"discount_percentage": "must be between 0 and 100"},
		},
		{
			name:    "unknown check constraint",
			err:     &pq.Error{Code: "23514", Constraint: "lots_mystery"},
			code:    "BAD_REQUEST",
			status:  400,
			message: "data validation failed: lots_mystery",
		},
		{
			name:    "duplicate sort order",
			err:     &pq.Error{Code: "23505", Constraint: "expiry_categories_active_sort_order"},
			code:    "CONFLICT",
			status:  409,
			message: "an active expiry category already uses this sort order",
		},
		{
			name:    "unknown unique constraint",
			err:     &pq.Error{Code: "23505", Constraint: "something_unique"},
			code:    "CONFLICT",
			status:  409,
			message: "a record with these values already exists",
		},
		{
			name:    "wrapped foreign key",
			err:     fmt.Errorf("insert lot: %w", &pq.Error{Code: "23503"}),
			code:    "BAD_REQUEST",
			status:  400,
			message: "referenced record does not exist",
		},
		{
			name:    "not null",
			err:     &pq.Error{Code: "23502", Column: "expiry_date"},
			code:    "VALIDATION_ERROR",
			status:  400,
			details: map[string]string{"expiry_date": "must not be empty"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := MapPQError(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.status, appErr.StatusCode)
			if tt.details != nil {
				assert.Equal(t, tt.details, appErr.Details)
			}
			if tt.message != "" {
				assert.Equal(t, tt.message, appErr.Message)
			}
		})
	}
}

func TestMapPQError_Passthrough(t *testing.T) {
	assert.Nil(t, MapPQError(fmt.Errorf("connection reset")))
	assert.Nil(t, MapPQError(&pq.Error{Code: "40001"}))
}

func TestLockKey_Stable(t *testing.T) {
	assert.Equal(t, LockKey("expiry_categories"), LockKey("expiry_categories"))
	assert.NotEqual(t, LockKey("scope:a/regular"), LockKey("scope:a/expired"))
}
