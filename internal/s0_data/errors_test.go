package s0_data

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/wonny/equindex/internal/contracts"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTransient bool
		wantPersist   bool
		wantNotFound  bool
	}{
		{"connection exception", &pgconn.PgError{Code: "08006"}, true, false, false},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true, false, false},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true, false, false},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false, true, false},
		{"numeric overflow", &pgconn.PgError{Code: "22003"}, false, true, false},
		{"deadline", context.DeadlineExceeded, true, false, false},
		{"no rows", pgx.ErrNoRows, false, false, true},
		{"canceled", context.Canceled, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyError("op", tt.err)
			assert.Equal(t, tt.wantTransient, contracts.IsTransient(err))
			assert.Equal(t, tt.wantPersist, contracts.IsPersistence(err))
			assert.Equal(t, tt.wantNotFound, errors.Is(err, ErrNotFound))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, ClassifyError("op", nil))
}
