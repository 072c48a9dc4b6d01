package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/bashostudio/basho-go/internal/repository"
)

func TestWrapDBErr(t *testing.T) {
	assert.NoError(t, wrapDBErr("op", nil))

	err := wrapDBErr("op", pgx.ErrNoRows)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = wrapDBErr("op", &pgconn.PgError{Code: "23505"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	plain := errors.New("boom")
	err = wrapDBErr("op", plain)
	assert.ErrorIs(t, err, plain)
	assert.Contains(t, err.Error(), "op")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRetryable(errors.New("other")))
}
