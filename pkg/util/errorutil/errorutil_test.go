package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("transition: %w", NewAlreadyTerminal("ISSUE-20260105-0001", "confirmed"))

	assert.True(t, HasCode(err, CodeAlreadyTerminal))
	assert.False(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(errors.New("plain"), CodeAlreadyTerminal))
}

func TestToDomainErrorMapsNoRows(t *testing.T) {
	de := ToDomainError(pgx.ErrNoRows)
	require.NotNil(t, de)
	assert.Equal(t, CodeNotFound, de.Code)
	assert.Equal(t, http.StatusNotFound, de.HTTPStatus)
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	cause := errors.New("connection reset")
	de := ToDomainError(cause)
	require.NotNil(t, de)
	assert.Equal(t, CodeInternal, de.Code)
	assert.ErrorIs(t, de, cause)
}

func TestOwnershipConflictCarriesOwner(t *testing.T) {
	err := NewOwnershipConflict("ISSUE-20260105-0001", "42", "Dana")
	de := ToDomainError(err)
	assert.Equal(t, "42", de.Details["owner_id"])
	assert.Contains(t, de.Message, "Dana")
}

func TestMapErrorNil(t *testing.T) {
	assert.NoError(t, MapError(nil))
}
