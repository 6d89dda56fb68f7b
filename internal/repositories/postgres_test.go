package repositories

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% \_pure\\`, escapeLike(`100% _pure\`))
	assert.Equal(t, "plain", escapeLike("plain"))
}

func TestHasCode(t *testing.T) {
	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: codeUniqueViolation})

	assert.True(t, hasCode(wrapped, codeUniqueViolation))
	assert.False(t, hasCode(wrapped, codeInvalidTextRepr))
	assert.False(t, hasCode(errors.New("plain"), codeUniqueViolation))
}
