package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestConstraintViolations(t *testing.T) {
	fk := fmt.Errorf("insert line: %w", &pgconn.PgError{Code: "23503", ConstraintName: "journal_lines_account_fk"})
	require.True(t, IsForeignKeyViolation(fk, "journal_lines_account_fk"))
	require.True(t, IsForeignKeyViolation(fk, ""))
	require.False(t, IsForeignKeyViolation(fk, "journal_lines_journal_fk"))
	require.False(t, IsUniqueViolation(fk))

	unique := &pgconn.PgError{Code: "23505"}
	require.True(t, IsUniqueViolation(unique))
	require.False(t, IsForeignKeyViolation(unique, ""))
	require.False(t, IsForeignKeyViolation(errors.New("plain"), ""))
}
