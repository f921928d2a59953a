package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-sqlgateway/internal/database"
)

func TestSanitizeIdentifier(t *testing.T) {
	t.Run("accepts safe identifiers", func(t *testing.T) {
		for _, id := range []string{
			"users",
			"public.users",
			"Order_Items",
			"dbo.Orders2024",
			"a.b.c",
			"_internal",
		} {
			got, err := SanitizeIdentifier(id)
			require.NoError(t, err, "identifier %q", id)
			assert.Equal(t, id, got)
		}
	})

	t.Run("rejects unsafe identifiers", func(t *testing.T) {
		for _, id := range []string{
			"users; DROP TABLE users",
			"users--",
			`"users"`,
			"[users]",
			"users name",
			"users'",
			"sch$ma.users",
			"täble",
		} {
			got, err := SanitizeIdentifier(id)
			require.Error(t, err, "identifier %q", id)
			assert.Empty(t, got)
			assert.True(t, errors.Is(err, database.ErrInvalidIdentifier))
		}
	})

	t.Run("rejects empty identifier", func(t *testing.T) {
		_, err := SanitizeIdentifier("")
		require.Error(t, err)
		assert.True(t, errors.Is(err, database.ErrInvalidIdentifier))
	})
}
