package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-sqlgateway/internal/database"
)

func TestValidateAcceptsReadOnlyStatements(t *testing.T) {
	queries := []string{
		"SELECT id, name FROM users",
		"select count(*) from orders where status = 'shipped'",
		"  WITH recent AS (SELECT * FROM events LIMIT 10) SELECT * FROM recent",
		"EXPLAIN SELECT id FROM users",
		"SELECT inserted_at FROM logs",
		"SELECT updated_by, deleted_flag FROM audit",
		"SELECT 'a;b' AS pair FROM t LIMIT 5",
	}

	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			result := Validate(q, 0)
			assert.True(t, result.IsValid, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestValidateBlockedKeywords(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		keyword string
	}{
		{"insert", "INSERT INTO users VALUES (1)", "INSERT"},
		{"update", "UPDATE users SET name = 'x'", "UPDATE"},
		{"delete", "DELETE FROM users", "DELETE"},
		{"drop", "DROP TABLE users", "DROP"},
		{"create", "CREATE TABLE t (id int)", "CREATE"},
		{"alter", "ALTER TABLE t ADD c int", "ALTER"},
		{"truncate", "TRUNCATE TABLE t", "TRUNCATE"},
		{"grant", "GRANT ALL ON t TO u", "GRANT"},
		{"embedded delete", "SELECT * FROM t; DELETE FROM t", "DELETE"},
		{"lowercase", "select * from t where exists (delete from u)", "DELETE"},
		{"vacuum", "SELECT 1; VACUUM", "VACUUM"},
		{"set", "SET search_path TO public", "SET"},
		{"call", "CALL do_things()", "CALL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.query, 0)
			assert.False(t, result.IsValid)
			assert.Contains(t, result.Errors, "Blocked keyword detected: "+tt.keyword)
		})
	}
}

func TestValidateWordBoundaries(t *testing.T) {
	// Substrings of blocked keywords must not trigger them.
	queries := []string{
		"SELECT inserted_at FROM logs",
		"SELECT created_on, updated_at FROM t",
		"SELECT dropped_calls FROM stats",
		"SELECT committed_total FROM ledger",
		"SELECT resetting FROM t2",
	}

	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			result := Validate(q, 0)
			assert.True(t, result.IsValid, "errors: %v", result.Errors)
		})
	}
}

func TestValidateMustStartWithSafeVerb(t *testing.T) {
	result := Validate("SHOW TABLES", 0)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "Query must start with SELECT, WITH, or EXPLAIN")
}

func TestValidateEmptyQuery(t *testing.T) {
	for _, q := range []string{"", "   ", "\n\t"} {
		result := Validate(q, 0)
		assert.False(t, result.IsValid)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "Query is empty", result.Errors[0])
	}
}

func TestValidateMaxLength(t *testing.T) {
	long := "SELECT " + strings.Repeat("a", 60000)
	result := Validate(long, 50000)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "Query exceeds maximum length of 50000 characters")

	ok := Validate("SELECT 1", 50000)
	assert.True(t, ok.IsValid)
}

func TestValidateDangerousFunctions(t *testing.T) {
	tests := []struct {
		query    string
		function string
	}{
		{"SELECT pg_sleep(10)", "pg_sleep"},
		{"SELECT pg_read_file('/etc/passwd')", "pg_read_file"},
		{"SELECT * FROM openrowset('x','y','z')", "openrowset"},
		{"SELECT 1 WHERE xp_cmdshell ('dir') IS NULL", "xp_cmdshell"},
	}

	for _, tt := range tests {
		t.Run(tt.function, func(t *testing.T) {
			result := Validate(tt.query, 0)
			assert.False(t, result.IsValid)
			assert.Contains(t, result.Errors, "Dangerous function detected: "+tt.function)
		})
	}
}

func TestValidateMultipleStatements(t *testing.T) {
	tests := []struct {
		name  string
		query string
		valid bool
	}{
		{"trailing semicolon ok", "SELECT 1;", true},
		{"two statements", "SELECT 1; SELECT 2", false},
		{"three statements", "SELECT 1; SELECT 2; SELECT 3", false},
		{"semicolon inside literal ok", "SELECT * FROM t WHERE v = 'a;b' LIMIT 1", true},
		{"literal plus real separator", "SELECT 'a;b'; SELECT 2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.query, 0)
			if tt.valid {
				assert.True(t, result.IsValid, "errors: %v", result.Errors)
			} else {
				assert.False(t, result.IsValid)
				assert.Contains(t, result.Errors, "Multiple statements are not allowed")
			}
		})
	}
}

func TestValidateProceduralBlocks(t *testing.T) {
	for _, q := range []string{
		"SELECT $$ SELECT 1 $$",
		"SELECT $BODY$ x $BODY$",
	} {
		result := Validate(q, 0)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "Procedural blocks are not allowed")
	}
}

func TestValidateSuspiciousPatterns(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		description string
	}{
		{"or true single quotes", "SELECT * FROM t WHERE name = '' OR '1'='1'", "' OR '1'='1"},
		{"or one equals one", "SELECT * FROM t WHERE id = '' OR 1=1", "' OR 1=1"},
		{"trailing line comment", "SELECT * FROM t -- sneaky", "-- comment"},
		{"block comment", "SELECT /* hidden */ * FROM t", "/* */ comment"},
		{"union all select", "SELECT a FROM t UNION ALL SELECT b FROM u", "UNION ALL SELECT"},
		{"into outfile", "SELECT * FROM t INTO OUTFILE '/tmp/x'", "INTO OUTFILE"},
		{"load_file", "SELECT LOAD_FILE('/etc/passwd')", "LOAD_FILE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.query, 0)
			assert.False(t, result.IsValid)
			assert.Contains(t, result.Errors, "Suspicious pattern detected: "+tt.description)
		})
	}
}

func TestValidateAccumulatesAllViolations(t *testing.T) {
	// One statement breaking several rules reports each of them.
	result := Validate("DELETE FROM users; DROP TABLE users --", 0)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "Query must start with SELECT, WITH, or EXPLAIN")
	assert.Contains(t, result.Errors, "Blocked keyword detected: DELETE")
	assert.Contains(t, result.Errors, "Blocked keyword detected: DROP")
	assert.Contains(t, result.Errors, "Multiple statements are not allowed")
	assert.Contains(t, result.Errors, "Suspicious pattern detected: -- comment")
}

func TestValidateWarnings(t *testing.T) {
	t.Run("missing limit", func(t *testing.T) {
		result := Validate("SELECT id FROM users", 0)
		assert.True(t, result.IsValid)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "no LIMIT or TOP clause")
	})

	t.Run("select star", func(t *testing.T) {
		result := Validate("SELECT * FROM users LIMIT 10", 0)
		assert.True(t, result.IsValid)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "SELECT *")
	})

	t.Run("both warnings", func(t *testing.T) {
		result := Validate("SELECT * FROM users", 0)
		assert.True(t, result.IsValid)
		assert.Len(t, result.Warnings, 2)
	})

	t.Run("top counts as a cap", func(t *testing.T) {
		result := Validate("SELECT TOP 5 id FROM users", 0)
		assert.True(t, result.IsValid)
		assert.Empty(t, result.Warnings)
	})
}

func TestValidateIsPure(t *testing.T) {
	query := "SELECT * FROM t WHERE v = 'x'; DELETE FROM t"
	first := Validate(query, 0)
	second := Validate(query, 0)
	assert.Equal(t, first, second)
}

func TestValidateOrReject(t *testing.T) {
	t.Run("valid passes through", func(t *testing.T) {
		result, err := ValidateOrReject("SELECT 1", 0)
		require.NoError(t, err)
		assert.True(t, result.IsValid)
	})

	t.Run("invalid yields ValidationError", func(t *testing.T) {
		result, err := ValidateOrReject("DELETE FROM t", 0)
		require.Error(t, err)
		assert.False(t, result.IsValid)
		assert.True(t, errors.Is(err, database.ErrQueryRejected))

		var vErr *database.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Contains(t, vErr.Violations, "Blocked keyword detected: DELETE")
	})
}
