package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnforceRowLimit(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		maxRows  int
		want     string
		modified bool
	}{
		{
			name:     "clamps oversized limit",
			query:    "SELECT * FROM t LIMIT 100",
			maxRows:  10,
			want:     "SELECT * FROM t LIMIT 10",
			modified: true,
		},
		{
			name:     "keeps limit under cap",
			query:    "SELECT * FROM t LIMIT 5",
			maxRows:  10,
			want:     "SELECT * FROM t LIMIT 5",
			modified: false,
		},
		{
			name:     "keeps limit equal to cap",
			query:    "SELECT * FROM t LIMIT 10",
			maxRows:  10,
			want:     "SELECT * FROM t LIMIT 10",
			modified: false,
		},
		{
			name:     "appends missing limit",
			query:    "SELECT * FROM t",
			maxRows:  10,
			want:     "SELECT * FROM t LIMIT 10",
			modified: true,
		},
		{
			name:     "strips trailing semicolon before appending",
			query:    "SELECT * FROM t;",
			maxRows:  25,
			want:     "SELECT * FROM t LIMIT 25",
			modified: true,
		},
		{
			name:     "strips trailing whitespace before appending",
			query:    "SELECT * FROM t ;  ",
			maxRows:  25,
			want:     "SELECT * FROM t LIMIT 25",
			modified: true,
		},
		{
			name:     "lowercase limit",
			query:    "select id from t limit 500",
			maxRows:  100,
			want:     "select id from t limit 100",
			modified: true,
		},
		{
			name:     "clamps oversized top",
			query:    "SELECT TOP 100 id FROM t",
			maxRows:  10,
			want:     "SELECT TOP 10 id FROM t",
			modified: true,
		},
		{
			name:     "clamps parenthesized top",
			query:    "SELECT TOP (100) id FROM t",
			maxRows:  10,
			want:     "SELECT TOP (10) id FROM t",
			modified: true,
		},
		{
			name:     "keeps top under cap",
			query:    "SELECT TOP 5 id FROM t",
			maxRows:  10,
			want:     "SELECT TOP 5 id FROM t",
			modified: false,
		},
		{
			name:     "only first clause considered",
			query:    "WITH a AS (SELECT 1 LIMIT 200) SELECT * FROM a LIMIT 300",
			maxRows:  50,
			want:     "WITH a AS (SELECT 1 LIMIT 50) SELECT * FROM a LIMIT 300",
			modified: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, modified := EnforceRowLimit(tt.query, tt.maxRows)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.modified, modified)
		})
	}
}

func TestEnforceRowLimitIdempotent(t *testing.T) {
	queries := []string{
		"SELECT * FROM t",
		"SELECT * FROM t LIMIT 9999",
		"SELECT TOP (9999) id FROM t",
		"SELECT * FROM t;",
	}

	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			once, _ := EnforceRowLimit(q, 10)
			twice, modified := EnforceRowLimit(once, 10)
			assert.Equal(t, once, twice)
			assert.False(t, modified)
		})
	}
}

func TestClampRowLimit(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		maxRows  int
		want     string
		modified bool
	}{
		{
			name:     "clamps oversized top",
			query:    "SELECT TOP 500 id FROM t",
			maxRows:  100,
			want:     "SELECT TOP 100 id FROM t",
			modified: true,
		},
		{
			name:     "leaves uncapped query alone",
			query:    "SELECT id FROM t",
			maxRows:  100,
			want:     "SELECT id FROM t",
			modified: false,
		},
		{
			name:     "clamps limit on engines that support it",
			query:    "SELECT id FROM t LIMIT 500",
			maxRows:  100,
			want:     "SELECT id FROM t LIMIT 100",
			modified: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, modified := ClampRowLimit(tt.query, tt.maxRows)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.modified, modified)
		})
	}
}
