// Package validator classifies SQL statements as read-only-safe and
// enforces row caps and identifier hygiene. Everything here is a pure
// function over the statement text; no I/O, no hidden state.
package validator

import (
	"fmt"
	"strings"

	"github.com/redbco/redb-sqlgateway/internal/database"
)

// DefaultMaxQueryLength is the statement length cap applied when the
// caller passes no explicit limit.
const DefaultMaxQueryLength = 50000

// Result is the outcome of validating one statement. Errors and
// Warnings are ordered by check; IsValid reflects only Errors.
type Result struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks a SQL statement against the layered ruleset. All
// checks run and every violation is collected; the result is valid iff
// no check produced an error, regardless of warnings.
func Validate(sql string, maxLength int) Result {
	if maxLength <= 0 {
		maxLength = DefaultMaxQueryLength
	}

	var result Result

	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		result.Errors = append(result.Errors, "Query is empty")
		return result
	}

	if len(sql) > maxLength {
		result.Errors = append(result.Errors, fmt.Sprintf("Query exceeds maximum length of %d characters", maxLength))
	}

	if !startsWithSafeVerb.MatchString(trimmed) {
		result.Errors = append(result.Errors, "Query must start with SELECT, WITH, or EXPLAIN")
	}

	for _, p := range keywordPatterns {
		if p.re.MatchString(trimmed) {
			result.Errors = append(result.Errors, fmt.Sprintf("Blocked keyword detected: %s", p.keyword))
		}
	}

	for _, p := range functionPatterns {
		if p.re.MatchString(trimmed) {
			result.Errors = append(result.Errors, fmt.Sprintf("Dangerous function detected: %s", p.function))
		}
	}

	// Semicolons are counted after string literals are stripped so
	// data like 'a;b' does not read as a statement separator.
	stripped := stripStringLiterals(trimmed)
	if err := checkSingleStatement(stripped); err != "" {
		result.Errors = append(result.Errors, err)
	}

	upper := strings.ToUpper(trimmed)
	if strings.Contains(upper, "$$") || strings.Contains(upper, "$BODY$") {
		result.Errors = append(result.Errors, "Procedural blocks are not allowed")
	}

	for _, p := range suspiciousPatterns {
		if p.re.MatchString(trimmed) {
			result.Errors = append(result.Errors, fmt.Sprintf("Suspicious pattern detected: %s", p.description))
		}
	}

	if !limitClause.MatchString(trimmed) && !topClause.MatchString(trimmed) {
		result.Warnings = append(result.Warnings, "Query has no LIMIT or TOP clause; results will be capped at the configured row limit")
	}
	if selectStar.MatchString(trimmed) {
		result.Warnings = append(result.Warnings, "Query uses SELECT *; prefer an explicit column list")
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// ValidateOrReject runs Validate and converts a failed result into a
// ValidationError carrying the full violation list.
func ValidateOrReject(sql string, maxLength int) (Result, error) {
	result := Validate(sql, maxLength)
	if !result.IsValid {
		return result, database.NewValidationError(result.Errors)
	}
	return result, nil
}

// stripStringLiterals blanks out single-quoted literals, including
// doubled-quote escapes, so later positional checks see only structure.
func stripStringLiterals(sql string) string {
	return stringLiteral.ReplaceAllString(sql, "''")
}

// checkSingleStatement returns an error message when the stripped
// statement holds more than one semicolon, or one that is not terminal.
func checkSingleStatement(stripped string) string {
	count := strings.Count(stripped, ";")
	if count == 0 {
		return ""
	}
	if count > 1 {
		return "Multiple statements are not allowed"
	}
	if !strings.HasSuffix(strings.TrimSpace(stripped), ";") {
		return "Multiple statements are not allowed"
	}
	return ""
}
