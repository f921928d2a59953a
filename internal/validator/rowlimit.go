package validator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// EnforceRowLimit rewrites a pre-validated query so it returns at most
// maxRows rows: an existing LIMIT or TOP value is clamped down to
// min(n, maxRows) in place, otherwise a LIMIT clause is appended after
// stripping any trailing semicolon. The second return reports whether
// the statement was rewritten. Run this only on statements that already
// passed validation.
func EnforceRowLimit(sql string, maxRows int) (string, bool) {
	if rewritten, found, applied := clampFirstMatch(sql, maxRows); found {
		return rewritten, applied
	}

	trimmed := strings.TrimSpace(sql)
	trimmed = strings.TrimSuffix(trimmed, ";")
	trimmed = strings.TrimRight(trimmed, " \t\r\n")

	return fmt.Sprintf("%s LIMIT %d", trimmed, maxRows), true
}

// ClampRowLimit clamps an existing LIMIT or TOP value down to maxRows
// but never appends a clause. Used for engines whose dialect has no
// trailing LIMIT syntax; the adapter's row cap bounds the result there.
func ClampRowLimit(sql string, maxRows int) (string, bool) {
	rewritten, _, applied := clampFirstMatch(sql, maxRows)
	return rewritten, applied
}

// clampFirstMatch finds the first LIMIT n or TOP n clause and clamps n
// in place when it exceeds maxRows. Returns the (possibly rewritten)
// statement, whether a clause was found, and whether it was rewritten.
func clampFirstMatch(sql string, maxRows int) (string, bool, bool) {
	for _, re := range []*regexp.Regexp{limitClause, topClause} {
		idx := re.FindStringSubmatchIndex(sql)
		if idx == nil {
			continue
		}

		n, err := strconv.Atoi(sql[idx[2]:idx[3]])
		if err != nil {
			continue
		}
		if n <= maxRows {
			return sql, true, false
		}

		rewritten := sql[:idx[2]] + strconv.Itoa(maxRows) + sql[idx[3]:]
		return rewritten, true, true
	}

	return sql, false, false
}
