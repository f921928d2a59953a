package validator

import (
	"fmt"
	"regexp"
)

// blockedKeywords is the fixed blocklist of statement keywords that make
// a query unsafe. Matching is word-boundary, never substring, so names
// like "inserted_at" do not trip the INSERT rule.
var blockedKeywords = []string{
	// data modification
	"INSERT", "UPDATE", "DELETE", "TRUNCATE", "MERGE", "UPSERT", "REPLACE", "COPY",
	// schema modification
	"CREATE", "ALTER", "DROP", "RENAME", "COMMENT",
	// permissions
	"GRANT", "REVOKE",
	// transaction control
	"BEGIN", "COMMIT", "ROLLBACK", "SAVEPOINT",
	// locking
	"LOCK", "UNLOCK",
	// maintenance
	"VACUUM", "ANALYZE", "REINDEX", "CLUSTER", "CHECKPOINT",
	// configuration
	"SET", "RESET",
	// messaging
	"LISTEN", "NOTIFY", "UNLISTEN",
	// procedural
	"DO", "CALL", "EXECUTE", "DECLARE",
}

// dangerousFunctions is the blocklist of engine functions with file,
// network or timing side effects.
var dangerousFunctions = []string{
	"pg_read_file",
	"pg_read_binary_file",
	"pg_ls_dir",
	"pg_stat_file",
	"pg_sleep",
	"pg_terminate_backend",
	"pg_cancel_backend",
	"pg_reload_conf",
	"lo_import",
	"lo_export",
	"dblink",
	"dblink_exec",
	"xp_cmdshell",
	"xp_regread",
	"xp_regwrite",
	"xp_dirtree",
	"xp_fileexist",
	"sp_executesql",
	"sp_execute",
	"openrowset",
	"opendatasource",
	"openquery",
	"openxml",
}

type keywordPattern struct {
	keyword string
	re      *regexp.Regexp
}

type functionPattern struct {
	function string
	re       *regexp.Regexp
}

// suspiciousPattern pairs an injection heuristic with its display name.
// Comment markers are rejected unconditionally, including benign ones.
type suspiciousPattern struct {
	description string
	re          *regexp.Regexp
}

var (
	keywordPatterns  []keywordPattern
	functionPatterns []functionPattern

	suspiciousPatterns = []suspiciousPattern{
		{"' OR '1'='1", regexp.MustCompile(`(?i)'\s*OR\s*'1'\s*=\s*'1`)},
		{"' OR 1=1", regexp.MustCompile(`(?i)'\s*OR\s+1\s*=\s*1`)},
		{"'; DROP", regexp.MustCompile(`(?i)'\s*;\s*DROP\b`)},
		{"-- comment", regexp.MustCompile(`--`)},
		{"/* */ comment", regexp.MustCompile(`/\*`)},
		{"UNION ALL SELECT", regexp.MustCompile(`(?i)\bUNION\s+ALL\s+SELECT\b`)},
		{"INTO OUTFILE", regexp.MustCompile(`(?i)\bINTO\s+OUTFILE\b`)},
		{"LOAD_FILE", regexp.MustCompile(`(?i)\bLOAD_FILE\s*\(`)},
	}

	startsWithSafeVerb = regexp.MustCompile(`(?i)^\s*(SELECT|WITH|EXPLAIN)\b`)

	// '...' literals with doubled-quote escapes
	stringLiteral = regexp.MustCompile(`'(?:[^']|'')*'`)

	limitClause = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)`)
	topClause   = regexp.MustCompile(`(?i)\bTOP\s*\(?\s*(\d+)\s*\)?`)

	selectStar = regexp.MustCompile(`(?i)\bSELECT\s+\*`)

	identifierChars = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)
)

func init() {
	keywordPatterns = make([]keywordPattern, 0, len(blockedKeywords))
	for _, kw := range blockedKeywords {
		re := regexp.MustCompile(fmt.Sprintf(`(?i)(?:^|[^a-zA-Z0-9_])%s(?:[^a-zA-Z0-9_]|$)`, kw))
		keywordPatterns = append(keywordPatterns, keywordPattern{keyword: kw, re: re})
	}

	functionPatterns = make([]functionPattern, 0, len(dangerousFunctions))
	for _, fn := range dangerousFunctions {
		re := regexp.MustCompile(fmt.Sprintf(`(?i)(?:^|[^a-zA-Z0-9_])%s\s*\(`, fn))
		functionPatterns = append(functionPatterns, functionPattern{function: fn, re: re})
	}
}
