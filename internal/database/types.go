package database

// TableInfo describes one table or view returned by ListTables.
type TableInfo struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

// ColumnInfo describes a single column of a table.
type ColumnInfo struct {
	Name            string  `json:"name"`
	DataType        string  `json:"dataType"`
	IsNullable      bool    `json:"isNullable"`
	IsPrimaryKey    bool    `json:"isPrimaryKey"`
	ColumnDefault   *string `json:"columnDefault,omitempty"`
	MaxLength       *int    `json:"maxLength,omitempty"`
	OrdinalPosition int     `json:"ordinalPosition"`
}

// IndexInfo describes an index on a table.
type IndexInfo struct {
	Name      string   `json:"name"`
	Columns   []string `json:"columns"`
	IsUnique  bool     `json:"isUnique"`
	IsPrimary bool     `json:"isPrimary"`
}

// ForeignKeyInfo describes a foreign key constraint.
type ForeignKeyInfo struct {
	Name              string   `json:"name"`
	Columns           []string `json:"columns"`
	ReferencedSchema  string   `json:"referencedSchema,omitempty"`
	ReferencedTable   string   `json:"referencedTable"`
	ReferencedColumns []string `json:"referencedColumns"`
	OnUpdate          string   `json:"onUpdate,omitempty"`
	OnDelete          string   `json:"onDelete,omitempty"`
}

// ConstraintInfo describes a non-FK constraint (check, unique, default).
type ConstraintInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Definition string `json:"definition,omitempty"`
}

// TableSchema is the full snapshot assembled by DescribeTable.
type TableSchema struct {
	Schema            string           `json:"schema"`
	Table             string           `json:"table"`
	Columns           []ColumnInfo     `json:"columns"`
	PrimaryKeyColumns []string         `json:"primaryKeyColumns"`
	Indexes           []IndexInfo      `json:"indexes"`
	ForeignKeys       []ForeignKeyInfo `json:"foreignKeys"`
	Constraints       []ConstraintInfo `json:"constraints"`
}

// QueryResult is the outcome of one ExecuteQuery call. Rows preserve
// result-set column order through the Columns slice.
type QueryResult struct {
	Columns         []string                 `json:"columns"`
	Rows            []map[string]interface{} `json:"rows"`
	RowCount        int                      `json:"rowCount"`
	ExecutionTimeMs int64                    `json:"executionTimeMs"`
	Truncated       bool                     `json:"truncated"`
}

// QueryPlan is an engine execution plan in the engine's native plan
// document format. Plan holds a decoded JSON document for Postgres and
// a plan text or XML string otherwise.
type QueryPlan struct {
	Format string      `json:"format"` // "json" (postgres), "xml" (mssql) or "text"
	Plan   interface{} `json:"plan"`
}
