package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redbco/redb-sqlgateway/internal/database"
)

// ListTables returns tables and views in the given schema.
func (c *Connection) ListTables(ctx context.Context, schema string) ([]database.TableInfo, error) {
	if schema == "" {
		schema = DefaultSchema
	}

	query := `
		SELECT table_schema, table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name`

	rows, err := c.pool.Query(ctx, query, schema)
	if err != nil {
		return nil, c.wrapErr("list tables", err)
	}
	defer rows.Close()

	var tables []database.TableInfo
	for rows.Next() {
		var schemaName, tableName, tableType string
		if err := rows.Scan(&schemaName, &tableName, &tableType); err != nil {
			return nil, c.wrapErr("list tables", err)
		}

		kind := "table"
		if tableType == "VIEW" {
			kind = "view"
		}

		tables = append(tables, database.TableInfo{
			Schema: schemaName,
			Name:   tableName,
			Type:   kind,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, c.wrapErr("list tables", err)
	}

	return tables, nil
}

// DescribeTable assembles the column, key, index and constraint details
// for one table.
func (c *Connection) DescribeTable(ctx context.Context, schema, table string) (*database.TableSchema, error) {
	if schema == "" {
		schema = DefaultSchema
	}

	columns, err := c.describeColumns(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, c.wrapErr("describe table", fmt.Errorf("table %s.%s not found", schema, table))
	}

	result := &database.TableSchema{
		Schema:  schema,
		Table:   table,
		Columns: columns,
	}
	for _, col := range columns {
		if col.IsPrimaryKey {
			result.PrimaryKeyColumns = append(result.PrimaryKeyColumns, col.Name)
		}
	}

	if result.Indexes, err = c.describeIndexes(ctx, schema, table); err != nil {
		return nil, err
	}
	if result.ForeignKeys, err = c.describeForeignKeys(ctx, schema, table); err != nil {
		return nil, err
	}
	if result.Constraints, err = c.describeConstraints(ctx, schema, table); err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Connection) describeColumns(ctx context.Context, schema, table string) ([]database.ColumnInfo, error) {
	query := `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.column_default,
			c.character_maximum_length,
			c.ordinal_position,
			CASE WHEN pk.column_name IS NOT NULL THEN true ELSE false END AS is_primary_key
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT kcu.column_name
			FROM information_schema.key_column_usage kcu
			JOIN information_schema.table_constraints tc
				ON kcu.constraint_name = tc.constraint_name
				AND kcu.table_schema = tc.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
			  AND tc.table_schema = $1
			  AND tc.table_name = $2
		) pk ON c.column_name = pk.column_name
		WHERE c.table_schema = $1
		  AND c.table_name = $2
		ORDER BY c.ordinal_position`

	rows, err := c.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, c.wrapErr("describe table", err)
	}
	defer rows.Close()

	var columns []database.ColumnInfo
	for rows.Next() {
		var (
			col        database.ColumnInfo
			isNullable string
			colDefault sql.NullString
			maxLength  sql.NullInt64
		)
		if err := rows.Scan(&col.Name, &col.DataType, &isNullable, &colDefault,
			&maxLength, &col.OrdinalPosition, &col.IsPrimaryKey); err != nil {
			return nil, c.wrapErr("describe table", err)
		}

		col.IsNullable = isNullable == "YES"
		if colDefault.Valid {
			col.ColumnDefault = &colDefault.String
		}
		if maxLength.Valid {
			length := int(maxLength.Int64)
			col.MaxLength = &length
		}

		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, c.wrapErr("describe table", err)
	}

	return columns, nil
}

func (c *Connection) describeIndexes(ctx context.Context, schema, table string) ([]database.IndexInfo, error) {
	query := `
		SELECT
			i.relname AS index_name,
			a.attname AS column_name,
			ix.indisunique,
			ix.indisprimary
		FROM pg_class t
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE n.nspname = $1
		  AND t.relname = $2
		ORDER BY i.relname, array_position(ix.indkey, a.attnum)`

	rows, err := c.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, c.wrapErr("describe table", err)
	}
	defer rows.Close()

	indexMap := make(map[string]*database.IndexInfo)
	var order []string
	for rows.Next() {
		var indexName, columnName string
		var isUnique, isPrimary bool
		if err := rows.Scan(&indexName, &columnName, &isUnique, &isPrimary); err != nil {
			return nil, c.wrapErr("describe table", err)
		}

		idx, exists := indexMap[indexName]
		if !exists {
			idx = &database.IndexInfo{
				Name:      indexName,
				IsUnique:  isUnique,
				IsPrimary: isPrimary,
			}
			indexMap[indexName] = idx
			order = append(order, indexName)
		}
		idx.Columns = append(idx.Columns, columnName)
	}
	if err := rows.Err(); err != nil {
		return nil, c.wrapErr("describe table", err)
	}

	indexes := make([]database.IndexInfo, 0, len(order))
	for _, name := range order {
		indexes = append(indexes, *indexMap[name])
	}

	return indexes, nil
}

func (c *Connection) describeForeignKeys(ctx context.Context, schema, table string) ([]database.ForeignKeyInfo, error) {
	query := `
		SELECT
			con.conname,
			src.attname,
			ref_ns.nspname,
			ref_cl.relname,
			ref.attname,
			con.confupdtype::text,
			con.confdeltype::text
		FROM pg_constraint con
		JOIN pg_class cl ON cl.oid = con.conrelid
		JOIN pg_namespace ns ON ns.oid = cl.relnamespace
		JOIN pg_class ref_cl ON ref_cl.oid = con.confrelid
		JOIN pg_namespace ref_ns ON ref_ns.oid = ref_cl.relnamespace
		JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS cols(src_attnum, ref_attnum, ord) ON true
		JOIN pg_attribute src ON src.attrelid = con.conrelid AND src.attnum = cols.src_attnum
		JOIN pg_attribute ref ON ref.attrelid = con.confrelid AND ref.attnum = cols.ref_attnum
		WHERE con.contype = 'f'
		  AND ns.nspname = $1
		  AND cl.relname = $2
		ORDER BY con.conname, cols.ord`

	rows, err := c.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, c.wrapErr("describe table", err)
	}
	defer rows.Close()

	fkMap := make(map[string]*database.ForeignKeyInfo)
	var order []string
	for rows.Next() {
		var name, srcColumn, refSchema, refTable, refColumn string
		var updateAction, deleteAction string
		if err := rows.Scan(&name, &srcColumn, &refSchema, &refTable, &refColumn,
			&updateAction, &deleteAction); err != nil {
			return nil, c.wrapErr("describe table", err)
		}

		fk, exists := fkMap[name]
		if !exists {
			fk = &database.ForeignKeyInfo{
				Name:             name,
				ReferencedSchema: refSchema,
				ReferencedTable:  refTable,
				OnUpdate:         referentialAction(updateAction),
				OnDelete:         referentialAction(deleteAction),
			}
			fkMap[name] = fk
			order = append(order, name)
		}
		fk.Columns = append(fk.Columns, srcColumn)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
	}
	if err := rows.Err(); err != nil {
		return nil, c.wrapErr("describe table", err)
	}

	fks := make([]database.ForeignKeyInfo, 0, len(order))
	for _, name := range order {
		fks = append(fks, *fkMap[name])
	}

	return fks, nil
}

// referentialAction maps pg_constraint confupdtype/confdeltype codes.
func referentialAction(code string) string {
	switch code {
	case "a":
		return "NO ACTION"
	case "r":
		return "RESTRICT"
	case "c":
		return "CASCADE"
	case "n":
		return "SET NULL"
	case "d":
		return "SET DEFAULT"
	default:
		return code
	}
}

func (c *Connection) describeConstraints(ctx context.Context, schema, table string) ([]database.ConstraintInfo, error) {
	query := `
		SELECT
			con.conname,
			con.contype::text,
			pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class cl ON cl.oid = con.conrelid
		JOIN pg_namespace ns ON ns.oid = cl.relnamespace
		WHERE ns.nspname = $1
		  AND cl.relname = $2
		ORDER BY con.conname`

	rows, err := c.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, c.wrapErr("describe table", err)
	}
	defer rows.Close()

	var constraints []database.ConstraintInfo
	for rows.Next() {
		var name, conType, definition string
		if err := rows.Scan(&name, &conType, &definition); err != nil {
			return nil, c.wrapErr("describe table", err)
		}

		constraints = append(constraints, database.ConstraintInfo{
			Name:       name,
			Type:       constraintTypeName(conType),
			Definition: definition,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, c.wrapErr("describe table", err)
	}

	return constraints, nil
}

// constraintTypeName maps pg_constraint contype codes.
func constraintTypeName(code string) string {
	switch code {
	case "p":
		return "PRIMARY KEY"
	case "f":
		return "FOREIGN KEY"
	case "u":
		return "UNIQUE"
	case "c":
		return "CHECK"
	case "x":
		return "EXCLUDE"
	default:
		return code
	}
}
