package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/redbco/redb-sqlgateway/internal/database"
)

// ListTables returns tables and views in the given schema.
func (c *Connection) ListTables(ctx context.Context, schema string) ([]database.TableInfo, error) {
	if schema == "" {
		schema = DefaultSchema
	}

	query := `
		SELECT s.name, o.name, RTRIM(o.type)
		FROM sys.objects o
		JOIN sys.schemas s ON o.schema_id = s.schema_id
		WHERE o.type IN ('U', 'V')
		  AND s.name = @p1
		ORDER BY o.name`

	rows, err := c.db.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, c.wrapErr("list tables", err)
	}
	defer rows.Close()

	var tables []database.TableInfo
	for rows.Next() {
		var schemaName, tableName, objectType string
		if err := rows.Scan(&schemaName, &tableName, &objectType); err != nil {
			return nil, c.wrapErr("list tables", err)
		}

		kind := "table"
		if objectType == "V" {
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
// for one table or view.
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
	// nchar/nvarchar report byte counts; halve them to characters.
	query := `
		SELECT
			c.name,
			ty.name,
			c.is_nullable,
			dc.definition,
			CASE WHEN ty.name IN ('nchar', 'nvarchar') AND c.max_length > 0
				THEN c.max_length / 2
				ELSE c.max_length
			END,
			c.column_id,
			CAST(CASE WHEN pk.column_id IS NOT NULL THEN 1 ELSE 0 END AS bit)
		FROM sys.columns c
		JOIN sys.objects o ON c.object_id = o.object_id AND o.type IN ('U', 'V')
		JOIN sys.schemas s ON o.schema_id = s.schema_id
		JOIN sys.types ty ON c.user_type_id = ty.user_type_id
		LEFT JOIN sys.default_constraints dc ON c.default_object_id = dc.object_id
		LEFT JOIN (
			SELECT ic.object_id, ic.column_id
			FROM sys.index_columns ic
			JOIN sys.indexes i ON ic.object_id = i.object_id AND ic.index_id = i.index_id
			WHERE i.is_primary_key = 1
		) pk ON c.object_id = pk.object_id AND c.column_id = pk.column_id
		WHERE s.name = @p1
		  AND o.name = @p2
		ORDER BY c.column_id`

	rows, err := c.db.QueryContext(ctx, query, schema, table)
	if err != nil {
		return nil, c.wrapErr("describe table", err)
	}
	defer rows.Close()

	var columns []database.ColumnInfo
	for rows.Next() {
		var (
			col        database.ColumnInfo
			colDefault sql.NullString
			maxLength  sql.NullInt64
		)
		if err := rows.Scan(&col.Name, &col.DataType, &col.IsNullable, &colDefault,
			&maxLength, &col.OrdinalPosition, &col.IsPrimaryKey); err != nil {
			return nil, c.wrapErr("describe table", err)
		}

		if colDefault.Valid {
			col.ColumnDefault = &colDefault.String
		}
		// max_length -1 marks (max) types
		if maxLength.Valid && maxLength.Int64 > 0 {
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
		SELECT i.name, col.name, i.is_unique, i.is_primary_key
		FROM sys.indexes i
		JOIN sys.objects o ON i.object_id = o.object_id
		JOIN sys.schemas s ON o.schema_id = s.schema_id
		JOIN sys.index_columns ic ON i.object_id = ic.object_id AND i.index_id = ic.index_id
		JOIN sys.columns col ON ic.object_id = col.object_id AND ic.column_id = col.column_id
		WHERE s.name = @p1
		  AND o.name = @p2
		  AND i.name IS NOT NULL
		ORDER BY i.name, ic.key_ordinal`

	rows, err := c.db.QueryContext(ctx, query, schema, table)
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
			fk.name,
			pc.name,
			rs.name,
			rt.name,
			rc.name,
			fk.update_referential_action_desc,
			fk.delete_referential_action_desc
		FROM sys.foreign_keys fk
		JOIN sys.objects o ON fk.parent_object_id = o.object_id
		JOIN sys.schemas s ON o.schema_id = s.schema_id
		JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
		JOIN sys.columns pc ON fkc.parent_object_id = pc.object_id AND fkc.parent_column_id = pc.column_id
		JOIN sys.objects rt ON fk.referenced_object_id = rt.object_id
		JOIN sys.schemas rs ON rt.schema_id = rs.schema_id
		JOIN sys.columns rc ON fkc.referenced_object_id = rc.object_id AND fkc.referenced_column_id = rc.column_id
		WHERE s.name = @p1
		  AND o.name = @p2
		ORDER BY fk.name, fkc.constraint_column_id`

	rows, err := c.db.QueryContext(ctx, query, schema, table)
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
				OnUpdate:         strings.ReplaceAll(updateAction, "_", " "),
				OnDelete:         strings.ReplaceAll(deleteAction, "_", " "),
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

func (c *Connection) describeConstraints(ctx context.Context, schema, table string) ([]database.ConstraintInfo, error) {
	query := `
		SELECT cc.name, 'CHECK', cc.definition
		FROM sys.check_constraints cc
		JOIN sys.objects o ON cc.parent_object_id = o.object_id
		JOIN sys.schemas s ON o.schema_id = s.schema_id
		WHERE s.name = @p1 AND o.name = @p2
		UNION ALL
		SELECT kc.name, CASE kc.type WHEN 'PK' THEN 'PRIMARY KEY' ELSE 'UNIQUE' END, ''
		FROM sys.key_constraints kc
		JOIN sys.objects o ON kc.parent_object_id = o.object_id
		JOIN sys.schemas s ON o.schema_id = s.schema_id
		WHERE s.name = @p1 AND o.name = @p2
		UNION ALL
		SELECT fk.name, 'FOREIGN KEY', ''
		FROM sys.foreign_keys fk
		JOIN sys.objects o ON fk.parent_object_id = o.object_id
		JOIN sys.schemas s ON o.schema_id = s.schema_id
		WHERE s.name = @p1 AND o.name = @p2
		ORDER BY 1`

	rows, err := c.db.QueryContext(ctx, query, schema, table)
	if err != nil {
		return nil, c.wrapErr("describe table", err)
	}
	defer rows.Close()

	var constraints []database.ConstraintInfo
	for rows.Next() {
		var info database.ConstraintInfo
		if err := rows.Scan(&info.Name, &info.Type, &info.Definition); err != nil {
			return nil, c.wrapErr("describe table", err)
		}
		constraints = append(constraints, info)
	}
	if err := rows.Err(); err != nil {
		return nil, c.wrapErr("describe table", err)
	}

	return constraints, nil
}
