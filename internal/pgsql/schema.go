package pgsql

import (
	"context"
	"fmt"
)

// CrawledColumn is one column of a CrawledTable.
type CrawledColumn struct {
	Name         string
	DataType     string
	Nullable     bool
	IsPrimaryKey bool
	Default      *string
}

// CrawledTable is one table discovered by CrawlSchema. internal/store
// converts these into its own persisted Table/Column shape; pgsql stays
// independent of the storage layer.
type CrawledTable struct {
	Schema           string
	Name             string
	RowCountEstimate *int64
	Columns          []CrawledColumn
}

// CrawlSchema queries information_schema for every user table (and its
// columns) visible to the connection. A minimal, swappable crawler per
// spec §6's invocation surface, which names store_schema_snapshot /
// latest_schema_snapshot but leaves the crawl itself unspecified.
func (c *Conn) CrawlSchema(ctx context.Context) ([]CrawledTable, error) {
	rows, err := c.pc.Query(ctx, `
SELECT t.table_schema, t.table_name, GREATEST(c.reltuples, 0)::bigint
FROM information_schema.tables t
JOIN pg_catalog.pg_namespace n ON n.nspname = t.table_schema
JOIN pg_catalog.pg_class c ON c.relnamespace = n.oid AND c.relname = t.table_name
WHERE t.table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY t.table_schema, t.table_name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}

	type tableKey struct {
		schema, name string
		estimate     int64
	}
	var keys []tableKey
	for rows.Next() {
		var k tableKey
		if err := rows.Scan(&k.schema, &k.name, &k.estimate); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning table row: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	tables := make([]CrawledTable, 0, len(keys))
	for _, k := range keys {
		cols, err := c.crawlColumns(ctx, k.schema, k.name)
		if err != nil {
			return nil, fmt.Errorf("crawling columns for %s.%s: %w", k.schema, k.name, err)
		}
		estimate := k.estimate
		tables = append(tables, CrawledTable{
			Schema:           k.schema,
			Name:             k.name,
			RowCountEstimate: &estimate,
			Columns:          cols,
		})
	}
	return tables, nil
}

func (c *Conn) crawlColumns(ctx context.Context, schema, table string) ([]CrawledColumn, error) {
	rows, err := c.pc.Query(ctx, `
SELECT
	cols.column_name,
	cols.data_type,
	cols.is_nullable = 'YES',
	cols.column_default,
	EXISTS (
		SELECT 1
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.table_constraints tc
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND kcu.table_schema = cols.table_schema
			AND kcu.table_name = cols.table_name
			AND kcu.column_name = cols.column_name
	) AS is_primary_key
FROM information_schema.columns cols
WHERE cols.table_schema = $1 AND cols.table_name = $2
ORDER BY cols.ordinal_position`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []CrawledColumn
	for rows.Next() {
		var col CrawledColumn
		var def *string
		if err := rows.Scan(&col.Name, &col.DataType, &col.Nullable, &def, &col.IsPrimaryKey); err != nil {
			return nil, err
		}
		col.Default = def
		cols = append(cols, col)
	}
	return cols, rows.Err()
}
