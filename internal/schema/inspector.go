package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Inspector reads table and column metadata from the connected database. The
// introspection queries differ per engine, so the inspector is bound to the
// driver the pool was opened with.
type Inspector struct {
	db     *sql.DB
	driver string
}

// NewInspector creates an inspector for one of the supported drivers
// (sqlite3, pgx, duckdb).
func NewInspector(db *sql.DB, driver string) (*Inspector, error) {
	switch driver {
	case "sqlite3", "pgx", "duckdb":
		return &Inspector{db: db, driver: driver}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// Describe introspects every user table and returns the schema descriptor.
func (i *Inspector) Describe(ctx context.Context) (Descriptor, error) {
	switch i.driver {
	case "sqlite3":
		return i.describeSQLite(ctx)
	case "pgx":
		return i.describePostgres(ctx)
	default:
		return i.describeDuckDB(ctx)
	}
}

func (i *Inspector) describeSQLite(ctx context.Context) (Descriptor, error) {
	rows, err := i.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	tables, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("scan tables: %w", err)
	}

	descriptor := make(Descriptor, len(tables))
	for _, table := range tables {
		columnRows, err := i.db.QueryContext(ctx,
			`SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, table)
		if err != nil {
			return nil, fmt.Errorf("describe table %q: %w", table, err)
		}
		columns, err := scanSQLiteColumns(columnRows)
		if err != nil {
			return nil, fmt.Errorf("scan columns of %q: %w", table, err)
		}
		descriptor[table] = columns
	}
	return descriptor, nil
}

func scanSQLiteColumns(rows *sql.Rows) ([]Column, error) {
	defer func() { _ = rows.Close() }()
	var columns []Column
	for rows.Next() {
		var (
			column  Column
			notNull int
			pk      int
		)
		if err := rows.Scan(&column.Name, &column.Type, &notNull, &pk); err != nil {
			return nil, err
		}
		column.Nullable = notNull == 0 && pk == 0
		if pk > 0 {
			column.Key = KeyPrimary
		}
		columns = append(columns, column)
	}
	return columns, rows.Err()
}

func (i *Inspector) describePostgres(ctx context.Context) (Descriptor, error) {
	rows, err := i.db.QueryContext(ctx, `
SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	descriptor, err := scanInformationSchema(rows)
	if err != nil {
		return nil, fmt.Errorf("scan columns: %w", err)
	}

	keyRows, err := i.db.QueryContext(ctx, `
SELECT kcu.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = 'public'`)
	if err != nil {
		return nil, fmt.Errorf("list primary keys: %w", err)
	}
	if err := applyPrimaryKeys(descriptor, keyRows); err != nil {
		return nil, fmt.Errorf("scan primary keys: %w", err)
	}
	return descriptor, nil
}

func (i *Inspector) describeDuckDB(ctx context.Context) (Descriptor, error) {
	rows, err := i.db.QueryContext(ctx, `
SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = 'main'
ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	descriptor, err := scanInformationSchema(rows)
	if err != nil {
		return nil, fmt.Errorf("scan columns: %w", err)
	}
	return descriptor, nil
}

func scanInformationSchema(rows *sql.Rows) (Descriptor, error) {
	defer func() { _ = rows.Close() }()
	descriptor := make(Descriptor)
	for rows.Next() {
		var table, nullable string
		var column Column
		if err := rows.Scan(&table, &column.Name, &column.Type, &nullable); err != nil {
			return nil, err
		}
		column.Nullable = strings.EqualFold(nullable, "YES")
		descriptor[table] = append(descriptor[table], column)
	}
	return descriptor, rows.Err()
}

func applyPrimaryKeys(descriptor Descriptor, rows *sql.Rows) error {
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return err
		}
		columns := descriptor[table]
		for i := range columns {
			if columns[i].Name == column {
				columns[i].Key = KeyPrimary
			}
		}
	}
	return rows.Err()
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer func() { _ = rows.Close() }()
	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}
