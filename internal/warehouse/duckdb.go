package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
)

// DuckDB runs queries against one duckdb file per tenant database.
type DuckDB struct {
	Dir          string
	QueryTimeout time.Duration

	// open is swappable for tests.
	open func(database string) (*sql.DB, error)
}

func NewDuckDB(dir string, queryTimeout time.Duration) (*DuckDB, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("warehouse dir is required")
	}
	engine := &DuckDB{Dir: dir, QueryTimeout: queryTimeout}
	engine.open = engine.openFile
	return engine, nil
}

func (d *DuckDB) openFile(database string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", filepath.Join(d.Dir, sanitizeFileComponent(database)+".duckdb"))
	if err != nil {
		return nil, fmt.Errorf("open duckdb database %q: %w", database, err)
	}
	return db, nil
}

var useDatabasePattern = regexp.MustCompile(`(?is)^\s*USE\s+DATABASE\s+"?([^";\s]+)"?\s*;\s*`)

// splitUseDatabase peels a leading USE DATABASE statement off generated
// SQL. Generators trained on warehouse dialects emit it; the database
// is a file here, so the statement selects the file instead.
func splitUseDatabase(sqlText string) (string, string) {
	match := useDatabasePattern.FindStringSubmatch(sqlText)
	if match == nil {
		return "", sqlText
	}
	return match[1], sqlText[len(match[0]):]
}

func (d *DuckDB) Execute(ctx context.Context, database, sqlText string) (Result, error) {
	override, remainder := splitUseDatabase(sqlText)
	if override != "" {
		database = override
	}
	sqlText = stripTrailingSemicolons(remainder)
	if sqlText == "" {
		return Result{}, fmt.Errorf("sql is required")
	}
	if database == "" {
		return Result{}, fmt.Errorf("database is required")
	}

	db, err := d.open(database)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = db.Close() }()

	if d.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.QueryTimeout)
		defer cancel()
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectRows(rows)
}

func (d *DuckDB) ReadTable(ctx context.Context, database, table string) (Result, error) {
	if table == "" {
		return Result{}, fmt.Errorf("table is required")
	}
	return d.Execute(ctx, database, fmt.Sprintf("SELECT * FROM %s", quoteIdent(table)))
}

func (d *DuckDB) UploadRows(ctx context.Context, database, table string, result Result) error {
	if table == "" {
		return fmt.Errorf("table is required")
	}
	if len(result.Columns) == 0 {
		return fmt.Errorf("at least one column is required")
	}
	if database == "" {
		return fmt.Errorf("database is required")
	}

	db, err := d.open(database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	columnDefs := make([]string, 0, len(result.Columns))
	for i, column := range result.Columns {
		columnDefs = append(columnDefs, quoteIdent(column)+" "+columnType(result, i))
	}
	createSQL := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), strings.Join(columnDefs, ", "))
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table %q: %w", table, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upload transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := make([]string, len(result.Columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(table), strings.Join(placeholders, ", "))
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range result.Rows {
		if len(row) != len(result.Columns) {
			return fmt.Errorf("row width %d does not match %d columns", len(row), len(result.Columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert row into %q: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upload: %w", err)
	}
	return nil
}

func collectRows(rows *sql.Rows) (Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	return Result{Columns: columns, Rows: resultRows}, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func columnType(result Result, index int) string {
	for _, row := range result.Rows {
		if index >= len(row) || row[index] == nil {
			continue
		}
		switch row[index].(type) {
		case int, int32, int64:
			return "BIGINT"
		case float32, float64:
			return "DOUBLE"
		case bool:
			return "BOOLEAN"
		case time.Time:
			return "TIMESTAMP"
		default:
			return "VARCHAR"
		}
	}
	return "VARCHAR"
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "database"
	}
	return value
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
