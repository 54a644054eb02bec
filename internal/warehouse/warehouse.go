package warehouse

import "context"

// Result is a column-ordered tabular query result.
type Result struct {
	Columns []string
	Rows    [][]any
}

func (r Result) Empty() bool {
	return len(r.Rows) == 0
}

// Engine executes SQL against one tenant database.
type Engine interface {
	Execute(ctx context.Context, database, sqlText string) (Result, error)
	ReadTable(ctx context.Context, database, table string) (Result, error)
	UploadRows(ctx context.Context, database, table string, result Result) error
}
