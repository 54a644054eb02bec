package ask

import (
	"context"
	"strings"
	"testing"

	"github.com/spendlens/spendlens/internal/vectorstore"
)

func TestRenderDDLDropsIncompleteTables(t *testing.T) {
	tables := map[string]*tableSpec{
		"SPEND": {
			comment:    "spend facts",
			columns:    []SchemaColumn{{Name: "ID", DataType: "BIGINT", PrimaryKey: true}},
			hasTable:   true,
			hasColumns: true,
		},
		"ORPHAN": {hasTable: true},
	}

	ddl := renderDDL(tables, nil, nil)
	if !strings.Contains(ddl, "CREATE TABLE SPEND (") {
		t.Fatalf("ddl = %q", ddl)
	}
	if strings.Contains(ddl, "ORPHAN") {
		t.Fatalf("incomplete table rendered: %q", ddl)
	}
	if !strings.Contains(ddl, "ID BIGINT PRIMARY KEY") {
		t.Fatalf("ddl = %q", ddl)
	}
	if !strings.Contains(ddl, "-- spend facts") {
		t.Fatalf("ddl = %q", ddl)
	}
}

func TestRenderDDLIsDeterministic(t *testing.T) {
	tables := map[string]*tableSpec{}
	for _, name := range []string{"ZULU", "ALPHA", "MIKE"} {
		tables[name] = &tableSpec{
			columns:    []SchemaColumn{{Name: "ID", DataType: "BIGINT"}},
			hasTable:   true,
			hasColumns: true,
		}
	}

	first := renderDDL(tables, []string{"CREATE VIEW V AS SELECT 1;"}, nil)
	for i := 0; i < 10; i++ {
		if got := renderDDL(tables, []string{"CREATE VIEW V AS SELECT 1;"}, nil); got != first {
			t.Fatal("renderDDL() output varies across calls")
		}
	}
	alpha := strings.Index(first, "ALPHA")
	mike := strings.Index(first, "MIKE")
	zulu := strings.Index(first, "ZULU")
	if !(alpha < mike && mike < zulu) {
		t.Fatalf("tables not sorted: %q", first)
	}
}

func TestRenderDDLKeepsConstraintLines(t *testing.T) {
	tables := map[string]*tableSpec{
		"ORDERS": {
			columns: []SchemaColumn{
				{Name: "ID", DataType: "BIGINT"},
				{Constraint: "FOREIGN KEY (SUPPLIER_ID) REFERENCES SUPPLIER(ID)", Description: "links to supplier"},
			},
			hasTable:   true,
			hasColumns: true,
		},
	}

	ddl := renderDDL(tables, nil, nil)
	if !strings.Contains(ddl, "FOREIGN KEY (SUPPLIER_ID) REFERENCES SUPPLIER(ID)") {
		t.Fatalf("ddl = %q", ddl)
	}
	if !strings.Contains(ddl, "-- links to supplier") {
		t.Fatalf("ddl = %q", ddl)
	}
}

func TestAssembleSchemaPrunesOverBudgetDDL(t *testing.T) {
	llmClient := &fakeLLM{replies: map[string][]string{
		"prune_schema": {`{"tables": [{"name": "SPEND", "columns": ["SUPPLIER"]}]}`},
	}}
	vectors := &fakeVectors{allDocs: map[string][]vectorstore.Point{
		collectionTableSchema: {
			{Payload: map[string]any{"name": "SPEND", "type": "TABLE"}},
			{Payload: map[string]any{"name": "SPEND", "type": "TABLE_COLUMNS", "columns": []any{
				map[string]any{"name": "SUPPLIER", "data_type": "VARCHAR"},
				map[string]any{"name": "NOISE", "data_type": "VARCHAR"},
			}}},
			{Payload: map[string]any{"name": "OTHER", "type": "TABLE"}},
			{Payload: map[string]any{"name": "OTHER", "type": "TABLE_COLUMNS", "columns": []any{
				map[string]any{"name": "X", "data_type": "VARCHAR"},
			}}},
		},
	}}
	pipeline := newTestPipeline(llmClient, vectors, &fakeCache{values: map[string][]byte{}}, &fakeWarehouse{}, &fakeValidator{})
	pipeline.Options.DDLTokenBudget = 1
	pipeline.TokenCounter = func(text string) (int, error) { return len(text), nil }

	state := &State{Query: Query{TenantID: "t1"}, Stabilized: "spend by supplier"}
	if err := pipeline.assembleSchema(context.Background(), state); err != nil {
		t.Fatalf("assembleSchema() error = %v", err)
	}
	if !strings.Contains(state.AssembledDDL, "SUPPLIER VARCHAR") {
		t.Fatalf("ddl = %q", state.AssembledDDL)
	}
	if strings.Contains(state.AssembledDDL, "NOISE") || strings.Contains(state.AssembledDDL, "OTHER") {
		t.Fatalf("pruned ddl still carries dropped parts: %q", state.AssembledDDL)
	}
}

func TestAssembleSchemaKeepsMetricDDL(t *testing.T) {
	vectors := &fakeVectors{allDocs: map[string][]vectorstore.Point{
		collectionTableSchema: {
			{Payload: map[string]any{"name": "SPEND", "type": "TABLE"}},
			{Payload: map[string]any{"name": "SPEND", "type": "TABLE_COLUMNS", "columns": []any{
				map[string]any{"name": "ID", "data_type": "BIGINT"},
			}}},
			{Payload: map[string]any{"name": "SAVINGS", "type": "METRIC", "ddl": "CREATE METRIC SAVINGS AS SUM(SAVED);"}},
		},
	}}
	pipeline := newTestPipeline(&fakeLLM{}, vectors, &fakeCache{values: map[string][]byte{}}, &fakeWarehouse{}, &fakeValidator{})

	state := &State{Query: Query{TenantID: "t1"}, Stabilized: "savings"}
	if err := pipeline.assembleSchema(context.Background(), state); err != nil {
		t.Fatalf("assembleSchema() error = %v", err)
	}
	if !strings.Contains(state.AssembledDDL, "CREATE METRIC SAVINGS") {
		t.Fatalf("ddl = %q", state.AssembledDDL)
	}
}
