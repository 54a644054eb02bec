package ask

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/spendlens/spendlens/internal/llm"
	"github.com/spendlens/spendlens/internal/vectorstore"
)

const (
	docTypeTable        = "TABLE"
	docTypeTableColumns = "TABLE_COLUMNS"
	docTypeMetric       = "METRIC"
	docTypeView         = "VIEW"
)

type SchemaColumn struct {
	Name        string
	DataType    string
	Description string
	PrimaryKey  bool
	Constraint  string
}

type SchemaDocument struct {
	Name    string
	Type    string
	Comment string
	DDL     string
	Columns []SchemaColumn
}

type tableSpec struct {
	comment    string
	columns    []SchemaColumn
	hasTable   bool
	hasColumns bool
}

// assembleSchema renders the tenant's pseudo-DDL. Tables missing either
// their TABLE or TABLE_COLUMNS fragment are dropped. When the rendered
// DDL blows the token budget, a pruning call restricts it to the tables
// and columns relevant to the question.
func (p *Pipeline) assembleSchema(ctx context.Context, s *State) error {
	points, err := p.Vectors.GetAll(ctx, collectionTableSchema, &vectorstore.Filter{
		Must: []vectorstore.Condition{{Field: "tenant", Value: s.Query.TenantID}},
	})
	if err != nil {
		return fmt.Errorf("load schema documents: %w", err)
	}

	tables := map[string]*tableSpec{}
	var extraDDLs []string
	for _, point := range points {
		doc := parseSchemaDocument(point.Payload)
		switch doc.Type {
		case docTypeTable:
			spec := ensureTable(tables, doc.Name)
			spec.comment = doc.Comment
			spec.hasTable = true
		case docTypeTableColumns:
			spec := ensureTable(tables, doc.Name)
			spec.columns = doc.Columns
			spec.hasColumns = true
		case docTypeMetric, docTypeView:
			if doc.DDL != "" {
				extraDDLs = append(extraDDLs, doc.DDL)
			}
		}
	}
	sort.Strings(extraDDLs)

	ddl := renderDDL(tables, extraDDLs, nil)
	if ddl == "" {
		return fmt.Errorf("no complete schema documents for tenant %q", s.Query.TenantID)
	}

	tokens, err := p.countTokens(ddl)
	if err != nil {
		return err
	}
	if tokens > p.Options.DDLTokenBudget {
		ddl, err = p.pruneSchema(ctx, s.Stabilized, ddl, tables, extraDDLs)
		if err != nil {
			return err
		}
	}
	s.AssembledDDL = ddl
	return nil
}

func ensureTable(tables map[string]*tableSpec, name string) *tableSpec {
	spec, ok := tables[name]
	if !ok {
		spec = &tableSpec{}
		tables[name] = spec
	}
	return spec
}

func parseSchemaDocument(payload map[string]any) SchemaDocument {
	doc := SchemaDocument{}
	doc.Name, _ = payload["name"].(string)
	doc.Type, _ = payload["type"].(string)
	doc.Comment, _ = payload["comment"].(string)
	doc.DDL, _ = payload["ddl"].(string)

	rawColumns, _ := payload["columns"].([]any)
	for _, rawColumn := range rawColumns {
		fields, ok := rawColumn.(map[string]any)
		if !ok {
			continue
		}
		column := SchemaColumn{}
		column.Name, _ = fields["name"].(string)
		column.DataType, _ = fields["data_type"].(string)
		column.Description, _ = fields["description"].(string)
		column.PrimaryKey, _ = fields["is_primary_key"].(bool)
		column.Constraint, _ = fields["constraint"].(string)
		doc.Columns = append(doc.Columns, column)
	}
	return doc
}

// renderDDL renders tables in sorted order. keep restricts the output
// to the named tables and columns; nil keeps everything.
func renderDDL(tables map[string]*tableSpec, extraDDLs []string, keep map[string]map[string]bool) string {
	names := make([]string, 0, len(tables))
	for name, spec := range tables {
		if !spec.hasTable || !spec.hasColumns {
			continue
		}
		if keep != nil {
			if _, ok := keep[strings.ToLower(name)]; !ok {
				continue
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		spec := tables[name]
		var keepColumns map[string]bool
		if keep != nil {
			keepColumns = keep[strings.ToLower(name)]
		}
		parts = append(parts, renderTableDDL(name, spec, keepColumns))
	}
	parts = append(parts, extraDDLs...)
	return strings.Join(parts, "\n\n")
}

func renderTableDDL(name string, spec *tableSpec, keepColumns map[string]bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", name)
	if spec.comment != "" {
		fmt.Fprintf(&b, "  -- %s\n", spec.comment)
	}
	for _, column := range spec.columns {
		if len(keepColumns) > 0 && !keepColumns[strings.ToLower(column.Name)] && column.Constraint == "" {
			continue
		}
		if column.Constraint != "" {
			fmt.Fprintf(&b, "  %s\n", column.Constraint)
		} else {
			fmt.Fprintf(&b, "  %s %s", column.Name, column.DataType)
			if column.PrimaryKey {
				b.WriteString(" PRIMARY KEY")
			}
			b.WriteString("\n")
		}
		if column.Description != "" {
			fmt.Fprintf(&b, "      -- %s\n", column.Description)
		}
	}
	b.WriteString(");")
	return b.String()
}

func (p *Pipeline) countTokens(text string) (int, error) {
	if p.TokenCounter != nil {
		return p.TokenCounter(text)
	}
	encoding, err := tiktoken.EncodingForModel(p.Options.TokenModel)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, fmt.Errorf("load token encoding: %w", err)
		}
	}
	return len(encoding.Encode(text, nil, nil)), nil
}

func (p *Pipeline) pruneSchema(ctx context.Context, question, fullDDL string, tables map[string]*tableSpec, extraDDLs []string) (string, error) {
	prompt, err := renderTemplate(pruneTemplate, map[string]string{
		"Question": question,
		"DDL":      fullDDL,
	})
	if err != nil {
		return "", err
	}

	var parsed struct {
		Tables []struct {
			Name    string   `json:"name"`
			Columns []string `json:"columns"`
		} `json:"tables"`
	}
	err = llm.ChatJSON(ctx, p.LLM, llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Purpose:  "prune_schema",
	}, &parsed)
	if err != nil {
		return "", fmt.Errorf("prune schema: %w", err)
	}
	if len(parsed.Tables) == 0 {
		return "", fmt.Errorf("schema pruning selected no tables")
	}

	keep := map[string]map[string]bool{}
	for _, table := range parsed.Tables {
		columns := map[string]bool{}
		for _, column := range table.Columns {
			columns[strings.ToLower(column)] = true
		}
		keep[strings.ToLower(table.Name)] = columns
	}
	pruned := renderDDL(tables, extraDDLs, keep)
	if pruned == "" {
		return "", fmt.Errorf("schema pruning produced empty DDL")
	}
	return pruned, nil
}
