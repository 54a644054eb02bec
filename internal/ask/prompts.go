package ask

import (
	"fmt"
	"strings"
	"text/template"
)

// sqlRules is the fixed rule set every generation prompt carries.
const sqlRules = `Rules:
- Produce ANSI SQL only.
- Never use COUNT(*) or COUNT(1); always count a concrete column, e.g. COUNT(ID).
- Do not use LAG or LEAD unless the question explicitly asks for a comparison with a previous period.
- Use DATEADD, YEAR, QUARTER and TO_DATE(col, 'YYYYMMDD') for date arithmetic; date columns are stored as YYYYMMDD strings.
- When dividing, guard the denominator with NULLIF to avoid division by zero.
- Join tables only on the key relationships declared in the schema.
- Aggregate before joining when the question asks for totals per entity.`

var classifyTemplate = template.Must(template.New("classify").Parse(`You route procurement questions for tenant data analysis.

Question: "{{.Question}}"
Category: "{{.Category}}"

Decide:
1. "route": "Text2SQL" if the question can be answered from the tenant's procurement warehouse, otherwise "GeneralPurpose".
2. "question_class": "market" if the question is about market segmentation, market analysis or market prices, otherwise "standard".
3. "entities": the named entities in the question (supplier names, material names, plant names and similar), as written.

Answer with JSON: {"route": "...", "question_class": "...", "entities": ["..."]}`))

var rerankTemplate = template.Must(template.New("rerank").Parse(`Score how well each example question matches the user's question semantically.

User question: "{{.Question}}"

Example questions:
{{- range $index, $example := .Candidates}}
{{$index}}: "{{$example}}"
{{- end}}

Answer with JSON: {"scores": [{"question": "<example question verbatim>", "confidence": <0..1>}, ...]}
Include every example exactly once.`))

var pruneTemplate = template.Must(template.New("prune").Parse(`The schema below is too large for SQL generation. Select only the tables and columns needed to answer the question.

Question: "{{.Question}}"

Schema:
{{.DDL}}

Answer with JSON: {"tables": [{"name": "...", "columns": ["...", "..."]}, ...]}`))

var generateTemplate = template.Must(template.New("generate").Parse(`You translate procurement questions into SQL.

{{.Rules}}
{{- if .TenantRules}}

Tenant rules:
{{.TenantRules}}
{{- end}}

Schema:
{{.DDL}}
{{- if .Examples}}

Samples:
{{- range $index, $example := .Examples}}
Sample {{$index}}:
Question: {{$example.Question}}
SQL: {{$example.SQL}}
{{- end}}
{{- end}}

Current time: {{.Now}}
{{- if .CategoryFilter}}

The data is filtered per category: append TREATAS({"{{.Category}}"}, CATEGORY_LEVEL) to the measure filter context.
{{- end}}

Question: "{{.Question}}"

Answer with JSON: {"generated_sql": "<one SQL statement>"}`))

var correctTemplate = template.Must(template.New("correct").Parse(`The SQL below failed validation. Fix it.

Schema:
{{.DDL}}
{{- if .Examples}}

Samples:
{{- range $index, $example := .Examples}}
Sample {{$index}}:
Question: {{$example.Question}}
SQL: {{$example.SQL}}
{{- end}}
{{- end}}

Broken SQL:
{{.SQL}}

Engine error:
{{.Error}}

{{.Rules}}

Answer with JSON: {"corrected_sql": "<one SQL statement>"}`))

var summarizeTemplate = template.Must(template.New("summarize").Parse(`Summarize the query result as a markdown answer for the user.

Question: "{{.Question}}"
{{- if .Language}}
Answer in {{.Language}}.
{{- end}}
{{- if .Currency}}
Monetary amounts are in {{.Currency}}.
{{- end}}

Columns: {{.Columns}}
Rows ({{.RowCount}} total):
{{.Rows}}

Report every row; never truncate or omit data rows, and state the exact row count when relevant.
Answer with JSON: {"summary": "<markdown>"}`))

func renderTemplate(tmpl *template.Template, data any) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
