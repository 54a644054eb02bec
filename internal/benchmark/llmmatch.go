package benchmark

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/spendlens/spendlens/internal/llm"
)

const (
	maxDecodeAttempts = 3
	decodeRetryWait   = 2 * time.Second
)

var matchTemplate = template.Must(template.New("match").Parse(`Match each client SKU to the best scraped product, if any.

Client SKUs:
{{- range .Clients}}
{{.ID}}: "{{.Processed}}"
{{- end}}

Scraped products:
{{- range $index, $candidate := .Candidates}}
{{$index}}: "{{$candidate.Description}}"
{{- end}}

For every client SKU that clearly matches a scraped product, emit one entry with:
- "client_query_id": the client SKU id,
- "matched_product_index": the scraped product index,
- "score": match confidence between 0 and 1,
- "translated_title": the scraped product title translated to English.

Answer with JSON: {"matches": [{"client_query_id": 0, "matched_product_index": 0, "score": 0.0, "translated_title": "..."}, ...]}`))

// Candidate is one scraped product offered to a batch. Index is the
// position in the cluster's capped scraped slice; the prompt uses the
// slice position, which the remap resolves back through this record.
type Candidate struct {
	OriginalIndex int
	Description   string
}

// matchBatch runs one bulk call for a client batch against the shared
// candidate list. Transient API failures are retried by the client
// wrapper; replies that stay undecodable after three attempts drop the
// batch rather than the job.
func (m *Matcher) matchBatch(ctx context.Context, clients []ClientRow, candidates []Candidate) ([]MatchRecord, error) {
	prompt, err := renderMatchPrompt(clients, candidates)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxDecodeAttempts; attempt++ {
		reply, _, err := m.LLM.Chat(ctx, llm.ChatRequest{
			Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
			JSONOnly: true,
			Purpose:  "benchmark_match",
		})
		if err != nil {
			return nil, fmt.Errorf("bulk match call: %w", err)
		}

		var parsed struct {
			Matches []MatchRecord `json:"matches"`
		}
		if err := llm.DecodeLoose(reply, &parsed); err == nil {
			return parsed.Matches, nil
		}

		m.logger().Warn("bulk match reply is not JSON", "attempt", attempt)
		if attempt < maxDecodeAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(decodeRetryWait):
			}
		}
	}

	m.logger().Warn("dropping batch after undecodable replies",
		"clients", len(clients), "candidates", len(candidates))
	return nil, nil
}

func renderMatchPrompt(clients []ClientRow, candidates []Candidate) (string, error) {
	var buf strings.Builder
	err := matchTemplate.Execute(&buf, map[string]any{
		"Clients":    clients,
		"Candidates": candidates,
	})
	if err != nil {
		return "", fmt.Errorf("render match prompt: %w", err)
	}
	return buf.String(), nil
}
