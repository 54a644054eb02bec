package ask

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spendlens/spendlens/internal/cache"
	"github.com/spendlens/spendlens/internal/llm"
	"github.com/spendlens/spendlens/internal/warehouse"
)

const unableToAnswer = "I was unable to answer this question. Please refine it and try again."

func (p *Pipeline) respond(ctx context.Context, s *State) error {
	switch {
	case s.Route == RouteGeneralPurpose:
		return p.respondOpenWorld(ctx, s)
	case s.CacheHit != nil:
		return p.respondFromCache(ctx, s)
	case s.Failed || !s.Validation.Valid:
		s.Failed = true
		s.Summary = unableToAnswer
		p.appendHistory(ctx, s, unableToAnswer)
		return nil
	default:
		return p.respondFromEngine(ctx, s)
	}
}

func (p *Pipeline) respondOpenWorld(ctx context.Context, s *State) error {
	var answer string
	var err error
	if p.OpenWorld != nil {
		answer, err = p.OpenWorld.Answer(ctx, s.Stabilized, s.History)
	} else {
		answer, _, err = p.LLM.Chat(ctx, llm.ChatRequest{
			Messages: openWorldMessages(s),
			Purpose:  "open_world",
		})
	}
	if err != nil {
		return fmt.Errorf("open world answer: %w", err)
	}
	s.Summary = answer
	p.appendHistory(ctx, s, answer)
	return nil
}

func openWorldMessages(s *State) []llm.Message {
	messages := []llm.Message{{
		Role:    llm.RoleSystem,
		Content: "You are a procurement assistant. Answer the question directly and concisely.",
	}}
	for _, turn := range s.History {
		if text, ok := turn["HumanMessage"]; ok {
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: text})
		}
		if text, ok := turn["AIMessage"]; ok {
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: text})
		}
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: s.Stabilized})
}

func (p *Pipeline) respondFromCache(ctx context.Context, s *State) error {
	s.FinalSQL = s.CacheHit.SQL
	s.Result = s.CacheHit.KFData
	s.Summary = s.CacheHit.KFSummary

	// Older entries may hold only the SQL; run it to rebuild the data.
	if s.Result == nil {
		result, err := p.Warehouse.Execute(ctx, s.Tenant.Database, s.FinalSQL)
		if err != nil {
			return fmt.Errorf("execute cached sql: %w", err)
		}
		s.Result = &TableData{Columns: result.Columns, Data: result.Rows}
	}
	p.appendHistory(ctx, s, s.Summary)
	return nil
}

func (p *Pipeline) respondFromEngine(ctx context.Context, s *State) error {
	result, err := p.Warehouse.Execute(ctx, s.Tenant.Database, s.FinalSQL)
	if err != nil {
		return fmt.Errorf("execute final sql: %w", err)
	}
	s.Result = &TableData{Columns: result.Columns, Data: result.Rows}

	summary, err := p.summarize(ctx, s, result)
	if err != nil {
		// The data already answers the question; a summarizer fault
		// must not fail the request or poison the cache with half a
		// response.
		p.logger().Warn("summarize failed", "tenant", s.Query.TenantID, "error", err)
	} else {
		s.Summary = summary
	}

	p.writeCache(ctx, s)
	p.appendHistory(ctx, s, s.Summary)
	return nil
}

func (p *Pipeline) summarize(ctx context.Context, s *State, result warehouse.Result) (string, error) {
	rows := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, fmt.Sprintf("%v", cell))
		}
		rows = append(rows, strings.Join(cells, " | "))
	}

	prompt, err := renderTemplate(summarizeTemplate, map[string]any{
		"Question": s.Stabilized,
		"Language": s.Query.Language,
		"Currency": s.Query.Currency,
		"Columns":  strings.Join(result.Columns, " | "),
		"RowCount": len(result.Rows),
		"Rows":     strings.Join(rows, "\n"),
	})
	if err != nil {
		return "", err
	}

	var parsed struct {
		Summary string `json:"summary"`
	}
	err = llm.ChatJSON(ctx, p.LLM, llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Purpose:  "summarize",
	}, &parsed)
	if err != nil {
		return "", err
	}
	return parsed.Summary, nil
}

// writeCache stores the validated result. Only the Valid terminal
// branch reaches here; failures never touch the SQL cache.
func (p *Pipeline) writeCache(ctx context.Context, s *State) {
	entry := CacheEntry{
		SQL:        s.FinalSQL,
		FixedQuery: s.Stabilized,
		KFData:     s.Result,
		KFSummary:  s.Summary,
		CreatedAt:  p.now().UTC(),
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		p.logger().Warn("encode cache entry failed", "error", err)
		return
	}
	key := cache.SQLKey(s.Query.TenantID, s.Stabilized)
	if err := p.Cache.Set(ctx, key, encoded, 0); err != nil {
		p.logger().Warn("cache write failed", "key", key, "error", err)
	}
}

func (p *Pipeline) appendHistory(ctx context.Context, s *State, answer string) {
	if s.Query.SessionID == "" {
		return
	}
	history := append(s.History,
		HistoryMessage{"HumanMessage": s.Query.RawText},
		HistoryMessage{"AIMessage": answer},
	)
	encoded, err := json.Marshal(history)
	if err != nil {
		p.logger().Warn("encode chat history failed", "error", err)
		return
	}
	key := cache.HistoryKey(s.Query.TenantID, s.Query.SessionID)
	if err := p.Cache.Set(ctx, key, encoded, p.Options.HistoryTTL); err != nil {
		p.logger().Warn("history write failed", "key", key, "error", err)
	}
}
