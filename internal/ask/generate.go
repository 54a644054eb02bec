package ask

import (
	"context"
	"fmt"
	"strings"

	"github.com/spendlens/spendlens/internal/llm"
)

func (p *Pipeline) generate(ctx context.Context, s *State) error {
	tenantRules, err := LoadTenantRules(p.Options.RulesDir, s.Query.TenantID)
	if err != nil {
		return err
	}

	prompt, err := renderTemplate(generateTemplate, map[string]any{
		"Rules":          sqlRules,
		"TenantRules":    tenantRules,
		"DDL":            s.AssembledDDL,
		"Examples":       s.Examples,
		"Now":            p.now().UTC().Format("2006-01-02 15:04:05"),
		"Question":       s.Stabilized,
		"Category":       s.Query.Category,
		"CategoryFilter": s.CategoryClass != CategoryMarket && s.Query.Category != "",
	})
	if err != nil {
		return err
	}

	var parsed struct {
		GeneratedSQL string `json:"generated_sql"`
	}
	err = llm.ChatJSON(ctx, p.LLM, llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Purpose:  "generate_sql",
	}, &parsed)
	if err != nil {
		return fmt.Errorf("generate sql: %w", err)
	}
	if strings.TrimSpace(parsed.GeneratedSQL) == "" {
		return fmt.Errorf("generator returned empty sql")
	}
	s.GeneratedSQL = strings.TrimSpace(parsed.GeneratedSQL)
	return nil
}
