package ask

import (
	"context"
	"fmt"
	"strings"

	"github.com/spendlens/spendlens/internal/llm"
	"github.com/spendlens/spendlens/internal/observability"
)

const (
	maxDryRuns     = 2
	maxCorrections = 1
)

// validate drives the dry-run / correction loop. Hard caps: at most
// two dry runs and one correction per request. A verdict that stays
// invalid after the caps marks the state failed; it is not an error.
func (p *Pipeline) validate(ctx context.Context, s *State) error {
	sqlText := s.GeneratedSQL
	for {
		if s.DryRunCount >= maxDryRuns {
			s.Failed = true
			return nil
		}

		outcome, err := p.Validator.DryRun(ctx, s.Tenant.Database, sqlText)
		if err != nil {
			return fmt.Errorf("dry run: %w", err)
		}
		s.DryRunCount++
		observability.ObserveDryRun(outcome.Valid)

		if outcome.Valid {
			s.Validation = ValidationRecord{Valid: true, SQL: outcome.SQL, Columns: outcome.Columns}
			s.FinalSQL = outcome.SQL
			return nil
		}

		s.Validation = ValidationRecord{Valid: false, SQL: sqlText, Error: outcome.Error}
		p.logger().Info("sql failed validation",
			"tenant", s.Query.TenantID, "dry_runs", s.DryRunCount, "engine_error", outcome.Error)

		if s.RecursionDepth >= maxCorrections || s.DryRunCount >= maxDryRuns {
			s.Failed = true
			return nil
		}

		corrected, err := p.correct(ctx, s)
		if err != nil {
			p.logger().Warn("sql correction failed", "tenant", s.Query.TenantID, "error", err)
			s.Failed = true
			return nil
		}
		s.RecursionDepth++
		observability.IncrementCorrection()
		sqlText = corrected
		s.GeneratedSQL = corrected
	}
}

func (p *Pipeline) correct(ctx context.Context, s *State) (string, error) {
	prompt, err := renderTemplate(correctTemplate, map[string]any{
		"DDL":      s.AssembledDDL,
		"Examples": s.Examples,
		"SQL":      s.Validation.SQL,
		"Error":    s.Validation.Error,
		"Rules":    sqlRules,
	})
	if err != nil {
		return "", err
	}

	var parsed struct {
		CorrectedSQL string `json:"corrected_sql"`
	}
	err = llm.ChatJSON(ctx, p.LLM, llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Purpose:  "correct_sql",
	}, &parsed)
	if err != nil {
		return "", fmt.Errorf("correct sql: %w", err)
	}
	if strings.TrimSpace(parsed.CorrectedSQL) == "" {
		return "", fmt.Errorf("corrector returned empty sql")
	}
	return strings.TrimSpace(parsed.CorrectedSQL), nil
}
