package ask

import (
	"context"
	"fmt"
	"strings"

	"github.com/spendlens/spendlens/internal/llm"
	"github.com/spendlens/spendlens/internal/vectorstore"
)

// retrieve pulls candidate (question, sql) examples for the tenant and
// keeps the ones the reranker scores above the confidence threshold.
// An empty result is fine; generation then runs zero-shot.
func (p *Pipeline) retrieve(ctx context.Context, s *State) error {
	vector, err := p.LLM.Embed(ctx, s.Stabilized)
	if err != nil {
		return fmt.Errorf("embed stabilized question: %w", err)
	}

	hits, err := p.Vectors.Search(ctx, vectorstore.SearchRequest{
		Collection: collectionSQLExamples,
		Vector:     vector,
		Limit:      p.Options.RetrievalTopK,
		Filter: &vectorstore.Filter{
			Must: []vectorstore.Condition{{Field: "tenant", Value: s.Query.TenantID}},
		},
	})
	if err != nil {
		return fmt.Errorf("search sql examples: %w", err)
	}

	candidates := make([]ExampleSQL, 0, len(hits))
	for _, hit := range hits {
		question, _ := hit.Payload["content"].(string)
		solution, _ := hit.Payload["solution_example"].(string)
		if strings.TrimSpace(question) == "" || strings.TrimSpace(solution) == "" {
			continue
		}
		candidates = append(candidates, ExampleSQL{Question: question, SQL: solution})
	}
	if len(candidates) == 0 {
		return nil
	}

	reranked, err := p.rerank(ctx, s.Stabilized, candidates)
	if err != nil {
		return err
	}
	s.Examples = reranked
	return nil
}

func (p *Pipeline) rerank(ctx context.Context, question string, candidates []ExampleSQL) ([]ExampleSQL, error) {
	questions := make([]string, 0, len(candidates))
	byQuestion := make(map[string]ExampleSQL, len(candidates))
	for _, candidate := range candidates {
		questions = append(questions, candidate.Question)
		byQuestion[candidate.Question] = candidate
	}

	prompt, err := renderTemplate(rerankTemplate, map[string]any{
		"Question":   question,
		"Candidates": questions,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Scores []struct {
			Question   string  `json:"question"`
			Confidence float64 `json:"confidence"`
		} `json:"scores"`
	}
	err = llm.ChatJSON(ctx, p.LLM, llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Purpose:  "rerank",
	}, &parsed)
	if err != nil {
		return nil, fmt.Errorf("rerank examples: %w", err)
	}

	kept := make([]ExampleSQL, 0, len(parsed.Scores))
	for _, score := range parsed.Scores {
		candidate, ok := byQuestion[score.Question]
		if !ok {
			p.logger().Warn("reranker returned unknown question", "question", score.Question)
			continue
		}
		if score.Confidence > p.Options.RerankThreshold {
			candidate.Confidence = score.Confidence
			kept = append(kept, candidate)
		}
	}
	return kept, nil
}
