package ask

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spendlens/spendlens/internal/cache"
	"github.com/spendlens/spendlens/internal/llm"
	"github.com/spendlens/spendlens/internal/observability"
	"github.com/spendlens/spendlens/internal/vectorstore"
)

var shellCharStripper = strings.NewReplacer("'", "", `"`, "", "-", "", "_", "")

func (p *Pipeline) loadHistory(ctx context.Context, s *State) error {
	if s.Query.SessionID == "" {
		return nil
	}
	raw, err := p.Cache.Get(ctx, cache.HistoryKey(s.Query.TenantID, s.Query.SessionID))
	if errors.Is(err, cache.ErrMiss) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load chat history: %w", err)
	}
	if err := json.Unmarshal(raw, &s.History); err != nil {
		// A corrupt history entry should not take the request down.
		p.logger().Warn("discarding unreadable chat history",
			"tenant", s.Query.TenantID, "session", s.Query.SessionID, "error", err)
		s.History = nil
	}
	return nil
}

type classification struct {
	Route         string   `json:"route"`
	QuestionClass string   `json:"question_class"`
	Entities      []string `json:"entities"`
}

func (p *Pipeline) stabilize(ctx context.Context, s *State) error {
	text := strings.Join(strings.Fields(shellCharStripper.Replace(s.Query.RawText)), " ")
	if text == "" {
		return fmt.Errorf("question is empty after stripping")
	}

	prompt, err := renderTemplate(classifyTemplate, map[string]string{
		"Question": text,
		"Category": s.Query.Category,
	})
	if err != nil {
		return err
	}

	var parsed classification
	err = llm.ChatJSON(ctx, p.LLM, llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Purpose:  "classify",
	}, &parsed)
	if err != nil {
		return fmt.Errorf("classify question: %w", err)
	}

	s.Route = RouteText2SQL
	if strings.EqualFold(parsed.Route, string(RouteGeneralPurpose)) {
		s.Route = RouteGeneralPurpose
	}
	s.CategoryClass = CategoryStandard
	if strings.EqualFold(parsed.QuestionClass, string(CategoryMarket)) {
		s.CategoryClass = CategoryMarket
	}

	if s.Route == RouteText2SQL {
		for _, entity := range parsed.Entities {
			entity = strings.TrimSpace(entity)
			if entity == "" || !strings.Contains(text, entity) {
				continue
			}
			entityType, found := p.resolveEntityType(ctx, s.Query.TenantID, entity)
			if !found {
				continue
			}
			text = strings.ReplaceAll(text, entity, fmt.Sprintf("%s named like '%%%s%%'", entityType, entity))
		}
	}

	if s.Query.Category != "" {
		text = text + " [category: " + s.Query.Category + "]"
	}
	s.Stabilized = text
	return nil
}

// resolveEntityType looks an entity up in the tenant's entity store and
// takes the majority type among the hits. Ties break lexicographically
// on the type name so the substitution stays deterministic.
func (p *Pipeline) resolveEntityType(ctx context.Context, tenantID, entity string) (string, bool) {
	vector, err := p.LLM.Embed(ctx, entity)
	if err != nil {
		p.logger().Warn("entity embed failed, leaving literal", "entity", entity, "error", err)
		return "", false
	}
	hits, err := p.Vectors.Search(ctx, vectorstore.SearchRequest{
		Collection:     collectionEntities,
		Vector:         vector,
		Limit:          p.Options.EntityTopK,
		ScoreThreshold: p.Options.EntityThreshold,
		Filter: &vectorstore.Filter{
			Must: []vectorstore.Condition{{Field: "tenant", Value: tenantID}},
		},
	})
	if err != nil {
		p.logger().Warn("entity search failed, leaving literal", "entity", entity, "error", err)
		return "", false
	}

	votes := map[string]int{}
	for _, hit := range hits {
		entityType, _ := hit.Payload["type"].(string)
		entityType = strings.ToLower(strings.TrimSpace(entityType))
		if entityType != "" {
			votes[entityType]++
		}
	}
	if len(votes) == 0 {
		return "", false
	}

	types := make([]string, 0, len(votes))
	for entityType := range votes {
		types = append(types, entityType)
	}
	sort.Strings(types)
	winner := types[0]
	for _, entityType := range types[1:] {
		if votes[entityType] > votes[winner] {
			winner = entityType
		}
	}
	return winner, true
}

func (p *Pipeline) cacheLookup(ctx context.Context, s *State) error {
	key := cache.SQLKey(s.Query.TenantID, s.Stabilized)
	raw, err := p.Cache.Get(ctx, key)
	if errors.Is(err, cache.ErrMiss) {
		observability.ObserveCacheLookup(false)
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache lookup: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		p.logger().Warn("discarding unreadable cache entry", "key", key, "error", err)
		return nil
	}
	if entry.SQL == "" {
		return nil
	}
	s.CacheHit = &entry
	observability.ObserveCacheLookup(true)
	return nil
}
