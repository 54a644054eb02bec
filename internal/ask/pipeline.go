package ask

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spendlens/spendlens/internal/cache"
	"github.com/spendlens/spendlens/internal/enginecheck"
	"github.com/spendlens/spendlens/internal/llm"
	"github.com/spendlens/spendlens/internal/observability"
	"github.com/spendlens/spendlens/internal/vectorstore"
	"github.com/spendlens/spendlens/internal/warehouse"
)

const (
	collectionEntities    = "entities"
	collectionSQLExamples = "sql_examples"
	collectionTableSchema = "TABLE_SCHEMA"
)

// OpenWorld answers questions that do not map onto the warehouse.
type OpenWorld interface {
	Answer(ctx context.Context, question string, history []HistoryMessage) (string, error)
}

type Options struct {
	RetrievalTopK   int
	RerankThreshold float64
	EntityTopK      int
	EntityThreshold float64
	DDLTokenBudget  int
	RulesDir        string
	HistoryTTL      time.Duration
	TokenModel      string
}

// Pipeline wires the NL→SQL stages to their collaborators. One
// Pipeline serves all tenants; all per-request data lives on State.
type Pipeline struct {
	LLM       llm.Client
	Vectors   vectorstore.Store
	Cache     cache.Store
	Warehouse warehouse.Engine
	Validator enginecheck.Validator
	OpenWorld OpenWorld
	Logger    *slog.Logger
	Options   Options
	Now       func() time.Time

	// TokenCounter overrides the tiktoken-based DDL budget check.
	TokenCounter func(text string) (int, error)
}

type stage struct {
	name string
	skip func(*State) bool
	run  func(context.Context, *State) error
}

// Run executes the pipeline for one query. A structured failure (the
// terminal Error branch) is a valid Response, not an error; errors are
// reserved for infrastructure faults and exceeded deadlines.
func (p *Pipeline) Run(ctx context.Context, query Query, tenant TenantContext) (Response, error) {
	if query.TenantID == "" {
		return Response{}, fmt.Errorf("tenant id is required")
	}
	if query.RawText == "" {
		return Response{}, fmt.Errorf("question is required")
	}

	state := &State{Query: query, Tenant: tenant}
	stages := []stage{
		{name: "history", run: p.loadHistory},
		{name: "stabilize", run: p.stabilize},
		{name: "cache_lookup", skip: notText2SQL, run: p.cacheLookup},
		{name: "retrieve", skip: skipGeneration, run: p.retrieve},
		{name: "schema", skip: skipGeneration, run: p.assembleSchema},
		{name: "generate", skip: skipGeneration, run: p.generate},
		{name: "validate", skip: skipGeneration, run: p.validate},
		{name: "respond", run: p.respond},
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return Response{}, fmt.Errorf("request deadline before stage %s: %w", s.name, err)
		}
		if s.skip != nil && s.skip(state) {
			continue
		}
		start := p.now()
		err := s.run(ctx, state)
		observability.ObserveStage(s.name, p.now().Sub(start), err)
		if err != nil {
			return Response{}, fmt.Errorf("stage %s: %w", s.name, err)
		}
		state.Stages = append(state.Stages, s.name)
		if s.name == "cache_lookup" && state.CacheHit != nil {
			state.Stages = append(state.Stages, "cache_hit")
		}
	}
	return state.response(), nil
}

func notText2SQL(s *State) bool {
	return s.Route != RouteText2SQL
}

func skipGeneration(s *State) bool {
	return s.Route != RouteText2SQL || s.CacheHit != nil
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
