package ask

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spendlens/spendlens/internal/cache"
	"github.com/spendlens/spendlens/internal/enginecheck"
	"github.com/spendlens/spendlens/internal/llm"
	"github.com/spendlens/spendlens/internal/vectorstore"
	"github.com/spendlens/spendlens/internal/warehouse"
)

type fakeLLM struct {
	replies    map[string][]string
	chatCalls  []string
	embedCalls []string
}

func (f *fakeLLM) Chat(ctx context.Context, req llm.ChatRequest) (string, llm.Usage, error) {
	f.chatCalls = append(f.chatCalls, req.Purpose)
	queue := f.replies[req.Purpose]
	if len(queue) == 0 {
		return "", llm.Usage{}, fmt.Errorf("no scripted reply for purpose %q", req.Purpose)
	}
	reply := queue[0]
	f.replies[req.Purpose] = queue[1:]
	return reply, llm.Usage{}, nil
}

func (f *fakeLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	f.embedCalls = append(f.embedCalls, text)
	return []float32{0.1, 0.2}, nil
}

type fakeVectors struct {
	searchHits  map[string][]vectorstore.Point
	allDocs     map[string][]vectorstore.Point
	searchCalls []string
}

func (f *fakeVectors) Search(ctx context.Context, req vectorstore.SearchRequest) ([]vectorstore.Point, error) {
	f.searchCalls = append(f.searchCalls, req.Collection)
	return f.searchHits[req.Collection], nil
}

func (f *fakeVectors) GetAll(ctx context.Context, collection string, filter *vectorstore.Filter) ([]vectorstore.Point, error) {
	return f.allDocs[collection], nil
}

type fakeCache struct {
	values map[string][]byte
	sets   []string
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, ok := f.values[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return value, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.values[key] = value
	f.sets = append(f.sets, key)
	return nil
}

type fakeWarehouse struct {
	result   warehouse.Result
	executed []string
}

func (f *fakeWarehouse) Execute(ctx context.Context, database, sqlText string) (warehouse.Result, error) {
	f.executed = append(f.executed, sqlText)
	return f.result, nil
}

func (f *fakeWarehouse) ReadTable(ctx context.Context, database, table string) (warehouse.Result, error) {
	return f.result, nil
}

func (f *fakeWarehouse) UploadRows(ctx context.Context, database, table string, result warehouse.Result) error {
	return nil
}

type fakeValidator struct {
	outcomes []enginecheck.Outcome
	calls    int
}

func (f *fakeValidator) DryRun(ctx context.Context, database, sqlText string) (enginecheck.Outcome, error) {
	if f.calls >= len(f.outcomes) {
		return enginecheck.Outcome{}, fmt.Errorf("unexpected dry run #%d", f.calls+1)
	}
	outcome := f.outcomes[f.calls]
	f.calls++
	if outcome.SQL == "" {
		outcome.SQL = sqlText
	}
	return outcome, nil
}

func testSchemaDocs() []vectorstore.Point {
	return []vectorstore.Point{
		{Payload: map[string]any{"name": "SPEND", "type": "TABLE", "comment": "spend facts"}},
		{Payload: map[string]any{"name": "SPEND", "type": "TABLE_COLUMNS", "columns": []any{
			map[string]any{"name": "SUPPLIER", "data_type": "VARCHAR", "description": "supplier name"},
			map[string]any{"name": "SPEND_YTD", "data_type": "DOUBLE"},
			map[string]any{"name": "DIM_DATE", "data_type": "VARCHAR"},
		}}},
	}
}

func newTestPipeline(llmClient *fakeLLM, vectors *fakeVectors, cacheStore *fakeCache, wh *fakeWarehouse, validator *fakeValidator) *Pipeline {
	return &Pipeline{
		LLM:       llmClient,
		Vectors:   vectors,
		Cache:     cacheStore,
		Warehouse: wh,
		Validator: validator,
		Options: Options{
			RetrievalTopK:   5,
			RerankThreshold: 0.7,
			EntityTopK:      50,
			EntityThreshold: 0.55,
			DDLTokenBudget:  100000,
			HistoryTTL:      30 * 24 * time.Hour,
		},
		TokenCounter: func(text string) (int, error) { return len(text) / 4, nil },
	}
}

func classifyReply(route, class string, entities ...string) string {
	encoded, _ := json.Marshal(map[string]any{
		"route":          route,
		"question_class": class,
		"entities":       entities,
	})
	return string(encoded)
}

func TestRunCacheHitShortCircuits(t *testing.T) {
	llmClient := &fakeLLM{replies: map[string][]string{
		"classify": {classifyReply("Text2SQL", "standard")},
	}}
	vectors := &fakeVectors{}
	cacheStore := &fakeCache{values: map[string][]byte{}}
	wh := &fakeWarehouse{}
	validator := &fakeValidator{}
	pipeline := newTestPipeline(llmClient, vectors, cacheStore, wh, validator)

	cachedSQL := "SELECT SUPPLIER, SUM(SPEND_YTD) FROM SPEND GROUP BY SUPPLIER ORDER BY 2 DESC LIMIT 5"
	entry, _ := json.Marshal(CacheEntry{
		SQL:       cachedSQL,
		KFData:    &TableData{Columns: []string{"SUPPLIER"}, Data: [][]any{{"acme"}}},
		KFSummary: "Top suppliers are...",
	})
	cacheStore.values[cache.SQLKey("t1", "top 5 suppliers by spend [category: Bearings]")] = entry

	resp, err := pipeline.Run(context.Background(),
		Query{RawText: "top 5 suppliers by spend", TenantID: "t1", Category: "Bearings"},
		TenantContext{ID: "t1", Database: "T1_DB"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !resp.CacheHit {
		t.Fatal("expected cache hit")
	}
	if resp.SQL != cachedSQL {
		t.Fatalf("SQL = %q", resp.SQL)
	}
	if !contains(resp.Stages, "cache_hit") {
		t.Fatalf("Stages = %v", resp.Stages)
	}
	if contains(resp.Stages, "retrieve") || contains(resp.Stages, "generate") {
		t.Fatalf("generation stages ran on cache hit: %v", resp.Stages)
	}
	if len(vectors.searchCalls) != 0 {
		t.Fatalf("vector searches = %v", vectors.searchCalls)
	}
	if len(llmClient.chatCalls) != 1 || llmClient.chatCalls[0] != "classify" {
		t.Fatalf("chat calls = %v", llmClient.chatCalls)
	}
	if validator.calls != 0 {
		t.Fatalf("validator calls = %d", validator.calls)
	}
}

func TestRunGeneralPurposeRoute(t *testing.T) {
	llmClient := &fakeLLM{replies: map[string][]string{
		"classify":   {classifyReply("GeneralPurpose", "standard")},
		"open_world": {"I cannot see the weather from procurement data."},
	}}
	cacheStore := &fakeCache{values: map[string][]byte{}}
	validator := &fakeValidator{}
	pipeline := newTestPipeline(llmClient, &fakeVectors{}, cacheStore, &fakeWarehouse{}, validator)

	resp, err := pipeline.Run(context.Background(),
		Query{RawText: "What was my weather today?", TenantID: "t1"},
		TenantContext{ID: "t1", Database: "T1_DB"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.Route != RouteGeneralPurpose {
		t.Fatalf("Route = %q", resp.Route)
	}
	if resp.KFResponse != nil {
		t.Fatal("open-world answer should carry no table data")
	}
	if resp.Summary == "" {
		t.Fatal("expected an answer")
	}
	if validator.calls != 0 {
		t.Fatalf("validator calls = %d", validator.calls)
	}
	if len(cacheStore.sets) != 0 {
		t.Fatalf("cache writes = %v", cacheStore.sets)
	}
}

func TestRunOneCorrectionSucceeds(t *testing.T) {
	brokenSQL := "SELECT AVG(SPEND_YTD) FROM SPEND GROUP BY DATE_TRUNC('quarter', DIM_DATE)"
	correctedSQL := "SELECT AVG(SPEND_YTD) FROM SPEND GROUP BY QUARTER(TO_DATE(DIM_DATE,'YYYYMMDD'))"

	llmClient := &fakeLLM{replies: map[string][]string{
		"classify":     {classifyReply("Text2SQL", "standard")},
		"rerank":       {`{"scores": [{"question": "avg spend per year", "confidence": 0.9}]}`},
		"generate_sql": {fmt.Sprintf(`{"generated_sql": %q}`, brokenSQL)},
		"correct_sql":  {fmt.Sprintf(`{"corrected_sql": %q}`, correctedSQL)},
		"summarize":    {`{"summary": "Average spend per quarter was 100."}`},
	}}
	vectors := &fakeVectors{
		searchHits: map[string][]vectorstore.Point{
			collectionSQLExamples: {{Payload: map[string]any{
				"content":          "avg spend per year",
				"solution_example": "SELECT AVG(SPEND_YTD) FROM SPEND",
			}}},
		},
		allDocs: map[string][]vectorstore.Point{collectionTableSchema: testSchemaDocs()},
	}
	cacheStore := &fakeCache{values: map[string][]byte{}}
	wh := &fakeWarehouse{result: warehouse.Result{Columns: []string{"Q", "AVG"}, Rows: [][]any{{int64(1), 100.0}}}}
	validator := &fakeValidator{outcomes: []enginecheck.Outcome{
		{Valid: false, Error: "function DATE_TRUNC not supported"},
		{Valid: true, SQL: correctedSQL},
	}}
	pipeline := newTestPipeline(llmClient, vectors, cacheStore, wh, validator)

	resp, err := pipeline.Run(context.Background(),
		Query{RawText: "avg spend per quarter 2023", TenantID: "t1", Category: "Bearings"},
		TenantContext{ID: "t1", Database: "T1_DB"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.SQL != correctedSQL {
		t.Fatalf("SQL = %q", resp.SQL)
	}
	if resp.KFResponse == nil || len(resp.KFResponse.Data) != 1 {
		t.Fatalf("KFResponse = %+v", resp.KFResponse)
	}
	if validator.calls != 2 {
		t.Fatalf("validator calls = %d", validator.calls)
	}
	if len(cacheStore.sets) != 1 {
		t.Fatalf("cache writes = %v", cacheStore.sets)
	}
	if len(wh.executed) != 1 || wh.executed[0] != correctedSQL {
		t.Fatalf("executed = %v", wh.executed)
	}
}

func TestRunTwoValidationsExhausted(t *testing.T) {
	llmClient := &fakeLLM{replies: map[string][]string{
		"classify":     {classifyReply("Text2SQL", "standard")},
		"rerank":       {`{"scores": []}`},
		"generate_sql": {`{"generated_sql": "SELECT BAD FROM SPEND"}`},
		"correct_sql":  {`{"corrected_sql": "SELECT STILL_BAD FROM SPEND"}`},
	}}
	vectors := &fakeVectors{
		searchHits: map[string][]vectorstore.Point{
			collectionSQLExamples: {{Payload: map[string]any{
				"content":          "some question",
				"solution_example": "SELECT 1",
			}}},
		},
		allDocs: map[string][]vectorstore.Point{collectionTableSchema: testSchemaDocs()},
	}
	cacheStore := &fakeCache{values: map[string][]byte{}}
	validator := &fakeValidator{outcomes: []enginecheck.Outcome{
		{Valid: false, Error: "column BAD not found"},
		{Valid: false, Error: "column STILL_BAD not found"},
	}}
	pipeline := newTestPipeline(llmClient, vectors, cacheStore, &fakeWarehouse{}, validator)

	resp, err := pipeline.Run(context.Background(),
		Query{RawText: "avg spend per quarter 2023", TenantID: "t1"},
		TenantContext{ID: "t1", Database: "T1_DB"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.KFResponse != nil {
		t.Fatal("terminal error must carry kf_response null")
	}
	if resp.SQL != "" {
		t.Fatalf("SQL = %q", resp.SQL)
	}
	if !strings.Contains(resp.Summary, "unable to answer") {
		t.Fatalf("Summary = %q", resp.Summary)
	}
	if validator.calls != 2 {
		t.Fatalf("validator calls = %d", validator.calls)
	}
	if len(cacheStore.sets) != 0 {
		t.Fatalf("cache writes = %v", cacheStore.sets)
	}
}

func TestRunSecondIdenticalRequestHitsCache(t *testing.T) {
	replies := func() map[string][]string {
		return map[string][]string{
			"classify":     {classifyReply("Text2SQL", "standard"), classifyReply("Text2SQL", "standard")},
			"rerank":       {`{"scores": []}`},
			"generate_sql": {`{"generated_sql": "SELECT COUNT(ID) FROM SPEND"}`},
			"summarize":    {`{"summary": "There are 3 rows."}`},
		}
	}
	llmClient := &fakeLLM{replies: replies()}
	vectors := &fakeVectors{
		searchHits: map[string][]vectorstore.Point{
			collectionSQLExamples: {{Payload: map[string]any{"content": "q", "solution_example": "SELECT 1"}}},
		},
		allDocs: map[string][]vectorstore.Point{collectionTableSchema: testSchemaDocs()},
	}
	cacheStore := &fakeCache{values: map[string][]byte{}}
	wh := &fakeWarehouse{result: warehouse.Result{Columns: []string{"C"}, Rows: [][]any{{int64(3)}}}}
	validator := &fakeValidator{outcomes: []enginecheck.Outcome{{Valid: true}}}
	pipeline := newTestPipeline(llmClient, vectors, cacheStore, wh, validator)

	query := Query{RawText: "how many spend rows", TenantID: "t1"}
	tenant := TenantContext{ID: "t1", Database: "T1_DB"}

	first, err := pipeline.Run(context.Background(), query, tenant)
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	second, err := pipeline.Run(context.Background(), query, tenant)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if !second.CacheHit {
		t.Fatal("second run should hit the cache")
	}
	if second.SQL != first.SQL {
		t.Fatalf("SQL differs: %q vs %q", second.SQL, first.SQL)
	}
	if validator.calls != 1 {
		t.Fatalf("validator calls = %d, want 1", validator.calls)
	}
}

func TestRunHonorsDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pipeline := newTestPipeline(&fakeLLM{}, &fakeVectors{}, &fakeCache{values: map[string][]byte{}}, &fakeWarehouse{}, &fakeValidator{})

	_, err := pipeline.Run(ctx, Query{RawText: "anything", TenantID: "t1"}, TenantContext{ID: "t1", Database: "DB"})
	if err == nil {
		t.Fatal("Run() expected deadline error")
	}
}

func contains(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}
