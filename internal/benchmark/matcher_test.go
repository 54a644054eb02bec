package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/spendlens/spendlens/internal/llm"
)

type scriptedLLM struct {
	replies []string
	calls   int
}

func (s *scriptedLLM) Chat(ctx context.Context, req llm.ChatRequest) (string, llm.Usage, error) {
	if s.calls >= len(s.replies) {
		return "", llm.Usage{}, fmt.Errorf("unexpected call #%d", s.calls+1)
	}
	reply := s.replies[s.calls]
	s.calls++
	return reply, llm.Usage{}, nil
}

func (s *scriptedLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embed not supported")
}

func cluster12Scraped() []ScrapedProduct {
	products := make([]ScrapedProduct, 0, 4)
	for i := 0; i < 4; i++ {
		products = append(products, ScrapedProduct{
			ClusterID: 12,
			Title:     fmt.Sprintf("Produkt %d", i),
			Processed: fmt.Sprintf("produkt %d", i),
			Currency:  "EUR",
			UnitPrice: float64(10 + i),
			URL:       fmt.Sprintf("https://shop.example/p/%d", i),
		})
	}
	return products
}

func TestRunEmitsHybridScoredMatch(t *testing.T) {
	llmClient := &scriptedLLM{replies: []string{
		`{"matches": [{"client_query_id": 0, "matched_product_index": 2, "score": 0.9, "translated_title": "deep groove ball bearing 6205"}]}`,
	}}
	matcher := &Matcher{LLM: llmClient}

	clients := []ClientRow{{
		ID:                    0,
		ClusterID:             12,
		Category:              "Bearings",
		SKUDescription:        "BRG-6205",
		NormalizedDescription: "Deep Groove Ball Bearing 6205",
		Processed:             "deep groove ball bearing 6205",
		Quantity:              4,
		Spend:                 200,
	}}

	rows, err := matcher.Run(context.Background(), clients, cluster12Scraped())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	row := rows[0]
	if row.SimilarityScore != 0.93 {
		t.Fatalf("SimilarityScore = %v, want 0.93", row.SimilarityScore)
	}
	if row.SourceDescription != "deep groove ball bearing 6205" {
		t.Fatalf("SourceDescription = %q", row.SourceDescription)
	}
	if row.SourceURL != "https://shop.example/p/2" {
		t.Fatalf("SourceURL = %q, match not remapped to candidate 2", row.SourceURL)
	}
	if row.ClusterID != 12 || row.PriceCurrency != "EUR" || row.SourceUnitPrice != 12 {
		t.Fatalf("row = %+v", row)
	}
}

func TestRunDropsOutOfRangeIndexKeepsOthers(t *testing.T) {
	llmClient := &scriptedLLM{replies: []string{
		`{"matches": [
			{"client_query_id": 0, "matched_product_index": 42, "score": 0.95, "translated_title": "ghost"},
			{"client_query_id": 1, "matched_product_index": 0, "score": 0.9, "translated_title": "produkt 0"}
		]}`,
	}}
	matcher := &Matcher{LLM: llmClient}

	clients := []ClientRow{
		{ID: 0, ClusterID: 12, Processed: "something"},
		{ID: 1, ClusterID: 12, Processed: "produkt 0"},
	}

	rows, err := matcher.Run(context.Background(), clients, cluster12Scraped())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want the in-range match only", len(rows))
	}
	if rows[0].SourceURL != "https://shop.example/p/0" {
		t.Fatalf("SourceURL = %q", rows[0].SourceURL)
	}
}

func TestRunGatesOnMinScore(t *testing.T) {
	llmClient := &scriptedLLM{replies: []string{
		`{"matches": [{"client_query_id": 0, "matched_product_index": 0, "score": 0.2, "translated_title": "unrelated thing"}]}`,
	}}
	matcher := &Matcher{LLM: llmClient}

	clients := []ClientRow{{ID: 0, ClusterID: 12, Processed: "deep groove ball bearing"}}
	rows, err := matcher.Run(context.Background(), clients, cluster12Scraped())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(rows))
	}
}

func TestRunKeepsBestMatchPerClient(t *testing.T) {
	llmClient := &scriptedLLM{replies: []string{
		`{"matches": [
			{"client_query_id": 0, "matched_product_index": 0, "score": 0.7, "translated_title": "ball bearing"},
			{"client_query_id": 0, "matched_product_index": 1, "score": 0.95, "translated_title": "ball bearing"}
		]}`,
	}}
	matcher := &Matcher{LLM: llmClient}

	clients := []ClientRow{{ID: 0, ClusterID: 12, Processed: "ball bearing"}}
	rows, err := matcher.Run(context.Background(), clients, cluster12Scraped())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].SourceURL != "https://shop.example/p/1" {
		t.Fatalf("kept %q, want the higher-scoring candidate", rows[0].SourceURL)
	}
}

func TestRunSkipsClusterWithoutScraped(t *testing.T) {
	matcher := &Matcher{LLM: &scriptedLLM{}}
	clients := []ClientRow{{ID: 0, ClusterID: 99, Processed: "lonely row"}}

	rows, err := matcher.Run(context.Background(), clients, cluster12Scraped())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %d", len(rows))
	}
}

func TestMatchBatchDropsUndecodableReplies(t *testing.T) {
	llmClient := &scriptedLLM{replies: []string{"not json", "still not json", "}{"}}
	matcher := &Matcher{LLM: llmClient}

	records, err := matcher.matchBatch(context.Background(),
		[]ClientRow{{ID: 0, Processed: "ball bearing"}},
		[]Candidate{{OriginalIndex: 0, Description: "ball bearing"}})
	if err != nil {
		t.Fatalf("matchBatch() error = %v", err)
	}
	if records != nil {
		t.Fatalf("records = %v, want dropped batch", records)
	}
	if llmClient.calls != 3 {
		t.Fatalf("calls = %d, want 3", llmClient.calls)
	}
}

func TestCandidateCapBoundsPromptSize(t *testing.T) {
	reply := `{"matches": []}`
	llmClient := &scriptedLLM{replies: []string{reply}}
	matcher := &Matcher{LLM: llmClient, Options: Options{CandidateCap: 2}}

	scraped := cluster12Scraped()
	clients := []ClientRow{{ID: 0, ClusterID: 12, Processed: "produkt"}}

	if _, err := matcher.Run(context.Background(), clients, scraped); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}
