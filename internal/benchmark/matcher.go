package benchmark

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/spendlens/spendlens/internal/llm"
	"github.com/spendlens/spendlens/internal/observability"
)

type Options struct {
	ClusterParallelism int
	BatchSize          int
	CandidateCap       int
	LLMWeight          float64
	CosineWeight       float64
	MinScore           float64
}

func (o Options) withDefaults() Options {
	if o.ClusterParallelism <= 0 {
		o.ClusterParallelism = 25
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.CandidateCap <= 0 {
		o.CandidateCap = 100
	}
	if o.LLMWeight == 0 && o.CosineWeight == 0 {
		o.LLMWeight, o.CosineWeight = 0.7, 0.3
	}
	if o.MinScore == 0 {
		o.MinScore = 0.5
	}
	return o
}

// Matcher pairs client SKUs with scraped products cluster by cluster.
// LLM should be a retrying client so transient API faults are absorbed
// before a batch is given up on.
type Matcher struct {
	LLM     llm.Client
	Logger  *slog.Logger
	Options Options
}

func (m *Matcher) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Run fans clusters out over a bounded worker pool and merges their
// emitted rows. Cluster order does not affect the result set.
func (m *Matcher) Run(ctx context.Context, clients []ClientRow, scraped []ScrapedProduct) ([]ResultRow, error) {
	options := m.Options.withDefaults()

	clientsByCluster := map[int][]ClientRow{}
	for _, client := range clients {
		clientsByCluster[client.ClusterID] = append(clientsByCluster[client.ClusterID], client)
	}
	scrapedByCluster := map[int][]ScrapedProduct{}
	for _, product := range scraped {
		scrapedByCluster[product.ClusterID] = append(scrapedByCluster[product.ClusterID], product)
	}

	clusterIDs := make([]int, 0, len(clientsByCluster))
	for clusterID := range clientsByCluster {
		clusterIDs = append(clusterIDs, clusterID)
	}
	sort.Ints(clusterIDs)

	var mu sync.Mutex
	var merged []ResultRow

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(options.ClusterParallelism)
	for _, clusterID := range clusterIDs {
		clusterClients := clientsByCluster[clusterID]
		clusterScraped := scrapedByCluster[clusterID]
		if len(clusterScraped) == 0 {
			observability.ObserveBenchmarkCluster("skipped")
			continue
		}
		group.Go(func() error {
			rows, err := m.matchCluster(groupCtx, clusterID, clusterClients, clusterScraped, options)
			if err != nil {
				observability.ObserveBenchmarkCluster("error")
				return fmt.Errorf("cluster %d: %w", clusterID, err)
			}
			observability.ObserveBenchmarkCluster("matched")
			mu.Lock()
			merged = append(merged, rows...)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	observability.AddBenchmarkMatchesEmitted(len(merged))
	return merged, nil
}

type scoredMatch struct {
	client      ClientRow
	product     ScrapedProduct
	description string
	hybrid      float64
}

func (m *Matcher) matchCluster(ctx context.Context, clusterID int, clients []ClientRow, scraped []ScrapedProduct, options Options) ([]ResultRow, error) {
	if len(scraped) > options.CandidateCap {
		scraped = scraped[:options.CandidateCap]
	}

	candidates := make([]Candidate, 0, len(scraped))
	for index, product := range scraped {
		candidates = append(candidates, Candidate{OriginalIndex: index, Description: product.Processed})
	}

	clientByID := make(map[int]ClientRow, len(clients))
	for _, client := range clients {
		clientByID[client.ID] = client
	}

	var mu sync.Mutex
	best := map[int]scoredMatch{}

	// All batches share the candidate list so indices stay stable
	// within the cluster.
	group, groupCtx := errgroup.WithContext(ctx)
	for start := 0; start < len(clients); start += options.BatchSize {
		end := start + options.BatchSize
		if end > len(clients) {
			end = len(clients)
		}
		batch := clients[start:end]
		group.Go(func() error {
			records, err := m.matchBatch(groupCtx, batch, candidates)
			if err != nil {
				return err
			}
			for _, record := range records {
				match, ok := m.scoreMatch(clusterID, record, clientByID, candidates, scraped, options)
				if !ok {
					continue
				}
				mu.Lock()
				current, exists := best[match.client.ID]
				if !exists || match.hybrid > current.hybrid {
					best[match.client.ID] = match
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	clientIDs := make([]int, 0, len(best))
	for clientID := range best {
		clientIDs = append(clientIDs, clientID)
	}
	sort.Ints(clientIDs)

	rows := make([]ResultRow, 0, len(clientIDs))
	for _, clientID := range clientIDs {
		match := best[clientID]
		if match.hybrid <= options.MinScore {
			observability.IncrementBenchmarkMatchDropped("below_threshold")
			continue
		}
		rows = append(rows, ResultRow{
			ClusterID:             int64(clusterID),
			Category:              match.client.Category,
			SKUDescription:        match.client.SKUDescription,
			NormalizedDescription: match.client.NormalizedDescription,
			SourceDescription:     match.description,
			PriceCurrency:         match.product.Currency,
			SourceUnitPrice:       match.product.UnitPrice,
			SourceURL:             match.product.URL,
			SimilarityScore:       match.hybrid,
			Quantity:              match.client.Quantity,
			ExtractedQuantity:     match.client.ExtractedQuantity,
			Spend:                 match.client.Spend,
		})
	}
	return rows, nil
}

func (m *Matcher) scoreMatch(clusterID int, record MatchRecord, clientByID map[int]ClientRow, candidates []Candidate, scraped []ScrapedProduct, options Options) (scoredMatch, bool) {
	client, ok := clientByID[record.ClientQueryID]
	if !ok {
		m.logger().Warn("match refers to unknown client", "cluster", clusterID, "client_query_id", record.ClientQueryID)
		observability.IncrementBenchmarkMatchDropped("unknown_client")
		return scoredMatch{}, false
	}
	if record.MatchedProductIndex < 0 || record.MatchedProductIndex >= len(candidates) {
		m.logger().Warn("match index out of range",
			"cluster", clusterID, "index", record.MatchedProductIndex, "candidates", len(candidates))
		observability.IncrementBenchmarkMatchDropped("index_out_of_range")
		return scoredMatch{}, false
	}

	product := scraped[candidates[record.MatchedProductIndex].OriginalIndex]
	description := record.TranslatedTitle
	if description == "" {
		description = candidates[record.MatchedProductIndex].Description
	}
	cosine := CosineSimilarity(client.Processed, description)
	hybrid := HybridScore(record.Score, cosine, options.LLMWeight, options.CosineWeight)

	return scoredMatch{
		client:      client,
		product:     product,
		description: description,
		hybrid:      hybrid,
	}, true
}
