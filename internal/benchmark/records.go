package benchmark

// ScrapedProduct is one row of the scraped dataset after cleaning.
type ScrapedProduct struct {
	ClusterID int
	Title     string
	Processed string
	Currency  string
	UnitPrice float64
	URL       string
}

// ClientRow is one client SKU from NORMALISED_DATA after cleaning.
type ClientRow struct {
	ID                    int
	ClusterID             int
	Category              string
	SKUDescription        string
	NormalizedDescription string
	Processed             string
	Quantity              float64
	ExtractedQuantity     float64
	Spend                 float64
}

// MatchRecord is one match from a bulk LLM call. MatchedProductIndex
// is batch-local and must be remapped through the candidate list.
type MatchRecord struct {
	ClientQueryID       int     `json:"client_query_id"`
	MatchedProductIndex int     `json:"matched_product_index"`
	Score               float64 `json:"score"`
	TranslatedTitle     string  `json:"translated_title"`
}

// ResultRow is one emitted benchmark match. The parquet tags shape the
// artifact written next to the warehouse upload.
type ResultRow struct {
	ClusterID             int64   `parquet:"CLUSTER_ID"`
	Category              string  `parquet:"CATEGORY"`
	SKUDescription        string  `parquet:"SKU_DESCRIPTION"`
	NormalizedDescription string  `parquet:"NORMALISED_DESCRIPTION"`
	SourceDescription     string  `parquet:"SOURCE_DESCRIPTION"`
	PriceCurrency         string  `parquet:"PRICE_CURRENCY"`
	SourceUnitPrice       float64 `parquet:"SOURCE_UNIT_PRICE"`
	SourceURL             string  `parquet:"SOURCE_URL"`
	SimilarityScore       float64 `parquet:"SIMILARITY_SCORE"`
	Quantity              float64 `parquet:"QUANTITY"`
	ExtractedQuantity     float64 `parquet:"EXTRACTED_QUANTITY"`
	Spend                 float64 `parquet:"SPEND"`
}

var resultColumns = []string{
	"CLUSTER_ID", "CATEGORY", "SKU_DESCRIPTION", "NORMALISED_DESCRIPTION",
	"SOURCE_DESCRIPTION", "PRICE_CURRENCY", "SOURCE_UNIT_PRICE", "SOURCE_URL",
	"SIMILARITY_SCORE", "QUANTITY", "EXTRACTED_QUANTITY", "SPEND",
}

func (r ResultRow) values() []any {
	return []any{
		r.ClusterID, r.Category, r.SKUDescription, r.NormalizedDescription,
		r.SourceDescription, r.PriceCurrency, r.SourceUnitPrice, r.SourceURL,
		r.SimilarityScore, r.Quantity, r.ExtractedQuantity, r.Spend,
	}
}
