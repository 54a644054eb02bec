package benchmark

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/spendlens/spendlens/internal/warehouse"
)

// LoadScraped reads the downloaded scraped dataset. CSV and parquet
// files are both accepted; the format follows the file extension.
func LoadScraped(path string) ([]ScrapedProduct, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadScrapedCSV(path)
	case ".parquet":
		return loadScrapedParquet(path)
	default:
		return nil, fmt.Errorf("unsupported scraped dataset format: %q", filepath.Ext(path))
	}
}

func loadScrapedCSV(path string) ([]ScrapedProduct, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scraped csv: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read scraped csv header: %w", err)
	}
	index := map[string]int{}
	for i, name := range header {
		index[strings.ToUpper(strings.TrimSpace(name))] = i
	}

	var products []ScrapedProduct
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read scraped csv row: %w", err)
		}
		product, ok := scrapedFromFields(func(column string) (string, bool) {
			i, found := index[column]
			if !found || i >= len(record) {
				return "", false
			}
			return record[i], true
		})
		if ok {
			products = append(products, product)
		}
	}
	return products, nil
}

type scrapedParquetRow struct {
	ClusterID float64 `parquet:"cluster_id,optional"`
	Title     string  `parquet:"title,optional"`
	Currency  string  `parquet:"price_currency,optional"`
	UnitPrice float64 `parquet:"unit_price,optional"`
	URL       string  `parquet:"url,optional"`
}

func loadScrapedParquet(path string) ([]ScrapedProduct, error) {
	rows, err := parquet.ReadFile[scrapedParquetRow](path)
	if err != nil {
		return nil, fmt.Errorf("read scraped parquet: %w", err)
	}

	products := make([]ScrapedProduct, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.Title) == "" {
			continue
		}
		products = append(products, ScrapedProduct{
			ClusterID: int(row.ClusterID),
			Title:     row.Title,
			Processed: CleanText(row.Title),
			Currency:  row.Currency,
			UnitPrice: row.UnitPrice,
			URL:       row.URL,
		})
	}
	return products, nil
}

func scrapedFromFields(field func(string) (string, bool)) (ScrapedProduct, bool) {
	title, _ := field("TITLE")
	if strings.TrimSpace(title) == "" {
		return ScrapedProduct{}, false
	}
	rawCluster, _ := field("CLUSTER_ID")
	clusterID, ok := coerceInt(rawCluster)
	if !ok {
		return ScrapedProduct{}, false
	}
	currency, _ := field("PRICE_CURRENCY")
	rawPrice, _ := field("UNIT_PRICE")
	unitPrice, _ := coerceFloat(rawPrice)
	url, _ := field("URL")

	return ScrapedProduct{
		ClusterID: clusterID,
		Title:     title,
		Processed: CleanText(title),
		Currency:  currency,
		UnitPrice: unitPrice,
		URL:       url,
	}, true
}

// LoadClients converts NORMALISED_DATA rows into client records.
// Column names are uppercased first; rows without a usable cluster id
// or description are skipped.
func LoadClients(result warehouse.Result) ([]ClientRow, error) {
	if len(result.Columns) == 0 {
		return nil, fmt.Errorf("client table has no columns")
	}
	index := map[string]int{}
	for i, name := range result.Columns {
		index[strings.ToUpper(strings.TrimSpace(name))] = i
	}

	cell := func(row []any, column string) any {
		i, ok := index[column]
		if !ok || i >= len(row) {
			return nil
		}
		return row[i]
	}

	clients := make([]ClientRow, 0, len(result.Rows))
	for position, row := range result.Rows {
		clusterID, ok := coerceInt(cell(row, "CLUSTER_ID"))
		if !ok {
			continue
		}
		description := asString(cell(row, "NORMALISED_DESCRIPTION"))
		if description == "" {
			description = asString(cell(row, "NORMALIZED_DESCRIPTION"))
		}
		processed := CleanText(description)
		if processed == "" {
			continue
		}

		id := position
		if parsed, ok := coerceInt(cell(row, "ID")); ok {
			id = parsed
		}
		quantity, _ := coerceFloat(cell(row, "QUANTITY"))
		extracted, _ := coerceFloat(cell(row, "EXTRACTED_QUANTITY"))
		spend, _ := coerceFloat(cell(row, "SPEND"))

		clients = append(clients, ClientRow{
			ID:                    id,
			ClusterID:             clusterID,
			Category:              asString(cell(row, "CATEGORY")),
			SKUDescription:        asString(cell(row, "SKU_DESCRIPTION")),
			NormalizedDescription: description,
			Processed:             processed,
			Quantity:              quantity,
			ExtractedQuantity:     extracted,
			Spend:                 spend,
		})
	}
	return clients, nil
}

func asString(value any) string {
	if value == nil {
		return ""
	}
	if text, ok := value.(string); ok {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(fmt.Sprintf("%v", value))
}

func coerceInt(value any) (int, bool) {
	switch typed := value.(type) {
	case int:
		return typed, true
	case int32:
		return int(typed), true
	case int64:
		return int(typed), true
	case float32:
		return int(typed), true
	case float64:
		return int(typed), true
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return 0, false
		}
		if parsed, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return int(parsed), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func coerceFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return 0, false
		}
		if parsed, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return parsed, true
		}
		return 0, false
	default:
		return 0, false
	}
}
