package benchmark

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spendlens/spendlens/internal/warehouse"
)

func TestLoadClientsUppercasesColumnsAndCoercesClusterIDs(t *testing.T) {
	result := warehouse.Result{
		Columns: []string{"id", "cluster_id", "category", "sku_description", "normalised_description", "quantity", "extracted_quantity", "spend"},
		Rows: [][]any{
			{int64(1), "12", "Bearings", "BRG-6205", "Deep Groove Ball Bearing 6205", 4.0, 1.0, 200.0},
			{int64(2), 7.0, "Valves", "VLV-1", "Brass Ball Valve DN50", 1.0, 0.0, 50.0},
			{int64(3), nil, "Valves", "VLV-2", "no cluster", 1.0, 0.0, 10.0},
			{int64(4), int64(7), "Valves", "VLV-3", "   ", 1.0, 0.0, 10.0},
		},
	}

	clients, err := LoadClients(result)
	if err != nil {
		t.Fatalf("LoadClients() error = %v", err)
	}
	if len(clients) != 2 {
		t.Fatalf("clients = %d, want 2", len(clients))
	}
	if clients[0].ClusterID != 12 {
		t.Fatalf("ClusterID = %d", clients[0].ClusterID)
	}
	if clients[0].Processed != "deep groove ball bearing 6205" {
		t.Fatalf("Processed = %q", clients[0].Processed)
	}
	if clients[1].ClusterID != 7 || clients[1].ID != 2 {
		t.Fatalf("clients[1] = %+v", clients[1])
	}
}

func TestLoadClientsRequiresColumns(t *testing.T) {
	if _, err := LoadClients(warehouse.Result{}); err == nil {
		t.Fatal("LoadClients() expected error for empty result")
	}
}

func TestLoadScrapedCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.csv")
	content := "cluster_id,title,price_currency,unit_price,url\n" +
		"12,SKF Kugellager 6205,EUR,4.99,https://shop.example/p/1\n" +
		"12,,EUR,1.00,https://shop.example/p/2\n" +
		"bad,Valve,EUR,2.00,https://shop.example/p/3\n" +
		"13.0,Brass Valve DN50,USD,8.50,https://shop.example/p/4\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	products, err := LoadScraped(path)
	if err != nil {
		t.Fatalf("LoadScraped() error = %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("products = %d, want 2 (blank title and bad cluster dropped)", len(products))
	}
	if products[0].ClusterID != 12 || products[0].Processed != "skf kugellager 6205" {
		t.Fatalf("products[0] = %+v", products[0])
	}
	if products[1].ClusterID != 13 || products[1].UnitPrice != 8.5 {
		t.Fatalf("products[1] = %+v", products[1])
	}
}

func TestLoadScrapedRejectsUnknownFormat(t *testing.T) {
	if _, err := LoadScraped("dataset.xlsx"); err == nil {
		t.Fatal("LoadScraped() expected error for unknown extension")
	}
}

func TestCoerceInt(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  int
		ok    bool
	}{
		{"int64", int64(5), 5, true},
		{"float", 5.0, 5, true},
		{"numeric string", "5", 5, true},
		{"float string", "5.0", 5, true},
		{"garbage", "five", 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := coerceInt(tt.input)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("coerceInt(%v) = (%d, %v), want (%d, %v)", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}
