package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spendlens/spendlens/internal/vectorstore"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the qdrant HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) Search(ctx context.Context, req vectorstore.SearchRequest) ([]vectorstore.Point, error) {
	if req.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	payload := map[string]any{
		"vector":       req.Vector,
		"limit":        limit,
		"with_payload": true,
	}
	if req.ScoreThreshold > 0 {
		payload["score_threshold"] = req.ScoreThreshold
	}
	if filter := encodeFilter(req.Filter); filter != nil {
		payload["filter"] = filter
	}

	raw, err := c.post(ctx, fmt.Sprintf("/collections/%s/points/search", req.Collection), payload)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Result []struct {
			ID      json.RawMessage `json:"id"`
			Score   float64         `json:"score"`
			Payload map[string]any  `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	points := make([]vectorstore.Point, 0, len(parsed.Result))
	for _, hit := range parsed.Result {
		points = append(points, vectorstore.Point{
			ID:      decodeID(hit.ID),
			Score:   hit.Score,
			Payload: hit.Payload,
		})
	}
	return points, nil
}

// GetAll pages through the scroll API until the collection is
// exhausted for the given filter.
func (c *Client) GetAll(ctx context.Context, collection string, filter *vectorstore.Filter) ([]vectorstore.Point, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var points []vectorstore.Point
	var offset json.RawMessage
	for {
		payload := map[string]any{
			"limit":        256,
			"with_payload": true,
		}
		if encoded := encodeFilter(filter); encoded != nil {
			payload["filter"] = encoded
		}
		if offset != nil {
			payload["offset"] = offset
		}

		raw, err := c.post(ctx, fmt.Sprintf("/collections/%s/points/scroll", collection), payload)
		if err != nil {
			return nil, err
		}

		var parsed struct {
			Result struct {
				Points []struct {
					ID      json.RawMessage `json:"id"`
					Payload map[string]any  `json:"payload"`
				} `json:"points"`
				NextPageOffset json.RawMessage `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("decode scroll response: %w", err)
		}
		for _, point := range parsed.Result.Points {
			points = append(points, vectorstore.Point{
				ID:      decodeID(point.ID),
				Payload: point.Payload,
			})
		}
		if len(parsed.Result.NextPageOffset) == 0 || string(parsed.Result.NextPageOffset) == "null" {
			return points, nil
		}
		offset = parsed.Result.NextPageOffset
	}
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("qdrant %s status=%d body=%s", path, resp.StatusCode, string(raw))
	}
	return raw, nil
}

func encodeFilter(filter *vectorstore.Filter) map[string]any {
	if filter == nil || (len(filter.Must) == 0 && len(filter.Should) == 0) {
		return nil
	}
	encoded := map[string]any{}
	if len(filter.Must) > 0 {
		encoded["must"] = encodeConditions(filter.Must)
	}
	if len(filter.Should) > 0 {
		encoded["should"] = encodeConditions(filter.Should)
	}
	return encoded
}

func encodeConditions(conditions []vectorstore.Condition) []map[string]any {
	encoded := make([]map[string]any, 0, len(conditions))
	for _, condition := range conditions {
		encoded = append(encoded, map[string]any{
			"key":   condition.Field,
			"match": map[string]any{"value": condition.Value},
		})
	}
	return encoded
}

// decodeID renders qdrant ids (integers or UUID strings) as strings.
func decodeID(raw json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	return strings.TrimSpace(string(raw))
}
