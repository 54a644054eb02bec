package enginecheck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Outcome is the verdict of one dry run. When Valid is false, Error
// carries the engine's complaint for the correction prompt.
type Outcome struct {
	Valid   bool
	SQL     string
	Columns []string
	Error   string
}

// Validator checks candidate SQL against the engine without running it
// for real.
type Validator interface {
	DryRun(ctx context.Context, database, sqlText string) (Outcome, error)
}

type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPValidator calls the engine's explain endpoint.
type HTTPValidator struct {
	baseURL string
	client  *http.Client
}

func NewHTTPValidator(cfg HTTPConfig) (*HTTPValidator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPValidator{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (v *HTTPValidator) DryRun(ctx context.Context, database, sqlText string) (Outcome, error) {
	if strings.TrimSpace(sqlText) == "" {
		return Outcome{}, fmt.Errorf("sql is required")
	}

	body, err := json.Marshal(map[string]string{
		"database": database,
		"sql":      sqlText,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal dry run request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/v1/dry-run", bytes.NewReader(body))
	if err != nil {
		return Outcome{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(httpReq)
	if err != nil {
		// A slow engine is a verdict, not a failure: treat timeouts as
		// an invalid outcome so the correction path can react.
		if isTimeout(err) {
			return Outcome{
				Valid: false,
				SQL:   sqlText,
				Error: "dry run timed out",
			}, nil
		}
		return Outcome{}, fmt.Errorf("dry run request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, fmt.Errorf("read dry run response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return Outcome{}, fmt.Errorf("engine status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Valid   bool     `json:"valid"`
		Columns []string `json:"columns"`
		Error   string   `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Outcome{}, fmt.Errorf("decode dry run response: %w", err)
	}
	return Outcome{
		Valid:   parsed.Valid,
		SQL:     sqlText,
		Columns: parsed.Columns,
		Error:   parsed.Error,
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}
