package llm

import (
	"context"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type ChatRequest struct {
	Messages    []Message
	Temperature float64
	JSONOnly    bool
	Purpose     string
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

type Client interface {
	Chat(ctx context.Context, req ChatRequest) (string, Usage, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// APIError carries the upstream status so the retry layer can tell
// transient failures from permanent ones.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api status=%d body=%s", e.StatusCode, e.Body)
}

func (e *APIError) Transient() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// ChatJSON runs a structured chat call and decodes the reply into out
// using the layered parser. Temperature is forced to zero.
func ChatJSON(ctx context.Context, client Client, req ChatRequest, out any) error {
	req.JSONOnly = true
	req.Temperature = 0
	reply, _, err := client.Chat(ctx, req)
	if err != nil {
		return err
	}
	if err := DecodeLoose(reply, out); err != nil {
		return fmt.Errorf("decode structured reply: %w", err)
	}
	return nil
}
