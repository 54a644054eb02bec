package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/spendlens/spendlens/internal/ask"
	"github.com/spendlens/spendlens/internal/auth"
)

type askRequest struct {
	Question  string `json:"question"`
	TenantID  string `json:"tenant_id"`
	Category  string `json:"category"`
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
	Currency  string `json:"currency"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "ask dependencies are not configured", false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	tenantID := strings.TrimSpace(request.TenantID)
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		// An authenticated caller is pinned to its own tenant.
		if tenantID != "" && tenantID != identity.TenantID {
			writeError(r.Context(), w, http.StatusForbidden, "TENANT_MISMATCH", "tenant_id does not match API key tenant", false, nil)
			return
		}
		tenantID = identity.TenantID
	}
	if tenantID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TENANT_REQUIRED", "tenant_id is required", false, nil)
		return
	}
	tenant, ok := deps.Tenants[tenantID]
	if !ok {
		writeError(r.Context(), w, http.StatusNotFound, "TENANT_UNKNOWN", "tenant is not configured", false, map[string]any{"tenant_id": tenantID})
		return
	}

	ctx := r.Context()
	if deps.AskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deps.AskTimeout)
		defer cancel()
	}

	response, err := deps.Pipeline.Run(ctx, ask.Query{
		RawText:   request.Question,
		TenantID:  tenantID,
		Category:  request.Category,
		SessionID: request.SessionID,
		Language:  request.Language,
		Currency:  request.Currency,
	}, tenant)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(r.Context(), w, http.StatusGatewayTimeout, "ASK_TIMEOUT",
				"question processing exceeded the request deadline", true,
				map[string]any{"timeout": deps.AskTimeout.String()})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "ASK_FAILED", "question processing failed", true, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, response)
}
