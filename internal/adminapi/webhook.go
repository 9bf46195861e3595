package adminapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// webhookResponse is the always-200 JSON summary handleWebhook replies
// with, mirroring webhook_router.py's receive_webhook: per-event errors are
// reported in the body, never via HTTP status.
type webhookResponse struct {
	Status    string          `json:"status"`
	Message   string          `json:"message,omitempty"`
	Processed []webhookResult `json:"processed,omitempty"`
}

type webhookResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// handleWebhook accepts a single event object or an array of event objects
// and runs each through C11's Dispatcher, never failing the HTTP response
// for a per-event error.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeJSON(w, http.StatusOK, webhookResponse{Status: "error", Message: "failed to read body"})

		return
	}

	events, err := decodeWebhookBody(body)
	if err != nil {
		s.logger.Warn("invalid webhook payload", "error", err)
		s.writeJSON(w, http.StatusOK, webhookResponse{Status: "error", Message: "invalid webhook format"})

		return
	}

	ctx := r.Context()
	results := make([]webhookResult, 0, len(events))

	for _, event := range events {
		summary := s.dispatcher.ParseEvent(ctx, event)
		results = append(results, webhookResult{Status: summary.Status, Message: summary.Message})
	}

	s.writeJSON(w, http.StatusOK, webhookResponse{Status: "success", Processed: results})
}

// decodeWebhookBody accepts either `{...}` or `[{...}, ...]` JSON bodies,
// always returning a slice so the caller has one code path.
func decodeWebhookBody(body []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errEmptyBody
	}

	if trimmed[0] == '[' {
		var batch []map[string]any
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, err
		}

		return batch, nil
	}

	var single map[string]any
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, err
	}

	return []map[string]any{single}, nil
}
