// File: internal/infra/adapters/ondemand/workflow.go
package ondemand

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"converse-relay/internal/domain"
	"converse-relay/internal/domain/ports/adapter"
	"converse-relay/internal/infra/metrics"
)

var _ adapter.WorkflowClient = (*WorkflowClient)(nil)

// executionIDFields are the handle aliases seen in execute responses, in priority order.
var executionIDFields = []string{"id", "executionId", "executionID", "execution_id"}

// WorkflowClient triggers on-demand.io automation workflows. Every failure
// short of an unreadable body degrades to an empty handle.
type WorkflowClient struct {
	opts Options
	tr   *transport
}

func NewWorkflowClient(o Options) *WorkflowClient {
	o = o.withDefaults()
	return &WorkflowClient{opts: o, tr: newTransport(o)}
}

func (w *WorkflowClient) Configured() bool {
	return !IsPlaceholder(w.opts.APIKey) && !IsPlaceholder(w.opts.WorkflowID)
}

func (w *WorkflowClient) ExecuteWorkflow(ctx context.Context, message string) (string, error) {
	if !w.Configured() {
		metrics.IncWorkflowSkipped("not_configured")
		return "", nil
	}

	endpoint := fmt.Sprintf("%s/workflow/%s/execute", w.opts.AutomationURL, url.PathEscape(w.opts.WorkflowID))
	resp, err := w.tr.postJSON(ctx, "workflow.execute", endpoint, map[string]any{
		"input": map[string]string{"message": message},
	})
	if err != nil {
		return "", err
	}

	var out map[string]any
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("%w: workflow execute: %v", domain.ErrInvalidResponse, err)
	}
	if !resp.ok() {
		w.opts.Logger.Warn().Err(resp.statusError("workflow.execute")).Msg("workflow execute failed, continuing without workflow")
		metrics.IncWorkflowSkipped("status")
		return "", nil
	}

	id := executionID(out)
	if id == "" {
		w.opts.Logger.Warn().Str("body", preview(resp.Body)).Msg("workflow response carried no execution id")
		metrics.IncWorkflowSkipped("no_handle")
	}
	return id, nil
}

func executionID(m map[string]any) string {
	for _, k := range executionIDFields {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
