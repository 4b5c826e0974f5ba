package client

import (
	"encoding/json"
	"strings"

	"converse-relay/internal/domain/model"
)

// Reply extracts display text from a settled record. Chat payload shapes
// differ between upstream versions, so a few known fields are tried in order.
// The workflow handle, when present, is appended on its own paragraph.
func Reply(r *model.TaskResult) string {
	if r == nil {
		return ""
	}
	if r.Status == model.TaskStatusError {
		return "Error: " + r.Error
	}

	text := chatText(r.ChatResponse)
	if r.WorkflowResult != "" {
		if text != "" {
			text += "\n\n"
		}
		text += r.WorkflowResult
	}
	if text == "" {
		b, _ := json.MarshalIndent(r, "", "  ")
		return string(b)
	}
	return text
}

func chatText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	var body struct {
		Content string `json:"content"`
		Message string `json:"message"`
		Data    struct {
			Answer  string `json:"answer"`
			Content string `json:"content"`
			Message string `json:"message"`
		} `json:"data"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	for _, v := range []string{body.Data.Answer, body.Content, body.Data.Content, body.Data.Message, body.Message} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
