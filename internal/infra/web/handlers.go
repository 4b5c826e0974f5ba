package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"converse-relay/internal/domain"
)

const maxBodyBytes = 1 << 20

type chatRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type ttsRequest struct {
	Text string `json:"text"`
}

type browserTTS struct {
	UseBrowserTTS bool   `json:"useBrowserTTS"`
	Text          string `json:"text"`
	Message       string `json:"message"`
}

// handleChat acknowledges immediately; the turn itself runs in the background.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	receipt, err := s.turns.Submit(r.Context(), req.UserID, req.Message)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, domain.ErrValidation.Error())
			return
		}
		s.log.Error().Err(err).Str("request_id", reqID(r)).Msg("failed to accept chat turn")
		writeError(w, http.StatusInternalServerError, "failed to accept message")
		return
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId query parameter required")
		return
	}
	res, err := s.turns.Result(r.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Str("request_id", reqID(r)).Msg("failed to read turn result")
		writeError(w, http.StatusInternalServerError, "failed to read result")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleTTS never fails the caller on upstream trouble; it tells the browser
// to synthesize locally instead.
func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}
	if s.speech == nil {
		writeJSON(w, http.StatusOK, browserTTS{true, req.Text, "Using browser text-to-speech (API key missing)"})
		return
	}

	payload, err := s.speech.Synthesize(r.Context(), req.Text)
	if err != nil {
		msg := "Using browser text-to-speech"
		var se *domain.UpstreamStatusError
		switch {
		case errors.Is(err, domain.ErrNotConfigured):
			msg = "Using browser text-to-speech (API key missing)"
		case errors.As(err, &se):
			msg = "Using browser text-to-speech (service unavailable)"
			s.log.Warn().Err(err).Msg("tts upstream error")
		default:
			s.log.Warn().Err(err).Msg("tts failed")
		}
		writeJSON(w, http.StatusOK, browserTTS{true, req.Text, msg})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
