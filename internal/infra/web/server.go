package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"converse-relay/internal/domain/ports/adapter"
	"converse-relay/internal/infra/logging"
	"converse-relay/internal/usecase"
)

type Options struct {
	// AllowedOrigin is echoed in Access-Control-Allow-Origin. Defaults to "*".
	AllowedOrigin string
	// MetricsPath mounts Metrics when both are set.
	MetricsPath string
	Metrics     http.Handler
}

type Server struct {
	turns  usecase.TurnUseCase
	speech adapter.SpeechClient
	log    *zerolog.Logger
	opts   Options
}

func NewServer(turns usecase.TurnUseCase, speech adapter.SpeechClient, logger *zerolog.Logger, opts Options) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	return &Server{turns: turns, speech: speech, log: logger, opts: opts}
}

// Routes builds the public router consumed by the browser frontend.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Post("/chat", s.handleChat)
	r.Get("/results", s.handleResults)
	r.Post("/tts", s.handleTTS)
	r.Get("/health", s.handleHealth)
	if s.opts.MetricsPath != "" && s.opts.Metrics != nil {
		r.Method(http.MethodGet, s.opts.MetricsPath, s.opts.Metrics)
	}
	return r
}

// cors mirrors the permissive policy the browser frontend expects.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.opts.AllowedOrigin)
		h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
