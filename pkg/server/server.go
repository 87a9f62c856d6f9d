package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"sitemirror/pkg/config"
	"sitemirror/pkg/entry"
	"sitemirror/pkg/status"
)

// Starter runs the entry operation for a set of request parameters
type Starter interface {
	Handle(ctx context.Context, params url.Values) entry.Response
}

type errResponse struct {
	Error string `json:"error"`
}

// NewRouter builds the HTTP surface:
//
//	GET|POST /crawl            entry operation, parameters in the query string
//	GET      /crawls/{crawlID} per-run outcome counters
//	GET      /healthz          liveness
func NewRouter(starter Starter, recorder status.Recorder, logger *logrus.Entry) *chi.Mux {
	log := logger.WithField("component", "http")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	crawl := func(w http.ResponseWriter, r *http.Request) {
		resp := starter.Handle(r.Context(), r.URL.Query())
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(resp.Body())
	}
	r.Get("/crawl", crawl)
	r.Post("/crawl", crawl)

	r.Get("/crawls/{crawlID}", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "crawlID"))
		if id == "" {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: "missing crawl id"})
			return
		}
		snap, found, err := recorder.Get(r.Context(), id)
		if err != nil {
			log.WithField("crawl_id", id).Errorf("Status lookup failed: %v", err)
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: "status lookup failed"})
			return
		}
		if !found {
			writeJSON(w, http.StatusNotFound, errResponse{Error: "not found"})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	return r
}

// NewHTTPServer wraps handler in a server with the configured timeouts
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start),
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("HTTP request")
		})
	}
}
