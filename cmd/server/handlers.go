package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/Simplici0/printquote/internal/material"
	"github.com/Simplici0/printquote/internal/process"
	"github.com/Simplici0/printquote/internal/quote"
	"github.com/Simplici0/printquote/internal/store"
)

const defaultMaxUpload = 100 << 20

type server struct {
	auth      *authService
	registry  *process.Registry
	generator *quote.Orchestrator
	quotes    *store.Quotes
	files     store.FileStore
	uploadDir string
	fileTTL   time.Duration
	maxUpload int64
	metrics   http.Handler
	logger    *zap.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type catalogView struct {
	Process   string              `json:"process"`
	Materials []material.Material `json:"materials"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/materials", s.handleMaterials)
		r.Post("/quotes", s.handleCreateQuote)
		r.Get("/quotes/{id}", s.handleGetQuote)
	})

	r.Post("/login", s.handleLoginSubmit)
	r.Post("/logout", s.handleLogout)
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/quotes", s.handleQuotesList)
		r.Get("/quotes/{id}/model", s.handleQuoteModel)
	})
	return r
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.auth.sessionEmail(r); !ok {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: msg})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *server) handleMaterials(w http.ResponseWriter, r *http.Request) {
	names := s.registry.Names()
	if name := strings.TrimSpace(r.URL.Query().Get("process")); name != "" {
		names = []string{name}
	}

	views := make([]catalogView, 0, len(names))
	for _, name := range names {
		p, ok := s.registry.Get(name)
		if !ok {
			writeError(w, r, http.StatusNotFound, fmt.Sprintf("unknown process %q (available: %s)", name, strings.Join(s.registry.Names(), ", ")))
			return
		}
		views = append(views, catalogView{Process: name, Materials: p.Catalog().All()})
	}
	render.JSON(w, r, views)
}

// handleCreateQuote stores the upload, generates the quote and keeps the
// model for later download when the quote was priced. A generated result is
// always 200, whatever its state.
func (s *server) handleCreateQuote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	name := strings.TrimSpace(r.FormValue("process"))
	p, ok := s.registry.Get(name)
	if !ok {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown process %q (available: %s)", name, strings.Join(s.registry.Names(), ", ")))
		return
	}
	materialID := strings.TrimSpace(r.FormValue("material_id"))
	if materialID == "" {
		writeError(w, r, http.StatusBadRequest, "material_id is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		s.logger.Error("save upload", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "failed to store upload")
		return
	}

	res := s.generator.Generate(r.Context(), quote.Request{
		Path:       path,
		FileName:   filepath.Base(header.Filename),
		Processor:  p,
		MaterialID: materialID,
	})
	s.persist(r.Context(), res, path)
	render.JSON(w, r, res)
}

func (s *server) saveUpload(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o750); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.uploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(filename)))
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return path, dst.Close()
}

// persist stores the result and registers the model for retention. Models of
// failed quotes are removed immediately. Persistence errors never change the
// response.
func (s *server) persist(ctx context.Context, res *quote.Result, path string) {
	logger := s.logger.With(zap.String("quote_id", res.ID))
	if err := s.quotes.Save(ctx, res); err != nil {
		logger.Error("save quote", zap.Error(err))
	}
	if res.State == quote.StateFailed {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("remove upload", zap.Error(err))
		}
		return
	}
	if err := s.files.Put(ctx, res.ID, path, s.fileTTL); err != nil {
		logger.Error("register quote file", zap.Error(err))
	}
}

func (s *server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	rec, err := s.quotes.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "quote not found")
		return
	}
	if err != nil {
		s.logger.Error("load quote", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "failed to load quote")
		return
	}
	render.JSON(w, r, rec.Payload)
}

func (s *server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid form")
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	valid, err := s.auth.validateCredentials(r.Context(), email, r.FormValue("password"))
	if err != nil {
		s.logger.Error("validate credentials", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}
	if !valid {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.auth.setSessionCookie(w, email)
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleQuotesList(w http.ResponseWriter, r *http.Request) {
	opts := store.ListOptions{Search: strings.TrimSpace(r.URL.Query().Get("q"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := cast.ToIntE(raw)
		if err != nil || limit < 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = limit
	}

	quotes, err := s.quotes.List(r.Context(), opts)
	if err != nil {
		s.logger.Error("list quotes", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "failed to load quotes")
		return
	}
	render.JSON(w, r, quotes)
}

func (s *server) handleQuoteModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.quotes.Get(r.Context(), id)
	if err == nil {
		var entry store.FileEntry
		entry, err = s.files.Get(r.Context(), id)
		if err == nil {
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.FileName))
			http.ServeFile(w, r, entry.Path)
			return
		}
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "model file not available")
		return
	}
	s.logger.Error("load quote model", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "failed to load model")
}
