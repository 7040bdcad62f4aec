package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/hass-dash/db"
	"github.com/thatsimonsguy/hass-dash/internal/model"
)

const (
	defaultCycleLimit = 10
	maxCycleLimit     = 100
)

// Renderer runs a render cycle on demand.
type Renderer interface {
	RunCycle(ctx context.Context) (model.Cycle, error)
}

// FrameLoader returns the last rendered frame.
type FrameLoader interface {
	Load() (image.Image, error)
}

type Server struct {
	db       *sql.DB
	renderer Renderer
	frames   FrameLoader
}

type StatusResponse struct {
	LastCycle *model.Cycle  `json:"last_cycle"`
	Cycles    []model.Cycle `json:"cycles"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(database *sql.DB, renderer Renderer, frames FrameLoader) *Server {
	return &Server{
		db:       database,
		renderer: renderer,
		frames:   frames,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.getStatus)
		r.Get("/frame", s.getFrame)
		r.Post("/render", s.postRender)
	})
	return r
}

// Start serves the API until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("API shutdown error")
		}
	}()

	log.Info().Str("address", addr).Msg("Starting status API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	limit := defaultCycleLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxCycleLimit {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	cycles, err := db.GetRecentCycles(s.db, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read cycle journal")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := StatusResponse{Cycles: cycles}
	if len(cycles) > 0 {
		resp.LastCycle = &cycles[0]
	}
	if resp.Cycles == nil {
		resp.Cycles = []model.Cycle{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getFrame(w http.ResponseWriter, r *http.Request) {
	img, err := s.frames.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.writeError(w, http.StatusNotFound, "No frame rendered yet")
			return
		}
		log.Error().Err(err).Msg("Failed to load frame")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := png.Encode(w, img); err != nil {
		log.Warn().Err(err).Msg("Failed to write frame")
	}
}

func (s *Server) postRender(w http.ResponseWriter, r *http.Request) {
	cycle, err := s.renderer.RunCycle(r.Context())
	if err != nil {
		log.Warn().Err(err).Str("cycle", cycle.ID).Msg("Render requested via API failed")
		s.writeJSON(w, http.StatusBadGateway, cycle)
		return
	}
	log.Info().Str("cycle", cycle.ID).Str("status", string(cycle.Status)).Msg("Render requested via API")
	s.writeJSON(w, http.StatusOK, cycle)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
