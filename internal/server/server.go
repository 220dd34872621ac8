// Package server is the web shell: it accepts animation prompts over HTTP,
// drives the correction loop in the background, and serves finished videos.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"animagen/internal/logging"
	"animagen/internal/pipeline"
	"animagen/internal/store"
)

//go:embed index.html
var webFS embed.FS

// Runner drives one generation run. Implemented by pipeline.Loop.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, observe pipeline.Observer) (*pipeline.Result, error)
}

// LoopRunner adapts *pipeline.Loop to the Runner interface.
type LoopRunner struct {
	Loop *pipeline.Loop
}

func (r LoopRunner) Run(ctx context.Context, req pipeline.Request, observe pipeline.Observer) (*pipeline.Result, error) {
	return r.Loop.Run(ctx, req, observe)
}

// Options configures the web shell.
type Options struct {
	ListenAddr string
	OutputDir  string
}

// Server exposes the HTTP API and tracks in-flight runs.
type Server struct {
	runner  Runner
	history *store.Store
	opts    Options

	mu   sync.RWMutex
	runs map[string]*runState

	inFlight sync.WaitGroup
}

// runState is the live view of one run, mutated as the loop progresses.
type runState struct {
	ID        string
	Prompt    string
	CreatedAt time.Time

	mu     sync.Mutex
	status pipeline.Status
	events []pipeline.Event
	result *pipeline.Result
}

// New creates the web shell. history may be nil, in which case finished runs
// are only held in memory.
func New(runner Runner, history *store.Store, opts Options) (*Server, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = ":8080"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "videos"
	}
	return &Server{
		runner:  runner,
		history: history,
		opts:    opts,
		runs:    make(map[string]*runState),
	}, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /api/generations", s.handleCreate)
	mux.HandleFunc("GET /api/generations", s.handleList)
	mux.HandleFunc("GET /api/generations/{id}", s.handleGet)
	mux.Handle("GET /videos/", http.StripPrefix("/videos/", http.FileServer(http.Dir(s.opts.OutputDir))))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Run serves HTTP until ctx is cancelled, then drains in-flight runs and
// shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	log := logging.Get(logging.CategoryServer)

	httpServer := &http.Server{
		Addr:              s.opts.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("listening on %s", s.opts.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.inFlight.Wait()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := webFS.ReadFile("index.html")
	if err != nil {
		http.Error(w, "missing UI", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	log := logging.Get(logging.CategoryServer)

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt must not be empty")
		return
	}

	state := &runState{
		ID:        uuid.NewString(),
		Prompt:    req.Prompt,
		CreatedAt: time.Now().UTC(),
		status:    pipeline.StatusRunning,
	}

	s.mu.Lock()
	s.runs[state.ID] = state
	s.mu.Unlock()

	s.inFlight.Add(1)
	go s.execute(state)

	log.Infof("accepted generation %s", state.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": state.ID})
}

// execute runs the loop for one accepted request. Detached from the HTTP
// request context so a closed browser tab does not abort the render.
func (s *Server) execute(state *runState) {
	defer s.inFlight.Done()
	log := logging.Get(logging.CategoryServer)

	req := pipeline.Request{ID: state.ID, Prompt: state.Prompt, CreatedAt: state.CreatedAt}
	result, err := s.runner.Run(context.Background(), req, func(ev pipeline.Event) {
		state.mu.Lock()
		state.events = append(state.events, ev)
		state.mu.Unlock()
	})
	if err != nil {
		log.Errorf("run %s rejected: %v", state.ID, err)
		result = &pipeline.Result{
			Request:    req,
			Status:     pipeline.StatusFailedFatal,
			FinalError: err.Error(),
		}
	}

	state.mu.Lock()
	state.status = result.Status
	state.result = result
	state.mu.Unlock()

	if s.history != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.history.SaveResult(saveCtx, result); err != nil {
			log.Errorf("failed to persist run %s: %v", state.ID, err)
		}
	}
}

// generationView is the JSON shape returned by the status endpoints.
type generationView struct {
	ID         string        `json:"id"`
	Prompt     string        `json:"prompt"`
	Status     string        `json:"status"`
	Storyboard string        `json:"storyboard,omitempty"`
	VideoURL   string        `json:"video_url,omitempty"`
	FinalError string        `json:"final_error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	Attempts   []attemptView `json:"attempts"`
	Events     []eventView   `json:"events,omitempty"`
}

type attemptView struct {
	Seq         int    `json:"seq"`
	Outcome     string `json:"outcome"`
	SceneName   string `json:"scene_name,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}

type eventView struct {
	Stage   string `json:"stage"`
	Attempt int    `json:"attempt,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.RLock()
	state, ok := s.runs[id]
	s.mu.RUnlock()
	if ok {
		writeJSON(w, http.StatusOK, s.viewFromState(state))
		return
	}

	if s.history != nil {
		gen, err := s.history.GetGeneration(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, s.viewFromStored(gen))
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, "failed to load generation")
			return
		}
	}

	writeError(w, http.StatusNotFound, "unknown generation")
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []generationView{})
		return
	}

	generations, err := s.history.ListGenerations(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list generations")
		return
	}

	views := make([]generationView, 0, len(generations))
	for i := range generations {
		views = append(views, *s.viewFromStored(&generations[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) viewFromState(state *runState) *generationView {
	state.mu.Lock()
	defer state.mu.Unlock()

	view := &generationView{
		ID:        state.ID,
		Prompt:    state.Prompt,
		Status:    string(state.status),
		CreatedAt: state.CreatedAt,
		Attempts:  []attemptView{},
	}
	for _, ev := range state.events {
		view.Events = append(view.Events, eventView{Stage: ev.Stage, Attempt: ev.Attempt, Message: ev.Message})
	}
	if state.result != nil {
		view.Storyboard = state.result.Storyboard
		view.FinalError = state.result.FinalError
		view.VideoURL = s.videoURL(state.result.VideoPath)
		for _, attempt := range state.result.Attempts {
			view.Attempts = append(view.Attempts, attemptView{
				Seq:         attempt.Seq,
				Outcome:     string(attempt.Outcome),
				SceneName:   attempt.SceneName,
				ErrorDetail: attempt.ErrorDetail,
				DurationMs:  attempt.Duration.Milliseconds(),
			})
		}
	}
	return view
}

func (s *Server) viewFromStored(gen *store.Generation) *generationView {
	view := &generationView{
		ID:         gen.ID,
		Prompt:     gen.Prompt,
		Status:     string(gen.Status),
		Storyboard: gen.Storyboard,
		FinalError: gen.FinalError,
		VideoURL:   s.videoURL(gen.VideoPath),
		CreatedAt:  gen.CreatedAt,
		Attempts:   []attemptView{},
	}
	for _, attempt := range gen.Attempts {
		view.Attempts = append(view.Attempts, attemptView{
			Seq:         attempt.Seq,
			Outcome:     string(attempt.Outcome),
			SceneName:   attempt.SceneName,
			ErrorDetail: attempt.ErrorDetail,
			DurationMs:  attempt.Duration.Milliseconds(),
		})
	}
	return view
}

// videoURL maps an artifact path inside OutputDir to its public URL. Paths
// outside OutputDir are not exposed.
func (s *Server) videoURL(videoPath string) string {
	if videoPath == "" {
		return ""
	}
	rel, err := filepath.Rel(s.opts.OutputDir, videoPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return "/videos/" + filepath.ToSlash(rel)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Get(logging.CategoryServer).Warnf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
