package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"adversim/internal/sim"
	"adversim/internal/store"
)

// Server exposes a simulation over HTTP and streams tick snapshots over
// WebSocket. The simulation itself is single-threaded; the server serializes
// lifecycle changes (run/stop/reset) behind its own lock and lets read
// handlers poll the sim's snapshot accessors.
type Server struct {
	mu      sync.Mutex
	sim     *sim.Simulation
	runTomb *tomb.Tomb
	runID   string

	st       *store.Store
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewServer builds a server around a fresh simulation. st may be nil to run
// without persistence.
func NewServer(cfg sim.Config, st *store.Store) (*Server, error) {
	s, err := sim.New(cfg)
	if err != nil {
		return nil, err
	}
	srv := &Server{
		sim: s,
		st:  st,
		hub: NewHub(),
	}
	srv.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return srv, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/book", s.handleBook)
		r.Get("/trades", s.handleTrades)
		r.Get("/config", s.handleConfig)

		r.Post("/run", s.handleRun)
		r.Post("/stop", s.handleStop)
		r.Post("/reset", s.handleReset)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}/trades", s.handleRunTrades)
		r.Get("/runs/{id}/metrics", s.handleRunMetrics)
	})

	r.Get("/ws", s.handleWebSocket)

	return r
}

func (s *Server) currentSim() *sim.Simulation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.currentSim().GetCurrentState())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.currentSim().MetricsHistory())
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.currentSim().GetCurrentState().Book)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades := s.currentSim().GetTrades()

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit < len(trades) {
		trades = trades[len(trades)-limit:]
	}
	writeJSON(w, trades)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.currentSim().Config())
}

type runRequest struct {
	Realtime bool `json:"realtime"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runTomb != nil && s.runTomb.Alive() {
		http.Error(w, "run already in progress", http.StatusConflict)
		return
	}

	simulation := s.sim
	if s.st != nil {
		runID, err := s.st.CreateRun(simulation.Config())
		if err != nil {
			log.Error().Err(err).Msg("record run start")
		} else {
			s.runID = runID
		}
	}
	runID := s.runID

	simulation.OnSnapshot(func(snap sim.Snapshot) {
		s.hub.Broadcast(map[string]any{
			"type":     "tick",
			"snapshot": snap,
		})
	})

	t := &tomb.Tomb{}
	t.Go(func() error {
		simulation.Run(req.Realtime)
		s.persistRun(simulation, runID)
		s.hub.Broadcast(map[string]any{
			"type": "done",
			"tick": simulation.Tick(),
		})
		return nil
	})
	s.runTomb = t

	log.Info().Bool("realtime", req.Realtime).Str("run_id", runID).Msg("run started")
	writeJSON(w, map[string]any{"status": "running", "run_id": runID})
}

func (s *Server) persistRun(simulation *sim.Simulation, runID string) {
	if s.st == nil || runID == "" {
		return
	}
	if err := s.st.FinishRun(runID, simulation.Tick()); err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("finish run")
	}
	if err := s.st.SaveTrades(runID, simulation.GetTrades()); err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("persist trades")
	}
	if err := s.st.SaveMetrics(runID, simulation.MetricsHistory()); err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("persist metrics")
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sim.Stop()
	writeJSON(w, map[string]string{"status": "stopping"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Merge overrides onto the current configuration.
	cfg := s.sim.Config()
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid config body", http.StatusBadRequest)
			return
		}
	}

	s.sim.Stop()
	if s.runTomb != nil {
		s.runTomb.Wait()
	}

	fresh, err := sim.New(cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.sim = fresh
	s.runTomb = nil
	s.runID = ""

	log.Info().Int64("seed", cfg.Seed).Int("ticks", cfg.Ticks).Msg("simulation reset")
	writeJSON(w, cfg)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.st == nil {
		http.Error(w, "persistence disabled", http.StatusNotFound)
		return
	}
	runs, err := s.st.ListRuns(50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

func (s *Server) handleRunTrades(w http.ResponseWriter, r *http.Request) {
	if s.st == nil {
		http.Error(w, "persistence disabled", http.StatusNotFound)
		return
	}
	trades, err := s.st.TradesForRun(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, trades)
}

func (s *Server) handleRunMetrics(w http.ResponseWriter, r *http.Request) {
	if s.st == nil {
		http.Error(w, "persistence disabled", http.StatusNotFound)
		return
	}
	history, err := s.st.MetricsForRun(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, history)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.hub.Register(client)

	// Seed the client with the current state.
	if data, err := json.Marshal(map[string]any{
		"type":     "state",
		"snapshot": s.currentSim().GetCurrentState(),
	}); err == nil {
		client.send <- data
	}

	go client.WritePump()
	go client.ReadPump()
}

// Shutdown stops the active run (if any) and closes client connections.
func (s *Server) Shutdown() {
	s.mu.Lock()
	t := s.runTomb
	s.sim.Stop()
	s.mu.Unlock()

	if t != nil {
		t.Wait()
	}
	s.hub.Stop()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
