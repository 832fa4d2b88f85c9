package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gunmark-data/marks.report/internal/moe"
	"github.com/gunmark-data/marks.report/internal/store"
)

// Server serves the tracker state and history.
type Server struct {
	tracker *moe.Tracker
	store   *store.Store
	hub     *Hub
	preview *previewConfig
}

// NewServer wires the HTTP surface over a tracker, a store, and the
// overlay hub. Store may be nil for store-less runs; the history
// endpoints then report 404.
func NewServer(tracker *moe.Tracker, st *store.Store, hub *Hub) *Server {
	return &Server{
		tracker: tracker,
		store:   st,
		hub:     hub,
	}
}

// ServeMux builds the full route table. static serves the overlay
// bundle at the root when non-nil.
func (s *Server) ServeMux(static http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/hub/stats", s.handleHubStats)
	mux.HandleFunc("/api/frames", s.handleFrames)
	mux.HandleFunc("/api/frames/file", s.handleFrameFile)
	mux.HandleFunc("/api/preview", s.handlePreview)
	mux.HandleFunc("/ws", s.hub.Handler)
	mux.HandleFunc("/charts/sessions", s.handleSessionsChart)
	mux.HandleFunc("/charts/history", s.handleHistoryChart)
	mux.HandleFunc("/plots/history.png", s.handleHistoryPlot)
	if static != nil {
		mux.Handle("/", static)
	}
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.tracker.Snapshot())
}

func (s *Server) handleHubStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.hub.Stats())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		s.writeJSONError(w, http.StatusNotFound, "no session store")
		return
	}

	limit := queryInt(r, "limit", 0)
	var (
		sessions []store.SessionRecord
		err      error
	)
	if tankID := queryInt(r, "tank_id", 0); tankID != 0 {
		sessions, err = s.store.TankSessions(tankID, limit)
	} else {
		sessions, err = s.store.RecentSessions(limit)
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []store.SessionRecord{}
	}
	s.writeJSON(w, sessions)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		s.writeJSONError(w, http.StatusNotFound, "no session store")
		return
	}

	tankID := queryInt(r, "tank_id", s.tracker.TankID())
	if tankID == 0 {
		s.writeJSONError(w, http.StatusBadRequest, "tank_id required")
		return
	}
	battles, err := s.store.BattleHistory(tankID, queryInt(r, "limit", 0))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if battles == nil {
		battles = []store.BattleRecord{}
	}
	s.writeJSON(w, battles)
}

// queryInt parses an integer query parameter, returning def when absent
// or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
