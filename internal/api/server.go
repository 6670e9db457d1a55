// Package api serves stored trips and the live tick stream over HTTP.
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"obd-emissions-monitor/internal/db"
	"obd-emissions-monitor/internal/models"
	"obd-emissions-monitor/internal/obd"
)

// Server is the REST and websocket API over the trip store.
type Server struct {
	db     *db.Database
	hub    *Hub
	router *mux.Router
	log    *zap.Logger
}

// NewServer wires routes, middleware and the live hub.
func NewServer(database *db.Database, log *zap.Logger) *Server {
	s := &Server{
		db:     database,
		hub:    NewHub(log),
		router: mux.NewRouter(),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/v1/trips", s.handleListTrips).Methods("GET")
	s.router.HandleFunc("/api/v1/trips/{id}", s.handleGetTrip).Methods("GET")
	s.router.HandleFunc("/api/v1/trips/{id}", s.handleDeleteTrip).Methods("DELETE")
	s.router.HandleFunc("/api/v1/trips/{id}/route", s.handleGetRoute).Methods("GET")

	s.router.HandleFunc("/api/v1/stats", s.handleStats).Methods("GET")
	s.router.HandleFunc("/api/v1/decode", s.handleDecode).Methods("POST")
	s.router.HandleFunc("/api/v1/live", s.handleLive).Methods("GET")

	s.router.Use(s.loggingMiddleware)
	s.router.Use(jsonMiddleware)
}

// Router returns the configured router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Hub returns the live tick hub for a monitoring session to feed.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The live endpoint hijacks the connection; headers set here
		// would be discarded anyway, but skip it for clarity.
		if r.URL.Path != "/api/v1/live" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *meta       `json:"meta,omitempty"`
}

type meta struct {
	Total   int   `json:"total,omitempty"`
	Limit   int   `json:"limit,omitempty"`
	Offset  int   `json:"offset,omitempty"`
	QueryMs int64 `json:"query_ms,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

func respondWithMeta(w http.ResponseWriter, data interface{}, m *meta) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data, Meta: m})
}

// Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleListTrips(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	q := models.TripQuery{
		VehicleID: r.URL.Query().Get("vehicle"),
		Limit:     100,
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		q.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		q.Offset, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("since"); v != "" {
		q.Since, _ = time.Parse(time.RFC3339, v)
	}
	if v := r.URL.Query().Get("until"); v != "" {
		q.Until, _ = time.Parse(time.RFC3339, v)
	}
	if v := r.URL.Query().Get("min_distance"); v != "" {
		q.MinDistanceKm, _ = strconv.ParseFloat(v, 64)
	}

	trips, err := s.db.ListTrips(q)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithMeta(w, trips, &meta{
		Total:   len(trips),
		Limit:   q.Limit,
		Offset:  q.Offset,
		QueryMs: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid trip id")
		return
	}

	trip, err := s.db.GetTrip(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "trip not found")
		return
	}
	respondJSON(w, http.StatusOK, trip)
}

func (s *Server) handleDeleteTrip(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid trip id")
		return
	}

	if err := s.db.DeleteTrip(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "trip not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

func (s *Server) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid trip id")
		return
	}

	points, err := s.db.GetRoute(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, points)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetFleetStats()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// handleDecode is a debug surface over the core decoder: it takes a PID
// code and a raw adapter response and returns the decoded value.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PID      string `json:"pid"`
		Response string `json:"response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	pid, err := obd.ParsePID(req.PID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"pid":   pid.String(),
		"name":  pid.Name(),
		"unit":  pid.Unit(),
		"value": obd.Decode(pid, req.Response),
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local tool; the dashboard may be served from another port.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleLive upgrades the connection and streams ticks until the client
// disconnects or the session detaches.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if !s.hub.Attached() {
		respondError(w, http.StatusServiceUnavailable, "no monitoring session active")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", zap.Error(err))
		return
	}

	s.hub.add(conn)
	s.log.Info("live client connected", zap.String("remote", conn.RemoteAddr().String()))

	// Drain client messages so pings are answered and closes noticed.
	go func() {
		defer s.hub.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
