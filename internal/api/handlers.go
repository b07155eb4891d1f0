package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/liamashdown/whaletracker/internal/metrics"
	"github.com/liamashdown/whaletracker/internal/whale"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// queryLimit parses ?limit=; zero means the service default
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return n, nil
}

func pathAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	addr := mux.Vars(r)["address"]
	if !addressPattern.MatchString(addr) {
		writeError(w, http.StatusBadRequest, "address must be 0x followed by 40 hex characters")
		return "", false
	}
	return addr, true
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	metrics.RecordHealthCheck(true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ready reports the data mode; degraded still serves, so it stays 200
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	metrics.RecordHealthCheck(true)
	st := s.tracker.GetAPIKeyStatus()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ready",
		"mode":          st.Mode.Mode,
		"usingMockData": st.UsingMockData,
	})
}

func (s *Server) recentTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.GetRecentWhaleTransactions(r.Context(), limit))
}

func (s *Server) tokenAnalysis(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.GetTokenWhaleAnalysis(r.Context(), addr))
}

func (s *Server) tokenHolders(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.GetTokenHolders(r.Context(), addr, limit))
}

func (s *Server) whaleAddress(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.GetWhaleAddress(r.Context(), addr))
}

func (s *Server) insights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.GetWhaleInsights(r.Context()))
}

func (s *Server) alerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.GetWhaleAlerts(r.Context()))
}

func (s *Server) getThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.GetWhaleThresholds())
}

func (s *Server) putThresholds(w http.ResponseWriter, r *http.Request) {
	var u whale.ThresholdsUpdate
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid thresholds body: "+err.Error())
		return
	}

	t, err := s.tracker.SetWhaleThresholds(r.Context(), u)
	if errors.Is(err, whale.ErrInvalidThresholds) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.GetAPIKeyStatus())
}
