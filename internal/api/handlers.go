package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/FairForge/reclaimer/internal/retention"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type HoldRequest struct {
	Scope      string     `json:"scope"`
	Prefix     string     `json:"prefix"`
	Reason     string     `json:"reason"`
	CaseNumber string     `json:"case_number,omitempty"`
	CreatedBy  string     `json:"created_by"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) handleListHolds(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}

	holds, err := s.holds.ActiveHolds(r.Context(), scope)
	if err != nil {
		s.logger.Error("list holds failed", zap.String("scope", scope), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list holds")
		return
	}
	writeJSON(w, http.StatusOK, holds)
}

func (s *Server) handleCreateHold(w http.ResponseWriter, r *http.Request) {
	var req HoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	hold, err := s.holds.CreateHold(r.Context(), &retention.LegalHold{
		Scope:      req.Scope,
		Prefix:     req.Prefix,
		Reason:     req.Reason,
		CaseNumber: req.CaseNumber,
		CreatedBy:  req.CreatedBy,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, hold)
}

func (s *Server) handleReleaseHold(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid hold id")
		return
	}

	if err := s.holds.ReleaseHold(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}

	policies, err := s.policies.Policies(r.Context(), scope)
	if err != nil {
		s.logger.Error("load policies failed", zap.String("scope", scope), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load policies")
		return
	}
	if policies == nil {
		policies = []retention.RetentionPolicy{}
	}
	writeJSON(w, http.StatusOK, policies)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), scope, limit)
	if err != nil {
		s.logger.Error("read history failed", zap.String("scope", scope), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func requireScope(w http.ResponseWriter, r *http.Request) (string, bool) {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		writeError(w, http.StatusBadRequest, "scope required")
		return "", false
	}
	return scope, true
}
