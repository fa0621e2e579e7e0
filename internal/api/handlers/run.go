package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/velle-lab/gohgf/internal/service"
)

type RunHandler struct {
	svc *service.ArchiveService
}

func NewRunHandler(svc *service.ArchiveService) *RunHandler {
	return &RunHandler{svc: svc}
}

type archiveRequest struct {
	ModelID  string         `json:"model_id"`
	Metadata map[string]any `json:"metadata"`
}

func (h *RunHandler) Archive(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	modelID, err := uuid.Parse(req.ModelID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid model_id")
		return
	}

	run, err := h.svc.Archive(r.Context(), modelID, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "model not found")
		case errors.Is(err, service.ErrNothingToSave):
			writeError(w, http.StatusBadRequest, "session has no committed steps")
		default:
			writeError(w, http.StatusInternalServerError, "failed to archive run")
		}
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.svc.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *RunHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	run, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *RunHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeRunError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RunHandler) Similar(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	topK, _ := strconv.Atoi(r.URL.Query().Get("top_k"))
	if topK <= 0 {
		topK = 5
	}

	matches, err := h.svc.Similar(r.Context(), id, topK)
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": matches})
}

func runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}

func writeRunError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}
