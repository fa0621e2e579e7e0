package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/velle-lab/gohgf/internal/hgf"
	"github.com/velle-lab/gohgf/internal/service"
)

type ModelHandler struct {
	svc *service.SessionService
}

func NewModelHandler(svc *service.SessionService) *ModelHandler {
	return &ModelHandler{svc: svc}
}

type createModelRequest struct {
	// Name labels the definition in diagnostics; Definition is raw HCL.
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

func (h *ModelHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	filename := req.Name
	if filename != "" {
		filename += ".hcl"
	}
	info, err := h.svc.Create([]byte(req.Definition), filename)
	if err != nil {
		if errors.Is(err, service.ErrDefinitionRequired) {
			writeError(w, http.StatusBadRequest, "definition is required")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, info)
}

func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": h.svc.List()})
}

func (h *ModelHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := modelID(w, r)
	if !ok {
		return
	}

	info, err := h.svc.Get(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *ModelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := modelID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(id); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type observeRequest struct {
	Observations map[string]float64 `json:"observations"`
	TimeStep     *float64           `json:"time_step"`
}

func (h *ModelHandler) Observe(w http.ResponseWriter, r *http.Request) {
	id, ok := modelID(w, r)
	if !ok {
		return
	}

	var req observeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	timeStep := 1.0
	if req.TimeStep != nil {
		timeStep = *req.TimeStep
	}

	view, err := h.svc.Observe(id, req.Observations, timeStep)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type runRequest struct {
	Series    []map[string]float64 `json:"series"`
	TimeSteps []float64            `json:"time_steps"`
}

func (h *ModelHandler) Run(w http.ResponseWriter, r *http.Request) {
	id, ok := modelID(w, r)
	if !ok {
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Series) == 0 {
		writeError(w, http.StatusBadRequest, "series is required")
		return
	}

	views, err := h.svc.Run(r.Context(), id, req.Series, req.TimeSteps)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": views})
}

func (h *ModelHandler) Nodes(w http.ResponseWriter, r *http.Request) {
	id, ok := modelID(w, r)
	if !ok {
		return
	}

	nodes, err := h.svc.Nodes(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

func (h *ModelHandler) Trajectories(w http.ResponseWriter, r *http.Request) {
	id, ok := modelID(w, r)
	if !ok {
		return
	}

	trajectories, err := h.svc.Trajectories(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trajectories": trajectories})
}

func modelID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid model id")
		return uuid.Nil, false
	}
	return id, true
}

// writeSessionError maps service and filter errors onto HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "model not found")
	case errors.Is(err, service.ErrObservationNodeUnknown),
		errors.Is(err, hgf.ErrUnknownNode),
		errors.Is(err, hgf.ErrMissingObservation),
		errors.Is(err, hgf.ErrInvalidObservation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, hgf.ErrNumericalInstability):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
