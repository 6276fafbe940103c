package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/category"
)

type CategoryRequest struct {
	Name        string  `json:"name" validate:"required,min=2"`
	Description string  `json:"description"`
	ParentID    *string `json:"parent_id,omitempty"`
}

type ReparentRequest struct {
	ParentID *string `json:"parent_id"`
}

type CategoryHandler struct {
	service  category.Service
	validate *validator.Validate
}

func NewCategoryHandler(service category.Service) *CategoryHandler {
	return &CategoryHandler{service: service, validate: validator.New()}
}

func (h *CategoryHandler) RegisterRoutes(router chi.Router) {
	router.Get("/categories", h.handleList)
	router.Get("/categories/{id}", h.handleGetByID)
	router.Post("/categories", h.handleCreate)
	router.Put("/categories/{id}", h.handleRename)
	router.Patch("/categories/{id}/parent", h.handleReparent)
	router.Delete("/categories/{id}", h.handleDelete)
}

func parentIDFrom(w http.ResponseWriter, raw *string) (*primitive.ObjectID, bool) {
	if raw == nil {
		return nil, true
	}
	id, err := primitive.ObjectIDFromHex(*raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid parent id")
		return nil, false
	}
	return &id, true
}

func (h *CategoryHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidation(w, err)
		return
	}

	parentID, ok := parentIDFrom(w, req.ParentID)
	if !ok {
		return
	}

	created, err := h.service.Create(r.Context(), req.Name, req.Description, parentID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *CategoryHandler) handleGetByID(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	c, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

func (h *CategoryHandler) handleList(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.List(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, categories)
}

func (h *CategoryHandler) handleRename(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	var req CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidation(w, err)
		return
	}

	renamed, err := h.service.Rename(r.Context(), id, req.Name, req.Description)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, renamed)
}

func (h *CategoryHandler) handleReparent(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	var req ReparentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	parentID, ok := parentIDFrom(w, req.ParentID)
	if !ok {
		return
	}

	moved, err := h.service.Reparent(r.Context(), id, parentID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, moved)
}

func (h *CategoryHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
