package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/product"
)

type InventoryRequest struct {
	Quantity          int  `json:"quantity" validate:"gte=0"`
	LowStockThreshold int  `json:"low_stock_threshold" validate:"gte=0"`
	TrackInventory    bool `json:"track_inventory"`
	AllowBackorder    bool `json:"allow_backorder"`
}

type VariantRequest struct {
	SKU      string  `json:"sku" validate:"required"`
	Name     string  `json:"name" validate:"required"`
	Price    float64 `json:"price" validate:"gt=0"`
	Quantity int     `json:"quantity" validate:"gte=0"`
}

type ProductRequest struct {
	SKU            string           `json:"sku" validate:"required"`
	Name           string           `json:"name" validate:"required,min=2"`
	Description    string           `json:"description"`
	Price          float64          `json:"price" validate:"required,gt=0"`
	CompareAtPrice *float64         `json:"compare_at_price,omitempty" validate:"omitempty,gt=0"`
	CostPrice      *float64         `json:"cost_price,omitempty" validate:"omitempty,gte=0"`
	Inventory      InventoryRequest `json:"inventory"`
	Variants       []VariantRequest `json:"variants,omitempty" validate:"omitempty,dive"`
	CategoryID     *string          `json:"category_id,omitempty"`
}

type ProductHandler struct {
	service  product.Service
	validate *validator.Validate
}

func NewProductHandler(service product.Service) *ProductHandler {
	return &ProductHandler{service: service, validate: validator.New()}
}

func (h *ProductHandler) RegisterRoutes(router chi.Router) {
	router.Get("/products", h.handleList)
	router.Get("/products/{id}", h.handleGetByID)
	router.Get("/products/slug/{slug}", h.handleGetBySlug)
	router.Post("/products", h.handleCreate)
	router.Put("/products/{id}", h.handleUpdate)
	router.Delete("/products/{id}", h.handleDelete)
}

func (h *ProductHandler) decode(w http.ResponseWriter, r *http.Request) (*product.Product, bool) {
	var req ProductRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return nil, false
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidation(w, err)
		return nil, false
	}

	p := &product.Product{
		SKU:            req.SKU,
		Name:           req.Name,
		Description:    req.Description,
		Price:          req.Price,
		CompareAtPrice: req.CompareAtPrice,
		CostPrice:      req.CostPrice,
		Inventory: product.Inventory{
			Quantity:          req.Inventory.Quantity,
			LowStockThreshold: req.Inventory.LowStockThreshold,
			TrackInventory:    req.Inventory.TrackInventory,
			AllowBackorder:    req.Inventory.AllowBackorder,
		},
	}
	for _, v := range req.Variants {
		p.Variants = append(p.Variants, product.Variant{
			SKU:      v.SKU,
			Name:     v.Name,
			Price:    v.Price,
			Quantity: v.Quantity,
		})
	}
	if req.CategoryID != nil {
		categoryID, err := primitive.ObjectIDFromHex(*req.CategoryID)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid category id")
			return nil, false
		}
		p.CategoryID = &categoryID
	}
	return p, true
}

func (h *ProductHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.decode(w, r)
	if !ok {
		return
	}

	created, err := h.service.Create(r.Context(), p)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *ProductHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	p, ok := h.decode(w, r)
	if !ok {
		return
	}
	p.ID = id

	updated, err := h.service.Update(r.Context(), p)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *ProductHandler) handleGetByID(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	p, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) handleGetBySlug(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) handleList(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	products, err := h.service.List(r.Context(), includeInactive)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
