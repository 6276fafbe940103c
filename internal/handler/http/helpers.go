package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"storefront/internal/cart"
	"storefront/internal/category"
	"storefront/internal/counter"
	"storefront/internal/order"
	"storefront/internal/product"
	"storefront/internal/user"
)

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		details[fieldErr.Field()] = fmt.Sprintf("failed on the %q rule", fieldErr.Tag())
	}
	return details
}

// respondWithValidation writes a structured 400 for validator errors and
// a generic 500 for anything else the validator returns.
func respondWithValidation(w http.ResponseWriter, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:   "Validation failed",
			Details: formatValidationErrors(validationErrors),
		})
		return
	}
	log.Error().Err(err).Msg("Unexpected error type during validation")
	respondWithError(w, http.StatusInternalServerError, "Internal validation error")
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, product.ErrValidation),
		errors.Is(err, cart.ErrValidation),
		errors.Is(err, category.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, user.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, product.ErrProductNotFound),
		errors.Is(err, cart.ErrCartNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, category.ErrCategoryNotFound),
		errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, product.ErrSKUExists),
		errors.Is(err, category.ErrSlugExists),
		errors.Is(err, user.ErrEmailExists),
		errors.Is(err, product.ErrInsufficientStock),
		errors.Is(err, product.ErrProductInactive),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrStatusConflict),
		errors.Is(err, category.ErrCircularReference),
		errors.Is(err, category.ErrNotEmpty):
		return http.StatusConflict
	case errors.Is(err, order.ErrCartEmpty),
		errors.Is(err, order.ErrTotalMismatch),
		errors.Is(err, category.ErrMaxDepthExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, counter.ErrSequenceOverflow),
		errors.Is(err, counter.ErrGenerationFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError maps a domain error to a status code; 5xx
// responses hide the internal message from the client.
func respondWithServiceError(w http.ResponseWriter, err error) {
	code := mapErrorToStatusCode(err)
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("handler: request failed")
		respondWithError(w, code, http.StatusText(code))
		return
	}
	respondWithError(w, code, err.Error())
}
