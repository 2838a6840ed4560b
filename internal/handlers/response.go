package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"storefront/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps err onto a status code. Unexpected errors are
// logged and hidden behind a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToStatus(err)

	var verr *models.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, status, ErrorResponse{Error: verr.Error(), Field: verr.Field})
		return
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, "internal server error")
		return
	}
	if status == http.StatusServiceUnavailable {
		writeError(w, status, models.ErrGatewayUnavailable.Error())
		return
	}
	writeError(w, status, err.Error())
}

func mapErrorToStatus(err error) int {
	var (
		stockErr *models.StockError
		moqErr   *models.MinimumQuantityError
		valErr   *models.ValidationError
	)

	switch {
	case errors.As(err, &valErr),
		errors.As(err, &stockErr),
		errors.As(err, &moqErr),
		errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrInvalidBundle),
		errors.Is(err, models.ErrInvalidCoupon),
		errors.Is(err, models.ErrTotalMismatch),
		errors.Is(err, models.ErrVariantSizeNotFound),
		errors.Is(err, models.ErrBundleNotFound),
		errors.Is(err, models.ErrInvalidSignature),
		errors.Is(err, models.ErrMissingBody):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrCartNotFound),
		errors.Is(err, models.ErrCartItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateEntry),
		errors.Is(err, models.ErrDeliveryFeeNotNeeded),
		errors.Is(err, models.ErrInvalidStatusChange):
		return http.StatusConflict
	case errors.Is(err, models.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return models.NewValidationError("body", "is required")
		}
		return models.NewValidationError("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

// intParam parses a positive integer URL parameter.
func intParam(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v <= 0 {
		return 0, models.NewValidationError(name, "must be a positive integer")
	}
	return v, nil
}
