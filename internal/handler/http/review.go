package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/motorline/catalog-service/internal/service"
	"github.com/motorline/catalog-service/pkg/httputil"
	"github.com/motorline/catalog-service/pkg/validator"
)

// ReviewHandler handles HTTP requests for review endpoints nested under cars.
type ReviewHandler struct {
	service *service.CatalogService
	logger  *slog.Logger
}

// NewReviewHandler creates a review HTTP handler.
func NewReviewHandler(svc *service.CatalogService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{service: svc, logger: logger}
}

// AddReviewRequest is the JSON request body for adding a review.
type AddReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=4000"`
}

// UpdateReviewRequest is the JSON request body for updating a review.
type UpdateReviewRequest struct {
	Rating  *int    `json:"rating" validate:"omitempty,gte=1,lte=5"`
	Comment *string `json:"comment" validate:"omitempty,max=4000"`
}

// AddReview handles POST /api/v1/cars/{id}/reviews. The review author is the
// authenticated caller.
func (h *ReviewHandler) AddReview(w http.ResponseWriter, r *http.Request) {
	carID, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req AddReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	caller := callerFromRequest(r)
	car, err := h.service.AddReview(r.Context(), caller, carID.String(), &service.AddReviewInput{
		AuthorID: caller.ID,
		Rating:   req.Rating,
		Comment:  req.Comment,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: car})
}

// UpdateReview handles PATCH /api/v1/cars/{id}/reviews/{reviewId}
func (h *ReviewHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	carID, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	reviewID, ok := httputil.ParseUUID(w, chi.URLParam(r, "reviewId"))
	if !ok {
		return
	}

	var req UpdateReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	car, err := h.service.UpdateReview(r.Context(), callerFromRequest(r), carID.String(), reviewID.String(), &service.UpdateReviewInput{
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: car})
}

// DeleteReview handles DELETE /api/v1/cars/{id}/reviews/{reviewId}
func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	carID, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	reviewID, ok := httputil.ParseUUID(w, chi.URLParam(r, "reviewId"))
	if !ok {
		return
	}

	car, err := h.service.DeleteReview(r.Context(), callerFromRequest(r), carID.String(), reviewID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: car})
}
