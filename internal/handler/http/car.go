package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/motorline/catalog-service/internal/domain"
	"github.com/motorline/catalog-service/internal/repository"
	"github.com/motorline/catalog-service/internal/service"
	"github.com/motorline/catalog-service/pkg/httputil"
	"github.com/motorline/catalog-service/pkg/validator"
)

// CarHandler handles HTTP requests for car listing endpoints.
type CarHandler struct {
	service *service.CatalogService
	logger  *slog.Logger
}

// NewCarHandler creates a car HTTP handler.
func NewCarHandler(svc *service.CatalogService, logger *slog.Logger) *CarHandler {
	return &CarHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

type imageDescriptor struct {
	URL     string `json:"url" validate:"required,url"`
	Alt     string `json:"alt"`
	Primary bool   `json:"primary"`
}

// CreateCarRequest is the JSON request body for creating a car listing.
type CreateCarRequest struct {
	Make     string            `json:"make" validate:"required,min=1,max=100"`
	Model    string            `json:"model" validate:"required,min=1,max=200"`
	Year     int               `json:"year" validate:"required,gte=1886"`
	Price    int64             `json:"price" validate:"gte=0"`
	Currency string            `json:"currency" validate:"required,len=3"`
	Status   string            `json:"status" validate:"omitempty,oneof=draft published archived"`
	Spec     map[string]any    `json:"spec"`
	Images   []imageDescriptor `json:"images" validate:"omitempty,dive"`
}

// UpdateCarRequest is the JSON request body for partially updating a car.
// Rating and reviews are not accepted here; they belong to the review
// endpoints.
type UpdateCarRequest struct {
	Make     *string           `json:"make" validate:"omitempty,min=1,max=100"`
	Model    *string           `json:"model" validate:"omitempty,min=1,max=200"`
	Year     *int              `json:"year" validate:"omitempty,gte=1886"`
	Price    *int64            `json:"price" validate:"omitempty,gte=0"`
	Currency *string           `json:"currency" validate:"omitempty,len=3"`
	Status   *string           `json:"status" validate:"omitempty,oneof=draft published archived"`
	Spec     map[string]any    `json:"spec"`
	Images   []imageDescriptor `json:"images" validate:"omitempty,dive"`
}

// SetStatusRequest is the JSON request body for a status transition.
type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft published archived"`
}

func toDomainImages(in []imageDescriptor) []domain.ImageDescriptor {
	if in == nil {
		return nil
	}
	out := make([]domain.ImageDescriptor, len(in))
	for i, img := range in {
		out[i] = domain.ImageDescriptor{URL: img.URL, Alt: img.Alt, Primary: img.Primary}
	}
	return out
}

// --- Handlers ---

// ListCars handles GET /api/v1/cars
func (h *CarHandler) ListCars(w http.ResponseWriter, r *http.Request) {
	filter := repository.CarFilter{Page: 1, PerPage: 20}

	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "page must be a positive integer"},
			})
			return
		}
		filter.Page = page
	}
	if v := q.Get("per_page"); v != "" {
		perPage, err := strconv.Atoi(v)
		if err != nil || perPage < 1 || perPage > 100 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "per_page must be between 1 and 100"},
			})
			return
		}
		filter.PerPage = perPage
	}
	if v := q.Get("make"); v != "" {
		filter.Make = &v
	}
	if v := q.Get("status"); v != "" {
		if !domain.IsValidStatus(v) {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "status must be one of: draft, published, archived"},
			})
			return
		}
		filter.Status = &v
	}
	if v := q.Get("year_min"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "year_min must be a number"},
			})
			return
		}
		filter.YearMin = &year
	}
	if v := q.Get("year_max"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "year_max must be a number"},
			})
			return
		}
		filter.YearMax = &year
	}
	if v := q.Get("price_min"); v != "" {
		price, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "price_min must be a number"},
			})
			return
		}
		filter.PriceMin = &price
	}
	if v := q.Get("price_max"); v != "" {
		price, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "price_max must be a number"},
			})
			return
		}
		filter.PriceMax = &price
	}

	cars, total, err := h.service.ListCars(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(cars, total, filter.Page, filter.PerPage))
}

// GetCar handles GET /api/v1/cars/{id}
func (h *CarHandler) GetCar(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	car, err := h.service.GetCar(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: car})
}

// CreateCar handles POST /api/v1/cars
func (h *CarHandler) CreateCar(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req CreateCarRequest
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

	input := &service.CreateCarInput{
		Make:     req.Make,
		Model:    req.Model,
		Year:     req.Year,
		Price:    req.Price,
		Currency: req.Currency,
		Status:   req.Status,
		Spec:     req.Spec,
		Images:   toDomainImages(req.Images),
	}

	car, err := h.service.CreateCar(r.Context(), callerFromRequest(r), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: car})
}

// UpdateCar handles PATCH /api/v1/cars/{id}
func (h *CarHandler) UpdateCar(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req UpdateCarRequest
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

	input := &service.UpdateCarInput{
		Make:     req.Make,
		Model:    req.Model,
		Year:     req.Year,
		Price:    req.Price,
		Currency: req.Currency,
		Status:   req.Status,
		Spec:     req.Spec,
		Images:   toDomainImages(req.Images),
	}

	car, err := h.service.UpdateCar(r.Context(), callerFromRequest(r), id.String(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: car})
}

// DeleteCar handles DELETE /api/v1/cars/{id}
func (h *CarHandler) DeleteCar(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeleteCar(r.Context(), callerFromRequest(r), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetStatus handles PUT /api/v1/cars/{id}/status
func (h *CarHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req SetStatusRequest
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

	car, err := h.service.SetStatus(r.Context(), callerFromRequest(r), id.String(), req.Status)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: car})
}
