package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/motorline/catalog-service/internal/auth"
	apperrors "github.com/motorline/catalog-service/pkg/errors"
	"github.com/motorline/catalog-service/internal/domain"
	"github.com/motorline/catalog-service/internal/event"
	"github.com/motorline/catalog-service/internal/repository"
	"github.com/motorline/catalog-service/internal/service"
	"github.com/motorline/catalog-service/pkg/health"
	"github.com/motorline/catalog-service/pkg/httputil"
	pkgkafka "github.com/motorline/catalog-service/pkg/kafka"
	"github.com/motorline/catalog-service/pkg/middleware"
)

const (
	testCarID    = "550e8400-e29b-41d4-a716-446655440000"
	testReviewID = "550e8400-e29b-41d4-a716-446655440001"
)

// --- Mock store ---

type mockCarStore struct {
	mock.Mock
}

func (m *mockCarStore) Insert(ctx context.Context, car *domain.Car) error {
	args := m.Called(ctx, car)
	return args.Error(0)
}

func (m *mockCarStore) FindByID(ctx context.Context, id string) (*domain.Car, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Car), args.Error(1)
}

func (m *mockCarStore) Find(ctx context.Context, filter repository.CarFilter) ([]domain.Car, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Car), args.Int(1), args.Error(2)
}

func (m *mockCarStore) AtomicUpdate(ctx context.Context, id string, spec domain.UpdateSpec) (*domain.Car, error) {
	args := m.Called(ctx, id, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Car), args.Error(1)
}

func (m *mockCarStore) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// --- Mock cache ---

type mockCarCache struct {
	mock.Mock
}

func (m *mockCarCache) Get(ctx context.Context, id string) (*domain.Car, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Car), args.Error(1)
}

func (m *mockCarCache) Set(ctx context.Context, car *domain.Car, ttl time.Duration) error {
	args := m.Called(ctx, car, ttl)
	return args.Error(0)
}

func (m *mockCarCache) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Test helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// testTokenValidator resolves fixed test tokens to identities.
func testTokenValidator(token string) (*middleware.Claims, error) {
	switch token {
	case "admin-token":
		return &middleware.Claims{UserID: "admin-1", Role: auth.RoleAdmin}, nil
	case "user-token":
		return &middleware.Claims{UserID: "user-1", Role: auth.RoleUser}, nil
	}
	return nil, errors.New("invalid token")
}

func newTestRouter(store *mockCarStore, cache *mockCarCache) http.Handler {
	logger := testLogger()
	kafkaProducer := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:      []string{"localhost:9092"},
		BatchTimeout: time.Millisecond,
		Async:        true,
	}, logger)
	producer := event.NewProducer(kafkaProducer, logger)
	svc := service.NewCatalogService(store, cache, auth.NewGate(), producer, logger, time.Hour)
	return NewRouter(svc, health.NewHandler(), testTokenValidator, middleware.DefaultCORSConfig(), logger)
}

func doRequest(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func sampleCar() *domain.Car {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	return &domain.Car{
		ID:       testCarID,
		Make:     "Toyota",
		Model:    "Corolla",
		Year:     2021,
		Price:    1850000,
		Currency: "USD",
		Status:   domain.StatusPublished,
		Rating:   4.0,
		Reviews: []domain.Review{
			{ID: testReviewID, AuthorID: "user-1", Rating: 5, CreatedAt: now},
			{ID: "550e8400-e29b-41d4-a716-446655440002", AuthorID: "user-2", Rating: 3, CreatedAt: now},
		},
		CreatedBy:     "admin-1",
		LastUpdatedBy: "admin-1",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func apperrNotFound(id string) error {
	return apperrors.NotFound("car", id)
}

// --- GET /api/v1/cars/{id} ---

func TestGetCarEndpoint(t *testing.T) {
	store := new(mockCarStore)
	cache := new(mockCarCache)
	router := newTestRouter(store, cache)

	car := sampleCar()
	cache.On("Get", mock.Anything, testCarID).Return(car, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/cars/"+testCarID, "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Data)
	data := resp.Data.(map[string]any)
	assert.Equal(t, testCarID, data["id"])
	assert.Equal(t, 4.0, data["rating"])
}

func TestGetCarEndpoint_NotFound(t *testing.T) {
	store := new(mockCarStore)
	cache := new(mockCarCache)
	router := newTestRouter(store, cache)

	missing := "550e8400-e29b-41d4-a716-446655449999"
	cache.On("Get", mock.Anything, missing).Return(nil, apperrNotFound(missing))
	store.On("FindByID", mock.Anything, missing).Return(nil, apperrNotFound(missing))

	rec := doRequest(t, router, http.MethodGet, "/api/v1/cars/"+missing, "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestGetCarEndpoint_BadUUID(t *testing.T) {
	store := new(mockCarStore)
	cache := new(mockCarCache)
	router := newTestRouter(store, cache)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/cars/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCarEndpoint_TokenOptionalOnReads(t *testing.T) {
	store := new(mockCarStore)
	cache := new(mockCarCache)
	router := newTestRouter(store, cache)

	cache.On("Get", mock.Anything, testCarID).Return(sampleCar(), nil)

	// A valid token is accepted, an invalid one is ignored rather than
	// rejected.
	rec := doRequest(t, router, http.MethodGet, "/api/v1/cars/"+testCarID, "user-token", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/cars/"+testCarID, "expired-token", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// --- GET /api/v1/cars ---

func TestListCarsEndpoint(t *testing.T) {
	store := new(mockCarStore)
	cache := new(mockCarCache)
	router := newTestRouter(store, cache)

	store.On("Find", mock.Anything, mock.MatchedBy(func(f repository.CarFilter) bool {
		return f.Status != nil && *f.Status == domain.StatusPublished && f.Page == 2
	})).Return([]domain.Car{*sampleCar()}, 25, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/cars?status=published&page=2&per_page=10", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp httputil.PaginatedResponse[domain.Car]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 25, resp.TotalCount)
	assert.Equal(t, 2, resp.Page)
	assert.Len(t, resp.Data, 1)
}

func TestListCarsEndpoint_BadStatus(t *testing.T) {
	store := new(mockCarStore)
	cache := new(mockCarCache)
	router := newTestRouter(store, cache)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/cars?status=live", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- POST /api/v1/cars ---

func TestCreateCarEndpoint_Admin(t *testing.T) {
	store := new(mockCarStore)
	cache := new(mockCarCache)
	router := newTestRouter(store, cache)

	store.On("Insert", mock.Anything, mock.Anything).Return(nil)
	cache.On("Delete", mock.Anything, mock.Anything).Return(nil)

	body := map[string]any{
		"make":     "Honda",
		"model":    "Civic",
		"year":     2022,
		"price":    2200000,
		"currency": "USD",
	}
	rec := doRequest(t, router, http.MethodPost, "/api/v1/cars", "admin-token", body)

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "draft", data["status"])
	assert.Equal(t, 0.0, data["rating"])
}

func TestCreateCarEndpoint_UserForbidden(t *testing.T) {
	store := new(mockCarStore)
	cache := new(mockCarCache)
	router := newTestRouter(store, cache)

	body := map[string]any{
		"make":     "Honda",
		"model":    "Civic",
		"year":     2022,
		"price":    2200000,
		"currency": "USD",
	}
	rec := doRequest(t, router, http.MethodPost, "/api/v1/cars", "user-token", body)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestCreateCarEndpoint_NoToken(t *testing.T) {
	store := new(mockCarStore)
	cache := new(mockCarCache)
	router := newTestRouter(store, cache)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/cars", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateCarEndpoint_ValidationFailure(t *testing.T) {
	store := new(mockCarStore)
	cache := new(mockCarCache)
	router := newTestRouter(store, cache)

	body := map[string]any{
		"model":    "Civic",
		"year":     2022,
		"price":    2200000,
		"currency": "US",
	}
	rec := doRequest(t, router, http.MethodPost, "/api/v1/cars", "admin-token", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

// --- PATCH /api/v1/cars/{id} ---

func TestUpdateCarEndpoint(t *testing.T) {
	store := new(mockCarStore)
	cache := new(mockCarCache)
	router := newTestRouter(store, cache)

	updated := sampleCar()
	updated.Price = 99999

	store.On("AtomicUpdate", mock.Anything, testCarID, mock.MatchedBy(func(spec domain.UpdateSpec) bool {
		return spec.Set["price"] == int64(99999)
	})).Return(updated, nil)
	cache.On("Delete", mock.Anything, testCarID).Return(nil)

	rec := doRequest(t, router, http.MethodPatch, "/api/v1/cars/"+testCarID, "admin-token", map[string]any{"price": 99999})

	assert.Equal(t, http.StatusOK, rec.Code)
	cache.AssertCalled(t, "Delete", mock.Anything, testCarID)
}

func TestUpdateCarEndpoint_UserForbidden(t *testing.T) {
	store := new(mockCarStore)
	cache := new(mockCarCache)
	router := newTestRouter(store, cache)

	rec := doRequest(t, router, http.MethodPatch, "/api/v1/cars/"+testCarID, "user-token", map[string]any{"price": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	store.AssertNotCalled(t, "AtomicUpdate", mock.Anything, mock.Anything, mock.Anything)
}

// --- DELETE /api/v1/cars/{id} ---

func TestDeleteCarEndpoint(t *testing.T) {
	store := new(mockCarStore)
	cache := new(mockCarCache)
	router := newTestRouter(store, cache)

	store.On("Delete", mock.Anything, testCarID).Return(true, nil)
	cache.On("Delete", mock.Anything, testCarID).Return(nil)

	rec := doRequest(t, router, http.MethodDelete, "/api/v1/cars/"+testCarID, "admin-token", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDeleteCarEndpoint_UserForbidden(t *testing.T) {
	store := new(mockCarStore)
	cache := new(mockCarCache)
	router := newTestRouter(store, cache)

	rec := doRequest(t, router, http.MethodDelete, "/api/v1/cars/"+testCarID, "user-token", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

// --- PUT /api/v1/cars/{id}/status ---

func TestSetStatusEndpoint(t *testing.T) {
	store := new(mockCarStore)
	cache := new(mockCarCache)
	router := newTestRouter(store, cache)

	updated := sampleCar()
	updated.Status = domain.StatusArchived

	store.On("AtomicUpdate", mock.Anything, testCarID, mock.Anything).Return(updated, nil)
	cache.On("Delete", mock.Anything, testCarID).Return(nil)

	rec := doRequest(t, router, http.MethodPut, "/api/v1/cars/"+testCarID+"/status", "admin-token", map[string]any{"status": "archived"})

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "archived", data["status"])
}

func TestSetStatusEndpoint_InvalidStatus(t *testing.T) {
	store := new(mockCarStore)
	cache := new(mockCarCache)
	router := newTestRouter(store, cache)

	rec := doRequest(t, router, http.MethodPut, "/api/v1/cars/"+testCarID+"/status", "admin-token", map[string]any{"status": "live"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	store.AssertNotCalled(t, "AtomicUpdate", mock.Anything, mock.Anything, mock.Anything)
}
