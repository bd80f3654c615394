package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/motorline/catalog-service/internal/auth"
	"github.com/motorline/catalog-service/internal/domain"
	"github.com/motorline/catalog-service/internal/event"
	"github.com/motorline/catalog-service/internal/repository"
	apperrors "github.com/motorline/catalog-service/pkg/errors"
)

// DefaultCacheTTL bounds how long a cached snapshot may outlive its last
// read-repopulation.
const DefaultCacheTTL = time.Hour

// CatalogService implements the catalog operations. Every mutation runs
// gate check, then a single atomic store operation, then unconditional cache
// invalidation, in that order.
type CatalogService struct {
	store    repository.CarStore
	cache    repository.CarCache
	gate     *auth.Gate
	producer *event.Producer
	logger   *slog.Logger
	cacheTTL time.Duration
}

// NewCatalogService creates the catalog service.
func NewCatalogService(
	store repository.CarStore,
	cache repository.CarCache,
	gate *auth.Gate,
	producer *event.Producer,
	logger *slog.Logger,
	cacheTTL time.Duration,
) *CatalogService {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &CatalogService{
		store:    store,
		cache:    cache,
		gate:     gate,
		producer: producer,
		logger:   logger,
		cacheTTL: cacheTTL,
	}
}

// CreateCarInput holds the parameters for creating a car listing.
type CreateCarInput struct {
	Make     string
	Model    string
	Year     int
	Price    int64
	Currency string
	Status   string
	Spec     map[string]any
	Images   []domain.ImageDescriptor
}

// UpdateCarInput is a partial update. Nil fields are left unchanged. Rating
// and reviews are not part of this input; they are owned by the review
// operations.
type UpdateCarInput struct {
	Make     *string
	Model    *string
	Year     *int
	Price    *int64
	Currency *string
	Status   *string
	Spec     map[string]any
	Images   []domain.ImageDescriptor
}

// GetCar returns the car by id, serving from cache when possible. On a miss
// the store is read and the snapshot written back with the standard TTL. A
// cache failure never fails the read.
func (s *CatalogService) GetCar(ctx context.Context, id string) (*domain.Car, error) {
	car, err := s.cache.Get(ctx, id)
	if err == nil {
		return car, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.WarnContext(ctx, "cache read failed, falling back to store",
			slog.String("car_id", id),
			slog.String("error", err.Error()),
		)
	}

	car, err = s.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get car: %w", err)
	}

	if err := s.cache.Set(ctx, car, s.cacheTTL); err != nil {
		s.logger.WarnContext(ctx, "cache populate failed",
			slog.String("car_id", id),
			slog.String("error", err.Error()),
		)
	}

	return car, nil
}

// ListCars returns cars matching the filter with the total count. List
// results are never cached; only single-entity snapshots are.
func (s *CatalogService) ListCars(ctx context.Context, filter repository.CarFilter) ([]domain.Car, int, error) {
	cars, total, err := s.store.Find(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list cars: %w", err)
	}
	return cars, total, nil
}

// CreateCar creates a listing. Admin only. Rating starts at 0, images empty,
// status draft unless the caller overrides it.
func (s *CatalogService) CreateCar(ctx context.Context, caller auth.Caller, input *CreateCarInput) (*domain.Car, error) {
	if err := s.gate.Check(caller, auth.OpCreateCar, ""); err != nil {
		return nil, err
	}

	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = domain.StatusDraft
	}

	images := input.Images
	if images == nil {
		images = []domain.ImageDescriptor{}
	}

	now := time.Now().UTC()
	car := &domain.Car{
		Make:          input.Make,
		Model:         input.Model,
		Year:          input.Year,
		Price:         input.Price,
		Currency:      strings.ToUpper(input.Currency),
		Status:        status,
		Spec:          input.Spec,
		Images:        images,
		Rating:        0,
		Reviews:       []domain.Review{},
		CreatedBy:     caller.ID,
		LastUpdatedBy: caller.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.Insert(ctx, car); err != nil {
		return nil, fmt.Errorf("create car: %w", err)
	}

	// Ids are store-assigned so no entry should exist, but clear defensively.
	s.invalidate(ctx, car.ID)

	s.publishEvent(ctx, car.ID, func() error { return s.producer.PublishCarCreated(ctx, car) })

	s.logger.InfoContext(ctx, "car created",
		slog.String("car_id", car.ID),
		slog.String("make", car.Make),
		slog.String("model", car.Model),
	)

	return car, nil
}

// UpdateCar applies a partial update. Admin only. Rating and reviews cannot
// be touched through this path.
func (s *CatalogService) UpdateCar(ctx context.Context, caller auth.Caller, id string, input *UpdateCarInput) (*domain.Car, error) {
	if err := s.gate.Check(caller, auth.OpUpdateCar, ""); err != nil {
		return nil, err
	}
	if input.Images != nil {
		if err := s.gate.Check(caller, auth.OpMutateImages, ""); err != nil {
			return nil, err
		}
	}

	set := map[string]any{"last_updated_by": caller.ID}
	if input.Make != nil {
		set["make"] = *input.Make
	}
	if input.Model != nil {
		set["model"] = *input.Model
	}
	if input.Year != nil {
		set["year"] = *input.Year
	}
	if input.Price != nil {
		if *input.Price < 0 {
			return nil, apperrors.InvalidArgument("price must not be negative")
		}
		set["price"] = *input.Price
	}
	if input.Currency != nil {
		set["currency"] = strings.ToUpper(*input.Currency)
	}
	if input.Status != nil {
		if !domain.IsValidStatus(*input.Status) {
			return nil, apperrors.InvalidArgument(fmt.Sprintf("status must be one of %s", strings.Join(domain.ValidStatuses, ", ")))
		}
		set["status"] = *input.Status
	}
	if input.Spec != nil {
		set["spec"] = input.Spec
	}
	if input.Images != nil {
		set["images"] = input.Images
	}

	car, err := s.store.AtomicUpdate(ctx, id, domain.UpdateSpec{Set: set})
	if err != nil {
		return nil, fmt.Errorf("update car: %w", err)
	}

	s.invalidate(ctx, id)

	s.publishEvent(ctx, id, func() error { return s.producer.PublishCarUpdated(ctx, car) })

	s.logger.InfoContext(ctx, "car updated", slog.String("car_id", id))

	return car, nil
}

// DeleteCar removes a listing. Admin only.
func (s *CatalogService) DeleteCar(ctx context.Context, caller auth.Caller, id string) error {
	if err := s.gate.Check(caller, auth.OpDeleteCar, ""); err != nil {
		return err
	}

	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete car: %w", err)
	}
	if !deleted {
		return apperrors.NotFound("car", id)
	}

	s.invalidate(ctx, id)

	s.publishEvent(ctx, id, func() error { return s.producer.PublishCarDeleted(ctx, id) })

	s.logger.InfoContext(ctx, "car deleted", slog.String("car_id", id))

	return nil
}

// SetStatus transitions a listing between draft, published, and archived.
// Admin only.
func (s *CatalogService) SetStatus(ctx context.Context, caller auth.Caller, id, status string) (*domain.Car, error) {
	if err := s.gate.Check(caller, auth.OpSetStatus, ""); err != nil {
		return nil, err
	}

	if !domain.IsValidStatus(status) {
		return nil, apperrors.InvalidArgument(fmt.Sprintf("status must be one of %s", strings.Join(domain.ValidStatuses, ", ")))
	}

	car, err := s.store.AtomicUpdate(ctx, id, domain.UpdateSpec{
		Set: map[string]any{
			"status":          status,
			"last_updated_by": caller.ID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}

	s.invalidate(ctx, id)

	s.publishEvent(ctx, id, func() error { return s.producer.PublishCarUpdated(ctx, car) })

	s.logger.InfoContext(ctx, "car status changed",
		slog.String("car_id", id),
		slog.String("status", status),
	)

	return car, nil
}

// invalidate deletes the cache entry for id with one retry. Failures are
// logged and swallowed; the next read repopulates from the store, and the
// TTL bounds how long a stale entry can survive a doubly failed delete.
func (s *CatalogService) invalidate(ctx context.Context, id string) {
	err := s.cache.Delete(ctx, id)
	if err == nil {
		return
	}
	if err = s.cache.Delete(ctx, id); err == nil {
		return
	}
	s.logger.ErrorContext(ctx, "cache invalidation failed",
		slog.String("car_id", id),
		slog.String("error", err.Error()),
	)
}

// publishEvent fires a domain event best-effort. Publishing failures never
// fail the operation.
func (s *CatalogService) publishEvent(ctx context.Context, id string, publish func() error) {
	if err := publish(); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("car_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func validateCreateInput(input *CreateCarInput) error {
	if input.Make == "" {
		return apperrors.InvalidArgument("make is required")
	}
	if input.Model == "" {
		return apperrors.InvalidArgument("model is required")
	}
	if input.Year < 1886 || input.Year > time.Now().Year()+1 {
		return apperrors.InvalidArgument("year is out of range")
	}
	if input.Price < 0 {
		return apperrors.InvalidArgument("price must not be negative")
	}
	if len(input.Currency) != 3 {
		return apperrors.InvalidArgument("currency must be a 3-letter ISO code")
	}
	if input.Status != "" && !domain.IsValidStatus(input.Status) {
		return apperrors.InvalidArgument(fmt.Sprintf("status must be one of %s", strings.Join(domain.ValidStatuses, ", ")))
	}
	return nil
}
