package repository

import (
	"context"
	"time"

	"github.com/motorline/catalog-service/internal/domain"
)

// CarFilter defines filter criteria for listing cars.
type CarFilter struct {
	Make     *string
	Status   *string
	YearMin  *int
	YearMax  *int
	PriceMin *int64
	PriceMax *int64
	Page     int
	PerPage  int
}

// CarStore defines durable car persistence. The store owns id assignment and
// per-row atomicity; AtomicUpdate serializes concurrent mutations of the same
// car.
type CarStore interface {
	// Insert persists a new car and assigns its id.
	Insert(ctx context.Context, car *domain.Car) error

	// FindByID retrieves a car by id, or a NOT_FOUND error.
	FindByID(ctx context.Context, id string) (*domain.Car, error)

	// Find returns cars matching the filter along with the total count.
	Find(ctx context.Context, filter CarFilter) ([]domain.Car, int, error)

	// AtomicUpdate loads the car under a row lock, applies the update spec,
	// and persists the result in one transaction. Returns the updated car.
	AtomicUpdate(ctx context.Context, id string, spec domain.UpdateSpec) (*domain.Car, error)

	// Delete removes a car. Returns false without error when the id does not
	// exist.
	Delete(ctx context.Context, id string) (bool, error)
}

// CarCache is the disposable snapshot cache. Get returns a NOT_FOUND error on
// miss; Set and Delete are best-effort.
type CarCache interface {
	Get(ctx context.Context, id string) (*domain.Car, error)
	Set(ctx context.Context, car *domain.Car, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}
