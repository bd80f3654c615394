package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/motorline/catalog-service/internal/domain"
	"github.com/motorline/catalog-service/internal/repository"
	"github.com/motorline/catalog-service/pkg/database"
	apperrors "github.com/motorline/catalog-service/pkg/errors"
)

const carColumns = `id, make, model, year, price, currency, status, spec, images, rating, reviews, created_by, last_updated_by, created_at, updated_at`

// CarStore implements repository.CarStore using PostgreSQL. Reviews are
// embedded in the cars row as a JSONB array so every mutation of a car and
// its reviews is a single-row atomic write.
type CarStore struct {
	db database.DBTX
}

// NewCarStore creates a PostgreSQL-backed car store.
func NewCarStore(db database.DBTX) *CarStore {
	return &CarStore{db: db}
}

// Insert persists a new car, assigning its id.
func (s *CarStore) Insert(ctx context.Context, car *domain.Car) error {
	if car.ID == "" {
		car.ID = uuid.New().String()
	}

	specJSON, imagesJSON, reviewsJSON, err := marshalDocs(car)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO cars (id, make, model, year, price, currency, status, spec, images, rating, reviews, created_by, last_updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = s.db.Exec(ctx, query,
		car.ID,
		car.Make,
		car.Model,
		car.Year,
		car.Price,
		car.Currency,
		car.Status,
		specJSON,
		imagesJSON,
		car.Rating,
		reviewsJSON,
		car.CreatedBy,
		car.LastUpdatedBy,
		car.CreatedAt,
		car.UpdatedAt,
	)
	if err != nil {
		return storeError("insert car", err)
	}

	return nil
}

// FindByID retrieves a car by id.
func (s *CarStore) FindByID(ctx context.Context, id string) (*domain.Car, error) {
	query := fmt.Sprintf(`SELECT %s FROM cars WHERE id = $1`, carColumns)

	car, err := scanCar(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("car", id)
		}
		return nil, storeError("find car", err)
	}

	return car, nil
}

// Find returns cars matching the filter with the total count.
func (s *CarStore) Find(ctx context.Context, filter repository.CarFilter) ([]domain.Car, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Make != nil {
		conditions = append(conditions, fmt.Sprintf("make ILIKE $%d", argIndex))
		args = append(args, *filter.Make)
		argIndex++
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.YearMin != nil {
		conditions = append(conditions, fmt.Sprintf("year >= $%d", argIndex))
		args = append(args, *filter.YearMin)
		argIndex++
	}

	if filter.YearMax != nil {
		conditions = append(conditions, fmt.Sprintf("year <= $%d", argIndex))
		args = append(args, *filter.YearMax)
		argIndex++
	}

	if filter.PriceMin != nil {
		conditions = append(conditions, fmt.Sprintf("price >= $%d", argIndex))
		args = append(args, *filter.PriceMin)
		argIndex++
	}

	if filter.PriceMax != nil {
		conditions = append(conditions, fmt.Sprintf("price <= $%d", argIndex))
		args = append(args, *filter.PriceMax)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// count(*) OVER() yields the total in the same query.
	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM cars
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		carColumns, whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, storeError("list cars", err)
	}
	defer rows.Close()

	var (
		cars       []domain.Car
		totalCount int
	)

	for rows.Next() {
		car, total, err := scanCarWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan car row: %w", err)
		}
		totalCount = total
		cars = append(cars, *car)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, storeError("iterate car rows", err)
	}

	if cars == nil {
		cars = []domain.Car{}
	}

	return cars, totalCount, nil
}

// AtomicUpdate loads the car under a row lock, applies the update spec in
// memory, and writes the result back in the same transaction. Concurrent
// updates of the same car serialize on the lock, so the persisted rating
// always reflects the full review set.
func (s *CarStore) AtomicUpdate(ctx context.Context, id string, spec domain.UpdateSpec) (*domain.Car, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, storeError("begin update tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := fmt.Sprintf(`SELECT %s FROM cars WHERE id = $1 FOR UPDATE`, carColumns)

	car, err := scanCar(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("car", id)
		}
		return nil, storeError("lock car", err)
	}

	if err := car.Apply(spec, time.Now().UTC()); err != nil {
		return nil, mapApplyError(err)
	}

	specJSON, imagesJSON, reviewsJSON, err := marshalDocs(car)
	if err != nil {
		return nil, err
	}

	updateQuery := `
		UPDATE cars
		SET make = $1, model = $2, year = $3, price = $4, currency = $5, status = $6,
		    spec = $7, images = $8, rating = $9, reviews = $10, last_updated_by = $11, updated_at = $12
		WHERE id = $13`

	_, err = tx.Exec(ctx, updateQuery,
		car.Make,
		car.Model,
		car.Year,
		car.Price,
		car.Currency,
		car.Status,
		specJSON,
		imagesJSON,
		car.Rating,
		reviewsJSON,
		car.LastUpdatedBy,
		car.UpdatedAt,
		car.ID,
	)
	if err != nil {
		return nil, storeError("update car", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeError("commit update tx", err)
	}

	return car, nil
}

// Delete removes a car by id. Returns false when the id does not exist.
func (s *CarStore) Delete(ctx context.Context, id string) (bool, error) {
	ct, err := s.db.Exec(ctx, `DELETE FROM cars WHERE id = $1`, id)
	if err != nil {
		return false, storeError("delete car", err)
	}
	return ct.RowsAffected() > 0, nil
}

// storeError wraps a driver error, surfacing transport failures (refused
// connections, timeouts) as UPSTREAM_UNAVAILABLE so callers can treat the
// mutation as retryable.
func storeError(op string, err error) error {
	if database.IsConnectionError(err) {
		return apperrors.Unavailable("car store unavailable", fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// mapApplyError translates domain mutation errors into the service error
// taxonomy.
func mapApplyError(err error) error {
	switch {
	case errors.Is(err, domain.ErrDuplicateReview):
		return apperrors.Conflict("author already reviewed this car")
	case errors.Is(err, domain.ErrReviewNotFound):
		return apperrors.NotFound("review", "")
	case errors.Is(err, domain.ErrInvalidRating),
		errors.Is(err, domain.ErrProtectedField),
		errors.Is(err, domain.ErrInvalidFieldValue):
		return apperrors.InvalidArgument(err.Error())
	}
	return apperrors.Internal(err)
}

func marshalDocs(car *domain.Car) (spec, images, reviews []byte, err error) {
	if spec, err = json.Marshal(car.Spec); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal spec: %w", err)
	}
	if car.Images == nil {
		car.Images = []domain.ImageDescriptor{}
	}
	if images, err = json.Marshal(car.Images); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal images: %w", err)
	}
	if car.Reviews == nil {
		car.Reviews = []domain.Review{}
	}
	if reviews, err = json.Marshal(car.Reviews); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal reviews: %w", err)
	}
	return spec, images, reviews, nil
}

func scanCar(row pgx.Row) (*domain.Car, error) {
	var (
		car         domain.Car
		specJSON    []byte
		imagesJSON  []byte
		reviewsJSON []byte
	)

	if err := row.Scan(
		&car.ID,
		&car.Make,
		&car.Model,
		&car.Year,
		&car.Price,
		&car.Currency,
		&car.Status,
		&specJSON,
		&imagesJSON,
		&car.Rating,
		&reviewsJSON,
		&car.CreatedBy,
		&car.LastUpdatedBy,
		&car.CreatedAt,
		&car.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := unmarshalDocs(&car, specJSON, imagesJSON, reviewsJSON); err != nil {
		return nil, err
	}

	return &car, nil
}

func scanCarWithTotal(row pgx.Row) (*domain.Car, int, error) {
	var (
		car         domain.Car
		specJSON    []byte
		imagesJSON  []byte
		reviewsJSON []byte
		total       int
	)

	if err := row.Scan(
		&car.ID,
		&car.Make,
		&car.Model,
		&car.Year,
		&car.Price,
		&car.Currency,
		&car.Status,
		&specJSON,
		&imagesJSON,
		&car.Rating,
		&reviewsJSON,
		&car.CreatedBy,
		&car.LastUpdatedBy,
		&car.CreatedAt,
		&car.UpdatedAt,
		&total,
	); err != nil {
		return nil, 0, err
	}

	if err := unmarshalDocs(&car, specJSON, imagesJSON, reviewsJSON); err != nil {
		return nil, 0, err
	}

	return &car, total, nil
}

func unmarshalDocs(car *domain.Car, specJSON, imagesJSON, reviewsJSON []byte) error {
	if specJSON != nil {
		if err := json.Unmarshal(specJSON, &car.Spec); err != nil {
			return fmt.Errorf("unmarshal spec: %w", err)
		}
	}
	car.Images = []domain.ImageDescriptor{}
	if imagesJSON != nil {
		if err := json.Unmarshal(imagesJSON, &car.Images); err != nil {
			return fmt.Errorf("unmarshal images: %w", err)
		}
	}
	car.Reviews = []domain.Review{}
	if reviewsJSON != nil {
		if err := json.Unmarshal(reviewsJSON, &car.Reviews); err != nil {
			return fmt.Errorf("unmarshal reviews: %w", err)
		}
	}
	return nil
}
