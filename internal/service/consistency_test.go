package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorline/catalog-service/internal/auth"
	"github.com/motorline/catalog-service/internal/domain"
	"github.com/motorline/catalog-service/internal/repository"
	apperrors "github.com/motorline/catalog-service/pkg/errors"
)

// memStore is a stateful in-memory store whose AtomicUpdate serializes on a
// mutex, mirroring the row-lock discipline of the real store.
type memStore struct {
	mu   sync.Mutex
	cars map[string]*domain.Car
}

func newMemStore() *memStore {
	return &memStore{cars: make(map[string]*domain.Car)}
}

func cloneCar(c *domain.Car) *domain.Car {
	data, _ := json.Marshal(c)
	var out domain.Car
	_ = json.Unmarshal(data, &out)
	return &out
}

func (s *memStore) Insert(_ context.Context, car *domain.Car) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if car.ID == "" {
		car.ID = uuid.New().String()
	}
	s.cars[car.ID] = cloneCar(car)
	return nil
}

func (s *memStore) FindByID(_ context.Context, id string) (*domain.Car, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	car, ok := s.cars[id]
	if !ok {
		return nil, apperrors.NotFound("car", id)
	}
	return cloneCar(car), nil
}

func (s *memStore) Find(_ context.Context, _ repository.CarFilter) ([]domain.Car, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Car, 0, len(s.cars))
	for _, c := range s.cars {
		out = append(out, *cloneCar(c))
	}
	return out, len(out), nil
}

func (s *memStore) AtomicUpdate(_ context.Context, id string, spec domain.UpdateSpec) (*domain.Car, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.cars[id]
	if !ok {
		return nil, apperrors.NotFound("car", id)
	}
	car := cloneCar(existing)
	if err := car.Apply(spec, time.Now().UTC()); err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateReview):
			return nil, apperrors.Conflict("author already reviewed this car")
		case errors.Is(err, domain.ErrReviewNotFound):
			return nil, apperrors.NotFound("review", "")
		default:
			return nil, apperrors.InvalidArgument(err.Error())
		}
	}
	s.cars[id] = car
	return cloneCar(car), nil
}

func (s *memStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cars[id]; !ok {
		return false, nil
	}
	delete(s.cars, id)
	return true, nil
}

// memCache is a stateful in-memory snapshot cache.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, id string) (*domain.Car, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[id]
	if !ok {
		return nil, apperrors.NotFound("car", id)
	}
	var car domain.Car
	if err := json.Unmarshal(data, &car); err != nil {
		return nil, err
	}
	return &car, nil
}

func (c *memCache) Set(_ context.Context, car *domain.Car, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.Marshal(car)
	if err != nil {
		return err
	}
	c.entries[car.ID] = data
	return nil
}

func (c *memCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

func (c *memCache) has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

func newStatefulService(t *testing.T) (*CatalogService, *memStore, *memCache) {
	t.Helper()
	store := newMemStore()
	cache := newMemCache()
	svc := NewCatalogService(store, cache, auth.NewGate(), newSilentProducer(), newTestLogger(), time.Hour)
	return svc, store, cache
}

func seedCar(t *testing.T, svc *CatalogService) *domain.Car {
	t.Helper()
	car, err := svc.CreateCar(context.Background(), adminCaller, validCreateInput())
	require.NoError(t, err)
	return car
}

func TestRatingLifecycle(t *testing.T) {
	svc, _, _ := newStatefulService(t)
	ctx := context.Background()

	car := seedCar(t, svc)
	assert.Equal(t, 0.0, car.Rating)

	car, err := svc.AddReview(ctx, auth.Caller{ID: "alice", Role: auth.RoleUser}, car.ID, &AddReviewInput{
		AuthorID: "alice", Rating: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, 4.0, car.Rating)

	car, err = svc.AddReview(ctx, auth.Caller{ID: "bob", Role: auth.RoleUser}, car.ID, &AddReviewInput{
		AuthorID: "bob", Rating: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3.0, car.Rating)

	// A fresh read observes the same aggregate.
	got, err := svc.GetCar(ctx, car.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Rating)
	assert.Len(t, got.Reviews, 2)
}

func TestDuplicateReviewLeavesRatingUnchanged(t *testing.T) {
	svc, _, _ := newStatefulService(t)
	ctx := context.Background()
	alice := auth.Caller{ID: "alice", Role: auth.RoleUser}

	car := seedCar(t, svc)

	car, err := svc.AddReview(ctx, alice, car.ID, &AddReviewInput{AuthorID: "alice", Rating: 5})
	require.NoError(t, err)
	assert.Equal(t, 5.0, car.Rating)

	_, err = svc.AddReview(ctx, alice, car.ID, &AddReviewInput{AuthorID: "alice", Rating: 1})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	got, err := svc.GetCar(ctx, car.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.Rating)
	assert.Len(t, got.Reviews, 1)
}

func TestDeleteMiddleReviewRecomputesRating(t *testing.T) {
	svc, _, _ := newStatefulService(t)
	ctx := context.Background()

	car := seedCar(t, svc)
	ratings := map[string]int{"alice": 5, "bob": 3, "carol": 4}
	for author, rating := range ratings {
		var err error
		car, err = svc.AddReview(ctx, auth.Caller{ID: author, Role: auth.RoleUser}, car.ID, &AddReviewInput{
			AuthorID: author, Rating: rating,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 4.0, car.Rating)

	bobReview, ok := car.ReviewByAuthor("bob")
	require.True(t, ok)

	car, err := svc.DeleteReview(ctx, auth.Caller{ID: "bob", Role: auth.RoleUser}, car.ID, bobReview.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.5, car.Rating)
}

func TestDeleteReviewIdempotence(t *testing.T) {
	svc, _, _ := newStatefulService(t)
	ctx := context.Background()
	alice := auth.Caller{ID: "alice", Role: auth.RoleUser}
	bob := auth.Caller{ID: "bob", Role: auth.RoleUser}

	car := seedCar(t, svc)
	car, err := svc.AddReview(ctx, alice, car.ID, &AddReviewInput{AuthorID: "alice", Rating: 4})
	require.NoError(t, err)
	car, err = svc.AddReview(ctx, bob, car.ID, &AddReviewInput{AuthorID: "bob", Rating: 2})
	require.NoError(t, err)

	aliceReview, ok := car.ReviewByAuthor("alice")
	require.True(t, ok)

	car, err = svc.DeleteReview(ctx, alice, car.ID, aliceReview.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, car.Rating)

	// Second delete of the same review must be NOT_FOUND and change nothing.
	_, err = svc.DeleteReview(ctx, alice, car.ID, aliceReview.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	got, err := svc.GetCar(ctx, car.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Rating)
}

func TestCacheConsistencyAfterUpdate(t *testing.T) {
	svc, _, cache := newStatefulService(t)
	ctx := context.Background()

	car := seedCar(t, svc)

	// Populate the cache.
	_, err := svc.GetCar(ctx, car.ID)
	require.NoError(t, err)
	require.True(t, cache.has(car.ID))

	newPrice := int64(9999900)
	_, err = svc.UpdateCar(ctx, adminCaller, car.ID, &UpdateCarInput{Price: &newPrice})
	require.NoError(t, err)
	assert.False(t, cache.has(car.ID), "mutation must invalidate the cache entry")

	got, err := svc.GetCar(ctx, car.ID)
	require.NoError(t, err)
	assert.Equal(t, newPrice, got.Price, "read after update must observe the new price")
}

func TestCacheConsistencyAfterReviewMutation(t *testing.T) {
	svc, _, cache := newStatefulService(t)
	ctx := context.Background()
	alice := auth.Caller{ID: "alice", Role: auth.RoleUser}

	car := seedCar(t, svc)
	_, err := svc.GetCar(ctx, car.ID)
	require.NoError(t, err)
	require.True(t, cache.has(car.ID))

	_, err = svc.AddReview(ctx, alice, car.ID, &AddReviewInput{AuthorID: "alice", Rating: 5})
	require.NoError(t, err)

	got, err := svc.GetCar(ctx, car.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.Rating)
	assert.Len(t, got.Reviews, 1)
}

func TestForbiddenDeleteLeavesEntityIntact(t *testing.T) {
	svc, _, _ := newStatefulService(t)
	ctx := context.Background()

	car := seedCar(t, svc)

	err := svc.DeleteCar(ctx, userCaller, car.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	got, err := svc.GetCar(ctx, car.ID)
	require.NoError(t, err)
	assert.Equal(t, car.ID, got.ID)
	assert.Equal(t, car.Price, got.Price)
}

func TestConcurrentAddReviewNoLostUpdate(t *testing.T) {
	svc, _, _ := newStatefulService(t)
	ctx := context.Background()

	car := seedCar(t, svc)

	const writers = 10
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(n int) {
			defer wg.Done()
			author := fmt.Sprintf("user-%d", n)
			_, err := svc.AddReview(ctx, auth.Caller{ID: author, Role: auth.RoleUser}, car.ID, &AddReviewInput{
				AuthorID: author,
				Rating:   (n % 5) + 1,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := svc.GetCar(ctx, car.ID)
	require.NoError(t, err)
	require.Len(t, got.Reviews, writers, "no review may be lost")

	assert.InDelta(t, domain.AverageRating(got.Reviews), got.Rating, 1e-9)

	seen := make(map[string]bool)
	for _, r := range got.Reviews {
		assert.False(t, seen[r.AuthorID], "duplicate author %s", r.AuthorID)
		seen[r.AuthorID] = true
	}
}
