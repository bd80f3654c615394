package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/motorline/catalog-service/internal/auth"
	"github.com/motorline/catalog-service/internal/domain"
	apperrors "github.com/motorline/catalog-service/pkg/errors"
)

// AddReviewInput holds the parameters for adding a review.
type AddReviewInput struct {
	AuthorID string
	Rating   int
	Comment  string
}

// UpdateReviewInput is a partial review update. Nil fields are unchanged.
type UpdateReviewInput struct {
	Rating  *int
	Comment *string
}

// AddReview appends a review to the car and recomputes the aggregate rating
// in the same atomic store operation. Authenticated callers only, one review
// per author per car.
func (s *CatalogService) AddReview(ctx context.Context, caller auth.Caller, carID string, input *AddReviewInput) (*domain.Car, error) {
	if err := s.gate.Check(caller, auth.OpAddReview, ""); err != nil {
		return nil, err
	}
	if input.AuthorID != caller.ID {
		return nil, apperrors.Forbidden("review author must match the caller")
	}
	if !domain.IsValidReviewRating(input.Rating) {
		return nil, apperrors.InvalidArgument("rating must be between 1 and 5")
	}

	review := &domain.Review{
		AuthorID: input.AuthorID,
		Rating:   input.Rating,
		Comment:  input.Comment,
	}

	car, err := s.store.AtomicUpdate(ctx, carID, domain.UpdateSpec{PushReview: review})
	if err != nil {
		return nil, fmt.Errorf("add review: %w", err)
	}

	s.invalidate(ctx, carID)

	added, _ := car.ReviewByAuthor(input.AuthorID)
	reviewID := ""
	if added != nil {
		reviewID = added.ID
	}
	s.publishEvent(ctx, carID, func() error {
		return s.producer.PublishReviewAdded(ctx, car, reviewID, input.AuthorID)
	})

	s.logger.InfoContext(ctx, "review added",
		slog.String("car_id", carID),
		slog.String("author_id", input.AuthorID),
		slog.Float64("rating", car.Rating),
	)

	return car, nil
}

// UpdateReview mutates one review in place and recomputes the parent rating
// atomically. Only the review author may update it.
func (s *CatalogService) UpdateReview(ctx context.Context, caller auth.Caller, carID, reviewID string, input *UpdateReviewInput) (*domain.Car, error) {
	review, err := s.findReview(ctx, carID, reviewID)
	if err != nil {
		return nil, err
	}

	if err := s.gate.Check(caller, auth.OpUpdateReview, review.AuthorID); err != nil {
		return nil, err
	}

	if input.Rating != nil && !domain.IsValidReviewRating(*input.Rating) {
		return nil, apperrors.InvalidArgument("rating must be between 1 and 5")
	}

	car, err := s.store.AtomicUpdate(ctx, carID, domain.UpdateSpec{
		ReplaceReview: &domain.ReviewPatch{
			ReviewID: reviewID,
			Rating:   input.Rating,
			Comment:  input.Comment,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}

	s.invalidate(ctx, carID)

	s.publishEvent(ctx, carID, func() error {
		return s.producer.PublishReviewUpdated(ctx, car, reviewID)
	})

	s.logger.InfoContext(ctx, "review updated",
		slog.String("car_id", carID),
		slog.String("review_id", reviewID),
		slog.Float64("rating", car.Rating),
	)

	return car, nil
}

// DeleteReview removes a review and recomputes the rating over the remaining
// reviews. The author or an admin may delete it. A second delete of the same
// review returns NOT_FOUND and changes nothing.
func (s *CatalogService) DeleteReview(ctx context.Context, caller auth.Caller, carID, reviewID string) (*domain.Car, error) {
	review, err := s.findReview(ctx, carID, reviewID)
	if err != nil {
		return nil, err
	}

	if err := s.gate.Check(caller, auth.OpDeleteReview, review.AuthorID); err != nil {
		return nil, err
	}

	car, err := s.store.AtomicUpdate(ctx, carID, domain.UpdateSpec{PullReviewID: reviewID})
	if err != nil {
		return nil, fmt.Errorf("delete review: %w", err)
	}

	s.invalidate(ctx, carID)

	s.publishEvent(ctx, carID, func() error {
		return s.producer.PublishReviewDeleted(ctx, car, reviewID)
	})

	s.logger.InfoContext(ctx, "review deleted",
		slog.String("car_id", carID),
		slog.String("review_id", reviewID),
		slog.Float64("rating", car.Rating),
	)

	return car, nil
}

// findReview loads the car from the store (never the cache, to gate against
// current ownership) and resolves the review.
func (s *CatalogService) findReview(ctx context.Context, carID, reviewID string) (*domain.Review, error) {
	car, err := s.store.FindByID(ctx, carID)
	if err != nil {
		return nil, fmt.Errorf("find review: %w", err)
	}

	review, ok := car.ReviewByID(reviewID)
	if !ok {
		return nil, apperrors.NotFound("review", reviewID)
	}

	return review, nil
}
