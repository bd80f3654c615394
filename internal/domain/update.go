package domain

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateReview is returned when an author already has a review on
	// the car.
	ErrDuplicateReview = errors.New("author already reviewed this car")

	// ErrReviewNotFound is returned when a referenced review does not exist
	// on the car.
	ErrReviewNotFound = errors.New("review not found")

	// ErrProtectedField is returned when a set targets a derived or embedded
	// field.
	ErrProtectedField = errors.New("field cannot be set directly")

	// ErrInvalidRating is returned for a review rating outside 1 to 5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrInvalidFieldValue is returned when a set value has the wrong type
	// for its field, including non-integral numbers for year and price.
	ErrInvalidFieldValue = errors.New("invalid field value")
)

// ReviewPatch is a partial update to an existing review. Nil fields are left
// unchanged.
type ReviewPatch struct {
	ReviewID string
	Rating   *int
	Comment  *string
}

// UpdateSpec describes a single atomic mutation of a car. At most one review
// operation may be set; Set fields apply alongside it. The rating and reviews
// fields are never settable through Set.
type UpdateSpec struct {
	Set           map[string]any
	PushReview    *Review
	ReplaceReview *ReviewPatch
	PullReviewID  string
}

// settableFields whitelists the top-level fields Set may touch.
var settableFields = map[string]struct{}{
	"make":            {},
	"model":           {},
	"year":            {},
	"price":           {},
	"currency":        {},
	"status":          {},
	"spec":            {},
	"images":          {},
	"last_updated_by": {},
}

// Apply mutates the car in place according to the spec. Whenever reviews are
// touched the rating is recomputed from the full review set, so the stored
// aggregate can never drift from the reviews it summarizes. UpdatedAt is set
// to now on any change.
func (c *Car) Apply(spec UpdateSpec, now time.Time) error {
	for field, value := range spec.Set {
		if _, ok := settableFields[field]; !ok {
			return fmt.Errorf("%w: %s", ErrProtectedField, field)
		}
		if err := c.setField(field, value); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFieldValue, err)
		}
	}

	reviewsTouched := false

	if r := spec.PushReview; r != nil {
		if !IsValidReviewRating(r.Rating) {
			return ErrInvalidRating
		}
		if _, exists := c.ReviewByAuthor(r.AuthorID); exists {
			return ErrDuplicateReview
		}
		review := *r
		if review.ID == "" {
			review.ID = uuid.New().String()
		}
		review.CreatedAt = now
		review.UpdatedAt = now
		c.Reviews = append(c.Reviews, review)
		reviewsTouched = true
	}

	if p := spec.ReplaceReview; p != nil {
		review, ok := c.ReviewByID(p.ReviewID)
		if !ok {
			return ErrReviewNotFound
		}
		if p.Rating != nil {
			if !IsValidReviewRating(*p.Rating) {
				return ErrInvalidRating
			}
			review.Rating = *p.Rating
		}
		if p.Comment != nil {
			review.Comment = *p.Comment
		}
		review.UpdatedAt = now
		reviewsTouched = true
	}

	if id := spec.PullReviewID; id != "" {
		found := false
		for i := range c.Reviews {
			if c.Reviews[i].ID == id {
				c.Reviews = append(c.Reviews[:i], c.Reviews[i+1:]...)
				found = true
				break
			}
		}
		if !found {
			return ErrReviewNotFound
		}
		reviewsTouched = true
	}

	if reviewsTouched {
		c.Rating = AverageRating(c.Reviews)
	}

	c.UpdatedAt = now
	return nil
}

func (c *Car) setField(field string, value any) error {
	switch field {
	case "make":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("make: expected string, got %T", value)
		}
		c.Make = s
	case "model":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("model: expected string, got %T", value)
		}
		c.Model = s
	case "year":
		n, ok := toInt(value)
		if !ok {
			return fmt.Errorf("year: expected integer, got %T", value)
		}
		c.Year = n
	case "price":
		n, ok := toInt64(value)
		if !ok {
			return fmt.Errorf("price: expected integer, got %T", value)
		}
		c.Price = n
	case "currency":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("currency: expected string, got %T", value)
		}
		c.Currency = s
	case "status":
		s, ok := value.(string)
		if !ok || !IsValidStatus(s) {
			return fmt.Errorf("status: invalid value %v", value)
		}
		c.Status = s
	case "spec":
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("spec: expected object, got %T", value)
		}
		c.Spec = m
	case "images":
		imgs, ok := value.([]ImageDescriptor)
		if !ok {
			return fmt.Errorf("images: expected image list, got %T", value)
		}
		c.Images = imgs
	case "last_updated_by":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("last_updated_by: expected string, got %T", value)
		}
		c.LastUpdatedBy = s
	}
	return nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
