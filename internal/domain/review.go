package domain

import "time"

// Review rating bounds.
const (
	MinReviewRating = 1
	MaxReviewRating = 5
)

// Review is a buyer review embedded in a car listing. Each author may leave
// at most one review per car.
type Review struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsValidReviewRating reports whether r is within the accepted 1 to 5 range.
func IsValidReviewRating(r int) bool {
	return r >= MinReviewRating && r <= MaxReviewRating
}
