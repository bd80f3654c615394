package domain

// AverageRating returns the arithmetic mean of the review ratings, or 0 when
// there are no reviews.
func AverageRating(reviews []Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(reviews))
}
