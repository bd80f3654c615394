package domain

import (
	"time"
)

// Car statuses. Listings start as drafts, go live as published, and are
// retired as archived.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// ValidStatuses lists the accepted car statuses.
var ValidStatuses = []string{StatusDraft, StatusPublished, StatusArchived}

// IsValidStatus reports whether s is an accepted car status.
func IsValidStatus(s string) bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// ImageDescriptor describes one listing image.
type ImageDescriptor struct {
	URL     string `json:"url"`
	Alt     string `json:"alt,omitempty"`
	Primary bool   `json:"primary,omitempty"`
}

// Car is a catalog listing. Price is in minor currency units. Rating is
// derived from the embedded reviews and is never written directly; Apply
// recomputes it whenever reviews change.
type Car struct {
	ID            string            `json:"id"`
	Make          string            `json:"make"`
	Model         string            `json:"model"`
	Year          int               `json:"year"`
	Price         int64             `json:"price"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	Spec          map[string]any    `json:"spec,omitempty"`
	Images        []ImageDescriptor `json:"images"`
	Rating        float64           `json:"rating"`
	Reviews       []Review          `json:"reviews"`
	CreatedBy     string            `json:"created_by"`
	LastUpdatedBy string            `json:"last_updated_by"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ReviewByAuthor returns the review written by the given author, if any.
func (c *Car) ReviewByAuthor(authorID string) (*Review, bool) {
	for i := range c.Reviews {
		if c.Reviews[i].AuthorID == authorID {
			return &c.Reviews[i], true
		}
	}
	return nil, false
}

// ReviewByID returns the review with the given id, if any.
func (c *Car) ReviewByID(reviewID string) (*Review, bool) {
	for i := range c.Reviews {
		if c.Reviews[i].ID == reviewID {
			return &c.Reviews[i], true
		}
	}
	return nil, false
}
