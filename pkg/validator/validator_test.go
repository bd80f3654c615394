package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reviewForm struct {
	AuthorID string `validate:"required,uuid"`
	Rating   int    `validate:"required,gte=1,lte=5"`
	Comment  string `validate:"max=2000"`
}

func TestValidate_OK(t *testing.T) {
	form := reviewForm{
		AuthorID: "b3a6f5a0-23aa-4e4f-9a0d-0f8f6f9f1c11",
		Rating:   4,
		Comment:  "smooth ride",
	}
	assert.NoError(t, Validate(form))
}

func TestValidate_FieldErrors(t *testing.T) {
	form := reviewForm{AuthorID: "not-a-uuid", Rating: 9}
	err := Validate(form)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)

	fields := valErr.Fields()
	assert.Contains(t, fields, "AuthorID")
	assert.Contains(t, fields, "Rating")
	assert.Equal(t, "must be a valid UUID", fields["AuthorID"])
	assert.Equal(t, "must be less than or equal to 5", fields["Rating"])
}

func TestValidationError_Message(t *testing.T) {
	err := Validate(reviewForm{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AuthorID")
	assert.Contains(t, err.Error(), "is required")
}
