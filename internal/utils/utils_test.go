package utils

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type form struct {
	Name   string `validate:"required"`
	Status string `validate:"oneof=online busy"`
	Limit  int    `validate:"max=10"`
}

func TestValidationErr(t *testing.T) {
	err := validator.New().Struct(form{Status: "asleep", Limit: 11})
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))

	out := ValidationErr(verrs)
	require.Len(t, out, 3)
	assert.Equal(t, CustomErrorResponse{Field: "Name", Tag: "required", Message: "This field is required."}, out[0])
	assert.Equal(t, "Must be one of: online busy.", out[1].Message)
	assert.Equal(t, "Must be at most 10.", out[2].Message)
}
