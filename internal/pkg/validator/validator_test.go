package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Name  string   `json:"name" validate:"required"`
	Kind  string   `json:"kind" validate:"omitempty,oneof=image audio"`
	IDs   []string `json:"ids" validate:"min=1,dive,required"`
	Plain string   `validate:"omitempty,uuid"`
}

func TestValidateReportsJSONFieldNames(t *testing.T) {
	errs := Validate(sample{Kind: "movie", Plain: "nope"})
	assert.Equal(t, map[string]string{
		"name":  "required",
		"kind":  "oneof",
		"ids":   "min",
		"Plain": "uuid",
	}, errs)
}

func TestValidateOK(t *testing.T) {
	assert.Nil(t, Validate(sample{Name: "a", IDs: []string{"x"}}))
}
