package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type opening struct {
	Open  string `validate:"required,hhmm"`
	Close string `validate:"required,hhmm"`
	Slots int    `validate:"gt=0"`
}

func TestValidate(t *testing.T) {
	assert.Nil(t, Validate(opening{Open: "09:00", Close: "17:00", Slots: 60}))

	errs := Validate(opening{Open: "9am", Slots: 0})
	assert.Equal(t, "hhmm", errs["opening.Open"])
	assert.Equal(t, "required", errs["opening.Close"])
	assert.Equal(t, "gt", errs["opening.Slots"])
}
