package catalog

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/manpreetbhatti/showroom/internal/coords"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		p := sl.Current().Interface().(coords.Position)
		if !coords.InRange(p) {
			sl.ReportError(p, "Position", "Position", "unitrange", "")
		}
	}, coords.Position{})
	return v
}

// Validate checks a store record before it is written.
func Validate(s Store) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid store %q: %w", s.ID, err)
	}
	return nil
}

// ValidatePosition rejects positions outside [0,1].
func ValidatePosition(p coords.Position) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid position: %w", err)
	}
	return nil
}
