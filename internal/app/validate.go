package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/josephgoksu/radial/internal/task"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json names so errors match the CLI flags and JSON output.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateInput checks an input struct and converts the first failure into a ValidationError.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &task.ValidationError{Message: err.Error(), Err: err}
	}
	fe := verrs[0]
	return &task.ValidationError{Field: fe.Field(), Message: describeTag(fe)}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "dive":
		return "contains an invalid entry"
	}
	return fmt.Sprintf("fails %q", fe.Tag())
}

func isNotFound(err error) bool {
	return errors.Is(err, task.ErrNotFound)
}
