package httputil

import (
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/medsupply/medsupply-backend/pkg/errors"
)

var validate = func() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}()

// Validate checks struct tags and reports failures as a VALIDATION_ERROR
// keyed by field name.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.BadRequest("invalid request")
	}

	details := make(map[string]string, len(fieldErrs))
	for _, e := range fieldErrs {
		if _, seen := details[e.Field()]; !seen {
			details[e.Field()] = describeField(e)
		}
	}
	return errors.Validation(details)
}

func describeField(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "this field is required"
	case "notblank":
		return "must not be blank"
	case "min", "gte":
		return "must be at least " + e.Param()
	case "max":
		if e.Kind().String() == "string" {
			return "must be at most " + e.Param() + " characters"
		}
		return "must be at most " + e.Param()
	case "lte":
		return "must be at most " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "invalid value"
	}
}
