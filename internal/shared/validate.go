package shared

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs validator tags over an input struct and converts the
// first failure into a validation AppError with field details.
func ValidateStruct(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if ok := AsValidationErrors(err, &verrs); !ok || len(verrs) == 0 {
		return NewValidation(err.Error())
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s:%s", fe.Field(), fe.Tag()))
	}
	first := verrs[0]
	return NewValidation(fmt.Sprintf("field %s failed %s", first.Field(), first.Tag())).
		WithDetail("fields", strings.Join(fields, ","))
}

// AsValidationErrors unwraps validator.ValidationErrors.
func AsValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}
