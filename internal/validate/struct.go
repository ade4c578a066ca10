package validate

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Iron-Ham/worklog/internal/errors"
)

// structValidate checks tagged structs: settings, HTTP query parameters and
// CLI request bundles. Custom tags mirror the regex rules above.
var structValidate *validator.Validate

func init() {
	structValidate = validator.New(validator.WithRequiredStructEnabled())
	structValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"json", "form"} {
			name, _, _ := strings.Cut(fld.Tag.Get(key), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})

	_ = structValidate.RegisterValidation("sessionid", func(fl validator.FieldLevel) bool {
		return sessionIDRe.MatchString(fl.Field().String())
	})
	_ = structValidate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return projectSlugRe.MatchString(fl.Field().String())
	})
	_ = structValidate.RegisterValidation("sha", func(fl validator.FieldLevel) bool {
		return shaRe.MatchString(fl.Field().String())
	})
	_ = structValidate.RegisterValidation("gitbranch", func(fl validator.FieldLevel) bool {
		return gitBranchRe.MatchString(fl.Field().String())
	})
}

// Struct validates v against its `validate` tags and converts the first
// failure into a ValidationError named after the field's json or form tag.
func Struct(v any) error {
	err := structValidate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.NewValidationError(err.Error())
	}

	fe := fieldErrs[0]
	field := fe.Field()
	msg := describe(field, fe)
	verr := errors.NewValidationError(msg).WithField(field)
	if fe.Value() != nil {
		verr = verr.WithValue(fe.Value())
	}
	return verr
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "sessionid":
		return fmt.Sprintf("invalid session ID format: %v", fe.Value())
	case "slug":
		return fmt.Sprintf("invalid project slug: '%v'", fe.Value())
	case "sha":
		return fmt.Sprintf("invalid commit SHA: '%v'", fe.Value())
	case "gitbranch":
		return fmt.Sprintf("invalid git branch name: '%v'", fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
