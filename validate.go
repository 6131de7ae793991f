package formstage

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func fieldValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("fieldtype", func(fl validator.FieldLevel) bool {
			return FieldType(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("regexp", func(fl validator.FieldLevel) bool {
			_, err := regexp.Compile(fl.Field().String())
			return err == nil
		})
		v.RegisterStructValidation(func(sl validator.StructLevel) {
			var b Validation
			switch v := sl.Current().Interface().(type) {
			case Validation:
				b = v
			case *Validation:
				b = *v
			}
			if b.Min != nil && b.Max != nil && *b.Max < *b.Min {
				sl.ReportError(b.Max, "Max", "max", "gtefield", "Min")
			}
		}, Validation{})
		validate = v
	})
	return validate
}

// ValidateField checks a field definition: a known type, a non-empty identifier, non-blank
// options, a compilable pattern and min <= max.
func ValidateField(f FormField) error {
	return validateField("validate field", f)
}

func validateField(op string, f FormField) error {
	err := fieldValidator().Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Kind: KindValidation, Op: op, Resource: "field", ID: f.ID, Err: err}
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describeFieldError(fe))
	}
	return &Error{
		Kind:     KindValidation,
		Op:       op,
		Resource: "field",
		ID:       f.ID,
		Msg:      fmt.Sprintf("field %q: %s", f.ID, strings.Join(problems, "; ")),
	}
}

func describeFieldError(fe validator.FieldError) string {
	name := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "fieldtype":
		return fmt.Sprintf("unknown field type %q", fe.Value())
	case "regexp":
		return fmt.Sprintf("pattern %q does not compile", fe.Value())
	case "gtefield":
		return "max must not be lower than min"
	default:
		return fmt.Sprintf("%s fails %s", name, fe.Tag())
	}
}

func validateFields(op string, fields []FormField) error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if err := validateField(op, f); err != nil {
			return err
		}
		if _, dup := seen[f.ID]; dup {
			return &Error{Kind: KindValidation, Op: op, Resource: "field", ID: f.ID,
				Msg: fmt.Sprintf("duplicate field id %q", f.ID)}
		}
		seen[f.ID] = struct{}{}
	}
	return nil
}
