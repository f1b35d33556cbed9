package http

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// tickerPattern accepts exchange symbols such as AAPL, BRK.B or RDS-A, in
// any case; callers upper-case before use.
var tickerPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]{0,5}([.-][A-Za-z0-9]{1,5})?$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields the way clients and config files spell them
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query", "yaml"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	_ = v.RegisterValidation("ticker", func(fl validator.FieldLevel) bool {
		return tickerPattern.MatchString(fl.Field().String())
	})
	return v
}

// ReadAndValidateRequest binds path, query and body into req, fills zero
// fields from their default tags and validates the result. It returns nil or
// a []ValidationError ready to render.
func ReadAndValidateRequest(c echo.Context, req interface{}) interface{} {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return toValidationErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

// Validate runs struct validation outside a request, for config structs.
func Validate(v interface{}) error { return validate.Struct(v) }

func toValidationErrors(err error) interface{} {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			out = append(out, ValidationError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: fieldMessage(fe),
				Params:  fieldParams(fe),
			})
		}
		return out
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{Code: "ERR_BIND", Message: fmt.Sprintf("malformed request: %v", he.Message)}}
	}
	return []ValidationError{{Code: "ERR_BIND", Message: err.Error()}}
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		if field == "symbol" {
			return "symbol is required, e.g. ?symbol=AAPL"
		}
		return field + " is required"
	case "ticker":
		return fmt.Sprintf("%s %q is not a ticker symbol (expected something like AAPL or BRK.B)", field, fe.Value())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s is longer than %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s may not exceed %s", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s may not be below %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s may not be below %s", field, fe.Param())
	case "lte":
		if strings.HasSuffix(field, "hours") {
			return fmt.Sprintf("%s looks back at most %s hours", field, fe.Param())
		}
		return fmt.Sprintf("%s may not exceed %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be above %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "datetime":
		return fmt.Sprintf("%s must be a date formatted %s", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
}

func fieldParams(fe validator.FieldError) map[string]interface{} {
	switch fe.Tag() {
	case "min", "gte", "gt":
		return map[string]interface{}{"min": fe.Param()}
	case "max", "lte":
		return map[string]interface{}{"max": fe.Param()}
	case "oneof":
		return map[string]interface{}{"options": strings.Fields(fe.Param())}
	case "datetime":
		return map[string]interface{}{"layout": fe.Param()}
	}
	return nil
}
