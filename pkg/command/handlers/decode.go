// Package handlers provides the built-in command handlers: dashboard
// modules, navigation items, stat widgets and API endpoint registrations.
package handlers

import (
	"errors"
	"html"
	"reflect"
	"strings"

	"github.com/armis/armis/pkg/types"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// decodePayload fills out from payload and validates it. The first failing
// field in declaration order is reported.
func decodePayload(payload map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(payload); err != nil {
		return types.NewValidationError("payload", "invalid payload: %v", err)
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			switch fe.Tag() {
			case "notblank", "required":
				return types.NewMissingFieldError(fe.Field())
			case "oneof":
				return types.NewValidationError(fe.Field(), "%s must be one of [%s]", fe.Field(), fe.Param())
			default:
				return types.NewValidationError(fe.Field(), "invalid value for %s", fe.Field())
			}
		}
		return types.NewValidationError("payload", "invalid payload: %v", err)
	}
	return nil
}

// plain decodes HTML entities once so a value escaped by the validation
// middleware is not escaped a second time when rendered.
func plain(s string) string {
	return html.UnescapeString(s)
}

func permissionsOf(payload map[string]any) []string {
	switch v := payload["permissions"].(type) {
	case []string:
		out := make([]string, 0, len(v))
		for _, p := range v {
			if p != "" {
				out = append(out, plain(p))
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, p := range v {
			if s, ok := p.(string); ok && s != "" {
				out = append(out, plain(s))
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{plain(v)}
	default:
		return nil
	}
}

func copyPayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	return out
}
