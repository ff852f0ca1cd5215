package middleware

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator is the echo.Validator backed by go-playground/validator. Error
// messages name fields by their json/param/query/header tag.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	validate := validator.New()

	commonTags := []string{
		"json",
		"param",
		"query",
		"header",
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range commonTags {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return ""
	})

	validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return &Validator{validate: validate}
}

// RegisterValidation adds a custom tag. It panics on an invalid tag name,
// since tags are registered once at startup.
func (v *Validator) RegisterValidation(tag string, fn validator.Func) *Validator {
	if err := v.validate.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
	return v
}

func (v *Validator) Validate(i any) error {
	return v.validate.Struct(i)
}
