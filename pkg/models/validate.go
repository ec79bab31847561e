package models

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = NewValidator()

type enumValue interface {
	IsValid() bool
}

// NewValidator returns a validator that reports json field names and knows
// the "enum" rule for types exposing IsValid.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("enum", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(enumValue)
		return ok && value.IsValid()
	})
	return v
}
