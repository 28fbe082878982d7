package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// FieldError is one failed constraint, with a pt-BR message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every failed field of a request body.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, " ")
}

// ValidateStruct checks v's `validate` tags. It returns nil or a *ValidationError.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("O campo %s é obrigatório.", fe.Field())
	case "email":
		return "Formato de e-mail inválido."
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("O campo %s deve ter no mínimo %s caracteres.", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("O campo %s deve ser no mínimo %s.", fe.Field(), fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("O campo %s deve ter no máximo %s caracteres.", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("O campo %s deve ser no máximo %s.", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("O campo %s deve ser um de: %s.", fe.Field(), fe.Param())
	case "url":
		return fmt.Sprintf("O campo %s deve ser uma URL válida.", fe.Field())
	case "uuid", "uuid4":
		return fmt.Sprintf("O campo %s deve ser um identificador válido.", fe.Field())
	}
	return fmt.Sprintf("O campo %s é inválido.", fe.Field())
}
