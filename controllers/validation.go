package controllers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"facc/database"
	"facc/utils"
)

func init() {
	// Report fields by their JSON names
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			return database.IsValidRole(fl.Field().String())
		})
	}
}

// bindJSON decodes and validates the request body into obj.
func bindJSON(c *gin.Context, obj any, message string) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return invalid(err, message)
	}
	return nil
}

// validate runs the binding rules of obj outside a request.
func validate(obj any, message string) error {
	if err := binding.Validator.ValidateStruct(obj); err != nil {
		return invalid(err, message)
	}
	return nil
}

// invalid turns a binding failure into a 400 listing each broken rule.
func invalid(err error, message string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return utils.BadRequest(message)
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fieldPath(fe)+": "+ruleMessage(fe))
	}
	return utils.BadRequest(message, details...)
}

// fieldPath drops the struct name from the namespace, so
// "CreateUserRequest.email" becomes "email".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "es requerido"
	case "email":
		return "debe ser un email válido"
	case "oneof":
		return "debe ser uno de: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "role":
		return "no es un rol válido"
	case "gt":
		return "debe ser mayor a " + fe.Param()
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("debe tener al menos %s elemento(s)", fe.Param())
		}
		return "debe tener al menos " + fe.Param() + " caracteres"
	default:
		return "no es válido"
	}
}
