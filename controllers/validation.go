package controllers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"civicsync-fe/models"
)

var registerOnce sync.Once

// registerValidations teaches gin's validator the domain tags and to report
// fields by their JSON names.
func registerValidations() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
			return models.IsKnownCategory(fl.Field().String())
		})
	})
}

// bindJSON decodes the request body into dst and turns constraint failures
// into a per-field validation error.
func bindJSON(c *gin.Context, dst any) error {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalid("body", "Request body is not valid JSON")
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if _, seen := fields[name]; !seen {
			fields[name] = fieldMessage(fe)
		}
	}
	return &validationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	unit := "characters"
	if fe.Kind() == reflect.Slice {
		unit = "items"
	}
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return fmt.Sprintf("Must be at least %s %s", fe.Param(), unit)
	case "max":
		return fmt.Sprintf("Must be at most %s %s", fe.Param(), unit)
	case "email":
		return "Must be a valid email address"
	case "url":
		return "Must be a valid URL"
	case "category":
		return "Choose one of the listed categories"
	}
	return "Invalid value"
}
