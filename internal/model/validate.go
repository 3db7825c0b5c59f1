package model

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared by request input and change-feed row checks. Custom
// rules are registered in init.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report json names in errors, they are what callers and payloads use.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("project_status", func(fl validator.FieldLevel) bool {
		return ProjectStatus(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("task_status", func(fl validator.FieldLevel) bool {
		return TaskStatus(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("task_priority", func(fl validator.FieldLevel) bool {
		return TaskPriority(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("notification_type", func(fl validator.FieldLevel) bool {
		return NotificationType(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := ParseDate(fl.Field().String())
		return err == nil
	})
}

// Validate checks v against its validate struct tags
func Validate(v interface{}) error {
	return validate.Struct(v)
}

// FieldErrors unpacks a Validate error into field name and failed rule pairs.
// Errors of other types yield nil.
func FieldErrors(err error) map[string]string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
