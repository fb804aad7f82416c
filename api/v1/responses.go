package v1

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
)

const (
	errInvalidRequest = "Invalid request body"
	errInternal       = "Internal server error"
)

var validate = validator.New()

func init() {
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
}

// validationMessage turns validator output into a single readable message.
func validationMessage(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		switch fieldErr.Tag() {
		case "required":
			messages = append(messages, fieldErr.Field()+" is required")
		case "email":
			messages = append(messages, "Invalid email format")
		case "max":
			messages = append(messages, fieldErr.Field()+" must be at most "+fieldErr.Param()+" characters")
		case "oneof":
			messages = append(messages, fieldErr.Field()+" must be one of: "+fieldErr.Param())
		case "url":
			messages = append(messages, fieldErr.Field()+" must be a valid URL")
		default:
			messages = append(messages, fieldErr.Field()+" is invalid")
		}
	}
	return strings.Join(messages, "; ")
}

func badRequest(ctx *cartridge.Context, message string) error {
	return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": message})
}

func internalError(ctx *cartridge.Context) error {
	return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": errInternal})
}
