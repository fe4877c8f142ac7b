package utils

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		errorResponse["error"] = err.Error()
		return errorResponse
	}

	for _, fieldError := range validationErrors {
		field := strings.ToLower(fieldError.Field())
		switch fieldError.Tag() {
		case "required":
			errorResponse[field] = fmt.Sprintf("%s is required", field)
		case "min":
			errorResponse[field] = fmt.Sprintf("%s must be at least %s", field, fieldError.Param())
		case "max":
			errorResponse[field] = fmt.Sprintf("%s must be at most %s", field, fieldError.Param())
		default:
			errorResponse[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return errorResponse
}

func SplitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
