// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package api

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/trackersync/internal/models"
)

// singleton validator instance
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// fieldError is a single field validation failure.
type fieldError struct {
	field   string
	tag     string
	value   interface{}
	message string
}

// getValidator returns the singleton validator with the scope rules registered.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterStructValidation(scopeStructLevel, models.Scope{})
	})
	return validate
}

// scopeStructLevel rejects empty or inverted time windows. Either bound may
// be omitted.
func scopeStructLevel(sl validator.StructLevel) {
	scope, ok := sl.Current().Interface().(models.Scope)
	if !ok || scope.Since == nil || scope.Until == nil {
		return
	}
	if !scope.Until.After(*scope.Since) {
		sl.ReportError(scope.Until, "until", "Until", "after_since", "")
	}
}

// validateRequest validates v and converts failures to the API error format.
func validateRequest(v interface{}) *models.APIError {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &models.APIError{Code: "VALIDATION_ERROR", Message: err.Error()}
	}

	fields := make([]fieldError, len(validationErrs))
	for i, fe := range validationErrs {
		fields[i] = fieldError{
			field:   fe.Field(),
			tag:     fe.Tag(),
			value:   fe.Value(),
			message: translateError(fe),
		}
	}
	return toAPIError(fields)
}

func toAPIError(fields []fieldError) *models.APIError {
	if len(fields) == 1 {
		f := fields[0]
		return &models.APIError{
			Code:    "VALIDATION_ERROR",
			Message: f.message,
			Details: map[string]interface{}{
				"field": f.field,
				"tag":   f.tag,
				"value": f.value,
			},
		}
	}

	details := make([]map[string]interface{}, len(fields))
	messages := make([]string, len(fields))
	for i, f := range fields {
		details[i] = map[string]interface{}{
			"field":   f.field,
			"tag":     f.tag,
			"message": f.message,
		}
		messages[i] = fmt.Sprintf("%s: %s", f.field, f.message)
	}
	return &models.APIError{
		Code:    "VALIDATION_ERROR",
		Message: strings.Join(messages, "; "),
		Details: map[string]interface{}{"fields": details},
	}
}

// errorMessageTemplates maps validation tags to message templates.
var errorMessageTemplates = map[string]string{
	"required":    "%s is required",
	"after_since": "%s must be after since",
}

// errorMessageWithParam maps validation tags to templates that include param.
var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"max":   "%s must be at most %s characters",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
}

func translateError(fe validator.FieldError) string {
	if template, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(template, fe.Field())
	}
	if template, ok := errorMessageWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(template, fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}
