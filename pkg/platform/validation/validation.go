// Package validation builds the field-level validation errors shared by
// request DTOs.
package validation

import (
	"fmt"
	"strings"

	k8svalidation "k8s.io/apimachinery/pkg/util/validation"

	dErrors "deploygate/pkg/domain-errors"
)

// Required fails when value is empty after trimming.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return Missing(field)
	}
	return nil
}

// Missing reports a field that was absent or blank.
func Missing(field string) error {
	return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("Given parameter %s can not be null or empty", field))
}

// Min fails when value is below min.
func Min(field string, value, min int) error {
	if value < min {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("Given parameter %s must be at least %d", field, min))
	}
	return nil
}

// Range fails when value lies outside [min, max].
func Range(field string, value, min, max int) error {
	if value < min || value > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("Given parameter %s must be between %d and %d", field, min, max))
	}
	return nil
}

// MaxBytes fails when value is longer than max bytes.
func MaxBytes(field, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("Given parameter %s must be at most %d bytes", field, max))
	}
	return nil
}

// LabelValue fails when value could not be stored as a Kubernetes label
// value.
func LabelValue(field, value string) error {
	if msgs := k8svalidation.IsValidLabelValue(value); len(msgs) > 0 {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("Given parameter %s is invalid: %s", field, msgs[0]))
	}
	return nil
}

// First returns the first non-nil error, so a DTO reports one field at a time
// in declaration order.
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
