package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"croplens/internal/types"
)

// Validator wraps go-playground struct validation and translates failures
// into client-facing AppErrors.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator constructs a Validator. JSON tag names are used in error
// details so clients see the wire-format field names, not Go identifiers.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates dst against its struct tags. On failure it returns
// an AppError listing every violated field so clients can fix all problems in
// one round trip.
func (v *Validator) ValidateStruct(dst any) error {
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		// Non-struct input is a programming error, not a client error.
		v.logger.Error("validator received non-struct input", slog.String("error", err.Error()))
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation could not be performed", err)
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return types.NewAppError(types.ErrCodeValidationInvalidBody, "request validation failed", err)
	}

	fields := make(map[string]any, len(validationErrs))
	for _, fe := range validationErrs {
		fields[fe.Field()] = describeViolation(fe)
	}

	code := types.ErrCodeValidationInvalidBody
	if len(validationErrs) > 0 && validationErrs[0].Tag() == "required" {
		code = types.ErrCodeValidationMissingField
	}

	return types.NewAppErrorWithDetails(code, "request validation failed", err,
		map[string]any{"fields": fields})
}

// describeViolation renders a single rule failure as a short human hint.
func describeViolation(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
