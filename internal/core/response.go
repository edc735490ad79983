package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"croplens/internal/types"
)

// maxRequestBodySize caps request bodies at 1 MiB. Assessment payloads with a
// full detection batch stay well under this.
const maxRequestBodySize = 1 << 20

// errCodeValidationInvalidJSON is returned for bodies that fail to parse
// before field-level validation can run.
const errCodeValidationInvalidJSON types.ErrorCode = "validation_invalid_json"

// APIResponse is the success envelope. Data carries the resource; Meta holds
// pagination and non-blocking warnings.
type APIResponse struct {
	Data any                 `json:"data"`
	Meta *types.ResponseMeta `json:"meta,omitempty"`
}

// APIErrorResponse is the failure envelope.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable error code and human message.
type ErrorDetail struct {
	Code      types.ErrorCode `json:"code"`
	Message   string          `json:"message"`
	Details   map[string]any  `json:"details,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// JSON writes a success envelope with the given status code.
func (s *Server) JSON(w http.ResponseWriter, r *http.Request, status int, data any, meta *types.ResponseMeta) {
	writeJSON(s.Logger, w, r, status, data, meta)
}

// Error writes a failure envelope for err. See the package-level Error.
func (s *Server) Error(w http.ResponseWriter, r *http.Request, err error) {
	writeError(s.Logger, w, r, err)
}

// JSON writes a success envelope with the given status code. Handlers use
// this package-level form; the server's middleware uses the method variant so
// failures land in the configured logger.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any, meta *types.ResponseMeta) {
	writeJSON(slog.Default(), w, r, status, data, meta)
}

// Error writes a failure envelope. AppErrors map to their HTTP status and
// expose their code and details; any other error becomes an opaque 500 so
// internals never leak to clients.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	writeError(slog.Default(), w, r, err)
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, r *http.Request, status int, data any, meta *types.ResponseMeta) {
	body, err := json.Marshal(APIResponse{Data: data, Meta: meta})
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to marshal response body",
			slog.String("error", err.Error()),
		)
		writeError(logger, w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode response", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())

	detail := ErrorDetail{
		Code:      types.ErrCodeInternalUnexpected,
		Message:   "an unexpected error occurred",
		RequestID: requestID,
	}
	status := http.StatusInternalServerError

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		detail.Code = appErr.Code
		detail.Message = appErr.Message
		detail.Details = appErr.Details
		status = appErr.HTTPStatus()
	} else {
		logger.ErrorContext(r.Context(), "unhandled error in request",
			slog.String("error", err.Error()),
		)
	}

	body, marshalErr := json.Marshal(APIErrorResponse{Error: detail})
	if marshalErr != nil {
		http.Error(w, `{"error":{"code":"internal_unexpected_error","message":"an unexpected error occurred"}}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// DecodeJSON strictly decodes the request body into dst. Unknown fields,
// trailing data, and bodies over maxRequestBodySize are rejected with a
// validation AppError suitable for passing straight to Error.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err)
	}

	// A second value in the body indicates a malformed request.
	if dec.More() {
		return types.NewAppError(errCodeValidationInvalidJSON, "request body must contain a single JSON object", nil)
	}

	return nil
}

// mapDecodeError converts json decoder failures into client-facing
// validation errors with stable codes.
func mapDecodeError(err error) error {
	var maxBytesErr *http.MaxBytesError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	switch {
	case errors.As(err, &maxBytesErr):
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidBody,
			"request body exceeds the maximum allowed size", err,
			map[string]any{"max_bytes": maxBytesErr.Limit})

	case errors.As(err, &syntaxErr):
		return types.NewAppErrorWithDetails(errCodeValidationInvalidJSON,
			"request body contains malformed JSON", err,
			map[string]any{"offset": syntaxErr.Offset})

	case errors.As(err, &typeErr):
		return types.NewAppErrorWithDetails(errCodeValidationInvalidJSON,
			fmt.Sprintf("request body contains an invalid value for field %q", typeErr.Field), err,
			map[string]any{"field": typeErr.Field})

	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.TrimPrefix(err.Error(), "json: unknown field ")
		field = strings.Trim(field, `"`)
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidBody,
			fmt.Sprintf("request body contains unknown field %q", field), err,
			map[string]any{"field": field})

	case errors.Is(err, io.EOF):
		return types.NewAppError(types.ErrCodeValidationInvalidBody, "request body must not be empty", err)

	default:
		return types.NewAppError(errCodeValidationInvalidJSON, "request body could not be parsed", err)
	}
}
