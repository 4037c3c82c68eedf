package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	id "deploygate/pkg/domain"
	dErrors "deploygate/pkg/domain-errors"
)

// Public error codes. They are part of the API contract and must stay stable.
const (
	ErrorCodeGeneral      = "k8s-0000"
	ErrorCodeUnauthorized = "k8s-1000"
	ErrorCodeBadRequest   = "k8s-1001"
	ErrorCodeNotFound     = "k8s-1002"
	ErrorCodeServerError  = "k8s-1003"
)

const (
	messageGeneral      = "Unknown exception occured."
	messageUnauthorized = "The request is unauthorized."
	messageServerError  = "Server error. Please contact your administrator"
)

// ErrorResponse is the body written for every failed request.
type ErrorResponse struct {
	Code          string `json:"code"`
	ReasonMessage string `json:"reasonMessage"`
	CreatedTime   string `json:"createdTime"`
}

// Preparable is implemented by request DTOs that clean and check themselves
// after decoding.
type Preparable interface {
	Normalize()
	Validate() error
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates any error into the public error envelope. Unclassified
// errors never leak their text.
func WriteError(w http.ResponseWriter, err error) {
	status, body := translate(err)
	body.CreatedTime = id.FormatTimestamp(time.Now())
	WriteJSON(w, status, body)
}

func translate(err error) (int, ErrorResponse) {
	code, ok := dErrors.CodeOf(err)
	if !ok {
		return http.StatusInternalServerError, ErrorResponse{Code: ErrorCodeGeneral, ReasonMessage: messageGeneral}
	}
	msg := dErrors.MessageOf(err)
	switch code {
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized, ErrorResponse{Code: ErrorCodeUnauthorized, ReasonMessage: messageUnauthorized}
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeConflict:
		return http.StatusBadRequest, ErrorResponse{Code: ErrorCodeBadRequest, ReasonMessage: msg}
	case dErrors.CodeNotFound:
		return http.StatusNotFound, ErrorResponse{Code: ErrorCodeNotFound, ReasonMessage: msg}
	case dErrors.CodeClusterAPI:
		// The cluster's own response body is only echoed when it sent one.
		if msg != "" {
			return http.StatusBadRequest, ErrorResponse{Code: ErrorCodeBadRequest, ReasonMessage: msg}
		}
		return http.StatusInternalServerError, ErrorResponse{Code: ErrorCodeServerError, ReasonMessage: messageServerError}
	default:
		return http.StatusInternalServerError, ErrorResponse{Code: ErrorCodeServerError, ReasonMessage: messageServerError}
	}
}

// DecodeAndPrepare decodes the JSON body into T, normalizes and validates it.
// On failure it writes the error response and returns false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Preparable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Request body is not valid JSON"))
		return nil, false
	}

	p := PT(&req)
	p.Normalize()
	if err := p.Validate(); err != nil {
		logger.WarnContext(ctx, "invalid request",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, err)
		return nil, false
	}
	return &req, true
}
