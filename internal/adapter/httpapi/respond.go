package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"egyptoai/internal/domain"
	"egyptoai/internal/infra/logger"
	"egyptoai/internal/usecase"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorBody{Error: msg, Details: details})
}

// statusFor maps err to an HTTP status. Request decoding failures are
// already ErrInvalidInput, so the usecase table covers every case.
func statusFor(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return usecase.StatusFor(err)
}

// fail writes the JSON error for err. Server-side failures are logged.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := usecase.PublicMessage(err)
	var ve *validationError
	if errors.As(err, &ve) {
		msg = ve.msg
	}
	if status == http.StatusRequestEntityTooLarge {
		msg = "Request body too large"
	}

	log := logger.FromContext(r.Context(), h.logger)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		log.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}

	details := ""
	if h.exposeDetails && status >= http.StatusInternalServerError {
		details = err.Error()
	}
	writeError(w, status, msg, details)
}

// validationError carries a client-facing message for a rejected body.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }
func (e *validationError) Unwrap() error { return domain.ErrInvalidInput }

// decodeJSON reads a JSON body into dst and validates its struct tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return &validationError{msg: "Request body is required"}
		}
		return &validationError{msg: "Malformed JSON body"}
	}
	if err := validate.Struct(dst); err != nil {
		return &validationError{msg: describeValidation(err)}
	}
	return nil
}

// describeValidation turns validator errors into one readable sentence per field.
func describeValidation(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return "Invalid request"
	}
	parts := make([]string, 0, len(fields))
	for _, fe := range fields {
		name := fe.Field()
		switch fe.Tag() {
		case "required":
			parts = append(parts, name+" is required")
		case "email":
			parts = append(parts, name+" must be a valid email address")
		case "url":
			parts = append(parts, name+" must be a valid URL")
		case "min":
			parts = append(parts, fmt.Sprintf("%s must be at least %s characters", name, fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", name, fe.Param()))
		case "numeric":
			parts = append(parts, name+" must contain digits only")
		default:
			parts = append(parts, name+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}
