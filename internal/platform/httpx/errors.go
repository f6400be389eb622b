package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrDuplicate      = errors.New("duplicate entry")
	ErrValidation     = errors.New("validation failed")
	ErrForbidden      = errors.New("forbidden")
	ErrUnauthorized   = errors.New("authentication required")
	ErrBadCredentials = errors.New("invalid username or password")
)

// Problemer is implemented by errors that know their own structured response.
type Problemer interface {
	Problem() ProblemDetail
}

// RespondError maps domain errors to structured HTTP responses. Unknown errors
// become a generic 500 so store internals never reach the client.
func RespondError(w http.ResponseWriter, err error) {
	var p Problemer
	if errors.As(err, &p) {
		Problem(w, p.Problem())
		return
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		Problem(w, ValidationProblem(verrs))
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, ProblemDetail{Status: http.StatusNotFound, Code: "RESOURCE_NOT_FOUND", Message: publicMessage(err, ErrNotFound)})
	case errors.Is(err, ErrDuplicate):
		Problem(w, ProblemDetail{Status: http.StatusConflict, Code: "DUPLICATE_RESOURCE", Message: publicMessage(err, ErrDuplicate)})
	case errors.Is(err, ErrValidation):
		Problem(w, ProblemDetail{Status: http.StatusBadRequest, Code: "VALIDATION_FAILED", Message: publicMessage(err, ErrValidation)})
	case errors.Is(err, ErrForbidden):
		Problem(w, ProblemDetail{Status: http.StatusForbidden, Code: "INSUFFICIENT_PERMISSIONS", Message: ErrForbidden.Error()})
	case errors.Is(err, ErrBadCredentials):
		Problem(w, ProblemDetail{Status: http.StatusUnauthorized, Code: "INVALID_CREDENTIALS", Message: ErrBadCredentials.Error()})
	case errors.Is(err, ErrUnauthorized):
		Problem(w, ProblemDetail{Status: http.StatusUnauthorized, Code: "AUTHENTICATION_REQUIRED", Message: ErrUnauthorized.Error()})
	default:
		Problem(w, ProblemDetail{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "internal server error"})
	}
}

// publicMessage drops the "pkg: op:" wrap chain in front of sentinel, keeping
// the sentinel text and any detail added after it.
func publicMessage(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()); i >= 0 {
		return msg[i:]
	}
	return sentinel.Error()
}

// ValidationProblem converts validator errors into a VALIDATION_FAILED body.
func ValidationProblem(verrs validator.ValidationErrors) ProblemDetail {
	fields := make([]Field, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, Field{Field: fe.Field(), Message: "failed on " + fe.Tag()})
	}
	return ProblemDetail{
		Status:      http.StatusBadRequest,
		Code:        "VALIDATION_FAILED",
		Message:     "request validation failed",
		FieldErrors: fields,
	}
}
