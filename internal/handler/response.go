package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"filekeeper/internal/auth"
	"filekeeper/internal/domain"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	ID    int64  `json:"id,omitempty"`
	Path  string `json:"path,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError is the single place where service errors become HTTP statuses.
// Unexpected errors are logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	resp := errorResponse{Error: err.Error()}
	var status int

	var conflict *domain.ConflictError
	switch {
	case errors.As(err, &conflict):
		status, resp.Code = http.StatusConflict, "Conflict"
		resp.ID, resp.Path = conflict.ID, conflict.Path
	case errors.Is(err, domain.ErrInvalidInput):
		status, resp.Code = http.StatusBadRequest, "InvalidInput"
	case errors.Is(err, domain.ErrPasswordRequired):
		status, resp.Code = http.StatusUnauthorized, "PasswordRequired"
	case errors.Is(err, domain.ErrPasswordIncorrect):
		status, resp.Code = http.StatusUnauthorized, "PasswordIncorrect"
	case errors.Is(err, domain.ErrForbidden):
		status, resp.Code = http.StatusForbidden, "Forbidden"
	case errors.Is(err, domain.ErrNotFound):
		status, resp.Code = http.StatusNotFound, "NotFound"
	case errors.Is(err, domain.ErrExpired):
		status, resp.Code = http.StatusGone, "Expired"
	case errors.Is(err, domain.ErrConflict):
		status, resp.Code = http.StatusConflict, "Conflict"
	default:
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		status, resp.Code, resp.Error = http.StatusInternalServerError, "Internal", "internal server error"
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON body into v and checks its validate tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidInput, err)
	}
	if err := validate.Struct(v); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%w: %s failed on '%s'", domain.ErrInvalidInput, e.Namespace(), e.Tag())
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// principal returns the caller set by auth.Middleware.
func principal(r *http.Request) *domain.Principal {
	return auth.PrincipalFromContext(r.Context())
}

func int64Param(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidInput, name)
	}
	return v, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	v, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a uuid", domain.ErrInvalidInput, name)
	}
	return v, nil
}
