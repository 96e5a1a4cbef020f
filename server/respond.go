package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/c360studio/traceline/mail"
	"github.com/c360studio/traceline/resource"
	"github.com/c360studio/traceline/scheduler"
	"github.com/c360studio/traceline/signature"
	"github.com/c360studio/traceline/sprint"
	"github.com/c360studio/traceline/workitem"
)

// maxRequestBodySize limits request body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// validate checks payload structs against their validator tags.
var validate = validator.New(validator.WithRequiredStructEnabled())

// errorResponse is the uniform error payload.
type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Response is already partially written; nothing to recover.
		_ = err
	}
}

// writeError maps a service error onto the HTTP contract.
func writeError(w http.ResponseWriter, err error) {
	var verr *workitem.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error()})
		return
	}
	var conflict *sprint.ConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: conflict.Message})
		return
	}

	switch {
	case errors.Is(err, workitem.ErrNotFound),
		errors.Is(err, sprint.ErrNotFound),
		errors.Is(err, signature.ErrNotFound),
		errors.Is(err, scheduler.ErrNotFound),
		errors.Is(err, resource.ErrNotFound),
		errors.Is(err, mail.ErrThreadNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, resource.ErrAllocationKind),
		errors.Is(err, resource.ErrCycle),
		errors.Is(err, sprint.ErrTaskNotInSprint):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, scheduler.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// decodeJSON reads and validates a request payload. A malformed body is
// a 422; tag violations surface per-field.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer io.Copy(io.Discard, body)

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: fmt.Sprintf("malformed payload: %v", err),
		})
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make(map[string]string, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields[fe.Field()] = fe.Tag()
			}
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Error:  "validation failed",
				Fields: fields,
			})
			return false
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return false
	}
	return true
}

// actor extracts the acting user. Mutating handlers require it; a
// missing header is a 401 per the API contract.
func actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := r.Header.Get("X-User-ID")
	if user == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "X-User-ID header required"})
		return "", false
	}
	return user, true
}
