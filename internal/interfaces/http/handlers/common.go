package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Detail  string              `json:"detail,omitempty"`
	Fields  []errors.FieldError `json:"fields,omitempty"`
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, statusCode int, err error) {
	resp := ErrorResponse{Code: http.StatusText(statusCode), Message: err.Error()}
	var ae *errors.AppError
	if errors.As(err, &ae) {
		resp.Code = string(ae.Code)
		resp.Message = ae.Message
		resp.Detail = ae.Detail
	}
	var ve *errors.ValidationError
	if errors.As(err, &ve) {
		resp.Code = string(errors.ErrCodeValidation)
		resp.Message = "validation failed"
		resp.Fields = ve.Fields
	}
	writeJSON(w, statusCode, resp)
}

// statusFor maps an application error to an HTTP status.  Classification
// wins over the outermost code so a wrapped not-found still yields 404.
func statusFor(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsValidation(err):
		return http.StatusBadRequest
	case errors.IsConflict(err):
		return http.StatusConflict
	case errors.IsUnauthorized(err):
		return http.StatusUnauthorized
	}
	return errors.HTTPStatusForCode(errors.GetCode(err))
}

// writeAppError maps application-level errors to HTTP responses.  Server-side
// failures are masked.
func writeAppError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusServiceUnavailable {
		writeError(w, status, errors.New(errors.ErrCodeInternal, "internal server error"))
		return
	}
	writeError(w, status, err)
}

// decodeJSON reads a JSON body into dst and runs its validate tags.  An
// empty body decodes to the zero value.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && err != io.EOF {
		return errors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return errors.ValidateStruct(dst)
}

// filingTypeParam parses the {filingType} path parameter.
func filingTypeParam(r *http.Request) (filing.FilingType, error) {
	ft, err := filing.ParseFilingType(chi.URLParam(r, "filingType"))
	if err != nil {
		return "", err
	}
	return ft, nil
}

// intQuery reads a non-negative integer query parameter, returning def when
// absent or malformed.
func intQuery(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
