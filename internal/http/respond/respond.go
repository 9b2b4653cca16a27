// Package respond holds the JSON helpers shared by every HTTP handler.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// ErrorBody is the payload written for every failed request.
type ErrorBody struct {
	Error  string         `json:"error"`
	Issues []apperr.Issue `json:"issues,omitempty"`
}

// JSON writes payload with the given status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Error maps err onto a status code and writes it. Server errors are logged
// and their message hidden.
func Error(w http.ResponseWriter, logger *logging.Logger, err error) {
	status := apperr.HTTPStatus(err)
	body := ErrorBody{Error: err.Error(), Issues: apperr.IssuesOf(err)}
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		if logger != nil {
			logger.Error("request failed", "error", err)
		}
		body = ErrorBody{Error: "internal error"}
	}
	JSON(w, status, body)
}

// Decode reads a JSON body into dst and runs struct validation on it.
// Failures are returned as apperr validation errors.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("decode request", apperr.Issue{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)})
	}
	return Struct(dst)
}

// Struct validates s against its validate tags.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("validate request", apperr.Issue{Message: err.Error()})
	}
	issues := make([]apperr.Issue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, apperr.Issue{Field: fieldPath(fe), Message: describe(fe)})
	}
	return apperr.Validation("validate request", issues...)
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "is invalid"
	}
}
