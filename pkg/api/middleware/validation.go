package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"taskagent/pkg/models"
)

// RequestIDKey is the gin context key holding the request ID.
const RequestIDKey = "request_id"

// MaxNameLength bounds script names.
const MaxNameLength = 255

// ErrNoJSONData means the body was empty, not JSON, or not a non-empty object.
var ErrNoJSONData = errors.New("no JSON data provided")

// requiredFields are checked in this order; the first one missing is reported.
var requiredFields = []string{"script_name", "execution_id"}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// MissingFieldError reports an absent required field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "missing required field: " + e.Field
}

// DecodeExecuteRequest parses and validates an execute request body. It
// returns ErrNoJSONData, a *MissingFieldError or a *ValidationError.
func DecodeExecuteRequest(body []byte) (models.ExecutionRequest, error) {
	var req models.ExecutionRequest

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(body), &raw); err != nil || len(raw) == 0 {
		return req, ErrNoJSONData
	}

	for _, field := range requiredFields {
		if isAbsent(raw[field]) {
			return req, &MissingFieldError{Field: field}
		}
	}

	var err error
	if req.ScriptName, err = stringField(raw, "script_name"); err != nil {
		return req, err
	}
	if req.ExecutionID, err = idField(raw, "execution_id"); err != nil {
		return req, err
	}
	if req.ScriptContent, err = stringField(raw, "script_content"); err != nil {
		return req, err
	}
	if req.ScriptType, err = stringField(raw, "script_type"); err != nil {
		return req, err
	}
	if v := raw["parameters"]; !isAbsent(v) {
		if err := req.Parameters.UnmarshalJSON(v); err != nil {
			return req, &ValidationError{Field: "parameters", Message: err.Error()}
		}
	}

	if err := ValidateScriptName(req.ScriptName); err != nil {
		return req, err
	}
	if err := req.Parameters.Validate(); err != nil {
		return req, &ValidationError{Field: "parameters", Message: err.Error()}
	}
	return req, nil
}

// ValidateScriptName bounds the name's length. Whether it is usable as a
// store key is decided by the store.
func ValidateScriptName(name string) error {
	if len(name) > MaxNameLength {
		return &ValidationError{Field: "script_name", Message: "name exceeds maximum length"}
	}
	if strings.IndexByte(name, 0) >= 0 {
		return &ValidationError{Field: "script_name", Message: "name contains a NUL byte"}
	}
	return nil
}

func isAbsent(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}

func stringField(raw map[string]json.RawMessage, field string) (string, error) {
	v := raw[field]
	if isAbsent(v) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", &ValidationError{Field: field, Message: "must be a string"}
	}
	return s, nil
}

// idField accepts a string or a number; IDs are opaque text either way.
func idField(raw map[string]json.RawMessage, field string) (string, error) {
	v := raw[field]
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), nil
	}
	return stringField(raw, field)
}

// BodySizeLimitMiddleware limits request body size
func BodySizeLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "request body too large",
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// SecurityHeadersMiddleware adds security headers
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// RequestIDMiddleware propagates the caller's X-Request-ID or assigns one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
