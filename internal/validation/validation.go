// Package validation provides input validation for the Cardledger API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/cardledger/internal/token"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxAccountLength is the maximum length for account identifiers
const MaxAccountLength = 128

var (
	// authIDRegex validates 16-byte authorization ids in hex
	authIDRegex = regexp.MustCompile(`^[a-fA-F0-9]{32}$`)
	// txHashRegex validates parent transaction hashes
	txHashRegex = regexp.MustCompile(`^(0x)?[a-fA-F0-9]{1,64}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAuthID checks if a string is a 32-hex-char authorization id
func IsValidAuthID(s string) bool {
	return authIDRegex.MatchString(s)
}

// IsValidTxHash checks if a string is a plausible transaction hash
func IsValidTxHash(s string) bool {
	return txHashRegex.MatchString(s)
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAuthID checks if a field is a valid authorization id
func ValidAuthID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidAuthID(value) {
			return &ValidationError{Field: field, Message: "must be 32 hex characters"}
		}
		return nil
	}
}

// ValidAccount checks if a field is a usable account identifier
func ValidAccount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if len(value) > MaxAccountLength || strings.ContainsAny(value, " \t\n\x00") {
			return &ValidationError{Field: field, Message: "must be a valid account identifier"}
		}
		return nil
	}
}

// ValidAmount checks if a field is a parseable non-negative token amount
func ValidAmount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if _, ok := token.Parse(value); !ok {
			return &ValidationError{Field: field, Message: "must be a decimal amount with at most 6 fraction digits"}
		}
		return nil
	}
}

// ValidTxHash checks if a field is a plausible parent transaction hash
func ValidTxHash(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidTxHash(value) {
			return &ValidationError{Field: field, Message: "must be a hex transaction hash"}
		}
		return nil
	}
}

// AuthIDParamMiddleware validates the :authId URL parameter on routes
// that use it, rejecting malformed ids before they reach a handler.
func AuthIDParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("authId")
		if id != "" && !IsValidAuthID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_authorization_id",
				"message": "Authorization id must be 32 hex characters",
			})
			return
		}
		c.Next()
	}
}
