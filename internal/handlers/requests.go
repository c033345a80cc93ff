package handlers

import (
	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the go-playground/validator library to implement Echo's Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

const (
	defaultMessageLimit = 100
	maxMessageLimit     = 500
)

// RecentMessagesRequest defines the query of the recent-messages endpoints.
type RecentMessagesRequest struct {
	StreamID string `param:"stream_id"`
	Limit    int    `query:"limit" validate:"omitempty,min=1,max=500"`
}

// limit returns the requested limit or the default.
func (r RecentMessagesRequest) limit() int {
	if r.Limit == 0 {
		return defaultMessageLimit
	}
	return r.Limit
}
