package dto

import (
	"github.com/go-playground/validator/v10"
)

// Shared validator instance; DTO Validate() methods delegate struct-tag
// validation to it.
var validate = validator.New()

type ErrorDetail struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type TokenRequest struct {
	Username string `json:"username" validate:"required"`
}

func (r *TokenRequest) Validate() error {
	return validate.Struct(r)
}
