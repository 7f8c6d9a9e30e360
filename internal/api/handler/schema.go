package handler

import "github.com/greenpoint/recycling-ledger/internal/core/domain"

const maxBatchSize = 500

type registerUserRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// recyclingRequest only checks shape. Material and quantity are validated by
// the ledger so that errors keep their documented precedence.
type recyclingRequest struct {
	UserID   string `json:"user_id"  validate:"required,max=64"`
	Material string `json:"material" validate:"max=32"`
	Quantity int    `json:"quantity"`
}

type recordedResponse struct {
	Message     string                 `json:"message"`
	Transaction *domain.RecyclingEvent `json:"transaction"`
}

type acceptedResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

// errorResponse documents the error envelope rendered by the API error handler.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
