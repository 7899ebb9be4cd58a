package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount           = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrInvalidCurrency         = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Invalid currency"}
	ErrAlreadyCaptured         = &AppError{http.StatusConflict, "ALREADY_CAPTURED", "Payment already captured"}
	ErrPaymentTerminal         = &AppError{http.StatusUnprocessableEntity, "PAYMENT_TERMINAL", "Payment is in a terminal state"}
	ErrRefundNotEligible       = &AppError{http.StatusUnprocessableEntity, "REFUND_NOT_ELIGIBLE", "Payment is not eligible for refund"}
	ErrRefundExceedsAmount     = &AppError{http.StatusUnprocessableEntity, "REFUND_EXCEEDS_AMOUNT", "Refund exceeds the remaining refundable amount"}
	ErrUnknownProvider         = &AppError{http.StatusBadRequest, "UNKNOWN_PROVIDER", "Unknown payment provider"}
	ErrProviderRejected        = &AppError{http.StatusBadGateway, "PROVIDER_REJECTED", "Payment provider rejected the request"}
	ErrProviderUnsupported     = &AppError{http.StatusUnprocessableEntity, "PROVIDER_UNSUPPORTED", "Operation not supported by this provider"}
	ErrInvalidSignature        = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature is invalid"}
	ErrMissingIdempotencyKey   = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict     = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
)
