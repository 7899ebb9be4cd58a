package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/osezele-agbi/paygate/internal/auth"
	"github.com/osezele-agbi/paygate/internal/domain"
	"github.com/osezele-agbi/paygate/internal/logging"
	"github.com/osezele-agbi/paygate/internal/service/payment"
)

type paymentService interface {
	Create(ctx context.Context, req payment.CreateRequest) (*domain.Payment, error)
	Capture(ctx context.Context, paymentID, userID uuid.UUID, amount decimal.Decimal) (*domain.Payment, error)
	Refund(ctx context.Context, req payment.RefundRequest) (*domain.PaymentRefund, error)
	GetPaymentForUser(ctx context.Context, paymentID, userID uuid.UUID) (*domain.Payment, error)
	ListPaymentsForUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error)
	ListRefundsForPayment(ctx context.Context, paymentID, userID uuid.UUID) ([]domain.PaymentRefund, error)
	ListEventsForPayment(ctx context.Context, paymentID, userID uuid.UUID) ([]domain.PaymentEvent, error)
}

type PaymentHandler struct {
	payments paymentService
}

func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type createPaymentRequest struct {
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency"`
	CustomerID  string            `json:"customer_id,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (r createPaymentRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Amount.LessThanOrEqual(decimal.Zero) {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be USD, EUR, GBP, or INR"})
	}

	return errs
}

type captureRequest struct {
	Amount decimal.Decimal `json:"amount,omitempty"`
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

type paymentDTO struct {
	ID                uuid.UUID       `json:"id"`
	Provider          string          `json:"provider"`
	ProviderPaymentID *string         `json:"provider_payment_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	Method            *string         `json:"method,omitempty"`
	Description       *string         `json:"description,omitempty"`
	RefundedAmount    decimal.Decimal `json:"refunded_amount"`
	FailureReason     *string         `json:"failure_reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

func toPaymentDTO(p *domain.Payment) paymentDTO {
	dto := paymentDTO{
		ID:                p.ID,
		Provider:          string(p.Provider),
		ProviderPaymentID: p.ProviderPaymentID,
		Amount:            p.Amount,
		Currency:          string(p.Currency),
		Status:            string(p.Status),
		Description:       p.Description,
		RefundedAmount:    p.RefundedAmount,
		FailureReason:     p.FailureReason,
		CreatedAt:         p.CreatedAt,
		CompletedAt:       p.CompletedAt,
	}
	if p.Method != nil {
		m := string(*p.Method)
		dto.Method = &m
	}
	return dto
}

type refundDTO struct {
	ID               uuid.UUID       `json:"id"`
	PaymentID        uuid.UUID       `json:"payment_id"`
	ProviderRefundID *string         `json:"provider_refund_id"`
	Amount           decimal.Decimal `json:"amount"`
	Status           string          `json:"status"`
	Reason           *string         `json:"reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

func toRefundDTO(r *domain.PaymentRefund) refundDTO {
	return refundDTO{
		ID:               r.ID,
		PaymentID:        r.PaymentID,
		ProviderRefundID: r.ProviderRefundID,
		Amount:           r.Amount,
		Status:           string(r.Status),
		Reason:           r.Reason,
		CreatedAt:        r.CreatedAt,
	}
}

type paymentEventDTO struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"event_type"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func toPaymentEventDTO(e *domain.PaymentEvent) paymentEventDTO {
	return paymentEventDTO{
		ID:        e.ID,
		EventType: string(e.EventType),
		Actor:     e.Actor,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt,
	}
}

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	p, err := h.payments.Create(r.Context(), payment.CreateRequest{
		UserID:      userID,
		Amount:      req.Amount,
		Currency:    domain.Currency(req.Currency),
		CustomerID:  req.CustomerID,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		log.Warn("payment creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/payments/%s", p.ID))
	RespondSuccess(w, http.StatusCreated, toPaymentDTO(p))
}

func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	payments, err := h.payments.ListPaymentsForUser(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment list failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]paymentDTO, 0, len(payments))
	for i := range payments {
		dtos = append(dtos, toPaymentDTO(&payments[i]))
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	p, err := h.payments.GetPaymentForUser(r.Context(), paymentID, userID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}

func (h *PaymentHandler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	refunds, err := h.payments.ListRefundsForPayment(r.Context(), paymentID, userID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("refund list failed", "payment_id", paymentID, "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]refundDTO, 0, len(refunds))
	for i := range refunds {
		dtos = append(dtos, toRefundDTO(&refunds[i]))
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *PaymentHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	events, err := h.payments.ListEventsForPayment(r.Context(), paymentID, userID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("event list failed", "payment_id", paymentID, "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]paymentEventDTO, 0, len(events))
	for i := range events {
		dtos = append(dtos, toPaymentEventDTO(&events[i]))
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *PaymentHandler) Capture(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	// Body is optional; an empty body means full capture.
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	p, err := h.payments.Capture(r.Context(), paymentID, userID, req.Amount)
	if err != nil {
		log.Warn("payment capture failed", "payment_id", paymentID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}

func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	refund, err := h.payments.Refund(r.Context(), payment.RefundRequest{
		PaymentID: paymentID,
		UserID:    userID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		log.Warn("payment refund failed", "payment_id", paymentID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toRefundDTO(refund))
}
