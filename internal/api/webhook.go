package api

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopcore/internal/domain/payment"
	"github.com/xenking/shopcore/internal/domain/shipment"
)

type recordPaymentRequest struct {
	Amount float64 `json:"amount"`
	Method string  `json:"method"`
}

type paymentResponse struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order_id"`
	Status         string    `json:"status"`
	Amount         float64   `json:"amount"`
	Method         string    `json:"method"`
	TransactionRef string    `json:"transaction_ref,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toPaymentResponse(p *payment.Payment) paymentResponse {
	return paymentResponse{
		ID:             p.ID.String(),
		OrderID:        p.OrderID.String(),
		Status:         string(p.Status),
		Amount:         p.Amount.InexactFloat64(),
		Method:         p.Method,
		TransactionRef: p.TransactionRef,
		UpdatedAt:      p.UpdatedAt,
	}
}

// RecordPayment opens the pending payment for an order at checkout time.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req recordPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, "payment method required")
		return
	}

	p, err := h.payments.Record(r.Context(), id, decimal.NewFromFloat(req.Amount).Round(2), req.Method)
	if err != nil {
		h.writePaymentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(p))
}

type createShipmentRequest struct {
	CarrierID int64 `json:"carrier_id"`
}

type shipmentResponse struct {
	ID             string     `json:"id"`
	OrderID        string     `json:"order_id"`
	Status         string     `json:"status"`
	CarrierID      int64      `json:"carrier_id"`
	TrackingNumber string     `json:"tracking_number,omitempty"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toShipmentResponse(s *shipment.Shipment) shipmentResponse {
	return shipmentResponse{
		ID:             s.ID.String(),
		OrderID:        s.OrderID.String(),
		Status:         string(s.Status),
		CarrierID:      s.CarrierID,
		TrackingNumber: s.TrackingNumber,
		ShippedAt:      s.ShippedAt,
		DeliveredAt:    s.DeliveredAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// CreateShipment assigns a carrier to a confirmed order.
func (h *Handler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req createShipmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CarrierID <= 0 {
		writeError(w, http.StatusBadRequest, "carrier_id required")
		return
	}

	s, err := h.shipments.Create(r.Context(), id, req.CarrierID)
	if err != nil {
		h.writeShipmentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShipmentResponse(s))
}

type paymentWebhookRequest struct {
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
	TransactionRef string `json:"transaction_ref,omitempty"`
}

// PaymentWebhook consumes an asynchronous payment gateway callback.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req paymentWebhookRequest
	if !decodeBody(w, r, &req) {
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	p, err := h.payments.ApplyGatewayResult(r.Context(), orderID, payment.Status(req.Status), req.TransactionRef)
	if err != nil {
		h.writePaymentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

type shipmentWebhookRequest struct {
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}

// ShipmentWebhook consumes an asynchronous carrier callback.
func (h *Handler) ShipmentWebhook(w http.ResponseWriter, r *http.Request) {
	var req shipmentWebhookRequest
	if !decodeBody(w, r, &req) {
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	s, err := h.shipments.ApplyCarrierEvent(r.Context(), orderID, shipment.Status(req.Status), req.TrackingNumber)
	if err != nil {
		h.writeShipmentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentResponse(s))
}

func (h *Handler) writePaymentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, payment.ErrOrderNotReady):
		writeError(w, http.StatusConflict, "order not ready for payment")
	case errors.Is(err, payment.ErrAlreadyRecorded):
		writeError(w, http.StatusConflict, "payment already recorded")
	case errors.Is(err, payment.ErrAmountMismatch):
		writeError(w, http.StatusUnprocessableEntity, "payment amount does not match order total")
	case errors.Is(err, payment.ErrInvalidResult):
		writeError(w, http.StatusConflict, "invalid payment state change")
	case errors.Is(err, payment.ErrNotFound):
		writeError(w, http.StatusNotFound, "payment not found")
	default:
		writeInternalError(w, r, err)
	}
}

func (h *Handler) writeShipmentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shipment.ErrOrderNotReady):
		writeError(w, http.StatusConflict, "order not ready for shipment")
	case errors.Is(err, shipment.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "shipment already exists")
	case errors.Is(err, shipment.ErrInvalidEvent):
		writeError(w, http.StatusConflict, "invalid shipment state change")
	case errors.Is(err, shipment.ErrNotFound):
		writeError(w, http.StatusNotFound, "shipment not found")
	default:
		writeInternalError(w, r, err)
	}
}
