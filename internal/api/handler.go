// Package api exposes the order engine over HTTP/JSON: the checkout and
// lifecycle surface, the catalog read surface, and the gateway/carrier
// webhook endpoints.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shopcore/internal/domain/catalog"
	"github.com/xenking/shopcore/internal/domain/order"
	"github.com/xenking/shopcore/internal/domain/payment"
	"github.com/xenking/shopcore/internal/domain/shipment"
)

// Handler serves the HTTP API, delegating business logic to the domain
// services and repositories.
type Handler struct {
	products  catalog.Repository
	orders    *order.Service
	payments  *payment.Tracker
	shipments *shipment.Tracker
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products catalog.Repository,
	orders *order.Service,
	payments *payment.Tracker,
	shipments *shipment.Tracker,
) *Handler {
	return &Handler{
		products:  products,
		orders:    orders,
		payments:  payments,
		shipments: shipments,
	}
}

// Register mounts every API route on the mux under /api.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)

	mux.HandleFunc("POST /api/orders", h.PlaceOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{id}/advance", h.AdvanceOrder)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.CancelOrder)
	mux.HandleFunc("POST /api/orders/{id}/payment", h.RecordPayment)
	mux.HandleFunc("POST /api/orders/{id}/shipment", h.CreateShipment)

	mux.HandleFunc("POST /api/webhooks/payment", h.PaymentWebhook)
	mux.HandleFunc("POST /api/webhooks/shipment", h.ShipmentWebhook)
}

// errorResponse is the uniform JSON error body.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// writeInternalError logs the unexpected error and hides it from the client.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("internal error",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// decodeBody decodes the JSON request body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}
