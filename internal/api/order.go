package api

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/shopcore/internal/domain/catalog"
	"github.com/xenking/shopcore/internal/domain/coupon"
	"github.com/xenking/shopcore/internal/domain/order"
	"github.com/xenking/shopcore/internal/storage/postgres"
)

type orderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type placeOrderRequest struct {
	UserID            int64              `json:"user_id"`
	Items             []orderItemRequest `json:"items"`
	ShippingAddressID int64              `json:"shipping_address_id"`
	BillingAddressID  int64              `json:"billing_address_id"`
	CouponCode        string             `json:"coupon_code,omitempty"`
}

type orderItemResponse struct {
	ProductID  int64   `json:"product_id"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
}

type orderResponse struct {
	ID          string              `json:"id"`
	OrderNumber string              `json:"order_number"`
	UserID      int64               `json:"user_id"`
	Status      string              `json:"status"`
	Items       []orderItemResponse `json:"items"`
	Subtotal    float64             `json:"subtotal"`
	Discount    float64             `json:"discount"`
	Tax         float64             `json:"tax"`
	ShippingFee float64             `json:"shipping_fee"`
	Total       float64             `json:"total"`
	CouponCode  string              `json:"coupon_code,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemResponse{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice.InexactFloat64(),
			TotalPrice: item.TotalPrice.InexactFloat64(),
		}
	}
	return orderResponse{
		ID:          o.ID.String(),
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Status:      string(o.Status),
		Items:       items,
		Subtotal:    o.Subtotal.InexactFloat64(),
		Discount:    o.DiscountAmount.InexactFloat64(),
		Tax:         o.Tax.InexactFloat64(),
		ShippingFee: o.ShippingFee.InexactFloat64(),
		Total:       o.Total.InexactFloat64(),
		CouponCode:  o.CouponCode,
		CreatedAt:   o.CreatedAt,
	}
}

// PlaceOrder converts the checkout request to a domain request, delegates to
// the order service, and maps the result or error back to JSON.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	items := make([]order.ItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	o, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID:            req.UserID,
		Items:             items,
		ShippingAddressID: req.ShippingAddressID,
		BillingAddressID:  req.BillingAddressID,
		CouponCode:        req.CouponCode,
	})
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// GetOrder returns an order with its items.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type advanceOrderRequest struct {
	Status string `json:"status"`
}

// AdvanceOrder moves an order along its lifecycle.
func (h *Handler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req advanceOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	o, err := h.orders.AdvanceStatus(r.Context(), id, order.Status(req.Status))
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// CancelOrder cancels a pending or confirmed order, restoring its stock.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	o, err := h.orders.Cancel(r.Context(), id)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return uuid.Nil, false
	}
	return id, true
}

// writeOrderError maps order engine errors to HTTP responses.
func (h *Handler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidQty    *order.InvalidQuantityError
		notFound      *order.ProductNotFoundError
		inactive      *catalog.InactiveProductError
		noStock       *catalog.InsufficientStockError
		badTransition *order.InvalidTransitionError
	)

	switch {
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalidQty):
		writeError(w, http.StatusUnprocessableEntity, invalidQty.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusUnprocessableEntity, notFound.Error())
	case errors.As(err, &inactive):
		writeError(w, http.StatusUnprocessableEntity, inactive.Error())
	case errors.As(err, &noStock):
		writeError(w, http.StatusUnprocessableEntity, noStock.Error())
	case errors.Is(err, coupon.ErrInvalidCoupon):
		writeError(w, http.StatusUnprocessableEntity, "invalid coupon code")
	case errors.Is(err, coupon.ErrCouponExhausted):
		writeError(w, http.StatusUnprocessableEntity, "coupon usage limit reached")
	case errors.Is(err, coupon.ErrCouponAlreadyUsed):
		writeError(w, http.StatusConflict, "coupon already used")
	case errors.As(err, &badTransition):
		writeError(w, http.StatusConflict, badTransition.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, postgres.ErrIntegrityViolation):
		writeError(w, http.StatusConflict, "request conflicts with existing data")
	default:
		writeInternalError(w, r, err)
	}
}
