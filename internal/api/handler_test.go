package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shopcore/internal/domain/catalog"
	"github.com/xenking/shopcore/internal/domain/coupon"
	"github.com/xenking/shopcore/internal/domain/order"
	"github.com/xenking/shopcore/internal/domain/payment"
	"github.com/xenking/shopcore/internal/domain/shipment"
)

// --- In-memory fakes ---

type fakeProductRepo struct {
	products []catalog.Product
}

func (f *fakeProductRepo) List(_ context.Context) ([]catalog.Product, error) {
	return f.products, nil
}

func (f *fakeProductRepo) GetByID(_ context.Context, id int64) (*catalog.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeProductRepo) GetByIDs(_ context.Context, ids []int64) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		for _, p := range f.products {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (f *fakeProductRepo) AdjustStock(_ context.Context, _ int64, _ int) error {
	return nil
}

type fakeLedger struct {
	rules map[string]*coupon.Rule
}

func (f *fakeLedger) FindByCode(_ context.Context, code string) (*coupon.Rule, error) {
	if r, ok := f.rules[code]; ok {
		return r, nil
	}
	return nil, coupon.ErrInvalidCoupon
}

func (f *fakeLedger) FindRedemption(_ context.Context, _, _ int64) (*coupon.Redemption, error) {
	return nil, nil
}

func (f *fakeLedger) ListCodes(_ context.Context) ([]string, error) {
	return nil, nil
}

type fakeOrderRepo struct {
	orders map[uuid.UUID]*order.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[uuid.UUID]*order.Order)}
}

func (f *fakeOrderRepo) Create(_ context.Context, o *order.Order, _ *int64) error {
	f.orders[o.ID] = o
	return nil
}

func (f *fakeOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, next order.Status) (*order.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, &order.InvalidTransitionError{From: o.Status, To: next}
	}
	o.Status = next
	return o, nil
}

type fakePaymentRepo struct {
	byOrder map[uuid.UUID]*payment.Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{byOrder: make(map[uuid.UUID]*payment.Payment)}
}

func (f *fakePaymentRepo) Create(_ context.Context, p *payment.Payment) error {
	if _, ok := f.byOrder[p.OrderID]; ok {
		return payment.ErrAlreadyRecorded
	}
	f.byOrder[p.OrderID] = p
	return nil
}

func (f *fakePaymentRepo) GetByOrderID(_ context.Context, orderID uuid.UUID) (*payment.Payment, error) {
	p, ok := f.byOrder[orderID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return p, nil
}

func (f *fakePaymentRepo) UpdateStatus(_ context.Context, orderID uuid.UUID, status payment.Status, ref string) (*payment.Payment, error) {
	p := f.byOrder[orderID]
	p.Status = status
	p.TransactionRef = ref
	return p, nil
}

type fakeShipmentRepo struct {
	byOrder map[uuid.UUID]*shipment.Shipment
}

func newFakeShipmentRepo() *fakeShipmentRepo {
	return &fakeShipmentRepo{byOrder: make(map[uuid.UUID]*shipment.Shipment)}
}

func (f *fakeShipmentRepo) Create(_ context.Context, s *shipment.Shipment) error {
	if _, ok := f.byOrder[s.OrderID]; ok {
		return shipment.ErrAlreadyExists
	}
	f.byOrder[s.OrderID] = s
	return nil
}

func (f *fakeShipmentRepo) GetByOrderID(_ context.Context, orderID uuid.UUID) (*shipment.Shipment, error) {
	s, ok := f.byOrder[orderID]
	if !ok {
		return nil, shipment.ErrNotFound
	}
	return s, nil
}

func (f *fakeShipmentRepo) UpdateStatus(_ context.Context, orderID uuid.UUID, status shipment.Status, tracking string, _ time.Time) (*shipment.Shipment, error) {
	s := f.byOrder[orderID]
	s.Status = status
	s.TrackingNumber = tracking
	return s, nil
}

// --- Test server ---

type testEnv struct {
	server    *httptest.Server
	orderRepo *fakeOrderRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	products := &fakeProductRepo{products: []catalog.Product{
		{ID: 1, SKU: "WID-1", Name: "Widget", Price: decimal.RequireFromString("10.00"), StockQuantity: 10, Active: true},
		{ID: 2, SKU: "GAD-1", Name: "Gadget", Price: decimal.RequireFromString("20.00"), StockQuantity: 1, Active: true},
	}}
	ledger := &fakeLedger{rules: map[string]*coupon.Rule{
		"SAVE10": {
			ID:           1,
			Code:         "SAVE10",
			DiscountType: coupon.DiscountPercentage,
			Value:        decimal.NewFromInt(10),
			Active:       true,
		},
	}}

	orderRepo := newFakeOrderRepo()
	pricing := order.Pricing{
		TaxRate:          decimal.RequireFromString("0.08"),
		ShippingFee:      decimal.RequireFromString("7.50"),
		FreeShippingOver: decimal.NewFromInt(100),
	}
	orderSvc := order.NewService(products, coupon.NewValidator(ledger, nil), orderRepo, pricing)
	paymentTracker := payment.NewTracker(newFakePaymentRepo(), orderRepo)
	shipmentTracker := shipment.NewTracker(newFakeShipmentRepo(), orderRepo)

	h := NewHandler(products, orderSvc, paymentTracker, shipmentTracker)
	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, orderRepo: orderRepo}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeInto[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) placeOrder(t *testing.T, body map[string]any) orderResponse {
	t.Helper()
	resp := e.post(t, "/api/orders", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeInto[orderResponse](t, resp)
}

// --- Tests ---

func TestListProducts(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/products")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	products := decodeInto[[]productResponse](t, resp)
	require.Len(t, products, 2)
	assert.Equal(t, "Widget", products[0].Name)
	assert.Equal(t, 10.0, products[0].Price)
}

func TestGetProduct(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/products/1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p := decodeInto[productResponse](t, resp)
	assert.Equal(t, "WID-1", p.SKU)
}

func TestGetProduct_NotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/products/999")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetProduct_InvalidID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/products/abc")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlaceOrder(t *testing.T) {
	env := newTestEnv(t)

	got := env.placeOrder(t, map[string]any{
		"user_id": 1,
		"items": []map[string]any{
			{"product_id": 1, "quantity": 2},
		},
	})

	assert.Equal(t, "pending", got.Status)
	assert.Equal(t, 20.0, got.Subtotal)
	assert.Equal(t, 1.6, got.Tax)
	assert.Equal(t, 7.5, got.ShippingFee)
	assert.Equal(t, 29.1, got.Total)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 10.0, got.Items[0].UnitPrice)
}

func TestPlaceOrder_WithCoupon(t *testing.T) {
	env := newTestEnv(t)

	got := env.placeOrder(t, map[string]any{
		"user_id": 1,
		"items": []map[string]any{
			{"product_id": 1, "quantity": 10},
		},
		"coupon_code": "SAVE10",
	})

	assert.Equal(t, 100.0, got.Subtotal)
	assert.Equal(t, 10.0, got.Discount)
	// Discounted subtotal 90 is under the free shipping threshold.
	assert.Equal(t, 7.2, got.Tax)
	assert.Equal(t, 7.5, got.ShippingFee)
	assert.Equal(t, 104.7, got.Total)
	assert.Equal(t, "SAVE10", got.CouponCode)
}

func TestPlaceOrder_EmptyItems(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/orders", map[string]any{"user_id": 1})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlaceOrder_UnknownCoupon(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/orders", map[string]any{
		"user_id":     1,
		"items":       []map[string]any{{"product_id": 1, "quantity": 1}},
		"coupon_code": "BOGUS",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/orders", map[string]any{
		"user_id": 1,
		"items":   []map[string]any{{"product_id": 2, "quantity": 5}},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestPlaceOrder_UnknownProduct(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/orders", map[string]any{
		"user_id": 1,
		"items":   []map[string]any{{"product_id": 999, "quantity": 1}},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestPlaceOrder_UnknownFieldRejected(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/orders", map[string]any{
		"user_id": 1,
		"items":   []map[string]any{{"product_id": 1, "quantity": 1}},
		"bogus":   true,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetOrder(t *testing.T) {
	env := newTestEnv(t)
	placed := env.placeOrder(t, map[string]any{
		"user_id": 1,
		"items":   []map[string]any{{"product_id": 1, "quantity": 1}},
	})

	resp := env.get(t, "/api/orders/"+placed.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeInto[orderResponse](t, resp)
	assert.Equal(t, placed.ID, got.ID)
	assert.Equal(t, placed.OrderNumber, got.OrderNumber)
}

func TestGetOrder_NotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/orders/"+uuid.NewString())
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetOrder_InvalidID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/orders/not-a-uuid")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdvanceOrder(t *testing.T) {
	env := newTestEnv(t)
	placed := env.placeOrder(t, map[string]any{
		"user_id": 1,
		"items":   []map[string]any{{"product_id": 1, "quantity": 1}},
	})

	resp := env.post(t, fmt.Sprintf("/api/orders/%s/advance", placed.ID), map[string]any{"status": "confirmed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeInto[orderResponse](t, resp)
	assert.Equal(t, "confirmed", got.Status)
}

func TestAdvanceOrder_IllegalTransition(t *testing.T) {
	env := newTestEnv(t)
	placed := env.placeOrder(t, map[string]any{
		"user_id": 1,
		"items":   []map[string]any{{"product_id": 1, "quantity": 1}},
	})

	// pending cannot jump straight to delivered
	resp := env.post(t, fmt.Sprintf("/api/orders/%s/advance", placed.ID), map[string]any{"status": "delivered"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCancelOrder(t *testing.T) {
	env := newTestEnv(t)
	placed := env.placeOrder(t, map[string]any{
		"user_id": 1,
		"items":   []map[string]any{{"product_id": 1, "quantity": 1}},
	})

	resp := env.post(t, fmt.Sprintf("/api/orders/%s/cancel", placed.ID), map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeInto[orderResponse](t, resp)
	assert.Equal(t, "cancelled", got.Status)

	// Cancelled is terminal.
	resp = env.post(t, fmt.Sprintf("/api/orders/%s/cancel", placed.ID), map[string]any{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRecordPayment(t *testing.T) {
	env := newTestEnv(t)
	placed := env.placeOrder(t, map[string]any{
		"user_id": 1,
		"items":   []map[string]any{{"product_id": 1, "quantity": 1}},
	})

	resp := env.post(t, fmt.Sprintf("/api/orders/%s/payment", placed.ID), map[string]any{
		"amount": placed.Total,
		"method": "card",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	got := decodeInto[paymentResponse](t, resp)
	assert.Equal(t, "pending", got.Status)
	assert.Equal(t, placed.ID, got.OrderID)

	// A second payment for the same order violates the 1:1 constraint.
	resp = env.post(t, fmt.Sprintf("/api/orders/%s/payment", placed.ID), map[string]any{
		"amount": placed.Total,
		"method": "card",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRecordPayment_AmountMismatch(t *testing.T) {
	env := newTestEnv(t)
	placed := env.placeOrder(t, map[string]any{
		"user_id": 1,
		"items":   []map[string]any{{"product_id": 1, "quantity": 1}},
	})

	resp := env.post(t, fmt.Sprintf("/api/orders/%s/payment", placed.ID), map[string]any{
		"amount": placed.Total + 1,
		"method": "card",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestRecordPayment_MethodRequired(t *testing.T) {
	env := newTestEnv(t)
	placed := env.placeOrder(t, map[string]any{
		"user_id": 1,
		"items":   []map[string]any{{"product_id": 1, "quantity": 1}},
	})

	resp := env.post(t, fmt.Sprintf("/api/orders/%s/payment", placed.ID), map[string]any{
		"amount": placed.Total,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPaymentWebhook(t *testing.T) {
	env := newTestEnv(t)
	placed := env.placeOrder(t, map[string]any{
		"user_id": 1,
		"items":   []map[string]any{{"product_id": 1, "quantity": 1}},
	})
	resp := env.post(t, fmt.Sprintf("/api/orders/%s/payment", placed.ID), map[string]any{
		"amount": placed.Total,
		"method": "card",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.post(t, "/api/webhooks/payment", map[string]any{
		"order_id":        placed.ID,
		"status":          "completed",
		"transaction_ref": "txn-42",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeInto[paymentResponse](t, resp)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, "txn-42", got.TransactionRef)

	// Completed cannot move back to failed.
	resp = env.post(t, "/api/webhooks/payment", map[string]any{
		"order_id": placed.ID,
		"status":   "failed",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPaymentWebhook_UnknownOrder(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/webhooks/payment", map[string]any{
		"order_id": uuid.NewString(),
		"status":   "completed",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateShipment(t *testing.T) {
	env := newTestEnv(t)
	placed := env.placeOrder(t, map[string]any{
		"user_id": 1,
		"items":   []map[string]any{{"product_id": 1, "quantity": 1}},
	})

	// A pending order cannot ship yet.
	resp := env.post(t, fmt.Sprintf("/api/orders/%s/shipment", placed.ID), map[string]any{"carrier_id": 1})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.post(t, fmt.Sprintf("/api/orders/%s/advance", placed.ID), map[string]any{"status": "confirmed"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.post(t, fmt.Sprintf("/api/orders/%s/shipment", placed.ID), map[string]any{"carrier_id": 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	got := decodeInto[shipmentResponse](t, resp)
	assert.Equal(t, "pending", got.Status)
	assert.Equal(t, int64(1), got.CarrierID)
}

func TestShipmentWebhook(t *testing.T) {
	env := newTestEnv(t)
	placed := env.placeOrder(t, map[string]any{
		"user_id": 1,
		"items":   []map[string]any{{"product_id": 1, "quantity": 1}},
	})
	resp := env.post(t, fmt.Sprintf("/api/orders/%s/advance", placed.ID), map[string]any{"status": "confirmed"})
	resp.Body.Close()
	resp = env.post(t, fmt.Sprintf("/api/orders/%s/shipment", placed.ID), map[string]any{"carrier_id": 1})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.post(t, "/api/webhooks/shipment", map[string]any{
		"order_id":        placed.ID,
		"status":          "shipped",
		"tracking_number": "TRK-9",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeInto[shipmentResponse](t, resp)
	assert.Equal(t, "shipped", got.Status)
	assert.Equal(t, "TRK-9", got.TrackingNumber)

	resp = env.post(t, "/api/webhooks/shipment", map[string]any{
		"order_id": placed.ID,
		"status":   "delivered",
	})
	got2 := decodeInto[shipmentResponse](t, resp)
	require.Equal(t, "delivered", got2.Status)

	// Delivered shipments only accept returns.
	resp = env.post(t, "/api/webhooks/shipment", map[string]any{
		"order_id": placed.ID,
		"status":   "in_transit",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestShipmentWebhook_UnknownOrder(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/webhooks/shipment", map[string]any{
		"order_id": uuid.NewString(),
		"status":   "shipped",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateShipment_CarrierRequired(t *testing.T) {
	env := newTestEnv(t)
	placed := env.placeOrder(t, map[string]any{
		"user_id": 1,
		"items":   []map[string]any{{"product_id": 1, "quantity": 1}},
	})

	resp := env.post(t, fmt.Sprintf("/api/orders/%s/shipment", placed.ID), map[string]any{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
