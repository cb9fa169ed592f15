package shipment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shopcore/internal/domain/order"
)

type mockShipmentRepo struct {
	created   *Shipment
	createErr error
	stored    *Shipment
	updated   *Shipment
}

func (m *mockShipmentRepo) Create(_ context.Context, s *Shipment) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = s
	return nil
}

func (m *mockShipmentRepo) GetByOrderID(_ context.Context, _ uuid.UUID) (*Shipment, error) {
	if m.stored == nil {
		return nil, ErrNotFound
	}
	return m.stored, nil
}

func (m *mockShipmentRepo) UpdateStatus(_ context.Context, _ uuid.UUID, status Status, tracking string, _ time.Time) (*Shipment, error) {
	m.updated = &Shipment{OrderID: m.stored.OrderID, Status: status, TrackingNumber: tracking}
	return m.updated, nil
}

type mockOrderSource struct {
	order *order.Order
}

func (m *mockOrderSource) GetByID(_ context.Context, _ uuid.UUID) (*order.Order, error) {
	if m.order == nil {
		return nil, order.ErrNotFound
	}
	return m.order, nil
}

func orderWithStatus(status order.Status) *order.Order {
	return &order.Order{ID: uuid.New(), Status: status}
}

func TestCreate_ConfirmedOrder(t *testing.T) {
	o := orderWithStatus(order.StatusConfirmed)
	repo := &mockShipmentRepo{}
	tr := NewTracker(repo, &mockOrderSource{order: o})

	s, err := tr.Create(context.Background(), o.ID, 2)

	require.NoError(t, err)
	assert.Equal(t, StatusPending, s.Status)
	assert.Equal(t, o.ID, s.OrderID)
	assert.Equal(t, int64(2), s.CarrierID)
	assert.NotNil(t, repo.created)
}

func TestCreate_OrderNotReady(t *testing.T) {
	for _, status := range []order.Status{order.StatusPending, order.StatusCancelled} {
		o := orderWithStatus(status)
		tr := NewTracker(&mockShipmentRepo{}, &mockOrderSource{order: o})

		_, err := tr.Create(context.Background(), o.ID, 1)
		require.ErrorIs(t, err, ErrOrderNotReady, "order status %s", status)
	}
}

func TestCreate_OrderMissing(t *testing.T) {
	tr := NewTracker(&mockShipmentRepo{}, &mockOrderSource{})

	_, err := tr.Create(context.Background(), uuid.New(), 1)
	require.ErrorIs(t, err, ErrOrderNotReady)
}

func TestCreate_DuplicateSurfaced(t *testing.T) {
	o := orderWithStatus(order.StatusConfirmed)
	repo := &mockShipmentRepo{createErr: ErrAlreadyExists}
	tr := NewTracker(repo, &mockOrderSource{order: o})

	_, err := tr.Create(context.Background(), o.ID, 1)
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestApplyCarrierEvent_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		current Status
		event   Status
		wantErr error
	}{
		{"pending to shipped", StatusPending, StatusShipped, nil},
		{"shipped to in_transit", StatusShipped, StatusInTransit, nil},
		{"shipped straight to delivered", StatusShipped, StatusDelivered, nil},
		{"in_transit to delivered", StatusInTransit, StatusDelivered, nil},
		{"delivered to returned", StatusDelivered, StatusReturned, nil},
		{"pending to delivered rejected", StatusPending, StatusDelivered, ErrInvalidEvent},
		{"pending to returned rejected", StatusPending, StatusReturned, ErrInvalidEvent},
		{"returned is terminal", StatusReturned, StatusShipped, ErrInvalidEvent},
		{"delivered to in_transit rejected", StatusDelivered, StatusInTransit, ErrInvalidEvent},
		{"event pending rejected", StatusShipped, StatusPending, ErrInvalidEvent},
		{"unknown event rejected", StatusShipped, Status("bogus"), ErrInvalidEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orderID := uuid.New()
			repo := &mockShipmentRepo{stored: &Shipment{OrderID: orderID, Status: tt.current}}
			tr := NewTracker(repo, &mockOrderSource{})

			s, err := tr.ApplyCarrierEvent(context.Background(), orderID, tt.event, "TRK-1")

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.event, s.Status)
		})
	}
}

func TestApplyCarrierEvent_KeepsTrackingNumber(t *testing.T) {
	orderID := uuid.New()
	repo := &mockShipmentRepo{stored: &Shipment{OrderID: orderID, Status: StatusShipped, TrackingNumber: "TRK-OLD"}}
	tr := NewTracker(repo, &mockOrderSource{})

	s, err := tr.ApplyCarrierEvent(context.Background(), orderID, StatusInTransit, "")

	require.NoError(t, err)
	assert.Equal(t, "TRK-OLD", s.TrackingNumber)
}

func TestApplyCarrierEvent_ShipmentMissing(t *testing.T) {
	tr := NewTracker(&mockShipmentRepo{}, &mockOrderSource{})

	_, err := tr.ApplyCarrierEvent(context.Background(), uuid.New(), StatusShipped, "")
	require.ErrorIs(t, err, ErrNotFound)
}
