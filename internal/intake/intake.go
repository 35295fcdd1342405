// Package intake exposes the order-entry and cancel surface the core
// consumes from its upstream collaborators (spec §6 "Inbound to the
// core"). It is a plain Go interface rather than a gRPC/REST facade: the
// teacher's own cmd/orders/main.go references a proto/orders package that
// is absent from this checkout, so there is nothing in the pack to ground
// a protobuf facade on — the wire protocol in front of this interface is
// an external collaborator's concern (spec §1 Non-goals: "HTTP/OpenAPI
// plumbing").
package intake

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vantra-labs/matchcore/internal/domain"
	coreerrors "github.com/vantra-labs/matchcore/internal/errors"
	"github.com/vantra-labs/matchcore/internal/matching"
	"github.com/vantra-labs/matchcore/internal/validate"
)

// OrderIntake is the full inbound surface (spec §6).
type OrderIntake interface {
	CreateOrder(ctx context.Context, in validate.OrderInput) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID, userID string) error
	GetOrder(ctx context.Context, orderID, userID string) (*domain.Order, error)
	GetOpenOrders(ctx context.Context, userID, symbol string) ([]*domain.Order, error)
	GetOrderHistory(ctx context.Context, userID, symbol string, limit int) ([]*domain.Order, error)
}

// OrderRepo is the slice of the Order Store intake needs. Distinct from
// matching.OrderRepo — intake never locks or matches, only creates,
// reads and cancels.
type OrderRepo interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	GetOpenOrders(ctx context.Context, userID, symbol string) ([]*domain.Order, error)
	GetOrderHistory(ctx context.Context, userID, symbol string, limit int) ([]*domain.Order, error)
	CancelOrder(ctx context.Context, id string) (bool, error)
}

type service struct {
	orders    OrderRepo
	validator *validate.Validator
	retry     *matching.RetryWaiter
	logger    *zap.Logger
}

// New builds the default OrderIntake implementation.
func New(orders OrderRepo, validator *validate.Validator, retry *matching.RetryWaiter, logger *zap.Logger) OrderIntake {
	return &service{orders: orders, validator: validator, retry: retry, logger: logger}
}

// CreateOrder validates in and admits it (spec §6 createOrder). A
// validation failure still returns the persisted REJECTED order rather
// than only an error, so the caller can show the user what happened.
func (s *service) CreateOrder(ctx context.Context, in validate.OrderInput) (*domain.Order, error) {
	now := time.Now()
	order := &domain.Order{
		ID:        uuid.New().String(),
		UserID:    in.UserID,
		Symbol:    in.Symbol,
		Side:      in.Side,
		Type:      in.Type,
		Price:     in.Price,
		Original:  in.Quantity,
		Status:    domain.StatusNew,
		IsWorking: true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.validator.Validate(in); err != nil {
		order.Status = domain.StatusRejected
		order.IsWorking = false
		if createErr := s.orders.CreateOrder(ctx, order); createErr != nil {
			s.logger.Error("failed to persist rejected order", zap.Error(createErr))
		}
		return order, err
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.ErrTransientStore, "create order")
	}
	return order, nil
}

// CancelOrder transitions an order to CANCELED, retrying under lock
// contention per spec §6's bounded-retry cancel protocol.
func (s *service) CancelOrder(ctx context.Context, orderID, userID string) error {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return coreerrors.Wrap(err, coreerrors.ErrTransientStore, "get order")
	}
	if order == nil {
		return coreerrors.Newf(coreerrors.ErrOrderNotFound, "order %s not found", orderID)
	}
	if order.UserID != userID {
		return coreerrors.Newf(coreerrors.ErrOrderNotFound, "order %s not found", orderID)
	}
	if order.Status.IsTerminal() {
		return coreerrors.Newf(coreerrors.ErrOrderTerminal, "order %s is already %s", orderID, order.Status)
	}

	return s.retry.Do(ctx, func(ctx context.Context) (bool, error) {
		return s.orders.CancelOrder(ctx, orderID)
	})
}

func (s *service) GetOrder(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.ErrTransientStore, "get order")
	}
	if order == nil || order.UserID != userID {
		return nil, coreerrors.Newf(coreerrors.ErrOrderNotFound, "order %s not found", orderID)
	}
	return order, nil
}

func (s *service) GetOpenOrders(ctx context.Context, userID, symbol string) ([]*domain.Order, error) {
	orders, err := s.orders.GetOpenOrders(ctx, userID, symbol)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.ErrTransientStore, "get open orders")
	}
	return orders, nil
}

func (s *service) GetOrderHistory(ctx context.Context, userID, symbol string, limit int) ([]*domain.Order, error) {
	orders, err := s.orders.GetOrderHistory(ctx, userID, symbol, limit)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.ErrTransientStore, "get order history")
	}
	return orders, nil
}
