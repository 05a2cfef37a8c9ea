package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	maxOrderNoAttempts  = 5
	compensationTimeout = 5 * time.Second
)

// Service is the order lifecycle manager. It owns every mutation of an order
// and keeps the product directory in step through synchronous calls.
type Service struct {
	store      Store
	products   ProductDirectory
	events     Publisher
	log        *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
	newOrderNo func(time.Time) string
}

type Option func(*Service)

func WithPublisher(p Publisher) Option { return func(s *Service) { s.events = p } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithOrderNoGenerator(fn func(time.Time) string) Option {
	return func(s *Service) { s.newOrderNo = fn }
}

func NewService(store Store, products ProductDirectory, opts ...Option) *Service {
	s := &Service{
		store:      store,
		products:   products,
		events:     nopPublisher{},
		log:        zap.NewNop(),
		tracer:     otel.Tracer("github.com/iippk/PersonalWorks/internal/orders"),
		now:        time.Now,
		newOrderNo: NewOrderNo,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create places a PendingPayment order for a listed product, snapshotting the
// product's title, first image and price.
func (s *Service) Create(ctx context.Context, buyer Principal, in CreateInput) (o Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.create", trace.WithAttributes(attribute.Int64("product.id", in.ProductID)))
	defer func() { endSpan(span, err) }()

	if err := validateCreate(buyer, in); err != nil {
		return Order{}, err
	}

	p, err := s.products.Get(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Order{}, fmt.Errorf("%w: product %d", ErrNotFound, in.ProductID)
		}
		return Order{}, remoteErr(err)
	}
	if p.Status != ProductListed {
		return Order{}, fmt.Errorf("%w: product %d is not available", ErrInvalidState, in.ProductID)
	}
	if p.SellerID == buyer.ID {
		return Order{}, fmt.Errorf("%w: cannot buy your own product", ErrInvalidInput)
	}

	name := strings.TrimSpace(buyer.Name)
	if name == "" {
		name = buyer.ID
	}
	now := s.now()
	draft := Order{
		ProductID:    p.ID,
		ProductTitle: p.Title,
		ProductImage: firstImage(p.Images),
		Price:        p.Price,
		BuyerID:      buyer.ID,
		BuyerName:    name,
		SellerID:     p.SellerID,
		Status:       StatusPendingPayment,
		Address:      strings.TrimSpace(in.Address),
		Phone:        strings.TrimSpace(in.Phone),
		Remark:       in.Remark,
		CreateTime:   now,
		UpdateTime:   now,
	}
	if draft.ProductID == 0 {
		draft.ProductID = in.ProductID
	}

	for attempt := 1; ; attempt++ {
		draft.OrderNo = s.newOrderNo(now)
		o, err = s.store.Insert(ctx, draft)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrDuplicateOrderNo) || attempt >= maxOrderNoAttempts {
			return Order{}, fmt.Errorf("insert order: %w", err)
		}
		s.log.Warn("order number collision, retrying", zap.String("order_no", draft.OrderNo), zap.Int("attempt", attempt))
	}

	span.SetAttributes(attribute.Int64("order.id", o.ID))
	s.log.Info("order created",
		zap.Int64("order_id", o.ID), zap.String("order_no", o.OrderNo),
		zap.Int64("product_id", o.ProductID), zap.String("buyer_id", o.BuyerID))
	s.publish(ctx, o, nil, buyer.ID)
	return o, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByBuyer(ctx context.Context, buyerID string) ([]Order, error) {
	if strings.TrimSpace(buyerID) == "" {
		return nil, fmt.Errorf("%w: missing buyer id", ErrInvalidInput)
	}
	return s.store.ListByBuyer(ctx, buyerID)
}

func (s *Service) ListBySeller(ctx context.Context, sellerID string) ([]Order, error) {
	if strings.TrimSpace(sellerID) == "" {
		return nil, fmt.Errorf("%w: missing seller id", ErrInvalidInput)
	}
	return s.store.ListBySeller(ctx, sellerID)
}

func (s *Service) Pay(ctx context.Context, id int64, buyerID string) (Order, error) {
	return s.Apply(ctx, ActionPay, id, buyerID)
}

func (s *Service) Cancel(ctx context.Context, id int64, buyerID string) (Order, error) {
	return s.Apply(ctx, ActionCancel, id, buyerID)
}

func (s *Service) Ship(ctx context.Context, id int64, sellerID string) (Order, error) {
	return s.Apply(ctx, ActionShip, id, sellerID)
}

func (s *Service) Complete(ctx context.Context, id int64, buyerID string) (Order, error) {
	return s.Apply(ctx, ActionComplete, id, buyerID)
}

func (s *Service) Refund(ctx context.Context, id int64, buyerID string) (Order, error) {
	return s.Apply(ctx, ActionRefund, id, buyerID)
}

func (s *Service) ConfirmRefund(ctx context.Context, id int64, sellerID string) (Order, error) {
	return s.Apply(ctx, ActionConfirmRefund, id, sellerID)
}

// Apply runs one transition: load, ownership, state, product calls, then the
// status compare-and-set. The order row is only written after every product
// call has succeeded.
func (s *Service) Apply(ctx context.Context, action Action, id int64, actorID string) (o Order, err error) {
	r, ok := rules[action]
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
	}
	ctx, span := s.tracer.Start(ctx, "orders."+string(action), trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.actor", r.Actor.String()),
	))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(actorID) == "" {
		return Order{}, fmt.Errorf("%w: missing caller identity", ErrInvalidInput)
	}

	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if cur.party(r.Actor) != actorID {
		return Order{}, fmt.Errorf("%w: caller is not the %s of order %d", ErrForbidden, r.Actor, id)
	}
	if !r.allows(cur.Status) {
		return Order{}, fmt.Errorf("%w: cannot %s order %d in status %s", ErrInvalidState, action, id, cur.Status)
	}

	for i, ps := range r.Sync {
		if err := s.syncProduct(ctx, cur.ProductID, ps); err != nil {
			s.log.Warn("product sync failed, transition aborted",
				zap.String("action", string(action)), zap.Int64("order_id", id),
				zap.Int64("product_id", cur.ProductID), zap.Error(err))
			s.compensate(ctx, cur, r.Sync[:i])
			return Order{}, err
		}
	}

	from := cur.Status
	o, err = s.store.Transition(ctx, Transition{
		OrderID: id,
		From:    r.From,
		To:      r.To,
		At:      s.now(),
		Stamp:   r.Stamp,
	})
	if err != nil {
		s.log.Warn("order persist failed after product sync",
			zap.String("action", string(action)), zap.Int64("order_id", id), zap.Error(err))
		s.compensate(ctx, cur, r.Sync)
		return Order{}, err
	}

	s.log.Info("order transitioned",
		zap.Int64("order_id", o.ID), zap.String("action", string(action)),
		zap.Stringer("from", from), zap.Stringer("to", o.Status))
	s.publish(ctx, o, &from, actorID)
	return o, nil
}

func (s *Service) syncProduct(ctx context.Context, productID int64, ps ProductSync) error {
	var err error
	switch ps.Field {
	case FieldShipped:
		err = s.products.SetShipped(ctx, productID, ps.Value)
	default:
		err = s.products.SetStatus(ctx, productID, ps.Value)
	}
	if err != nil {
		return remoteErr(err)
	}
	return nil
}

// compensate re-syncs product fields already written by an aborted transition
// to what the order's current stored state implies. Best effort: failures are
// logged and left for an operator.
func (s *Service) compensate(ctx context.Context, prior Order, touched []ProductSync) {
	if len(touched) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	current, err := s.store.Get(ctx, prior.ID)
	if err != nil {
		s.log.Warn("compensation: reload order failed, using pre-transition snapshot",
			zap.Int64("order_id", prior.ID), zap.Error(err))
		current = prior
	}
	for _, ps := range touched {
		want := ProductSync{Field: ps.Field, Value: impliedProductValue(current, ps.Field)}
		if err := s.syncProduct(ctx, prior.ProductID, want); err != nil {
			s.log.Error("compensation failed, product may be out of sync",
				zap.Int64("order_id", prior.ID), zap.Int64("product_id", prior.ProductID),
				zap.Int("field", int(ps.Field)), zap.Int("value", want.Value), zap.Error(err))
			continue
		}
		s.log.Info("compensation applied",
			zap.Int64("order_id", prior.ID), zap.Int64("product_id", prior.ProductID),
			zap.Int("field", int(ps.Field)), zap.Int("value", want.Value))
	}
}

func (s *Service) publish(ctx context.Context, o Order, from *Status, actorID string) {
	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	s.events.Publish(ctx, Event{
		Type:    EventTypeFor(o.Status),
		Order:   o,
		From:    from,
		ActorID: actorID,
		TraceID: traceID,
		At:      o.UpdateTime,
	})
}

func validateCreate(buyer Principal, in CreateInput) error {
	var missing []string
	if strings.TrimSpace(buyer.ID) == "" {
		missing = append(missing, "buyer identity")
	}
	if in.ProductID <= 0 {
		missing = append(missing, "productId")
	}
	if strings.TrimSpace(in.Address) == "" {
		missing = append(missing, "address")
	}
	if strings.TrimSpace(in.Phone) == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// remoteErr folds any product directory failure into the two remote kinds.
func remoteErr(err error) error {
	switch {
	case errors.Is(err, ErrRemoteUnavailable), errors.Is(err, ErrRemoteRejected):
		return err
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidInput):
		return fmt.Errorf("%w: %v", ErrRemoteRejected, err)
	default:
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
}

func firstImage(images string) string {
	first, _, _ := strings.Cut(images, ",")
	return strings.TrimSpace(first)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
