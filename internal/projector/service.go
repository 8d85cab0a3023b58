// Package projector consumes order lifecycle events and keeps the order
// status cache in step with them.
package projector

import (
	"context"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-bookstore-orders/internal/kafka"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

type Dedup interface {
	MarkOnce(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type StatusCache interface {
	Put(ctx context.Context, orderID, status string, at time.Time) error
	Evict(ctx context.Context, orderID string) error
}

type Service struct {
	Dedup  Dedup
	Cache  StatusCache
	Log    *zap.Logger
	Tracer trace.Tracer
}

func New(d Dedup, c StatusCache, log *zap.Logger) *Service {
	return &Service{
		Dedup:  d,
		Cache:  c,
		Log:    log,
		Tracer: otel.Tracer("github.com/ariefcatur/go-bookstore-orders/internal/projector"),
	}
}

// HandleLifecycle is the consumer handler. Undecodable messages are logged
// and committed; cache failures are returned so the message is redelivered.
func (s *Service) HandleLifecycle(ctx context.Context, m kafkago.Message) error {
	ctx = otel.GetTextMapPropagator().Extract(ctx, kafkax.HeaderCarrier{Headers: &m.Headers})
	ctx, span := s.Tracer.Start(ctx, "projector.HandleLifecycle", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		s.Log.Warn("skipping undecodable event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	span.SetAttributes(attribute.String("event.type", env.EventType), attribute.String("order.id", env.CorrelationID))

	first, err := s.Dedup.MarkOnce(ctx, env.EventID)
	if err != nil {
		span.SetStatus(codes.Error, "dedup")
		return err
	}
	if !first {
		return nil
	}

	if err := s.apply(ctx, env); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply")
		if ferr := s.Dedup.Forget(ctx, env.EventID); ferr != nil {
			s.Log.Warn("forget dedup key", zap.String("event_id", env.EventID), zap.Error(ferr))
		}
		return err
	}
	return nil
}

func (s *Service) apply(ctx context.Context, env orders.Envelope) error {
	p, err := kafkax.UnwrapPayload[orders.LifecyclePayload](env.Payload)
	if err != nil {
		s.Log.Warn("skipping event with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	switch env.EventType {
	case orders.EventOrderPlaced, orders.EventOrderPaid, orders.EventOrderShipped, orders.EventOrderReceived:
		s.Log.Debug("order status", zap.String("order_id", p.OrderID), zap.Stringer("status", p.Status))
		return s.Cache.Put(ctx, p.OrderID, p.Status.String(), env.OccurredAt)
	case orders.EventOrderCancelled, orders.EventOrderExpired:
		s.Log.Debug("order gone", zap.String("order_id", p.OrderID), zap.String("event", env.EventType))
		return s.Cache.Evict(ctx, p.OrderID)
	}
	return nil
}
