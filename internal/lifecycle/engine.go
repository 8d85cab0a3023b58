// Package lifecycle runs the order state machine: placement, payment,
// shipping, receipt, cancellation and lazy expiry of unpaid orders.
//
// Every command validates what it can with autocommit reads first, then
// performs its writes in one transaction through the ledgers' conditional
// statements. Lifecycle events are published after commit and never
// affect a command's result.
package lifecycle

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bookstore-orders/internal/errs"
	"github.com/ariefcatur/go-bookstore-orders/internal/identity"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/txn"
)

const (
	DefaultUnpaidTTL = 15 * time.Minute
	DefaultProducer  = "bookstore-orders"
)

// Publisher receives lifecycle events once their transaction committed.
type Publisher interface {
	Publish(ctx context.Context, env orders.Envelope) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, orders.Envelope) error { return nil }

type Engine struct {
	db        txn.DB
	gate      *identity.Gate
	now       func() time.Time
	log       *zap.Logger
	tracer    trace.Tracer
	pub       Publisher
	unpaidTTL time.Duration
	pwCost    int
	producer  string
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

func WithTracer(t trace.Tracer) Option { return func(e *Engine) { e.tracer = t } }

func WithPublisher(p Publisher) Option { return func(e *Engine) { e.pub = p } }

// WithUnpaidTTL sets how old an UNPAID order may get before it is expired.
func WithUnpaidTTL(d time.Duration) Option { return func(e *Engine) { e.unpaidTTL = d } }

// WithPasswordCost sets the bcrypt cost used by Register.
func WithPasswordCost(c int) Option { return func(e *Engine) { e.pwCost = c } }

// WithProducerName sets the producer field of published envelopes.
func WithProducerName(name string) Option { return func(e *Engine) { e.producer = name } }

func New(db txn.DB, opts ...Option) *Engine {
	e := &Engine{
		db:        db,
		gate:      identity.New(db),
		now:       time.Now,
		log:       zap.NewNop(),
		tracer:    otel.Tracer("github.com/ariefcatur/go-bookstore-orders/internal/lifecycle"),
		pub:       nopPublisher{},
		unpaidTTL: DefaultUnpaidTTL,
		producer:  DefaultProducer,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run wraps one command in a span and normalises its error.
func (e *Engine) run(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "lifecycle."+op, trace.WithAttributes(attrs...))
	defer span.End()

	err := errs.Transient(op, fn(ctx))
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, string(errs.ReasonOf(err)))

	fields := []zap.Field{zap.String("op", op), zap.Error(err)}
	for _, a := range attrs {
		fields = append(fields, zap.String(string(a.Key), a.Value.Emit()))
	}
	if errs.KindOf(err) == errs.KindTransient {
		e.log.Error("order command failed", fields...)
	} else {
		e.log.Debug("order command rejected", fields...)
	}
	return err
}

func (e *Engine) publish(ctx context.Context, event string, o orders.Order, status orders.Status, lines []orders.Line) {
	p := orders.LifecyclePayload{
		OrderID: o.ID,
		BuyerID: o.BuyerID,
		StoreID: o.StoreID,
		Status:  status,
	}
	if lines != nil {
		p.Lines = orders.SummaryLines(lines)
		if t, err := orders.Total(lines); err == nil {
			p.Total = t
		}
	}
	env := orders.NewEnvelope(event, e.producer, p, e.now())
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	if err := e.pub.Publish(ctx, env); err != nil {
		e.log.Warn("publish lifecycle event",
			zap.String("event", event), zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (e *Engine) expired(o orders.Order) bool {
	return o.Status == orders.StatusUnpaid && e.now().Sub(o.CreatedAt) > e.unpaidTTL
}

func orderAttr(id string) attribute.KeyValue { return attribute.String("order.id", id) }
func userAttr(id string) attribute.KeyValue  { return attribute.String("user.id", id) }
func storeAttr(id string) attribute.KeyValue { return attribute.String("store.id", id) }
