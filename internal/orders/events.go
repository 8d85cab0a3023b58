package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderPlaced    = "OrderPlaced"
	EventOrderPaid      = "OrderPaid"
	EventOrderShipped   = "OrderShipped"
	EventOrderReceived  = "OrderReceived"
	EventOrderCancelled = "OrderCancelled"
	EventOrderExpired   = "OrderExpired"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// LifecyclePayload is shared by every order lifecycle event. Lines and
// Total are only set where they changed hands (placed, paid, cancelled).
type LifecyclePayload struct {
	OrderID string        `json:"order_id"`
	BuyerID string        `json:"buyer_id"`
	StoreID string        `json:"store_id"`
	Status  Status        `json:"status"`
	Lines   []SummaryLine `json:"lines,omitempty"`
	Total   int64         `json:"total,omitempty"`
}

// NewEnvelope builds a v1 envelope for p. Marshalling a LifecyclePayload
// cannot fail.
func NewEnvelope(eventType, producer string, p LifecyclePayload, at time.Time) Envelope {
	b, _ := json.Marshal(p)
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    at.UTC(),
		Producer:      producer,
		CorrelationID: p.OrderID,
		Payload:       b,
	}
}
