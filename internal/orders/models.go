package orders

import (
	"errors"
	"math"
	"time"
)

// Per-line bounds. Any quantity times any price fits in int64.
const (
	MaxQuantity = math.MaxInt32
	MaxPrice    = math.MaxInt32
)

var ErrOverflow = errors.New("orders: total overflows int64")

type Order struct {
	ID        string    `json:"order_id"`
	BuyerID   string    `json:"buyer_id"`
	StoreID   string    `json:"store_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Line is one book of an order. UnitPrice is the catalog price captured
// when the order was placed and never changes afterwards.
type Line struct {
	OrderID   string
	BookID    string
	Quantity  int
	UnitPrice int64
}

// Item is a requested (book, quantity) pair.
type Item struct {
	BookID   string `json:"id"`
	Quantity int    `json:"count"`
}

type SummaryLine struct {
	BookID   string `json:"book_id"`
	Quantity int    `json:"count"`
	Price    int64  `json:"price"`
}

// Summary is what listings return. CounterpartID is the store for a
// buyer's listing and the buyer for a store's listing.
type Summary struct {
	OrderID       string        `json:"order_id"`
	CounterpartID string        `json:"counterpart_id"`
	Status        Status        `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	Lines         []SummaryLine `json:"detail"`
}

// Total sums quantity x unit price over lines. It fails rather than wrap.
func Total(lines []Line) (int64, error) {
	var total int64
	for _, l := range lines {
		if l.Quantity < 0 || l.UnitPrice < 0 || l.Quantity > MaxQuantity || l.UnitPrice > MaxPrice {
			return 0, ErrOverflow
		}
		sub := int64(l.Quantity) * l.UnitPrice
		if total > math.MaxInt64-sub {
			return 0, ErrOverflow
		}
		total += sub
	}
	return total, nil
}

func SummaryLines(lines []Line) []SummaryLine {
	out := make([]SummaryLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, SummaryLine{BookID: l.BookID, Quantity: l.Quantity, Price: l.UnitPrice})
	}
	return out
}
