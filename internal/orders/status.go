package orders

import "fmt"

type Status uint8

const (
	StatusUnpaid Status = iota + 1
	StatusPaid
	StatusShipped
	StatusReceived
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusUnpaid:    "UNPAID",
	StatusPaid:      "PAID",
	StatusShipped:   "SHIPPED",
	StatusReceived:  "RECEIVED",
	StatusCancelled: "CANCELLED",
}

// Every status must have an entry; see TestEveryStatusHasTransitions.
var validNext = map[Status]map[Status]bool{
	StatusUnpaid:    {StatusPaid: true, StatusCancelled: true},
	StatusPaid:      {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusReceived: true},
	StatusReceived:  {},
	StatusCancelled: {},
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func ParseStatus(v string) (Status, error) {
	for s, n := range statusNames {
		if n == v {
			return s, nil
		}
	}
	return 0, fmt.Errorf("orders: unknown status %q", v)
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
