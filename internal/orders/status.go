package orders

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// forward is the only direction an order moves besides cancellation.
var forward = map[Status]Status{
	StatusPending:    StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Next returns the status an admin advance moves s to.
func (s Status) Next() (Status, bool) {
	n, ok := forward[s]
	return n, ok
}

// CanTransitionTo reports whether s may move to to. Repeating the current
// status is never a valid transition.
func (s Status) CanTransitionTo(to Status) bool {
	if to == StatusCancelled {
		return !s.IsTerminal()
	}
	next, ok := s.Next()
	return ok && next == to
}

func (s Status) String() string {
	return string(s)
}
