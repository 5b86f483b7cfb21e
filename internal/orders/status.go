package orders

type Status string

const (
	StatusPlaced    Status = "PLACED"
	StatusCancelled Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPlaced:    {StatusCancelled: true},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

type DeliveryStatus string

const (
	DeliveryReady     DeliveryStatus = "READY"
	DeliveryInTransit DeliveryStatus = "IN_TRANSIT"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryReady, DeliveryInTransit, DeliveryDelivered:
		return true
	}
	return false
}
