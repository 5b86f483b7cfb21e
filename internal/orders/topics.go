package orders

const (
	TopicOrderPlaced     = "order.placed"
	TopicOrderCancelled  = "order.cancelled"
	TopicDeliveryUpdated = "order.delivery.updated"
	TopicOrderDeleted    = "order.deleted"
)

// Topics the status projector subscribes to.
var StatusTopics = []string{TopicOrderPlaced, TopicOrderCancelled, TopicDeliveryUpdated, TopicOrderDeleted}

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
