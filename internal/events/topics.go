package events

// Topic constants for domain events emitted by the sales core.
const (
	TopicOrderCreated   = "order.created"
	TopicOrderUpdated   = "order.updated"
	TopicOrderPaid      = "order.paid"
	TopicOrderCancelled = "order.cancelled"
	TopicOrderDeleted   = "order.deleted"
	TopicKPICalculated  = "kpi.calculated"
)

// DefaultTopics returns every topic the services emit.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderUpdated,
		TopicOrderPaid,
		TopicOrderCancelled,
		TopicOrderDeleted,
		TopicKPICalculated,
	}
}
