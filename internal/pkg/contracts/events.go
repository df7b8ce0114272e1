// Package contracts holds the message shapes shared between the order
// service and its downstream consumers.
package contracts

// NotificationTopic is the logical topic order-placed events are published to.
const NotificationTopic = "notificationTopic"

// OrderPlacedEvent is emitted once per stored order. The order number is the
// only datum that travels downstream.
type OrderPlacedEvent struct {
	OrderNumber string `json:"orderNumber"`
}
