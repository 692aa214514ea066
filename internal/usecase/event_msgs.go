package usecase

import "time"

// Sent by order-gw on Kafka
type OrderStatusChangedMsg struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	Status  string `json:"status"` // e.g. "SUCCESS"
}

// SweepCmd asks a replica to run the expiry sweep. Consumed from RabbitMQ.
type SweepCmd struct {
	RequestedBy string    `json:"requestedBy"`
	RequestedAt time.Time `json:"requestedAt"`
}
