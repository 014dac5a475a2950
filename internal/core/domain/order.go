package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusInProgress     OrderStatus = "in-progress"
	OrderStatusOutForDelivery OrderStatus = "out-for-delivery"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusRejected       OrderStatus = "rejected"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusInProgress, OrderStatusOutForDelivery,
		OrderStatusCompleted, OrderStatusRejected:
		return true
	}
	return false
}

type Customer struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Address string `json:"address" validate:"required"`
	City    string `json:"city,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

type Order struct {
	ID       string      `json:"id"`
	Customer Customer    `json:"customer"`
	Items    []CartItem  `json:"items"`
	Total    float64     `json:"total"`
	Status   OrderStatus `json:"status"`
	// StockRestored is set in the same write that credits the order's
	// quantities back to inventory.
	StockRestored bool      `json:"stockRestored"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
