package models

type MovementType string

const (
	MovementTypeIn     MovementType = "in"
	MovementTypeOut    MovementType = "out"
	MovementTypeAdjust MovementType = "adjust"
)

// MovementReferenceType discriminates the business event that caused a movement.
type MovementReferenceType string

const (
	MovementReferenceTypeOrder MovementReferenceType = "Order"
	MovementReferenceTypeLot   MovementReferenceType = "MaterialLot"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusDelivering OrderStatus = "delivering"
	OrderStatusDone       OrderStatus = "done"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// orderStatusTransitions holds the only legal edges of the order state machine.
// done and cancelled are terminal.
var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusDelivering, OrderStatusCancelled},
	OrderStatusDelivering: {OrderStatusDone},
}

func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, allowed := range orderStatusTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusDelivering, OrderStatusDone, OrderStatusCancelled:
		return true
	}
	return false
}

type OrderSource string

const (
	OrderSourceGuest OrderSource = "guest"
	OrderSourceAdmin OrderSource = "admin"
)

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodWallet   PaymentMethod = "wallet"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

type ExpenseFrequency string

const (
	ExpenseFrequencyDaily   ExpenseFrequency = "daily"
	ExpenseFrequencyWeekly  ExpenseFrequency = "weekly"
	ExpenseFrequencyMonthly ExpenseFrequency = "monthly"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleGuest UserRole = "guest"
)
