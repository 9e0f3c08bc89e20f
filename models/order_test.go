package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestOrderStatusTransitions(t *testing.T) {
	statuses := []OrderStatus{
		OrderStatusPending, OrderStatusConfirmed, OrderStatusDelivering,
		OrderStatusDone, OrderStatusCancelled,
	}
	allowed := map[[2]OrderStatus]bool{
		{OrderStatusPending, OrderStatusConfirmed}:    true,
		{OrderStatusPending, OrderStatusCancelled}:    true,
		{OrderStatusConfirmed, OrderStatusDelivering}: true,
		{OrderStatusConfirmed, OrderStatusCancelled}:  true,
		{OrderStatusDelivering, OrderStatusDone}:      true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]OrderStatus{from, to}]
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	statuses := []OrderStatus{
		OrderStatusPending, OrderStatusConfirmed, OrderStatusDelivering,
		OrderStatusDone, OrderStatusCancelled,
	}
	for _, to := range statuses {
		if OrderStatusDone.CanTransitionTo(to) {
			t.Errorf("done must be terminal, allows -> %s", to)
		}
		if OrderStatusCancelled.CanTransitionTo(to) {
			t.Errorf("cancelled must be terminal, allows -> %s", to)
		}
	}
}

func TestOrderStatusIsValid(t *testing.T) {
	for _, s := range []OrderStatus{
		OrderStatusPending, OrderStatusConfirmed, OrderStatusDelivering,
		OrderStatusDone, OrderStatusCancelled,
	} {
		if !s.IsValid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if OrderStatus("shipped").IsValid() {
		t.Error("unknown status must be invalid")
	}
	if OrderStatus("").IsValid() {
		t.Error("empty status must be invalid")
	}
}

func TestFormatOrderCode(t *testing.T) {
	if got := formatOrderCode("20251120", 1); got != "ORD20251120001" {
		t.Fatalf("expected ORD20251120001, got %s", got)
	}
	if got := formatOrderCode("20251120", 42); got != "ORD20251120042" {
		t.Fatalf("expected ORD20251120042, got %s", got)
	}
}

func TestParseOrderCodeSequence(t *testing.T) {
	cases := []struct {
		code string
		want int
	}{
		{"ORD20251120001", 1},
		{"ORD20251120042", 42},
		{"ORD20251120999", 999},
		{"ORD2025112001", 0},  // too short
		{"XXX20251120001", 0}, // wrong prefix
		{"ORD20251120abc", 0}, // non-numeric sequence
		{"", 0},
	}
	for _, c := range cases {
		if got := parseOrderCodeSequence(c.code); got != c.want {
			t.Errorf("parseOrderCodeSequence(%q): expected %d, got %d", c.code, c.want, got)
		}
	}
}

func TestValidateOrderTotal(t *testing.T) {
	items := []NewOrderItem{
		{FlowerId: 1, Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(5000)},
		{FlowerId: 2, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(3000), Discount: decimal.NewFromInt(500)},
	}

	if err := validateOrderTotal(items, decimal.NewFromInt(12500)); err != nil {
		t.Fatalf("expected matching total to pass, got %v", err)
	}
	if err := validateOrderTotal(items, decimal.NewFromInt(13000)); err == nil {
		t.Fatal("expected mismatching total to fail")
	}
}
