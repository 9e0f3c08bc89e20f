package models

import (
	"fmt"

	"bitbucket.org/padaukbloom/flowershop_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// materialDemand is the quantity of one material required by a whole order,
// pooled across line items that share the material.
type materialDemand struct {
	MaterialId int
	Quantity   decimal.Decimal
}

// expandOrderDemand turns order items into per-material required quantities
// (recipe quantity-per-unit × order quantity), aggregating duplicate materials
// across line items. Materials keep first-seen order so lot walking stays
// deterministic for a given ledger snapshot.
func expandOrderDemand(items []OrderItem, recipesByFlower map[int][]RecipeItem) []materialDemand {
	index := make(map[int]int)
	demands := make([]materialDemand, 0)
	for _, item := range items {
		for _, recipeItem := range recipesByFlower[item.FlowerId] {
			needed := recipeItem.Quantity.Mul(item.Quantity)
			if pos, ok := index[recipeItem.MaterialId]; ok {
				demands[pos].Quantity = demands[pos].Quantity.Add(needed)
				continue
			}
			index[recipeItem.MaterialId] = len(demands)
			demands = append(demands, materialDemand{
				MaterialId: recipeItem.MaterialId,
				Quantity:   needed,
			})
		}
	}
	return demands
}

type lotDeduction struct {
	Lot      *MaterialLot
	Quantity decimal.Decimal
}

// planFefoDeduction walks lots in the given (FEFO) order, taking
// min(remaining, still needed) from each until the demand is covered.
// Returns the per-lot deductions and the uncovered shortfall.
func planFefoDeduction(lots []*MaterialLot, needed decimal.Decimal) ([]lotDeduction, decimal.Decimal) {
	deductions := make([]lotDeduction, 0)
	remaining := needed
	for _, lot := range lots {
		if !remaining.IsPositive() {
			break
		}
		if !lot.QuantityRemain.IsPositive() {
			continue
		}
		take := decimal.Min(lot.QuantityRemain, remaining)
		deductions = append(deductions, lotDeduction{Lot: lot, Quantity: take})
		remaining = remaining.Sub(take)
	}
	return deductions, remaining
}

// ApplyOrderStockForStatusTransition applies the inventory side effect of an
// order status change inside the caller's transaction.
//
// Only pending -> confirmed touches stock: every line item's recipe demand is
// deducted from material lots in expiry order, one `out` movement per lot
// touched. Any shortfall fails the whole call; the caller must roll back so
// no partial deduction is observable. Lot updates carry an optimistic check
// on quantity_remain; a concurrent writer surfaces as ConcurrencyConflictError.
//
// The caller holds the stock lock and calls this at most once per transition
// (idempotency is gated on the order's prior status).
func ApplyOrderStockForStatusTransition(tx *gorm.DB, order *Order, oldStatus OrderStatus) error {
	if tx == nil {
		return fmt.Errorf("tx is nil")
	}
	if order == nil {
		return fmt.Errorf("order is nil")
	}
	if oldStatus != OrderStatusPending || order.Status != OrderStatusConfirmed {
		return nil
	}

	recipesByFlower := make(map[int][]RecipeItem, len(order.Items))
	for _, item := range order.Items {
		if _, ok := recipesByFlower[item.FlowerId]; ok {
			continue
		}
		var flower Flower
		if err := tx.Preload("Recipe").First(&flower, item.FlowerId).Error; err != nil {
			return &utils.NotFoundError{Resource: "flower", Id: item.FlowerId}
		}
		recipesByFlower[item.FlowerId] = flower.Recipe
	}

	reason := fmt.Sprintf("Order %s", utils.DereferencePtr(order.Code, fmt.Sprint(order.ID)))

	for _, demand := range expandOrderDemand(order.Items, recipesByFlower) {
		lots, err := listAvailableLots(tx, demand.MaterialId)
		if err != nil {
			return err
		}
		deductions, shortfall := planFefoDeduction(lots, demand.Quantity)
		if shortfall.IsPositive() {
			var material Material
			if err := tx.First(&material, demand.MaterialId).Error; err != nil {
				return err
			}
			return &utils.InsufficientStockError{
				MaterialId:   material.ID,
				MaterialName: material.Name,
				Shortfall:    shortfall,
			}
		}

		for _, deduction := range deductions {
			lot := deduction.Lot
			res := tx.Model(&MaterialLot{}).
				Where("id = ? AND quantity_remain = ?", lot.ID, lot.QuantityRemain).
				Update("quantity_remain", lot.QuantityRemain.Sub(deduction.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return &utils.ConcurrencyConflictError{Resource: "lot", Id: lot.ID}
			}
			if err := appendMovement(tx, NewMovement{
				Type:       MovementTypeOut,
				MaterialId: demand.MaterialId,
				LotId:      &lot.ID,
				Quantity:   deduction.Quantity,
				Reason:     reason,
				Cause:      OrderCause(order.ID),
			}); err != nil {
				return err
			}
		}
	}

	return nil
}
