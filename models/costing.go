package models

import (
	"context"

	"bitbucket.org/padaukbloom/flowershop_backend/config"
	"github.com/shopspring/decimal"
)

// weightedAverageUnitCost averages the lots' import prices weighted by each
// lot's remaining quantity. Zero when nothing remains.
func weightedAverageUnitCost(lots []*MaterialLot) decimal.Decimal {
	totalValue := decimal.Zero
	totalQty := decimal.Zero
	for _, lot := range lots {
		totalValue = totalValue.Add(lot.ImportPrice.Mul(lot.QuantityRemain))
		totalQty = totalQty.Add(lot.QuantityRemain)
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return totalValue.Div(totalQty)
}

// computeUnitCostFromLots is the pure core of the costing engine: the sum over
// recipe lines of weighted-average lot price times quantity per unit, rounded
// to the nearest whole currency unit. A material without available lots
// contributes zero (kept from the existing system; costing may undercount
// while a material is out of stock).
func computeUnitCostFromLots(recipe []RecipeItem, lotsByMaterial map[int][]*MaterialLot) decimal.Decimal {
	totalCost := decimal.Zero
	for _, item := range recipe {
		lots := lotsByMaterial[item.MaterialId]
		if len(lots) == 0 {
			continue
		}
		avgPrice := weightedAverageUnitCost(lots)
		totalCost = totalCost.Add(avgPrice.Mul(item.Quantity))
	}
	return totalCost.Round(0)
}

// ComputeUnitCost computes a flower's unit cost from current ledger state.
// Read-only; safe to call repeatedly and concurrently.
func ComputeUnitCost(ctx context.Context, recipe []RecipeItem) (decimal.Decimal, error) {
	db := config.GetDB()

	lotsByMaterial := make(map[int][]*MaterialLot, len(recipe))
	for _, item := range recipe {
		if _, ok := lotsByMaterial[item.MaterialId]; ok {
			continue
		}
		lots, err := listAvailableLots(db.WithContext(ctx), item.MaterialId)
		if err != nil {
			return decimal.Zero, err
		}
		lotsByMaterial[item.MaterialId] = lots
	}

	return computeUnitCostFromLots(recipe, lotsByMaterial), nil
}

// RecalculateAffectedFlowers recomputes the base cost of every flower whose
// recipe uses the material, persisting only values that changed.
// Returns the number of flowers updated.
func RecalculateAffectedFlowers(ctx context.Context, materialId int) (int, error) {
	db := config.GetDB()

	var flowerIds []int
	if err := db.WithContext(ctx).Model(&RecipeItem{}).
		Where("material_id = ?", materialId).
		Distinct("flower_id").
		Pluck("flower_id", &flowerIds).Error; err != nil {
		return 0, err
	}

	updated := 0
	for _, flowerId := range flowerIds {
		var flower Flower
		if err := db.WithContext(ctx).Preload("Recipe").First(&flower, flowerId).Error; err != nil {
			return updated, err
		}
		newBaseCost, err := ComputeUnitCost(ctx, flower.Recipe)
		if err != nil {
			return updated, err
		}
		if flower.BaseCost.Equal(newBaseCost) {
			continue
		}
		if err := db.WithContext(ctx).Model(&flower).
			UpdateColumn("BaseCost", newBaseCost).Error; err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
