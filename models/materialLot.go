package models

import (
	"context"
	"time"

	"bitbucket.org/padaukbloom/flowershop_backend/config"
	"bitbucket.org/padaukbloom/flowershop_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MaterialLot is one purchased batch of a material. Lots are never deleted;
// historical costing depends on them. quantity_remain only moves through
// the allocator or AdjustLot and must stay within [0, quantity_import].
type MaterialLot struct {
	ID             int             `gorm:"primary_key" json:"id"`
	MaterialId     int             `gorm:"index:idx_lot_material_expire,priority:1;not null" json:"material_id"`
	Material       *Material       `gorm:"foreignKey:MaterialId" json:"material,omitempty"`
	QuantityImport decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity_import"`
	QuantityRemain decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity_remain"`
	ImportPrice    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"import_price"`
	ImportDate     time.Time       `gorm:"not null" json:"import_date"`
	ExpireDate     time.Time       `gorm:"index:idx_lot_material_expire,priority:2;not null" json:"expire_date"`
	Supplier       string          `gorm:"size:100" json:"supplier"`
	InvoiceNumber  string          `gorm:"size:100" json:"invoice_number"`
	Note           string          `gorm:"type:text" json:"note"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMaterialLot struct {
	QuantityImport decimal.Decimal `json:"quantity_import" binding:"required"`
	ImportPrice    decimal.Decimal `json:"import_price" binding:"required"`
	ImportDate     *time.Time      `json:"import_date"`
	ExpireDate     time.Time       `json:"expire_date" binding:"required"`
	Supplier       string          `json:"supplier"`
	InvoiceNumber  string          `json:"invoice_number"`
	Note           string          `json:"note"`
}

func (input *NewMaterialLot) validate() error {
	if !input.QuantityImport.IsPositive() {
		return utils.NewValidationError("quantity_import", "must be positive")
	}
	if input.ImportPrice.IsNegative() {
		return utils.NewValidationError("import_price", "cannot be negative")
	}
	importDate := time.Now()
	if input.ImportDate != nil {
		importDate = *input.ImportDate
	}
	if input.ExpireDate.Before(importDate) {
		return utils.NewValidationError("expire_date", "cannot be before the import date")
	}
	return nil
}

// ImportLot creates a lot with quantity_remain = quantity_import, appends an
// `in` movement and recalculates the base cost of every flower whose recipe
// uses the material. Cost recalculation runs after commit; a stale base cost
// until then is tolerated.
func ImportLot(ctx context.Context, materialId int, input *NewMaterialLot) (*MaterialLot, error) {

	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Material](ctx, materialId); err != nil {
		return nil, &utils.NotFoundError{Resource: "material", Id: materialId}
	}

	importDate := time.Now()
	if input.ImportDate != nil {
		importDate = *input.ImportDate
	}

	lot := MaterialLot{
		MaterialId:     materialId,
		QuantityImport: input.QuantityImport,
		QuantityRemain: input.QuantityImport,
		ImportPrice:    input.ImportPrice,
		ImportDate:     importDate,
		ExpireDate:     input.ExpireDate,
		Supplier:       input.Supplier,
		InvoiceNumber:  input.InvoiceNumber,
		Note:           input.Note,
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&lot).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := appendMovement(tx.WithContext(ctx), NewMovement{
		Type:       MovementTypeIn,
		MaterialId: materialId,
		LotId:      &lot.ID,
		Quantity:   input.QuantityImport,
		Reason:     "Import new lot",
		Cause:      LotCause(lot.ID),
	}); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if _, err := RecalculateAffectedFlowers(ctx, materialId); err != nil {
		config.LogError(config.GetLogger(), "materialLot.go", "ImportLot", "recalculate base cost", materialId, err)
	}

	return &lot, nil
}

// ListMaterialLots returns every lot of the material, soonest-expiring first.
func ListMaterialLots(ctx context.Context, materialId int) ([]*MaterialLot, error) {
	if err := utils.ValidateResourceId[Material](ctx, materialId); err != nil {
		return nil, &utils.NotFoundError{Resource: "material", Id: materialId}
	}

	db := config.GetDB()
	var lots []*MaterialLot
	if err := db.WithContext(ctx).
		Where("material_id = ?", materialId).
		Order("expire_date, id").
		Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

// listAvailableLots is the FEFO contract consumed by the allocator and the
// costing engine: lots with remaining quantity, ascending by expiry date.
// Runs on the given handle so callers can read inside their own transaction.
func listAvailableLots(tx *gorm.DB, materialId int) ([]*MaterialLot, error) {
	var lots []*MaterialLot
	if err := tx.
		Where("material_id = ? AND quantity_remain > 0", materialId).
		Order("expire_date, id").
		Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

type AdjustLotInput struct {
	DeltaQuantity decimal.Decimal `json:"delta_quantity" binding:"required"`
	Reason        string          `json:"reason" binding:"required"`
}

// validateLotAdjustment checks the lot invariant 0 <= remain <= imported
// against the proposed delta.
func validateLotAdjustment(lot *MaterialLot, delta decimal.Decimal) error {
	if delta.IsZero() {
		return utils.NewValidationError("delta_quantity", "cannot be zero")
	}
	newRemain := lot.QuantityRemain.Add(delta)
	if newRemain.IsNegative() {
		return utils.NewValidationError("delta_quantity", "lot quantity cannot go negative")
	}
	if newRemain.GreaterThan(lot.QuantityImport) {
		return utils.NewValidationError("delta_quantity", "lot quantity cannot exceed the imported quantity")
	}
	return nil
}

// AdjustLot applies a manual correction (waste, recount) to a lot and appends
// an `adjust` movement. The lot row carries an optimistic check on the
// previously read quantity_remain.
func AdjustLot(ctx context.Context, lotId int, input *AdjustLotInput) (*MaterialLot, error) {

	lot, err := utils.FetchModel[MaterialLot](ctx, lotId)
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "lot", Id: lotId}
	}
	if err := validateLotAdjustment(lot, input.DeltaQuantity); err != nil {
		return nil, err
	}

	newRemain := lot.QuantityRemain.Add(input.DeltaQuantity)

	db := config.GetDB()
	tx := db.Begin()
	res := tx.WithContext(ctx).Model(&MaterialLot{}).
		Where("id = ? AND quantity_remain = ?", lot.ID, lot.QuantityRemain).
		Update("quantity_remain", newRemain)
	if res.Error != nil {
		tx.Rollback()
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return nil, &utils.ConcurrencyConflictError{Resource: "lot", Id: lot.ID}
	}
	if err := appendMovement(tx.WithContext(ctx), NewMovement{
		Type:       MovementTypeAdjust,
		MaterialId: lot.MaterialId,
		LotId:      &lot.ID,
		Quantity:   input.DeltaQuantity.Abs(),
		Reason:     input.Reason,
		Cause:      LotCause(lot.ID),
	}); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	lot.QuantityRemain = newRemain

	if _, err := RecalculateAffectedFlowers(ctx, lot.MaterialId); err != nil {
		config.LogError(config.GetLogger(), "materialLot.go", "AdjustLot", "recalculate base cost", lot.MaterialId, err)
	}

	return lot, nil
}
