package models

import (
	"context"
	"time"

	"bitbucket.org/padaukbloom/flowershop_backend/config"
	"bitbucket.org/padaukbloom/flowershop_backend/utils"
	"github.com/shopspring/decimal"
)

type Material struct {
	ID            int             `gorm:"primary_key" json:"id"`
	Name          string          `gorm:"size:100;uniqueIndex;not null" json:"name" binding:"required"`
	Unit          string          `gorm:"size:20;not null" json:"unit" binding:"required"`
	Description   string          `gorm:"type:text" json:"description"`
	Image         string          `gorm:"size:255" json:"image"`
	IsActive      *bool           `gorm:"not null;default:true" json:"is_active"`
	MinStockLevel decimal.Decimal `gorm:"type:decimal(20,4);default:10" json:"min_stock_level"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMaterial struct {
	Name          string          `json:"name" binding:"required"`
	Unit          string          `json:"unit" binding:"required"`
	Description   string          `json:"description"`
	Image         string          `json:"image"`
	MinStockLevel decimal.Decimal `json:"min_stock_level"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewMaterial) validate(ctx context.Context, id int) error {
	// name
	if err := utils.ValidateUnique[Material](ctx, "name", input.Name, id); err != nil {
		return err
	}
	if input.MinStockLevel.IsNegative() {
		return utils.NewValidationError("min_stock_level", "cannot be negative")
	}
	return nil
}

func CreateMaterial(ctx context.Context, input *NewMaterial) (*Material, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	minStock := input.MinStockLevel
	if minStock.IsZero() {
		minStock = decimal.NewFromInt(10)
	}

	material := Material{
		Name:          input.Name,
		Unit:          input.Unit,
		Description:   input.Description,
		Image:         input.Image,
		IsActive:      utils.NewTrue(),
		MinStockLevel: minStock,
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&material).Error
	if err != nil {
		return nil, err
	}
	return &material, nil
}

func UpdateMaterial(ctx context.Context, id int, input *NewMaterial) (*Material, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	material, err := utils.FetchModel[Material](ctx, id)
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "material", Id: id}
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&material).Updates(map[string]interface{}{
		"Name":          input.Name,
		"Unit":          input.Unit,
		"Description":   input.Description,
		"Image":         input.Image,
		"MinStockLevel": input.MinStockLevel,
	}).Error
	if err != nil {
		return nil, err
	}

	return material, nil
}

func DeleteMaterial(ctx context.Context, id int) (*Material, error) {

	db := config.GetDB()
	result, err := utils.FetchModel[Material](ctx, id)
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "material", Id: id}
	}

	// historical costing depends on lots; refuse deletion while referenced
	var count int64
	if err := db.WithContext(ctx).Model(&MaterialLot{}).
		Where("material_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewValidationError("material", "cannot delete a material with lots")
	}
	if err := db.WithContext(ctx).Model(&RecipeItem{}).
		Where("material_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewValidationError("material", "cannot delete a material used by a recipe")
	}

	// db action
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

func GetMaterial(ctx context.Context, id int) (*Material, error) {
	material, err := utils.FetchModel[Material](ctx, id)
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "material", Id: id}
	}
	return material, nil
}

func ListMaterials(ctx context.Context, name *string) ([]*Material, error) {

	db := config.GetDB()
	var results []*Material

	dbCtx := db.WithContext(ctx)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	// db query
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func ToggleActiveMaterial(ctx context.Context, id int, isActive bool) (*Material, error) {
	material, err := utils.FetchModel[Material](ctx, id)
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "material", Id: id}
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&material).
		UpdateColumn("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	return material, nil
}
