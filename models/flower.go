package models

import (
	"context"
	"time"

	"bitbucket.org/padaukbloom/flowershop_backend/config"
	"bitbucket.org/padaukbloom/flowershop_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Flower is a sellable product. BaseCost is derived from the recipe and
// current lot state; it is a cache, recomputed on recipe changes and lot
// imports/adjustments, never authoritative.
type Flower struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Code        string          `gorm:"size:50;uniqueIndex" json:"code"`
	Name        string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Description string          `gorm:"type:text" json:"description"`
	Images      string          `gorm:"type:text" json:"images"` // JSON array of urls
	MainImage   string          `gorm:"size:255" json:"main_image"`
	Tags        string          `gorm:"type:text" json:"tags"` // JSON array
	IsActive    *bool           `gorm:"not null;default:true" json:"is_active"`
	BaseCost    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"base_cost"`
	SalePrice   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"sale_price"`
	Recipe      []RecipeItem    `gorm:"foreignKey:FlowerId" json:"recipe"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// RecipeItem is one bill-of-materials line: quantity of a material needed
// per unit of the flower.
type RecipeItem struct {
	ID         int             `gorm:"primary_key" json:"id"`
	FlowerId   int             `gorm:"index;not null" json:"flower_id"`
	MaterialId int             `gorm:"index;not null" json:"material_id"`
	Quantity   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
}

type NewFlower struct {
	Code        string          `json:"code"`
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Images      string          `json:"images"`
	MainImage   string          `json:"main_image"`
	Tags        string          `json:"tags"`
	SalePrice   decimal.Decimal `json:"sale_price" binding:"required"`
	Recipe      []NewRecipeItem `json:"recipe"`
}

type NewRecipeItem struct {
	MaterialId int             `json:"material_id" binding:"required"`
	Quantity   decimal.Decimal `json:"quantity" binding:"required"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewFlower) validate(ctx context.Context, id int) error {
	if input.Code != "" {
		if err := utils.ValidateUnique[Flower](ctx, "code", input.Code, id); err != nil {
			return err
		}
	}
	if input.SalePrice.IsNegative() {
		return utils.NewValidationError("sale_price", "cannot be negative")
	}
	materialIds := make([]int, 0, len(input.Recipe))
	for _, item := range input.Recipe {
		if !item.Quantity.IsPositive() {
			return utils.NewValidationError("recipe", "quantity per unit must be positive")
		}
		materialIds = append(materialIds, item.MaterialId)
	}
	if len(materialIds) > 0 {
		if err := utils.ValidateResourcesId[Material](ctx, materialIds); err != nil {
			return &utils.NotFoundError{Resource: "recipe material"}
		}
	}
	return nil
}

func mapRecipeItems(input []NewRecipeItem) []RecipeItem {
	recipe := make([]RecipeItem, 0, len(input))
	for _, item := range input {
		recipe = append(recipe, RecipeItem{
			MaterialId: item.MaterialId,
			Quantity:   item.Quantity,
		})
	}
	return recipe
}

func CreateFlower(ctx context.Context, input *NewFlower) (*Flower, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	recipe := mapRecipeItems(input.Recipe)
	baseCost, err := ComputeUnitCost(ctx, recipe)
	if err != nil {
		return nil, err
	}

	flower := Flower{
		Code:        input.Code,
		Name:        input.Name,
		Description: input.Description,
		Images:      input.Images,
		MainImage:   input.MainImage,
		Tags:        input.Tags,
		IsActive:    utils.NewTrue(),
		BaseCost:    baseCost,
		SalePrice:   input.SalePrice,
		Recipe:      recipe,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&flower).Error; err != nil {
		return nil, err
	}
	return &flower, nil
}

func UpdateFlower(ctx context.Context, id int, input *NewFlower) (*Flower, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	flower, err := utils.FetchModel[Flower](ctx, id, "Recipe")
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "flower", Id: id}
	}

	recipe := mapRecipeItems(input.Recipe)
	baseCost, err := ComputeUnitCost(ctx, recipe)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(&flower).Updates(map[string]interface{}{
		"Code":        input.Code,
		"Name":        input.Name,
		"Description": input.Description,
		"Images":      input.Images,
		"MainImage":   input.MainImage,
		"Tags":        input.Tags,
		"SalePrice":   input.SalePrice,
		"BaseCost":    baseCost,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Model(&flower).
		Session(&gorm.Session{FullSaveAssociations: true}).
		Association("Recipe").
		Unscoped().Replace(&recipe); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return utils.FetchModel[Flower](ctx, id, "Recipe")
}

func DeleteFlower(ctx context.Context, id int) (*Flower, error) {

	db := config.GetDB()
	result, err := utils.FetchModel[Flower](ctx, id, "Recipe")
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "flower", Id: id}
	}

	// orders keep a snapshot of price/qty, so past orders survive deletion;
	// refuse only while an open order still references the flower
	var count int64
	if err := db.WithContext(ctx).Model(&OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("order_items.flower_id = ? AND orders.status IN ?", id,
			[]OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusDelivering}).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewValidationError("flower", "cannot delete a flower with open orders")
	}

	if err := db.WithContext(ctx).Select("Recipe").Delete(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func GetFlower(ctx context.Context, id int) (*Flower, error) {
	flower, err := utils.FetchModel[Flower](ctx, id, "Recipe")
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "flower", Id: id}
	}
	return flower, nil
}

func ListFlowers(ctx context.Context, name *string, activeOnly bool) ([]*Flower, error) {

	db := config.GetDB()
	var results []*Flower

	dbCtx := db.WithContext(ctx)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if activeOnly {
		dbCtx = dbCtx.Where("is_active = ?", true)
	}
	err := dbCtx.Preload("Recipe").Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
