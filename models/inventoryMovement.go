package models

import (
	"context"
	"time"

	"bitbucket.org/padaukbloom/flowershop_backend/config"
	"bitbucket.org/padaukbloom/flowershop_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryMovement is the append-only audit record of a single stock change.
// Quantity is always a positive magnitude; the direction lives in Type.
type InventoryMovement struct {
	ID            string                `gorm:"size:36;primary_key" json:"id"` // uuid
	Type          MovementType          `gorm:"type:enum('in','out','adjust');not null" json:"type"`
	MaterialId    int                   `gorm:"index:idx_move_material_date,priority:1;not null" json:"material_id"`
	LotId         *int                  `gorm:"index" json:"lot_id"`
	Quantity      decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Reason        string                `gorm:"size:255" json:"reason"`
	ReferenceType MovementReferenceType `gorm:"type:enum('Order','MaterialLot');not null" json:"reference_type"`
	ReferenceId   int                   `gorm:"index;not null" json:"reference_id"`
	PerformedBy   *int                  `gorm:"index" json:"performed_by"`
	CorrelationId string                `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time             `gorm:"autoCreateTime;index:idx_move_material_date,priority:2" json:"created_at"`
}

// MovementCause is the typed variant behind the movement's polymorphic
// reference: either the order that consumed stock or the lot event that
// produced or corrected it.
type MovementCause struct {
	Type MovementReferenceType
	Id   int
}

func OrderCause(orderId int) MovementCause {
	return MovementCause{Type: MovementReferenceTypeOrder, Id: orderId}
}

func LotCause(lotId int) MovementCause {
	return MovementCause{Type: MovementReferenceTypeLot, Id: lotId}
}

type NewMovement struct {
	Type       MovementType
	MaterialId int
	LotId      *int
	Quantity   decimal.Decimal
	Reason     string
	Cause      MovementCause
}

// appendMovement writes one audit row inside the caller's transaction.
// Movements are never updated or deleted afterwards.
func appendMovement(tx *gorm.DB, input NewMovement) error {
	ctx := tx.Statement.Context

	var performedBy *int
	if userId, ok := utils.GetUserIdFromContext(ctx); ok && userId > 0 {
		performedBy = &userId
	}

	movement := InventoryMovement{
		ID:            uuid.NewString(),
		Type:          input.Type,
		MaterialId:    input.MaterialId,
		LotId:         input.LotId,
		Quantity:      input.Quantity,
		Reason:        input.Reason,
		ReferenceType: input.Cause.Type,
		ReferenceId:   input.Cause.Id,
		PerformedBy:   performedBy,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&movement).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

type MovementFilter struct {
	MaterialId *int
	Type       *MovementType
	From       *time.Time
	To         *time.Time
}

func ListMovements(ctx context.Context, filter *MovementFilter) ([]*InventoryMovement, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if filter != nil {
		if filter.MaterialId != nil {
			dbCtx = dbCtx.Where("material_id = ?", *filter.MaterialId)
		}
		if filter.Type != nil {
			dbCtx = dbCtx.Where("type = ?", *filter.Type)
		}
		if filter.From != nil {
			dbCtx = dbCtx.Where("created_at >= ?", *filter.From)
		}
		if filter.To != nil {
			dbCtx = dbCtx.Where("created_at < ?", *filter.To)
		}
	}

	var movements []*InventoryMovement
	if err := dbCtx.Order("created_at DESC, id").Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}
