package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/padaukbloom/flowershop_backend/config"
	"bitbucket.org/padaukbloom/flowershop_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const orderCodePrefix = "ORD"

// Order is a customer purchase. Customer fields and item prices are snapshots
// taken at creation time; later flower price or recipe changes never touch a
// stored order. Status only moves through UpdateOrderStatus.
type Order struct {
	ID              int                  `gorm:"primary_key" json:"id"`
	Code            *string              `gorm:"size:20;uniqueIndex" json:"code"` // nullable so legacy rows can stay codeless
	CustomerName    string               `gorm:"size:100;not null" json:"customer_name"`
	CustomerPhone   string               `gorm:"size:20;not null" json:"customer_phone"`
	CustomerAddress string               `gorm:"type:text" json:"customer_address"`
	UserId          *int                 `gorm:"index" json:"user_id"`
	Source          OrderSource          `gorm:"type:enum('guest','admin');default:'guest'" json:"source"`
	DeliveryDate    *time.Time           `json:"delivery_date"`
	Note            string               `gorm:"type:text" json:"note"`
	Status          OrderStatus          `gorm:"type:enum('pending','confirmed','delivering','done','cancelled');default:'pending';index" json:"status"`
	Items           []OrderItem          `gorm:"foreignKey:OrderId" json:"items"`
	TotalAmount     decimal.Decimal      `gorm:"type:decimal(20,4);not null" json:"total_amount"`
	Payment         OrderPayment         `gorm:"embedded;embeddedPrefix:payment_" json:"payment"`
	StatusHistory   []OrderStatusHistory `gorm:"foreignKey:OrderId" json:"status_history"`
	CreatedAt       time.Time            `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderItem struct {
	ID       int             `gorm:"primary_key" json:"id"`
	OrderId  int             `gorm:"index;not null" json:"order_id"`
	FlowerId int             `gorm:"index;not null" json:"flower_id"`
	Flower   *Flower         `gorm:"foreignKey:FlowerId" json:"flower,omitempty"`
	Quantity decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Price    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	Discount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount"`
}

type OrderPayment struct {
	Method     PaymentMethod   `gorm:"type:enum('cash','transfer','wallet');default:'cash'" json:"method"`
	Status     PaymentStatus   `gorm:"type:enum('unpaid','partial','paid');default:'unpaid'" json:"status"`
	PaidAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
}

type OrderStatusHistory struct {
	ID        int         `gorm:"primary_key" json:"id"`
	OrderId   int         `gorm:"index;not null" json:"order_id"`
	Status    OrderStatus `gorm:"type:enum('pending','confirmed','delivering','done','cancelled');not null" json:"status"`
	Timestamp time.Time   `gorm:"not null" json:"timestamp"`
	Note      string      `gorm:"size:255" json:"note"`
	UpdatedBy *int        `json:"updated_by"`
}

type NewOrder struct {
	CustomerName    string          `json:"customer_name" binding:"required"`
	CustomerPhone   string          `json:"customer_phone" binding:"required"`
	CustomerAddress string          `json:"customer_address"`
	Source          OrderSource     `json:"source"`
	DeliveryDate    *time.Time      `json:"delivery_date"`
	Note            string          `json:"note"`
	Items           []NewOrderItem  `json:"items" binding:"required"`
	TotalAmount     decimal.Decimal `json:"total_amount" binding:"required"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
}

type NewOrderItem struct {
	FlowerId int             `json:"flower_id" binding:"required"`
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
	Price    decimal.Decimal `json:"price" binding:"required"`
	Discount decimal.Decimal `json:"discount"`
}

// validateOrderTotal enforces total = Σ(price × qty − discount).
func validateOrderTotal(items []NewOrderItem, total decimal.Decimal) error {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Price.Mul(item.Quantity).Sub(item.Discount))
	}
	if !sum.Equal(total) {
		return utils.NewValidationError("total_amount",
			fmt.Sprintf("must equal the item total %s", sum))
	}
	return nil
}

func (input *NewOrder) validate(ctx context.Context) error {
	if strings.TrimSpace(input.CustomerName) == "" {
		return utils.NewValidationError("customer_name", "is required")
	}
	if err := utils.ValidatePhoneNumber(input.CustomerPhone, utils.CountryCode); err != nil {
		return utils.NewValidationError("customer_phone", "is not a valid phone number")
	}
	if len(input.Items) == 0 {
		return utils.NewValidationError("items", "order must have at least one item")
	}
	flowerIds := make([]int, 0, len(input.Items))
	for _, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return utils.NewValidationError("items", "quantity must be positive")
		}
		if item.Price.IsNegative() || item.Discount.IsNegative() {
			return utils.NewValidationError("items", "price and discount cannot be negative")
		}
		flowerIds = append(flowerIds, item.FlowerId)
	}
	if err := utils.ValidateResourcesId[Flower](ctx, flowerIds); err != nil {
		return &utils.NotFoundError{Resource: "flower"}
	}
	return validateOrderTotal(input.Items, input.TotalAmount)
}

func formatOrderCode(dateStr string, sequence int) string {
	return fmt.Sprintf("%s%s%03d", orderCodePrefix, dateStr, sequence)
}

// parseOrderCodeSequence extracts the trailing daily sequence of a code like
// ORD20251120001. Zero for anything malformed.
func parseOrderCodeSequence(code string) int {
	if len(code) != len(orderCodePrefix)+11 || !strings.HasPrefix(code, orderCodePrefix) {
		return 0
	}
	seq, err := strconv.Atoi(code[len(code)-3:])
	if err != nil {
		return 0
	}
	return seq
}

// nextOrderSequence hands out the next daily sequence, preferring the atomic
// redis counter and seeding it from the highest persisted code. Falls back to
// a plain DB read when redis is down; the unique index on orders.code plus the
// retry in CreateOrder covers the remaining race.
func nextOrderSequence(ctx context.Context, dateStr string) (int, error) {
	db := config.GetDB()
	cacheKey := "orderSeq:" + dateStr

	seq, err := config.GetRedisCounter(ctx, cacheKey, 48*time.Hour)
	if err != nil {
		return 0, err
	}
	if seq > 1 {
		return int(seq), nil
	}

	// fresh counter (or redis unavailable): seed from the db's highest code
	var lastCode *string
	if err := db.WithContext(ctx).Model(&Order{}).
		Where("code LIKE ?", orderCodePrefix+dateStr+"%").
		Select("MAX(code)").Scan(&lastCode).Error; err != nil {
		return 0, err
	}
	dbSeq := 0
	if lastCode != nil {
		dbSeq = parseOrderCodeSequence(*lastCode)
	}
	next := dbSeq + 1
	if seq == 1 && next > 1 {
		// fast-forward the counter so later calls keep incrementing from here
		n := int64(next)
		if err := config.SetRedisObject(cacheKey, &n, 48*time.Hour); err != nil {
			return 0, err
		}
	}
	return next, nil
}

func isDuplicateKeyError(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "Duplicate entry")
}

// CreateOrder creates an order in `pending` with a generated daily code
// (ORD + YYYYMMDD + 3-digit sequence). Code assignment retries on the unique
// index when two creations race on the same sequence.
func CreateOrder(ctx context.Context, input *NewOrder) (*Order, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	items := make([]OrderItem, 0, len(input.Items))
	for _, item := range input.Items {
		items = append(items, OrderItem{
			FlowerId: item.FlowerId,
			Quantity: item.Quantity,
			Price:    item.Price,
			Discount: item.Discount,
		})
	}

	source := input.Source
	if source == "" {
		source = OrderSourceGuest
	}
	paymentMethod := input.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = PaymentMethodCash
	}
	var userId *int
	if id, ok := utils.GetUserIdFromContext(ctx); ok && id > 0 {
		userId = &id
	}

	db := config.GetDB()
	dateStr := time.Now().Format("20060102")

	const maxCodeRetries = 5
	var lastErr error
	for attempt := 0; attempt < maxCodeRetries; attempt++ {
		seq, err := nextOrderSequence(ctx, dateStr)
		if err != nil {
			return nil, err
		}
		code := formatOrderCode(dateStr, seq)

		order := Order{
			Code:            &code,
			CustomerName:    input.CustomerName,
			CustomerPhone:   input.CustomerPhone,
			CustomerAddress: input.CustomerAddress,
			UserId:          userId,
			Source:          source,
			DeliveryDate:    input.DeliveryDate,
			Note:            input.Note,
			Status:          OrderStatusPending,
			Items:           items,
			TotalAmount:     input.TotalAmount,
			Payment: OrderPayment{
				Method: paymentMethod,
				Status: PaymentStatusUnpaid,
			},
			StatusHistory: []OrderStatusHistory{
				{Status: OrderStatusPending, Timestamp: time.Now(), UpdatedBy: userId},
			},
		}

		err = db.WithContext(ctx).Create(&order).Error
		if err == nil {
			return &order, nil
		}
		if !isDuplicateKeyError(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("could not assign a unique order code: %w", lastErr)
}

// UpdateOrderStatus drives the order state machine. The only stock side
// effect is pending -> confirmed, which allocates every line item's recipe
// demand FEFO; status write, history entry and lot deductions commit or roll
// back as one transaction.
func UpdateOrderStatus(ctx context.Context, id int, target OrderStatus, note string) (*Order, error) {

	if !target.IsValid() {
		return nil, utils.NewValidationError("status", "unknown status "+string(target))
	}

	order, err := utils.FetchModel[Order](ctx, id, "Items")
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "order", Id: id}
	}

	oldStatus := order.Status
	if !oldStatus.CanTransitionTo(target) {
		return nil, &utils.InvalidTransitionError{From: string(oldStatus), To: string(target)}
	}

	allocates := oldStatus == OrderStatusPending && target == OrderStatusConfirmed
	if allocates {
		release, err := utils.StockLock(ctx, "order.go", "UpdateOrderStatus")
		if err != nil {
			return nil, err
		}
		defer release()

		// a concurrent confirm may have won while we waited on the lock;
		// re-read the status so the allocator runs at most once per transition
		order, err = utils.FetchModel[Order](ctx, id, "Items")
		if err != nil {
			return nil, &utils.NotFoundError{Resource: "order", Id: id}
		}
		oldStatus = order.Status
		if !oldStatus.CanTransitionTo(target) {
			return nil, &utils.InvalidTransitionError{From: string(oldStatus), To: string(target)}
		}
	}

	var updatedBy *int
	if userId, ok := utils.GetUserIdFromContext(ctx); ok && userId > 0 {
		updatedBy = &userId
	}

	db := config.GetDB()
	tx := db.Begin()

	order.Status = target
	if allocates {
		if err := ApplyOrderStockForStatusTransition(tx.WithContext(ctx), order, oldStatus); err != nil {
			tx.Rollback()
			order.Status = oldStatus
			return nil, err
		}
	}

	res := tx.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", order.ID, oldStatus).
		Update("status", target)
	if res.Error != nil {
		tx.Rollback()
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// status moved underneath us; nothing from this call may survive
		tx.Rollback()
		return nil, &utils.ConcurrencyConflictError{Resource: "order", Id: order.ID}
	}
	history := OrderStatusHistory{
		OrderId:   order.ID,
		Status:    target,
		Timestamp: time.Now(),
		Note:      note,
		UpdatedBy: updatedBy,
	}
	if err := tx.WithContext(ctx).Create(&history).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return utils.FetchModel[Order](ctx, id, "Items", "StatusHistory")
}

func GetOrder(ctx context.Context, id int) (*Order, error) {
	order, err := utils.FetchModel[Order](ctx, id, "Items", "Items.Flower", "StatusHistory")
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "order", Id: id}
	}
	return order, nil
}

func ListOrders(ctx context.Context, page int, limit int, status *OrderStatus) (*PaginatedOrders, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&Order{})
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}

	var total int64
	if err := dbCtx.Count(&total).Error; err != nil {
		return nil, err
	}

	var orders []*Order
	if err := dbCtx.
		Preload("Items").Preload("Items.Flower").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, err
	}

	return &PaginatedOrders{
		Data:       orders,
		Pagination: NewPagination(total, page, limit),
	}, nil
}
