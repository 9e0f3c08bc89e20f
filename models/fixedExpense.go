package models

import (
	"context"
	"time"

	"bitbucket.org/padaukbloom/flowershop_backend/config"
	"bitbucket.org/padaukbloom/flowershop_backend/utils"
	"github.com/shopspring/decimal"
)

type FixedExpense struct {
	ID        int              `gorm:"primary_key" json:"id"`
	Name      string           `gorm:"size:100;not null" json:"name" binding:"required"`
	Amount    decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"amount"`
	Frequency ExpenseFrequency `gorm:"type:enum('daily','weekly','monthly');not null" json:"frequency"`
	StartDate time.Time        `gorm:"not null" json:"start_date"`
	IsActive  *bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// ExpenseTransaction is one realized charge of a fixed expense.
type ExpenseTransaction struct {
	ID             int             `gorm:"primary_key" json:"id"`
	FixedExpenseId int             `gorm:"index;not null" json:"fixed_expense_id"`
	FixedExpense   *FixedExpense   `gorm:"foreignKey:FixedExpenseId" json:"fixed_expense,omitempty"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Date           time.Time       `gorm:"not null;index" json:"date"`
	Note           string          `gorm:"type:text" json:"note"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewFixedExpense struct {
	Name      string           `json:"name" binding:"required"`
	Amount    decimal.Decimal  `json:"amount" binding:"required"`
	Frequency ExpenseFrequency `json:"frequency" binding:"required"`
	StartDate time.Time        `json:"start_date" binding:"required"`
}

func (input *NewFixedExpense) validate() error {
	if !input.Amount.IsPositive() {
		return utils.NewValidationError("amount", "must be positive")
	}
	switch input.Frequency {
	case ExpenseFrequencyDaily, ExpenseFrequencyWeekly, ExpenseFrequencyMonthly:
	default:
		return utils.NewValidationError("frequency", "must be daily, weekly or monthly")
	}
	return nil
}

func CreateFixedExpense(ctx context.Context, input *NewFixedExpense) (*FixedExpense, error) {

	if err := input.validate(); err != nil {
		return nil, err
	}

	expense := FixedExpense{
		Name:      input.Name,
		Amount:    input.Amount,
		Frequency: input.Frequency,
		StartDate: input.StartDate,
		IsActive:  utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&expense).Error; err != nil {
		return nil, err
	}
	return &expense, nil
}

func ListFixedExpenses(ctx context.Context) ([]*FixedExpense, error) {
	db := config.GetDB()
	var results []*FixedExpense
	if err := db.WithContext(ctx).Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func ToggleActiveFixedExpense(ctx context.Context, id int, isActive bool) (*FixedExpense, error) {
	expense, err := utils.FetchModel[FixedExpense](ctx, id)
	if err != nil {
		return nil, &utils.NotFoundError{Resource: "fixed expense", Id: id}
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&expense).
		UpdateColumn("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	return expense, nil
}

type NewExpenseTransaction struct {
	FixedExpenseId int             `json:"fixed_expense_id" binding:"required"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	Date           *time.Time      `json:"date"`
	Note           string          `json:"note"`
}

func CreateExpenseTransaction(ctx context.Context, input *NewExpenseTransaction) (*ExpenseTransaction, error) {

	if !input.Amount.IsPositive() {
		return nil, utils.NewValidationError("amount", "must be positive")
	}
	if err := utils.ValidateResourceId[FixedExpense](ctx, input.FixedExpenseId); err != nil {
		return nil, &utils.NotFoundError{Resource: "fixed expense", Id: input.FixedExpenseId}
	}

	date := time.Now()
	if input.Date != nil {
		date = *input.Date
	}

	transaction := ExpenseTransaction{
		FixedExpenseId: input.FixedExpenseId,
		Amount:         input.Amount,
		Date:           date,
		Note:           input.Note,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&transaction).Error; err != nil {
		return nil, err
	}
	return &transaction, nil
}

func ListExpenseTransactions(ctx context.Context, from *time.Time, to *time.Time) ([]*ExpenseTransaction, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if from != nil {
		dbCtx = dbCtx.Where("date >= ?", *from)
	}
	if to != nil {
		dbCtx = dbCtx.Where("date < ?", *to)
	}

	var results []*ExpenseTransaction
	if err := dbCtx.Preload("FixedExpense").Order("date DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
