package models

import (
	"log"

	"bitbucket.org/padaukbloom/flowershop_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Material{}, &MaterialLot{}, &InventoryMovement{},
		&Flower{}, &RecipeItem{},
		&Order{}, &OrderItem{}, &OrderStatusHistory{},
		&FixedExpense{}, &ExpenseTransaction{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
