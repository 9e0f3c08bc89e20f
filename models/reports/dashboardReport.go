package reports

import (
	"context"
	"time"

	"bitbucket.org/padaukbloom/flowershop_backend/config"
	"bitbucket.org/padaukbloom/flowershop_backend/models"
	"github.com/shopspring/decimal"
)

// DashboardCacheKey is the redis key holding the cached dashboard response.
// Writers that change revenue or expenses invalidate it on commit.
const DashboardCacheKey = "dashboardStats"

const dashboardCacheTTL = 5 * time.Minute

type DashboardStatsResponse struct {
	Revenue           decimal.Decimal     `json:"revenue"`
	Orders            int64               `json:"orders"`
	CompletedOrders   int64               `json:"completed_orders"`
	Profit            decimal.Decimal     `json:"profit"`
	Customers         int64               `json:"customers"`
	Expenses          decimal.Decimal     `json:"expenses"`
	MaterialCost      decimal.Decimal     `json:"material_cost"`
	RecentOrders      []*models.Order     `json:"recent_orders"`
	LowStockMaterials []*LowStockMaterial `json:"low_stock_materials"`
}

type LowStockMaterial struct {
	MaterialId    int             `json:"material_id"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	StockOnHand   decimal.Decimal `json:"stock_on_hand"`
	MinStockLevel decimal.Decimal `json:"min_stock_level"`
}

type orderAggregate struct {
	TotalRevenue decimal.Decimal
	Count        int64
}

// GetDashboardStats aggregates revenue, cost and inventory health for the
// admin dashboard. Material cost uses the flowers' current base cost; order
// items carry no cost snapshot.
func GetDashboardStats(ctx context.Context) (*DashboardStatsResponse, error) {

	var cached DashboardStatsResponse
	if found, err := config.GetRedisObject(DashboardCacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	db := config.GetDB()

	var doneStats orderAggregate
	if err := db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(total_amount), 0) AS total_revenue, COUNT(*) AS count
		FROM orders WHERE status = 'done'
	`).Scan(&doneStats).Error; err != nil {
		return nil, err
	}

	var totalOrders int64
	if err := db.WithContext(ctx).Model(&models.Order{}).Count(&totalOrders).Error; err != nil {
		return nil, err
	}

	var totalCustomers int64
	if err := db.WithContext(ctx).Model(&models.User{}).
		Where("role = ?", models.UserRoleGuest).Count(&totalCustomers).Error; err != nil {
		return nil, err
	}

	var materialCost decimal.Decimal
	if err := db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(flowers.base_cost * order_items.quantity), 0)
		FROM order_items
		JOIN orders ON orders.id = order_items.order_id
		JOIN flowers ON flowers.id = order_items.flower_id
		WHERE orders.status = 'done'
	`).Scan(&materialCost).Error; err != nil {
		return nil, err
	}

	var expenseTotal decimal.Decimal
	if err := db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(amount), 0) FROM expense_transactions
	`).Scan(&expenseTotal).Error; err != nil {
		return nil, err
	}

	var recentOrders []*models.Order
	if err := db.WithContext(ctx).
		Preload("Items").Preload("Items.Flower").
		Order("created_at DESC").Limit(5).
		Find(&recentOrders).Error; err != nil {
		return nil, err
	}

	lowStock, err := getLowStockMaterials(ctx)
	if err != nil {
		return nil, err
	}

	stats := &DashboardStatsResponse{
		Revenue:           doneStats.TotalRevenue,
		Orders:            totalOrders,
		CompletedOrders:   doneStats.Count,
		Profit:            doneStats.TotalRevenue.Sub(materialCost).Sub(expenseTotal),
		Customers:         totalCustomers,
		Expenses:          expenseTotal,
		MaterialCost:      materialCost,
		RecentOrders:      recentOrders,
		LowStockMaterials: lowStock,
	}

	if err := config.SetRedisObject(DashboardCacheKey, stats, dashboardCacheTTL); err != nil {
		config.LogError(config.GetLogger(), "dashboardReport.go", "GetDashboardStats", "cache dashboard stats", nil, err)
	}
	return stats, nil
}

// materials whose total remaining lot quantity fell under their minimum level
func getLowStockMaterials(ctx context.Context) ([]*LowStockMaterial, error) {

	sql := `
SELECT
	materials.id AS material_id,
	materials.name,
	materials.unit,
	COALESCE(SUM(material_lots.quantity_remain), 0) AS stock_on_hand,
	materials.min_stock_level
FROM
	materials
	LEFT JOIN material_lots ON material_lots.material_id = materials.id
WHERE
	materials.is_active = 1
GROUP BY
	materials.id, materials.name, materials.unit, materials.min_stock_level
HAVING
	stock_on_hand < materials.min_stock_level
ORDER BY
	stock_on_hand ASC
`

	var records []*LowStockMaterial
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql).Scan(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
