package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"bitbucket.org/padaukbloom/flowershop_backend/config"
	"bitbucket.org/padaukbloom/flowershop_backend/models"
	"bitbucket.org/padaukbloom/flowershop_backend/models/reports"
	"bitbucket.org/padaukbloom/flowershop_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("flowershop-backend")

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Correlation-Id"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(correlationMiddleware())

	registerRoutes(r)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// Start listening first; DB/redis connect with retry in the background
	// so a slow dependency never delays the port bind.
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()
	logger.Infof("flowershop backend ready on :%s", port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
}

func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationId := c.GetHeader("X-Correlation-Id")
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationId)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Correlation-Id", correlationId)
		c.Next()
	}
}

func registerRoutes(r *gin.Engine) {
	api := r.Group("/api")

	api.POST("/materials", createMaterial)
	api.GET("/materials", listMaterials)
	api.GET("/materials/:id", getMaterial)
	api.PUT("/materials/:id", updateMaterial)
	api.DELETE("/materials/:id", deleteMaterial)
	api.PUT("/materials/:id/active", toggleMaterial)

	api.GET("/materials/:id/lots", listLots)
	api.POST("/materials/:id/lots", importLot)
	api.PUT("/lots/:id/adjust", adjustLot)

	api.GET("/movements", listMovements)
	api.GET("/reports/movements/export", exportMovements)

	api.POST("/flowers", createFlower)
	api.GET("/flowers", listFlowers)
	api.GET("/flowers/:id", getFlower)
	api.PUT("/flowers/:id", updateFlower)
	api.DELETE("/flowers/:id", deleteFlower)

	api.POST("/orders", createOrder)
	api.GET("/orders", listOrders)
	api.GET("/orders/:id", getOrder)
	api.PUT("/orders/:id/status", updateOrderStatus)

	api.POST("/expenses", createFixedExpense)
	api.GET("/expenses", listFixedExpenses)
	api.PUT("/expenses/:id/active", toggleFixedExpense)
	api.POST("/expenses/transactions", createExpenseTransaction)
	api.GET("/expenses/transactions", listExpenseTransactions)

	api.POST("/users", createUser)
	api.POST("/auth/login", login)

	api.GET("/dashboard/stats", dashboardStats)
}

// map the core error taxonomy onto HTTP status codes
func httpStatusForError(err error) int {
	var validationErr *utils.ValidationError
	var notFoundErr *utils.NotFoundError
	var insufficientErr *utils.InsufficientStockError
	var transitionErr *utils.InvalidTransitionError
	var conflictErr *utils.ConcurrencyConflictError

	switch {
	case errors.As(err, &validationErr),
		errors.As(err, &insufficientErr),
		errors.As(err, &transitionErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr), errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.As(err, &conflictErr):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	status := httpStatusForError(err)
	if status == http.StatusInternalServerError {
		config.LogError(config.GetLogger(), "server.go", c.FullPath(), "request failed", nil, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func bindJSON(c *gin.Context, input any) bool {
	if err := c.ShouldBindJSON(input); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return false
	}
	return true
}

func idParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

/* materials */

func createMaterial(c *gin.Context) {
	var input models.NewMaterial
	if !bindJSON(c, &input) {
		return
	}
	material, err := models.CreateMaterial(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, material)
}

func listMaterials(c *gin.Context) {
	var name *string
	if v := c.Query("name"); v != "" {
		name = &v
	}
	materials, err := models.ListMaterials(c.Request.Context(), name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, materials)
}

func getMaterial(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	material, err := models.GetMaterial(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, material)
}

func updateMaterial(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewMaterial
	if !bindJSON(c, &input) {
		return
	}
	material, err := models.UpdateMaterial(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, material)
}

func deleteMaterial(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	material, err := models.DeleteMaterial(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, material)
}

func toggleMaterial(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if !bindJSON(c, &input) {
		return
	}
	material, err := models.ToggleActiveMaterial(c.Request.Context(), id, *input.IsActive)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, material)
}

/* lots */

func listLots(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	lots, err := models.ListMaterialLots(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, lots)
}

func importLot(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewMaterialLot
	if !bindJSON(c, &input) {
		return
	}
	lot, err := models.ImportLot(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lot)
}

func adjustLot(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.AdjustLotInput
	if !bindJSON(c, &input) {
		return
	}
	lot, err := models.AdjustLot(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, lot)
}

/* movements */

func listMovements(c *gin.Context) {
	var filter models.MovementFilter
	if v := c.Query("material_id"); v != "" {
		materialId, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid material_id"})
			return
		}
		filter.MaterialId = &materialId
	}
	if v := c.Query("type"); v != "" {
		movementType := models.MovementType(v)
		filter.Type = &movementType
	}
	from, to, ok := dateRangeParams(c)
	if !ok {
		return
	}
	filter.From = from
	filter.To = to
	movements, err := models.ListMovements(c.Request.Context(), &filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, movements)
}

func exportMovements(c *gin.Context) {
	from, to, ok := dateRangeParams(c)
	if !ok {
		return
	}
	if err := reports.ExportStockMovementExcel(c.Request.Context(), c.Writer, from, to); err != nil {
		abortWithError(c, err)
	}
}

func dateRangeParams(c *gin.Context) (*time.Time, *time.Time, bool) {
	var from, to *time.Time
	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return nil, nil, false
		}
		from = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
			return nil, nil, false
		}
		to = &t
	}
	return from, to, true
}

/* flowers */

func createFlower(c *gin.Context) {
	var input models.NewFlower
	if !bindJSON(c, &input) {
		return
	}
	flower, err := models.CreateFlower(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, flower)
}

func listFlowers(c *gin.Context) {
	var name *string
	if v := c.Query("name"); v != "" {
		name = &v
	}
	activeOnly := c.Query("active") == "true"
	flowers, err := models.ListFlowers(c.Request.Context(), name, activeOnly)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, flowers)
}

func getFlower(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	flower, err := models.GetFlower(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, flower)
}

func updateFlower(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewFlower
	if !bindJSON(c, &input) {
		return
	}
	flower, err := models.UpdateFlower(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, flower)
}

func deleteFlower(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	flower, err := models.DeleteFlower(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, flower)
}

/* orders */

func createOrder(c *gin.Context) {
	var input models.NewOrder
	if !bindJSON(c, &input) {
		return
	}
	order, err := models.CreateOrder(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func listOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	var status *models.OrderStatus
	if v := c.Query("status"); v != "" {
		s := models.OrderStatus(v)
		if !s.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		status = &s
	}
	result, err := models.ListOrders(c.Request.Context(), page, limit, status)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getOrder(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	order, err := models.GetOrder(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func updateOrderStatus(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input struct {
		Status models.OrderStatus `json:"status" binding:"required"`
		Note   string             `json:"note"`
	}
	if !bindJSON(c, &input) {
		return
	}

	ctx, span := tracer.Start(c.Request.Context(), "order.status.transition")
	defer span.End()

	order, err := models.UpdateOrderStatus(ctx, id, input.Status, input.Note)
	if err != nil {
		abortWithError(c, err)
		return
	}
	invalidateDashboardCache()
	c.JSON(http.StatusOK, order)
}

func invalidateDashboardCache() {
	if err := config.RemoveRedisKey(reports.DashboardCacheKey); err != nil {
		config.LogError(config.GetLogger(), "server.go", "invalidateDashboardCache", "drop dashboard cache", nil, err)
	}
}

/* expenses */

func createFixedExpense(c *gin.Context) {
	var input models.NewFixedExpense
	if !bindJSON(c, &input) {
		return
	}
	expense, err := models.CreateFixedExpense(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, expense)
}

func listFixedExpenses(c *gin.Context) {
	expenses, err := models.ListFixedExpenses(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, expenses)
}

func toggleFixedExpense(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if !bindJSON(c, &input) {
		return
	}
	expense, err := models.ToggleActiveFixedExpense(c.Request.Context(), id, *input.IsActive)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

func createExpenseTransaction(c *gin.Context) {
	var input models.NewExpenseTransaction
	if !bindJSON(c, &input) {
		return
	}
	transaction, err := models.CreateExpenseTransaction(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	invalidateDashboardCache()
	c.JSON(http.StatusCreated, transaction)
}

func listExpenseTransactions(c *gin.Context) {
	from, to, ok := dateRangeParams(c)
	if !ok {
		return
	}
	transactions, err := models.ListExpenseTransactions(c.Request.Context(), from, to)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, transactions)
}

/* users */

func createUser(c *gin.Context) {
	var input models.NewUser
	if !bindJSON(c, &input) {
		return
	}
	user, err := models.CreateUser(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func login(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if !bindJSON(c, &input) {
		return
	}
	user, err := models.CheckUserPassword(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

/* dashboard */

func dashboardStats(c *gin.Context) {
	stats, err := reports.GetDashboardStats(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
