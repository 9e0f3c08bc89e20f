package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/padaukbloom/flowershop_backend/config"
	"bitbucket.org/padaukbloom/flowershop_backend/models"
	"bitbucket.org/padaukbloom/flowershop_backend/utils"
	"github.com/shopspring/decimal"
)

// Confirming an order must drain the soonest-expiring lot first, write one
// `out` movement per lot touched, and roll back entirely on shortfall.
func TestOrderConfirmationDeductsFefoAndRollsBackOnShortfall(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "flowershop_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)

	rose, err := models.CreateMaterial(ctx, &models.NewMaterial{Name: "Red Rose", Unit: "stem"})
	if err != nil {
		t.Fatalf("CreateMaterial: %v", err)
	}

	soon := time.Now().AddDate(0, 0, 3)
	later := time.Now().AddDate(0, 0, 10)
	lotA, err := models.ImportLot(ctx, rose.ID, &models.NewMaterialLot{
		QuantityImport: decimal.NewFromInt(3),
		ImportPrice:    decimal.NewFromInt(1000),
		ExpireDate:     soon,
	})
	if err != nil {
		t.Fatalf("ImportLot A: %v", err)
	}
	lotB, err := models.ImportLot(ctx, rose.ID, &models.NewMaterialLot{
		QuantityImport: decimal.NewFromInt(10),
		ImportPrice:    decimal.NewFromInt(1300),
		ExpireDate:     later,
	})
	if err != nil {
		t.Fatalf("ImportLot B: %v", err)
	}

	bouquet, err := models.CreateFlower(ctx, &models.NewFlower{
		Name:      "Rose Bouquet",
		SalePrice: decimal.NewFromInt(15000),
		Recipe: []models.NewRecipeItem{
			{MaterialId: rose.ID, Quantity: decimal.NewFromInt(2)},
		},
	})
	if err != nil {
		t.Fatalf("CreateFlower: %v", err)
	}
	// weighted average (3*1000 + 10*1300)/13 = 1230.77, x2 rounded
	if !bouquet.BaseCost.Equal(decimal.NewFromInt(2462)) {
		t.Fatalf("expected base cost 2462, got %s", bouquet.BaseCost)
	}

	order, err := models.CreateOrder(ctx, &models.NewOrder{
		CustomerName:  "Daw Mya",
		CustomerPhone: "09795551234",
		Items: []models.NewOrderItem{
			{FlowerId: bouquet.ID, Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(15000)},
		},
		TotalAmount: decimal.NewFromInt(30000),
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Code == nil || !strings.HasPrefix(*order.Code, "ORD") {
		t.Fatalf("expected a generated ORD code, got %v", order.Code)
	}

	// pending -> confirmed needs 4 stems: all 3 of lot A, then 1 of lot B
	if _, err := models.UpdateOrderStatus(ctx, order.ID, models.OrderStatusConfirmed, ""); err != nil {
		t.Fatalf("confirm order: %v", err)
	}

	db := config.GetDB()
	var a, b models.MaterialLot
	if err := db.WithContext(ctx).First(&a, lotA.ID).Error; err != nil {
		t.Fatalf("reload lot A: %v", err)
	}
	if err := db.WithContext(ctx).First(&b, lotB.ID).Error; err != nil {
		t.Fatalf("reload lot B: %v", err)
	}
	if !a.QuantityRemain.IsZero() {
		t.Fatalf("expected the soonest-expiring lot drained, remain=%s", a.QuantityRemain)
	}
	if !b.QuantityRemain.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("expected lot B at 9, remain=%s", b.QuantityRemain)
	}

	movements, err := models.ListMovements(ctx, &models.MovementFilter{MaterialId: &rose.ID})
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	outs := 0
	for _, m := range movements {
		if m.Type == models.MovementTypeOut {
			outs++
			if m.ReferenceType != models.MovementReferenceTypeOrder || m.ReferenceId != order.ID {
				t.Fatalf("out movement must reference the order, got %s#%d", m.ReferenceType, m.ReferenceId)
			}
		}
	}
	if outs != 2 {
		t.Fatalf("expected one out movement per lot touched (2), got %d", outs)
	}

	// confirming again is an illegal edge
	if _, err := models.UpdateOrderStatus(ctx, order.ID, models.OrderStatusConfirmed, ""); err == nil {
		t.Fatal("expected confirmed -> confirmed to be rejected")
	} else {
		var transitionErr *utils.InvalidTransitionError
		if !errors.As(err, &transitionErr) {
			t.Fatalf("expected InvalidTransitionError, got %T: %v", err, err)
		}
	}

	// 9 stems left; an order needing 10 must fail whole and touch nothing
	tooBig, err := models.CreateOrder(ctx, &models.NewOrder{
		CustomerName:  "U Aung",
		CustomerPhone: "09795551234",
		Items: []models.NewOrderItem{
			{FlowerId: bouquet.ID, Quantity: decimal.NewFromInt(5), Price: decimal.NewFromInt(15000)},
		},
		TotalAmount: decimal.NewFromInt(75000),
	})
	if err != nil {
		t.Fatalf("CreateOrder (oversized): %v", err)
	}

	// second order of the day carries the next daily sequence
	if tooBig.Code == nil {
		t.Fatal("expected a generated code on the second order")
	}
	firstSeq, err := strconv.Atoi((*order.Code)[len(*order.Code)-3:])
	if err != nil {
		t.Fatalf("parse first code %q: %v", *order.Code, err)
	}
	secondSeq, err := strconv.Atoi((*tooBig.Code)[len(*tooBig.Code)-3:])
	if err != nil {
		t.Fatalf("parse second code %q: %v", *tooBig.Code, err)
	}
	if secondSeq != firstSeq+1 {
		t.Fatalf("expected consecutive daily sequences, got %s then %s", *order.Code, *tooBig.Code)
	}

	_, err = models.UpdateOrderStatus(ctx, tooBig.ID, models.OrderStatusConfirmed, "")
	var stockErr *utils.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %T: %v", err, err)
	}
	if !stockErr.Shortfall.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected shortfall 1, got %s", stockErr.Shortfall)
	}

	if err := db.WithContext(ctx).First(&b, lotB.ID).Error; err != nil {
		t.Fatalf("reload lot B: %v", err)
	}
	if !b.QuantityRemain.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("failed allocation must not leave partial deductions, remain=%s", b.QuantityRemain)
	}
	reloaded, err := models.GetOrder(ctx, tooBig.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if reloaded.Status != models.OrderStatusPending {
		t.Fatalf("failed allocation must leave the order pending, got %s", reloaded.Status)
	}
}

// Two racing confirms of the same order must allocate its demand exactly once:
// the loser either sees the already-confirmed status after the lock or loses
// the conditional status write, and neither path deducts stock again.
func TestConcurrentConfirmAllocatesOnce(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "flowershop_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)

	lily, err := models.CreateMaterial(ctx, &models.NewMaterial{Name: "White Lily", Unit: "stem"})
	if err != nil {
		t.Fatalf("CreateMaterial: %v", err)
	}
	importedLot, err := models.ImportLot(ctx, lily.ID, &models.NewMaterialLot{
		QuantityImport: decimal.NewFromInt(10),
		ImportPrice:    decimal.NewFromInt(800),
		ExpireDate:     time.Now().AddDate(0, 0, 5),
	})
	if err != nil {
		t.Fatalf("ImportLot: %v", err)
	}
	bouquet, err := models.CreateFlower(ctx, &models.NewFlower{
		Name:      "Lily Bouquet",
		SalePrice: decimal.NewFromInt(12000),
		Recipe: []models.NewRecipeItem{
			{MaterialId: lily.ID, Quantity: decimal.NewFromInt(2)},
		},
	})
	if err != nil {
		t.Fatalf("CreateFlower: %v", err)
	}
	order, err := models.CreateOrder(ctx, &models.NewOrder{
		CustomerName:  "Daw Mya",
		CustomerPhone: "09795551234",
		Items: []models.NewOrderItem{
			{FlowerId: bouquet.ID, Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(12000)},
		},
		TotalAmount: decimal.NewFromInt(24000),
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	// hold the stock lock so both confirms pass the initial guard and pile
	// up behind it
	held, err := config.GetRedisLock().Obtain(ctx, "stockLock", 10*time.Second, nil)
	if err != nil {
		t.Fatalf("obtain stock lock: %v", err)
	}

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := models.UpdateOrderStatus(ctx, order.ID, models.OrderStatusConfirmed, "")
			results <- err
		}()
	}
	time.Sleep(300 * time.Millisecond)
	if err := held.Release(ctx); err != nil {
		t.Fatalf("release stock lock: %v", err)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	var loserErr error
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			loserErr = err
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one confirm to win, got %d (loser err: %v)", succeeded, loserErr)
	}
	var transitionErr *utils.InvalidTransitionError
	var conflictErr *utils.ConcurrencyConflictError
	if !errors.As(loserErr, &transitionErr) && !errors.As(loserErr, &conflictErr) {
		t.Fatalf("loser must fail with a transition or conflict error, got %T: %v", loserErr, loserErr)
	}

	db := config.GetDB()
	var reloaded models.MaterialLot
	if err := db.WithContext(ctx).First(&reloaded, importedLot.ID).Error; err != nil {
		t.Fatalf("reload lot: %v", err)
	}
	if !reloaded.QuantityRemain.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("demand of 4 must be deducted exactly once, remain=%s", reloaded.QuantityRemain)
	}

	movements, err := models.ListMovements(ctx, &models.MovementFilter{MaterialId: &lily.ID})
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	outs := 0
	for _, m := range movements {
		if m.Type == models.MovementTypeOut {
			outs++
		}
	}
	if outs != 1 {
		t.Fatalf("expected a single out movement, got %d", outs)
	}

	final, err := models.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	confirmedRows := 0
	for _, h := range final.StatusHistory {
		if h.Status == models.OrderStatusConfirmed {
			confirmedRows++
		}
	}
	if confirmedRows != 1 {
		t.Fatalf("expected a single confirmed history row, got %d", confirmedRows)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("flowershop-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("flowershop-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=flowershop_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
