package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/beauty-shop/internal/adapter/storage"
	"github.com/rl1809/beauty-shop/internal/core/domain"
	"github.com/rl1809/beauty-shop/internal/core/service"
	"github.com/rl1809/beauty-shop/internal/port"
)

const (
	productID     = "stress-lipstick"
	initialStock  = 20
	totalRequests = 50
)

// Fires concurrent single-unit checkouts at one product and verifies that
// exactly initialStock succeed. Uses MySQL when MYSQL_DSN is set.
func main() {
	ctx := context.Background()
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	var store port.DocumentStore = storage.NewMemoryStore()
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			log.WithError(err).Fatal("failed to connect mysql")
		}
		defer db.Close()
		mysqlStore := storage.NewMySQLStore(db)
		if err := mysqlStore.Migrate(ctx); err != nil {
			log.WithError(err).Fatal("failed to migrate")
		}
		store = mysqlStore
	}

	// Reset the product
	_ = store.DeleteProduct(ctx, productID)
	if _, err := store.AddProduct(ctx, domain.Product{
		ID:        productID,
		Name:      "Velvet Lipstick",
		Price:     12.5,
		Inventory: domain.SimpleStock{Stock: initialStock},
	}); err != nil {
		log.WithError(err).Fatal("failed to seed product")
	}

	orders := service.NewOrderService(store, nil, nil,
		service.WithLogger(log),
		service.WithRetryPolicy(service.RetryPolicy{
			MaxAttempts: 100,
			BaseDelay:   time.Millisecond,
			MaxDelay:    20 * time.Millisecond,
		}),
	)

	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var errorCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := orders.SubmitOrder(ctx,
				[]domain.CartItem{{ProductID: productID, Quantity: 1, UnitPrice: 12.5}},
				domain.Customer{Name: fmt.Sprintf("customer-%d", n), Phone: "0500000000", Address: "Riyadh"},
			)
			switch {
			case err == nil:
				successCount.Add(1)
			case isStockError(err):
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	p, err := store.GetProduct(ctx, productID)
	if err != nil || p == nil {
		fmt.Printf("FAIL: could not read final stock: %v\n", err)
		return
	}
	finalStock, _ := p.StockFor(nil)
	fmt.Printf("Final Stock: %d\n", finalStock)
	if finalStock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", finalStock)
	}
}

func isStockError(err error) bool {
	var stockErr *service.StockError
	return errors.As(err, &stockErr)
}
