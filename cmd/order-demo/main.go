// Command order-demo drives concurrent order placements against one product
// to show the optimistic reservation behavior: with stock Q and N callers
// requesting one unit each, exactly Q succeed and the rest fail with a stock
// conflict.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vietct/orderflow/internal/domain/inventory"
	"github.com/vietct/orderflow/internal/domain/order"
	"github.com/vietct/orderflow/internal/domain/payment"
	"github.com/vietct/orderflow/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		callers     int
		stock       int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&callers, "callers", 8, "number of concurrent order placements")
	flag.IntVar(&stock, "stock", 5, "initial available quantity for the demo product")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer lg.Sync() //nolint:errcheck

	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, callers, stock); err != nil {
		lg.Fatal("demo failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, callers, stock int) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	db := postgres.NewDB(pool)
	products := postgres.NewProductRepository(db)
	invStore := postgres.NewInventoryStore(db)
	orders := postgres.NewOrderRepository(db)
	payments := postgres.NewPaymentStore(db)
	events := postgres.NewOutboxStore(db)

	paySvc := payment.NewService(payments, orders, events, db, lg.Named("payment"))
	orderSvc := order.NewService(products, inventory.NewLedger(invStore), orders, paySvc, db, lg.Named("order"))

	productID, err := seedDemoProduct(ctx, db, products, invStore, stock)
	if err != nil {
		return errors.Wrap(err, "seed demo product")
	}

	lg.Info("demo product ready",
		zap.Stringer("product_id", productID),
		zap.Int("stock", stock),
		zap.Int("callers", callers))

	userID := uuid.New()
	req := order.PlaceOrderRequest{
		UserID:        userID,
		Items:         []order.ItemRequest{{ProductID: productID, Quantity: 1}},
		PaymentMethod: "MOCK_CARD",
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)

	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			o, err := orderSvc.PlaceOrder(ctx, req)
			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				var stockErr *inventory.InsufficientStockError
				if errors.As(err, &stockErr) {
					conflicts++
					lg.Info("placement rejected", zap.Int("caller", i), zap.Error(err))
					return
				}
				lg.Error("placement failed", zap.Int("caller", i), zap.Error(err))
				return
			}

			succeeded++
			lg.Info("placement succeeded",
				zap.Int("caller", i),
				zap.Stringer("order_id", o.ID),
				zap.String("status", string(o.Status)),
				zap.String("total", o.TotalAmount.String()))
		}()
	}
	wg.Wait()

	after, err := invStore.GetByProduct(ctx, productID)
	if err != nil {
		return errors.Wrap(err, "read inventory after demo")
	}

	lg.Info("demo finished",
		zap.Int("succeeded", succeeded),
		zap.Int("stock_conflicts", conflicts),
		zap.Int("remaining_stock", after.AvailableQuantity),
		zap.Int64("inventory_version", after.Version))

	return nil
}

func seedDemoProduct(
	ctx context.Context,
	db *postgres.DB,
	products *postgres.ProductRepository,
	invStore *postgres.InventoryStore,
	stock int,
) (uuid.UUID, error) {
	productID := uuid.New()

	err := db.InTx(ctx, func(ctx context.Context) error {
		categoryID, err := products.EnsureCategory(ctx, "demo")
		if err != nil {
			return err
		}
		if err := products.Upsert(ctx, productID, "Concurrency Demo Product",
			decimal.RequireFromString("10.00"), categoryID); err != nil {
			return err
		}
		return invStore.Upsert(ctx, productID, stock)
	})
	return productID, err
}
