package models_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/RayanAndish/GoldACC-sub001/config"
	"github.com/RayanAndish/GoldACC-sub001/models"
	"github.com/RayanAndish/GoldACC-sub001/utils"
	"github.com/shopspring/decimal"
)

// These tests run against a real MySQL instance configured through the usual
// DB_* environment variables. Set INTEGRATION_TESTS=1 to enable them.
func requireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run database-backed tests")
	}
	if config.GetDB() == nil {
		config.ConnectDatabaseWithRetry()
		models.MigrateTable()
		if err := models.SeedDefaultFormulas(context.Background()); err != nil {
			t.Fatalf("seeding default formulas: %v", err)
		}
	}
}

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func createTestContact(t *testing.T, name string) *models.Contact {
	t.Helper()
	contact := &models.Contact{Name: name, IsActive: true}
	if err := models.CreateContact(context.Background(), contact); err != nil {
		t.Fatalf("creating contact: %v", err)
	}
	return contact
}

func createTestProduct(t *testing.T, product *models.Product) *models.Product {
	t.Helper()
	if err := models.CreateProduct(context.Background(), product); err != nil {
		t.Fatalf("creating product: %v", err)
	}
	return product
}

func TestCreateTradeTransaction_WritesLedger(t *testing.T) {
	requireIntegration(t)
	ctx := context.Background()
	actor := models.Actor{Id: 1, Name: "tester"}

	contact := createTestContact(t, "ledger test contact")
	product := createTestProduct(t, &models.Product{
		Code:          "IT-MELT-" + time.Now().Format("150405.000000000"),
		Name:          "melted test gold",
		Category:      models.ProductCategoryMelted,
		UnitOfMeasure: models.UnitOfMeasureWeight,
		DefaultCarat:  750,
	})

	txn, err := models.CreateTradeTransaction(ctx, actor, &models.NewTradeTransaction{
		TradeType:       "sell",
		ContactId:       contact.ID,
		TransactionDate: time.Now().UTC(),
		Items: []*models.NewTradeItem{{
			ProductId:   product.ID,
			WeightGrams: mustDec(t, "10"),
			Carat:       705,
			UnitPrice:   mustDec(t, "1000000"),
		}},
	})
	if err != nil {
		t.Fatalf("CreateTradeTransaction: %v", err)
	}
	if txn.DeliveryStatus != models.DeliveryStatusPendingDelivery {
		t.Fatalf("sell expected pending delivery, got %s", txn.DeliveryStatus)
	}
	// 10 * 705 / 750 * 1000000
	if !txn.BaseValue.Equal(mustDec(t, "9400000")) {
		t.Fatalf("base value expected 9400000, got %s", txn.BaseValue)
	}

	balance, err := models.GetContactWeightBalance(ctx, contact.ID, models.ProductCategoryMelted)
	if err != nil {
		t.Fatalf("GetContactWeightBalance: %v", err)
	}
	// sell raises what the contact owes: +9.4 normalized grams
	if !balance.Equal(mustDec(t, "9.4")) {
		t.Fatalf("balance expected 9.4, got %s", balance)
	}
}

func TestUpdateTradeTransaction_RederivesLedger(t *testing.T) {
	requireIntegration(t)
	ctx := context.Background()
	actor := models.Actor{Id: 1, Name: "tester"}

	contact := createTestContact(t, "edit test contact")
	product := createTestProduct(t, &models.Product{
		Code:          "IT-EDIT-" + time.Now().Format("150405.000000000"),
		Name:          "melted test gold",
		Category:      models.ProductCategoryMelted,
		UnitOfMeasure: models.UnitOfMeasureWeight,
		DefaultCarat:  750,
	})

	input := &models.NewTradeTransaction{
		TradeType:       "buy",
		ContactId:       contact.ID,
		TransactionDate: time.Now().UTC(),
		Items: []*models.NewTradeItem{{
			ProductId:   product.ID,
			WeightGrams: mustDec(t, "10"),
			UnitPrice:   mustDec(t, "1000000"),
		}},
	}
	txn, err := models.CreateTradeTransaction(ctx, actor, input)
	if err != nil {
		t.Fatalf("CreateTradeTransaction: %v", err)
	}

	// Saving the identical input again must leave the balance unchanged.
	before, err := models.GetContactWeightBalance(ctx, contact.ID, models.ProductCategoryMelted)
	if err != nil {
		t.Fatalf("GetContactWeightBalance: %v", err)
	}
	input.Items[0].Id = txn.Items[0].ID
	if _, err := models.UpdateTradeTransaction(ctx, actor, txn.ID, input); err != nil {
		t.Fatalf("UpdateTradeTransaction: %v", err)
	}
	after, err := models.GetContactWeightBalance(ctx, contact.ID, models.ProductCategoryMelted)
	if err != nil {
		t.Fatalf("GetContactWeightBalance: %v", err)
	}
	if !after.Equal(before) {
		t.Fatalf("identical edit must not move the balance: %s vs %s", before, after)
	}

	// Changing the weight replaces the prior commitment instead of stacking.
	input.Items[0].WeightGrams = mustDec(t, "4")
	if _, err := models.UpdateTradeTransaction(ctx, actor, txn.ID, input); err != nil {
		t.Fatalf("UpdateTradeTransaction: %v", err)
	}
	final, err := models.GetContactWeightBalance(ctx, contact.ID, models.ProductCategoryMelted)
	if err != nil {
		t.Fatalf("GetContactWeightBalance: %v", err)
	}
	if !final.Equal(mustDec(t, "-4")) {
		t.Fatalf("balance expected -4 after edit, got %s", final)
	}
}

func TestUpdateTradeTransaction_EditBelowLedgerTail(t *testing.T) {
	requireIntegration(t)
	ctx := context.Background()
	actor := models.Actor{Id: 1, Name: "tester"}

	contact := createTestContact(t, "mid-chain edit contact")
	product := createTestProduct(t, &models.Product{
		Code:          "IT-CHAIN-" + time.Now().Format("150405.000000000"),
		Name:          "melted test gold",
		Category:      models.ProductCategoryMelted,
		UnitOfMeasure: models.UnitOfMeasureWeight,
		DefaultCarat:  750,
	})

	sellInput := func(grams string) *models.NewTradeTransaction {
		return &models.NewTradeTransaction{
			TradeType:       "sell",
			ContactId:       contact.ID,
			TransactionDate: time.Now().UTC(),
			Items: []*models.NewTradeItem{{
				ProductId:   product.ID,
				WeightGrams: mustDec(t, grams),
				UnitPrice:   mustDec(t, "1000000"),
			}},
		}
	}

	first, err := models.CreateTradeTransaction(ctx, actor, sellInput("5"))
	if err != nil {
		t.Fatalf("CreateTradeTransaction: %v", err)
	}
	if _, err := models.CreateTradeTransaction(ctx, actor, sellInput("3")); err != nil {
		t.Fatalf("CreateTradeTransaction: %v", err)
	}

	balance, err := models.GetContactWeightBalance(ctx, contact.ID, models.ProductCategoryMelted)
	if err != nil {
		t.Fatalf("GetContactWeightBalance: %v", err)
	}
	if !balance.Equal(mustDec(t, "8")) {
		t.Fatalf("balance expected 8 after two sells, got %s", balance)
	}

	// Re-save the older transaction unchanged: its ledger entry sits below
	// the chain tail, and the balance must not move.
	resave := sellInput("5")
	resave.Items[0].Id = first.Items[0].ID
	if _, err := models.UpdateTradeTransaction(ctx, actor, first.ID, resave); err != nil {
		t.Fatalf("UpdateTradeTransaction: %v", err)
	}
	balance, err = models.GetContactWeightBalance(ctx, contact.ID, models.ProductCategoryMelted)
	if err != nil {
		t.Fatalf("GetContactWeightBalance: %v", err)
	}
	if !balance.Equal(mustDec(t, "8")) {
		t.Fatalf("identical mid-chain edit must not move the balance, got %s", balance)
	}

	// Shrink the older commitment: 5 becomes 2, so the chain must settle at
	// 2 + 3 with the later entry's balance repaired.
	edit := sellInput("2")
	edit.Items[0].Id = first.Items[0].ID
	if _, err := models.UpdateTradeTransaction(ctx, actor, first.ID, edit); err != nil {
		t.Fatalf("UpdateTradeTransaction: %v", err)
	}
	balance, err = models.GetContactWeightBalance(ctx, contact.ID, models.ProductCategoryMelted)
	if err != nil {
		t.Fatalf("GetContactWeightBalance: %v", err)
	}
	if !balance.Equal(mustDec(t, "5")) {
		t.Fatalf("balance expected 5 after mid-chain edit, got %s", balance)
	}
}

func TestCompleteDelivery_CoinReceipt(t *testing.T) {
	requireIntegration(t)
	ctx := context.Background()
	actor := models.Actor{Id: 2, Name: "warehouse"}

	contact := createTestContact(t, "coin test contact")
	code := "IT-COIN-" + time.Now().Format("150405.000000000")
	product := createTestProduct(t, &models.Product{
		Code:          code,
		Name:          "full coin",
		Category:      models.ProductCategoryCoin,
		UnitOfMeasure: models.UnitOfMeasureCount,
	})

	txn, err := models.CreateTradeTransaction(ctx, actor, &models.NewTradeTransaction{
		TradeType:       "buy",
		ContactId:       contact.ID,
		TransactionDate: time.Now().UTC(),
		Items: []*models.NewTradeItem{{
			ProductId: product.ID,
			Quantity:  mustDec(t, "5"),
			UnitPrice: mustDec(t, "40000000"),
		}},
	})
	if err != nil {
		t.Fatalf("CreateTradeTransaction: %v", err)
	}

	settled, err := models.CompleteDelivery(ctx, actor, txn.ID, models.SettlementActionReceipt)
	if err != nil {
		t.Fatalf("CompleteDelivery: %v", err)
	}
	if settled.DeliveryStatus != models.DeliveryStatusCompleted {
		t.Fatalf("expected completed, got %s", settled.DeliveryStatus)
	}
	if settled.DeliveryDate == nil {
		t.Fatal("expected delivery date to be set")
	}

	buckets, err := models.GetStockBuckets(ctx)
	if err != nil {
		t.Fatalf("GetStockBuckets: %v", err)
	}
	var qty decimal.Decimal
	for _, b := range buckets {
		if b.BucketType == models.StockBucketTypeCount && b.ProductCode == code {
			qty = b.Qty
		}
	}
	if !qty.Equal(mustDec(t, "5")) {
		t.Fatalf("count bucket expected 5, got %s", qty)
	}

	// count-based settlement leaves the weight ledger alone
	balance, err := models.GetContactWeightBalance(ctx, contact.ID, models.ProductCategoryCoin)
	if err != nil {
		t.Fatalf("GetContactWeightBalance: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("coin receipt must not touch the weight ledger, got %s", balance)
	}

	// second settlement of the same transaction must be rejected
	if _, err := models.CompleteDelivery(ctx, actor, txn.ID, models.SettlementActionReceipt); !utils.IsStateError(err) {
		t.Fatalf("expected state error on double settlement, got %v", err)
	}

	// and a settled transaction can no longer be edited
	_, err = models.UpdateTradeTransaction(ctx, actor, txn.ID, &models.NewTradeTransaction{
		TradeType:       "buy",
		ContactId:       contact.ID,
		TransactionDate: time.Now().UTC(),
		Items:           []*models.NewTradeItem{{ProductId: product.ID, Quantity: mustDec(t, "1")}},
	})
	if !utils.IsStateError(err) {
		t.Fatalf("expected state error editing a completed transaction, got %v", err)
	}
}

func TestCompleteDelivery_ConcurrentSettlesOnce(t *testing.T) {
	requireIntegration(t)
	ctx := context.Background()
	actor := models.Actor{Id: 4, Name: "race tester"}

	contact := createTestContact(t, "concurrent settlement contact")
	code := "IT-RACE-" + time.Now().Format("150405.000000000")
	product := createTestProduct(t, &models.Product{
		Code:          code,
		Name:          "full coin",
		Category:      models.ProductCategoryCoin,
		UnitOfMeasure: models.UnitOfMeasureCount,
	})

	txn, err := models.CreateTradeTransaction(ctx, actor, &models.NewTradeTransaction{
		TradeType:       "buy",
		ContactId:       contact.ID,
		TransactionDate: time.Now().UTC(),
		Items: []*models.NewTradeItem{{
			ProductId: product.ID,
			Quantity:  mustDec(t, "5"),
			UnitPrice: mustDec(t, "40000000"),
		}},
	})
	if err != nil {
		t.Fatalf("CreateTradeTransaction: %v", err)
	}

	const workers = 4
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := models.CompleteDelivery(ctx, actor, txn.ID, models.SettlementActionReceipt)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded int
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if !utils.IsStateError(err) {
			t.Fatalf("unexpected settlement error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one settlement to win, got %d", succeeded)
	}

	buckets, err := models.GetStockBuckets(ctx)
	if err != nil {
		t.Fatalf("GetStockBuckets: %v", err)
	}
	var qty decimal.Decimal
	for _, b := range buckets {
		if b.BucketType == models.StockBucketTypeCount && b.ProductCode == code {
			qty = b.Qty
		}
	}
	if !qty.Equal(mustDec(t, "5")) {
		t.Fatalf("stock must be applied exactly once, expected 5, got %s", qty)
	}
}

func TestCompleteDelivery_WeightSettlement(t *testing.T) {
	requireIntegration(t)
	ctx := context.Background()
	actor := models.Actor{Id: 3, Name: "vault"}

	contact := createTestContact(t, "weight settlement contact")
	product := createTestProduct(t, &models.Product{
		Code:          "IT-BULL-" + time.Now().Format("150405.000000000"),
		Name:          "bullion bar",
		Category:      models.ProductCategoryBullion,
		UnitOfMeasure: models.UnitOfMeasureWeight,
		DefaultCarat:  750,
	})

	txn, err := models.CreateTradeTransaction(ctx, actor, &models.NewTradeTransaction{
		TradeType:       "buy",
		ContactId:       contact.ID,
		TransactionDate: time.Now().UTC(),
		Items: []*models.NewTradeItem{{
			ProductId:   product.ID,
			WeightGrams: mustDec(t, "100"),
			UnitPrice:   mustDec(t, "1000000"),
		}},
	})
	if err != nil {
		t.Fatalf("CreateTradeTransaction: %v", err)
	}

	// buy commitment: balance drops by 100 normalized grams
	balance, err := models.GetContactWeightBalance(ctx, contact.ID, models.ProductCategoryBullion)
	if err != nil {
		t.Fatalf("GetContactWeightBalance: %v", err)
	}
	if !balance.Equal(mustDec(t, "-100")) {
		t.Fatalf("balance expected -100 after buy, got %s", balance)
	}

	if _, err := models.CompleteDelivery(ctx, actor, txn.ID, models.SettlementActionReceipt); err != nil {
		t.Fatalf("CompleteDelivery: %v", err)
	}

	// receipt settles the debt back to zero
	balance, err = models.GetContactWeightBalance(ctx, contact.ID, models.ProductCategoryBullion)
	if err != nil {
		t.Fatalf("GetContactWeightBalance: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("balance expected 0 after receipt, got %s", balance)
	}
}
