package models

import (
	"context"
	"time"

	"github.com/RayanAndish/GoldACC-sub001/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockBucket is one physical stock position. Weight-based stock is bucketed
// by carat and carries raw grams; count-based stock is bucketed by product
// code and carries piece counts. Buckets only ever change through completed
// settlements.
type StockBucket struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BucketType  StockBucketType `gorm:"size:1;uniqueIndex:idx_stock_bucket_key,priority:1;not null" json:"bucket_type"`
	Carat       int             `gorm:"uniqueIndex:idx_stock_bucket_key,priority:2;default:0" json:"carat"`
	ProductCode string          `gorm:"size:100;uniqueIndex:idx_stock_bucket_key,priority:3;default:''" json:"product_code"`
	Qty         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// applyStockDelta adds a signed quantity to a bucket, creating it on first
// use. The row is locked for the rest of the caller's transaction.
func applyStockDelta(ctx context.Context, tx *gorm.DB, bucketType StockBucketType, carat int, productCode string, delta decimal.Decimal) error {
	bucket := StockBucket{
		BucketType:  bucketType,
		Carat:       carat,
		ProductCode: productCode,
	}
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("bucket_type = ? AND carat = ? AND product_code = ?", bucketType, carat, productCode).
		FirstOrCreate(&bucket).Error
	if err != nil {
		return err
	}
	return tx.WithContext(ctx).
		Model(&bucket).
		Update("qty", bucket.Qty.Add(delta)).Error
}

func applyWeightStockDelta(ctx context.Context, tx *gorm.DB, carat int, grams decimal.Decimal) error {
	return applyStockDelta(ctx, tx, StockBucketTypeWeight, carat, "", grams)
}

func applyCountStockDelta(ctx context.Context, tx *gorm.DB, productCode string, qty decimal.Decimal) error {
	return applyStockDelta(ctx, tx, StockBucketTypeCount, 0, productCode, qty)
}

// GetStockBuckets lists every physical stock position.
func GetStockBuckets(ctx context.Context) ([]*StockBucket, error) {
	db := config.GetDB()
	var buckets []*StockBucket
	if err := db.WithContext(ctx).Order("bucket_type, carat, product_code").Find(&buckets).Error; err != nil {
		return nil, err
	}
	return buckets, nil
}
