package models

import (
	"context"
	"fmt"
	"time"

	"github.com/RayanAndish/GoldACC-sub001/appctx"
	"github.com/RayanAndish/GoldACC-sub001/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// referenceCarat is the fixed purity basis all weight accounting is
// normalized to ("750-equivalent" grams).
const referenceCarat = 750

// ContactWeightLedgerEntry is the append-only record of gold weight owed
// between the business and a counterparty, per category, in 750-equivalent
// grams. Invariant: BalanceAfter = previous BalanceAfter (same
// contact+category) + WeightDelta.
type ContactWeightLedgerEntry struct {
	ID            int                   `gorm:"primary_key" json:"id"`
	ContactId     int                   `gorm:"index:idx_weight_ledger_contact_cat,priority:1;not null" json:"contact_id"`
	Category      ProductCategory       `gorm:"size:20;index:idx_weight_ledger_contact_cat,priority:2;not null" json:"category"`
	EventType     WeightLedgerEventType `gorm:"size:30;not null" json:"event_type"`
	WeightDelta   decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"weight_delta"`
	BalanceAfter  decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"balance_after"`
	TransactionId int                   `gorm:"index;not null" json:"transaction_id"`
	CorrelationId string                `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time             `gorm:"autoCreateTime" json:"created_at"`
}

// NormalizeWeight converts raw grams at the given purity to 750-equivalent
// grams, rounded to 4 decimals.
func NormalizeWeight(grams decimal.Decimal, carat int) decimal.Decimal {
	if carat <= 0 {
		return decimal.Zero
	}
	return grams.
		Mul(decimal.NewFromInt(int64(carat))).
		Div(decimal.NewFromInt(referenceCarat)).
		Round(4)
}

// CalculateWeightCommitments groups the normalized weight of the priced
// weight-based items by product category. Categories that net out to zero are
// discarded.
func CalculateWeightCommitments(items []*PricedTradeItem) map[ProductCategory]decimal.Decimal {
	commitments := make(map[ProductCategory]decimal.Decimal)
	for _, item := range items {
		if item.Product.UnitOfMeasure != UnitOfMeasureWeight {
			continue
		}
		normalized := NormalizeWeight(item.WeightGrams, item.Carat)
		commitments[item.Product.Category] = commitments[item.Product.Category].Add(normalized)
	}
	for category, weight := range commitments {
		if weight.IsZero() {
			delete(commitments, category)
		}
	}
	return commitments
}

// commitmentSign maps the trade type to the ledger sign convention: a sale
// increases the counterparty's debt to the business, a purchase decreases it.
func commitmentSign(tradeType TradeType) decimal.Decimal {
	if tradeType == TradeTypeSell {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// appendWeightLedgerEntry reads the current balance tail under a row lock and
// writes the next entry. Must run inside the caller's DB transaction.
func appendWeightLedgerEntry(ctx context.Context, tx *gorm.DB, contactId int, category ProductCategory,
	eventType WeightLedgerEventType, delta decimal.Decimal, transactionId int) (*ContactWeightLedgerEntry, error) {

	var tail ContactWeightLedgerEntry
	balance := decimal.Zero
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("contact_id = ? AND category = ?", contactId, category).
		Order("id DESC").
		First(&tail).Error
	if err == nil {
		balance = tail.BalanceAfter
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	entry := ContactWeightLedgerEntry{
		ContactId:     contactId,
		Category:      category,
		EventType:     eventType,
		WeightDelta:   delta,
		BalanceAfter:  balance.Add(delta),
		TransactionId: transactionId,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// deleteWeightLedgerEntriesForTransaction removes every ledger entry a
// transaction produced and repairs the running balances of the entries that
// chained off them. Edits re-derive commitments from scratch so stale entries
// can never double-count, even when the edited transaction is not the tail of
// a contact+category chain.
func deleteWeightLedgerEntriesForTransaction(ctx context.Context, tx *gorm.DB, transactionId int) error {
	var removed []ContactWeightLedgerEntry
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("transaction_id = ?", transactionId).
		Find(&removed).Error
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		return nil
	}

	if err := tx.WithContext(ctx).
		Where("transaction_id = ?", transactionId).
		Delete(&ContactWeightLedgerEntry{}).Error; err != nil {
		return err
	}

	type chain struct {
		contactId int
		category  ProductCategory
	}
	seen := make(map[chain]struct{})
	for _, entry := range removed {
		c := chain{entry.ContactId, entry.Category}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		if err := rebalanceWeightLedger(ctx, tx, c.contactId, c.category); err != nil {
			return err
		}
	}
	return nil
}

// rebalanceWeightLedger rewrites one contact+category chain's running
// balances from its surviving deltas, restoring
// balance_after = predecessor balance_after + weight_delta after entries were
// removed from the middle of the chain. Must run inside the caller's DB
// transaction.
func rebalanceWeightLedger(ctx context.Context, tx *gorm.DB, contactId int, category ProductCategory) error {
	var entries []ContactWeightLedgerEntry
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("contact_id = ? AND category = ?", contactId, category).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return err
	}

	balance := decimal.Zero
	for i := range entries {
		balance = balance.Add(entries[i].WeightDelta)
		if entries[i].BalanceAfter.Equal(balance) {
			continue
		}
		if err := tx.WithContext(ctx).
			Model(&entries[i]).
			Update("balance_after", balance).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetContactWeightBalance returns the current 750-equivalent balance for a
// contact+category (zero when no entries exist).
func GetContactWeightBalance(ctx context.Context, contactId int, category ProductCategory) (decimal.Decimal, error) {
	db := config.GetDB()
	var tail ContactWeightLedgerEntry
	err := db.WithContext(ctx).
		Where("contact_id = ? AND category = ?", contactId, category).
		Order("id DESC").
		First(&tail).Error
	if err == gorm.ErrRecordNotFound {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return tail.BalanceAfter, nil
}

func contactLedgerLockKey(contactId int) string {
	return fmt.Sprintf("weightLedger:contact:%d", contactId)
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := appctx.GetString(ctx, appctx.ContextKeyCorrelationId); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
