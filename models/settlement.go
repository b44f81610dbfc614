package models

import (
	"context"
	"time"

	"github.com/RayanAndish/GoldACC-sub001/config"
	"github.com/RayanAndish/GoldACC-sub001/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// validateSettlement guards the delivery state machine: the transaction must
// sit in the pending state the action expects, and the action must match the
// trade side (buy completes by receipt, sell by delivery).
func validateSettlement(txn *TradeTransaction, action SettlementAction) error {
	switch action {
	case SettlementActionReceipt:
		if txn.TradeType != TradeTypeBuy {
			return utils.NewStateError("receipt applies to buy transactions only")
		}
		if txn.DeliveryStatus != DeliveryStatusPendingReceipt {
			return utils.NewStateError("transaction is not pending receipt")
		}
	case SettlementActionDelivery:
		if txn.TradeType != TradeTypeSell {
			return utils.NewStateError("delivery applies to sell transactions only")
		}
		if txn.DeliveryStatus != DeliveryStatusPendingDelivery {
			return utils.NewStateError("transaction is not pending delivery")
		}
	default:
		return utils.NewStateError("invalid settlement action")
	}
	return nil
}

// settlementSign: goods coming in (buy/receipt) raise stock and the
// contact's ledger; goods going out (sell/delivery) lower them.
func settlementSign(tradeType TradeType) decimal.Decimal {
	if tradeType == TradeTypeBuy {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// CompleteDelivery advances a pending transaction to completed and applies
// its physical-stock and counterparty-ledger effects exactly once, all in one
// unit of work. Any failure rolls everything back, leaving the transaction in
// its prior state.
func CompleteDelivery(ctx context.Context, actor Actor, transactionId int, action SettlementAction) (*TradeTransaction, error) {

	txn, err := GetTradeTransaction(ctx, transactionId)
	if err != nil {
		return nil, err
	}
	if err := validateSettlement(txn, action); err != nil {
		return nil, err
	}

	productIds := make([]int, 0, len(txn.Items))
	for _, item := range txn.Items {
		productIds = append(productIds, item.ProductId)
	}
	products, err := GetProductsByIds(ctx, productIds)
	if err != nil {
		return nil, err
	}
	for _, item := range txn.Items {
		if _, ok := products[item.ProductId]; !ok {
			return nil, utils.ErrorRecordNotFound
		}
	}

	sign := settlementSign(txn.TradeType)
	now := time.Now().UTC()
	db := config.GetDB()

	err = config.WithRedisLock(ctx, contactLedgerLockKey(txn.ContactId), 30*time.Second, func() error {

		tx := db.Begin()

		// The guard re-runs against the row under a lock, so two concurrent
		// settlements of the same transaction cannot both pass: the second
		// blocks on the row and then sees the completed status.
		var current TradeTransaction
		if err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&current, txn.ID).Error; err != nil {
			tx.Rollback()
			return err
		}
		if err := validateSettlement(&current, action); err != nil {
			tx.Rollback()
			return err
		}

		err := tx.WithContext(ctx).Model(txn).Updates(map[string]interface{}{
			"DeliveryStatus": DeliveryStatusCompleted,
			"DeliveryDate":   now,
			"ActorId":        actor.Id,
			"ActorName":      actor.Name,
		}).Error
		if err != nil {
			tx.Rollback()
			return err
		}

		for i := range txn.Items {
			item := &txn.Items[i]
			product := products[item.ProductId]

			if product.UnitOfMeasure == UnitOfMeasureWeight {
				grams := item.WeightGrams.Mul(sign)
				if err := applyWeightStockDelta(ctx, tx, item.Carat, grams); err != nil {
					tx.Rollback()
					return err
				}
				normalized := NormalizeWeight(item.WeightGrams, item.Carat).Mul(sign)
				if _, err := appendWeightLedgerEntry(ctx, tx, txn.ContactId, product.Category,
					WeightLedgerEventSettlement, normalized, txn.ID); err != nil {
					tx.Rollback()
					return err
				}
			} else {
				qty := item.Quantity.Mul(sign)
				if err := applyCountStockDelta(ctx, tx, product.Code, qty); err != nil {
					tx.Rollback()
					return err
				}
			}
		}

		if err := tx.Commit().Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	txn.DeliveryStatus = DeliveryStatusCompleted
	txn.DeliveryDate = &now
	return txn, nil
}
