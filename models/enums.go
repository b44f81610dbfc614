package models

import (
	"errors"
	"strings"
)

// ProductCategory is the base category family driving which fields and
// formulas apply to a trade item.
type ProductCategory string

const (
	ProductCategoryMelted        ProductCategory = "MELTED"
	ProductCategoryManufactured  ProductCategory = "MANUFACTURED"
	ProductCategoryCoin          ProductCategory = "COIN"
	ProductCategoryBullion       ProductCategory = "BULLION"
	ProductCategoryJewelry       ProductCategory = "JEWELRY"
	ProductCategoryGoldBullion   ProductCategory = "GOLD_BULLION"
	ProductCategorySilverBullion ProductCategory = "SILVER_BULLION"
)

var productCategories = map[string]ProductCategory{
	"MELTED":         ProductCategoryMelted,
	"MANUFACTURED":   ProductCategoryManufactured,
	"COIN":           ProductCategoryCoin,
	"BULLION":        ProductCategoryBullion,
	"JEWELRY":        ProductCategoryJewelry,
	"GOLD_BULLION":   ProductCategoryGoldBullion,
	"SILVER_BULLION": ProductCategorySilverBullion,
}

func ParseProductCategory(s string) (ProductCategory, error) {
	c, ok := productCategories[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", errors.New("invalid product category")
	}
	return c, nil
}

// FormulaGroup is the lower-cased category token used for formula-group
// lookup and for the category-suffixed field names of submitted rows.
func (c ProductCategory) FormulaGroup() string {
	return strings.ToLower(string(c))
}

// UnitOfMeasure tells whether a product is accounted by gram weight or by
// piece count.
type UnitOfMeasure string

const (
	UnitOfMeasureWeight UnitOfMeasure = "Weight"
	UnitOfMeasureCount  UnitOfMeasure = "Count"
)

func ParseUnitOfMeasure(s string) (UnitOfMeasure, error) {
	switch strings.TrimSpace(s) {
	case "Weight":
		return UnitOfMeasureWeight, nil
	case "Count":
		return UnitOfMeasureCount, nil
	}
	return "", errors.New("invalid unit of measure")
}

// TaxBaseType selects which recomputed amounts feed a tax base.
type TaxBaseType string

const (
	TaxBaseTypeNone       TaxBaseType = "NONE"
	TaxBaseTypeWageProfit TaxBaseType = "WAGE_PROFIT"
	TaxBaseTypeProfitOnly TaxBaseType = "PROFIT_ONLY"
)

func ParseTaxBaseType(s string) (TaxBaseType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NONE", "":
		return TaxBaseTypeNone, nil
	case "WAGE_PROFIT":
		return TaxBaseTypeWageProfit, nil
	case "PROFIT_ONLY":
		return TaxBaseTypeProfitOnly, nil
	}
	return "", errors.New("invalid tax base type")
}

// TradeType distinguishes purchases from sales. Sign conventions for ledger
// and inventory deltas hang off this.
type TradeType string

const (
	TradeTypeBuy  TradeType = "buy"
	TradeTypeSell TradeType = "sell"
)

func ParseTradeType(s string) (TradeType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return TradeTypeBuy, nil
	case "sell":
		return TradeTypeSell, nil
	}
	return "", errors.New("invalid trade type")
}

// DeliveryStatus is the settlement state machine of a trade transaction.
type DeliveryStatus string

const (
	DeliveryStatusPendingReceipt  DeliveryStatus = "pending_receipt"
	DeliveryStatusPendingDelivery DeliveryStatus = "pending_delivery"
	DeliveryStatusCompleted       DeliveryStatus = "completed"
	DeliveryStatusCanceled        DeliveryStatus = "canceled"
)

// SettlementAction is the caller's side of completing a delivery.
type SettlementAction string

const (
	SettlementActionReceipt  SettlementAction = "receipt"
	SettlementActionDelivery SettlementAction = "delivery"
)

func ParseSettlementAction(s string) (SettlementAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "receipt":
		return SettlementActionReceipt, nil
	case "delivery":
		return SettlementActionDelivery, nil
	}
	return "", errors.New("invalid settlement action")
}

// FormulaValueKind controls output rounding: prices and amounts round to
// whole currency units, weights to 4 decimals, percents to 2.
type FormulaValueKind string

const (
	FormulaValueKindPrice   FormulaValueKind = "price"
	FormulaValueKindAmount  FormulaValueKind = "amount"
	FormulaValueKindWeight  FormulaValueKind = "weight"
	FormulaValueKindPercent FormulaValueKind = "percent"
)

func (k FormulaValueKind) DecimalPlaces() int32 {
	switch k {
	case FormulaValueKindWeight:
		return 4
	case FormulaValueKindPercent:
		return 2
	}
	return 0
}

func ParseFormulaValueKind(s string) (FormulaValueKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "price", "":
		return FormulaValueKindPrice, nil
	case "amount":
		return FormulaValueKindAmount, nil
	case "weight":
		return FormulaValueKindWeight, nil
	case "percent":
		return FormulaValueKindPercent, nil
	}
	return "", errors.New("invalid formula value kind")
}

// WeightLedgerEventType tags why a counterparty ledger entry exists.
type WeightLedgerEventType string

const (
	WeightLedgerEventTrade      WeightLedgerEventType = "TradeCommitment"
	WeightLedgerEventSettlement WeightLedgerEventType = "DeliverySettlement"
)

// StockBucketType separates weight-based carat buckets from count-based
// product-code buckets.
type StockBucketType string

const (
	StockBucketTypeWeight StockBucketType = "W"
	StockBucketTypeCount  StockBucketType = "C"
)
