package models

import (
	"github.com/shopspring/decimal"
)

// Value-map field names shared between submitted items, formulas, and
// summary outputs. Formulas reference these identifiers directly.
const (
	FieldWeightGrams   = "weight_grams"
	FieldCarat         = "carat"
	FieldQuantity      = "quantity"
	FieldUnitPrice     = "unit_price"
	FieldMazanehPrice  = "mazaneh_price"
	FieldProfitPercent = "profit_percent"
	FieldProfitAmount  = "profit_amount"
	FieldFeePercent    = "fee_percent"
	FieldFeeAmount     = "fee_amount"
	FieldWagePercent   = "wage_percent"
	FieldWageAmount    = "wage_amount"
	FieldTotalValue    = "total_value"
	FieldTaxRate       = "tax_rate"
	FieldVatRate       = "vat_rate"
	FieldGeneralTax    = "general_tax"
	FieldVatAmount     = "vat_amount"

	SummaryBaseValue     = "base_value"
	SummaryProfitWageFee = "profit_wage_fee"
	SummaryGeneralTax    = "general_tax"
	SummarySubTotal      = "sub_total"
	SummaryVat           = "vat_amount"
	SummaryFinalPayable  = "final_payable"
)

// PricedTradeItem is the authoritative server-side pricing result for one
// submitted item. Client-submitted computed values are never trusted; every
// figure here came out of the formula chain and the product's tax config.
type PricedTradeItem struct {
	Input   *NewTradeItem
	Product *Product

	WeightGrams  decimal.Decimal
	Carat        int
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	TotalValue   decimal.Decimal
	ProfitAmount decimal.Decimal
	FeeAmount    decimal.Decimal
	WageAmount   decimal.Decimal
	GeneralTax   decimal.Decimal
	Vat          decimal.Decimal

	// Values holds the full value map after the formula chain, consumed by
	// the transaction-summary formulas.
	Values map[string]decimal.Decimal
}

// PriceTradeItem recomputes one item from scratch: submitted base figures +
// product tax/VAT configuration + the transaction's market rate go through
// the category's formula chain, then the tax bases are derived from the
// product's base types. Deterministic for identical inputs.
func PriceTradeItem(catalog *FormulaCatalog, product *Product, mazanehPrice decimal.Decimal, item *NewTradeItem) (*PricedTradeItem, error) {
	carat := item.Carat
	if carat == 0 {
		carat = product.DefaultCarat
	}

	values := map[string]decimal.Decimal{
		FieldWeightGrams:   item.WeightGrams,
		FieldCarat:         decimal.NewFromInt(int64(carat)),
		FieldQuantity:      item.Quantity,
		FieldUnitPrice:     item.UnitPrice,
		FieldMazanehPrice:  mazanehPrice,
		FieldProfitPercent: item.ProfitPercent,
		FieldFeePercent:    item.FeePercent,
		FieldWagePercent:   item.WagePercent,
		FieldTaxRate:       product.TaxRate,
		FieldVatRate:       product.VatRate,
	}

	values, err := catalog.CalculateAllForItem(product.Category.FormulaGroup(), values)
	if err != nil {
		return nil, err
	}

	priced := &PricedTradeItem{
		Input:        item,
		Product:      product,
		WeightGrams:  item.WeightGrams,
		Carat:        carat,
		Quantity:     item.Quantity,
		UnitPrice:    item.UnitPrice,
		TotalValue:   values[FieldTotalValue],
		ProfitAmount: values[FieldProfitAmount],
		FeeAmount:    values[FieldFeeAmount],
		WageAmount:   values[FieldWageAmount],
	}

	if product.TaxEnabled {
		base := taxBase(product.TaxBaseType, priced.ProfitAmount, priced.WageAmount)
		priced.GeneralTax = base.Mul(product.TaxRate).Div(decimal.NewFromInt(100)).Round(0)
	}
	if product.VatEnabled {
		base := taxBase(product.VatBaseType, priced.ProfitAmount, priced.WageAmount)
		priced.Vat = base.Mul(product.VatRate).Div(decimal.NewFromInt(100)).Round(0)
	}

	values[FieldGeneralTax] = priced.GeneralTax
	values[FieldVatAmount] = priced.Vat
	priced.Values = values
	return priced, nil
}

// taxBase selects the amount a tax rate applies to.
func taxBase(baseType TaxBaseType, profit decimal.Decimal, wage decimal.Decimal) decimal.Decimal {
	switch baseType {
	case TaxBaseTypeWageProfit:
		return profit.Add(wage)
	case TaxBaseTypeProfitOnly:
		return profit
	}
	return decimal.Zero
}

// TransactionSummary is the six transaction-level totals, each rounded to
// whole currency units.
type TransactionSummary struct {
	BaseValue     decimal.Decimal
	ProfitWageFee decimal.Decimal
	GeneralTax    decimal.Decimal
	SubTotal      decimal.Decimal
	Vat           decimal.Decimal
	FinalPayable  decimal.Decimal
}

// AggregateTradeItems sums the priced items into the transaction totals.
// Pure function: SubTotal = BaseValue + ProfitWageFee + GeneralTax and
// FinalPayable = SubTotal + Vat always hold on the rounded figures.
func AggregateTradeItems(items []*PricedTradeItem) TransactionSummary {
	var s TransactionSummary
	for _, item := range items {
		s.BaseValue = s.BaseValue.Add(item.TotalValue)
		s.ProfitWageFee = s.ProfitWageFee.Add(item.ProfitAmount).Add(item.FeeAmount).Add(item.WageAmount)
		s.GeneralTax = s.GeneralTax.Add(item.GeneralTax)
		s.Vat = s.Vat.Add(item.Vat)
	}
	s.BaseValue = s.BaseValue.Round(0)
	s.ProfitWageFee = s.ProfitWageFee.Round(0)
	s.GeneralTax = s.GeneralTax.Round(0)
	s.Vat = s.Vat.Round(0)
	s.SubTotal = s.BaseValue.Add(s.ProfitWageFee).Add(s.GeneralTax)
	s.FinalPayable = s.SubTotal.Add(s.Vat)
	return s
}

// applyOverrides lets group-less summary formulas replace individual totals.
// Derived totals are recomputed when only their terms were overridden.
func (s *TransactionSummary) applyOverrides(outputs map[string]decimal.Decimal) {
	if len(outputs) == 0 {
		return
	}
	if v, ok := outputs[SummaryBaseValue]; ok {
		s.BaseValue = v.Round(0)
	}
	if v, ok := outputs[SummaryProfitWageFee]; ok {
		s.ProfitWageFee = v.Round(0)
	}
	if v, ok := outputs[SummaryGeneralTax]; ok {
		s.GeneralTax = v.Round(0)
	}
	if v, ok := outputs[SummaryVat]; ok {
		s.Vat = v.Round(0)
	}
	s.SubTotal = s.BaseValue.Add(s.ProfitWageFee).Add(s.GeneralTax)
	s.FinalPayable = s.SubTotal.Add(s.Vat)
	if v, ok := outputs[SummarySubTotal]; ok {
		s.SubTotal = v.Round(0)
		s.FinalPayable = s.SubTotal.Add(s.Vat)
	}
	if v, ok := outputs[SummaryFinalPayable]; ok {
		s.FinalPayable = v.Round(0)
	}
}
