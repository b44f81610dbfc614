package models

import (
	"context"

	"github.com/RayanAndish/GoldACC-sub001/config"
)

// GetDefaultFormulas returns the stock pricing rule set. Weight categories
// price the 750-normalized grams at the unit price; manufactured goods add a
// wage; coins price by piece. Profit and fee chain off total_value.
func GetDefaultFormulas() []*Formula {
	weightGroups := []string{"melted", "manufactured", "bullion", "jewelry", "gold_bullion", "silver_bullion"}

	var formulas []*Formula
	for _, group := range weightGroups {
		formulas = append(formulas,
			&Formula{
				Name:           group + "_total_value",
				CategoryGroup:  group,
				Expression:     "weight_grams * carat / 750 * unit_price",
				RequiredFields: "weight_grams,carat,unit_price",
				OutputField:    FieldTotalValue,
				Priority:       10,
				ValueKind:      FormulaValueKindPrice,
			},
			&Formula{
				Name:           group + "_profit_amount",
				CategoryGroup:  group,
				Expression:     "total_value * profit_percent / 100",
				RequiredFields: "total_value,profit_percent",
				OutputField:    FieldProfitAmount,
				Priority:       20,
				ValueKind:      FormulaValueKindPrice,
			},
			&Formula{
				Name:           group + "_fee_amount",
				CategoryGroup:  group,
				Expression:     "total_value * fee_percent / 100",
				RequiredFields: "total_value,fee_percent",
				OutputField:    FieldFeeAmount,
				Priority:       30,
				ValueKind:      FormulaValueKindPrice,
			},
		)
	}

	formulas = append(formulas,
		&Formula{
			Name:           "manufactured_wage_amount",
			CategoryGroup:  "manufactured",
			Expression:     "total_value * wage_percent / 100",
			RequiredFields: "total_value,wage_percent",
			OutputField:    FieldWageAmount,
			Priority:       25,
			ValueKind:      FormulaValueKindPrice,
		},
		&Formula{
			Name:           "coin_total_value",
			CategoryGroup:  "coin",
			Expression:     "quantity * unit_price",
			RequiredFields: "quantity,unit_price",
			OutputField:    FieldTotalValue,
			Priority:       10,
			ValueKind:      FormulaValueKindPrice,
		},
		&Formula{
			Name:           "coin_profit_amount",
			CategoryGroup:  "coin",
			Expression:     "total_value * profit_percent / 100",
			RequiredFields: "total_value,profit_percent",
			OutputField:    FieldProfitAmount,
			Priority:       20,
			ValueKind:      FormulaValueKindPrice,
		},
	)
	return formulas
}

// SeedDefaultFormulas replaces the stock rule set by name, leaving operator
// defined formulas untouched, and drops the catalog cache.
func SeedDefaultFormulas(ctx context.Context) error {
	formulas := GetDefaultFormulas()
	names := make([]string, 0, len(formulas))
	for _, f := range formulas {
		names = append(names, f.Name)
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := deleteFormulasWhere(ctx, tx, "name IN ?", names); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.WithContext(ctx).Create(&formulas).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}
	return InvalidateFormulaCache()
}
