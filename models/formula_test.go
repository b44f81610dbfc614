package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestFormulaCatalog_ChainsByPriority(t *testing.T) {
	catalog := NewFormulaCatalog([]*Formula{
		// registered out of order on purpose
		{Name: "second", CategoryGroup: "melted", Expression: "step_one * 2", OutputField: "step_two", Priority: 20, ValueKind: FormulaValueKindPrice},
		{Name: "first", CategoryGroup: "melted", Expression: "base + 1", OutputField: "step_one", Priority: 10, ValueKind: FormulaValueKindPrice},
	})

	values, err := catalog.CalculateAllForItem("melted", map[string]decimal.Decimal{
		"base": dec("4"),
	})
	if err != nil {
		t.Fatalf("CalculateAllForItem error: %v", err)
	}
	if !values["step_one"].Equal(dec("5")) {
		t.Fatalf("step_one expected 5, got %s", values["step_one"])
	}
	if !values["step_two"].Equal(dec("10")) {
		t.Fatalf("step_two expected 10, got %s", values["step_two"])
	}
}

func TestFormulaCatalog_GroupIsCaseInsensitive(t *testing.T) {
	catalog := NewFormulaCatalog([]*Formula{
		{Name: "v", CategoryGroup: "Melted", Expression: "1 + 1", OutputField: "out", ValueKind: FormulaValueKindPrice},
	})
	values, err := catalog.CalculateAllForItem("MELTED", map[string]decimal.Decimal{})
	if err != nil {
		t.Fatalf("CalculateAllForItem error: %v", err)
	}
	if !values["out"].Equal(dec("2")) {
		t.Fatalf("out expected 2, got %s", values["out"])
	}
	if got := catalog.GroupFormulas("mElTeD"); len(got) != 1 {
		t.Fatalf("expected 1 group formula, got %d", len(got))
	}
}

func TestFormulaCatalog_RequiresGroup(t *testing.T) {
	catalog := NewFormulaCatalog(nil)
	if _, err := catalog.CalculateAllForItem("", map[string]decimal.Decimal{}); err == nil {
		t.Fatal("expected error for missing group")
	}
}

func TestFormulaCatalog_RoundingByValueKind(t *testing.T) {
	catalog := NewFormulaCatalog([]*Formula{
		{Name: "p", CategoryGroup: "g", Expression: "10 / 3", OutputField: "as_price", Priority: 1, ValueKind: FormulaValueKindPrice},
		{Name: "w", CategoryGroup: "g", Expression: "10 / 3", OutputField: "as_weight", Priority: 2, ValueKind: FormulaValueKindWeight},
		{Name: "pc", CategoryGroup: "g", Expression: "10 / 3", OutputField: "as_percent", Priority: 3, ValueKind: FormulaValueKindPercent},
	})
	values, err := catalog.CalculateAllForItem("g", map[string]decimal.Decimal{})
	if err != nil {
		t.Fatalf("CalculateAllForItem error: %v", err)
	}
	cases := []struct {
		field    string
		expected string
	}{
		{"as_price", "3"},
		{"as_weight", "3.3333"},
		{"as_percent", "3.33"},
	}
	for _, tc := range cases {
		if values[tc.field].String() != tc.expected {
			t.Fatalf("%s expected %s, got %s", tc.field, tc.expected, values[tc.field])
		}
	}
}

func TestFormulaCatalog_NoOutputFieldValidatesOnly(t *testing.T) {
	catalog := NewFormulaCatalog([]*Formula{
		{Name: "check", CategoryGroup: "g", Expression: "a + b", Priority: 1, ValueKind: FormulaValueKindPrice},
	})
	input := map[string]decimal.Decimal{"a": dec("1"), "b": dec("2")}
	values, err := catalog.CalculateAllForItem("g", input)
	if err != nil {
		t.Fatalf("CalculateAllForItem error: %v", err)
	}
	if len(values) != len(input) {
		t.Fatalf("validation-only formula must not add outputs, got %v", values)
	}
}

func TestFormulaCatalog_BrokenFormulaDegradesToZero(t *testing.T) {
	catalog := NewFormulaCatalog([]*Formula{
		{Name: "div", CategoryGroup: "g", Expression: "1 / zero_field", OutputField: "out", ValueKind: FormulaValueKindPrice},
	})
	values, err := catalog.CalculateAllForItem("g", map[string]decimal.Decimal{"zero_field": dec("0")})
	if err != nil {
		t.Fatalf("CalculateAllForItem error: %v", err)
	}
	if !values["out"].IsZero() {
		t.Fatalf("broken formula expected zero, got %s", values["out"])
	}
}

func TestFormulaCatalog_UnparseableFormulaIsDropped(t *testing.T) {
	catalog := NewFormulaCatalog([]*Formula{
		{Name: "bad", CategoryGroup: "g", Expression: "a + $", OutputField: "out", ValueKind: FormulaValueKindPrice},
		{Name: "good", CategoryGroup: "g", Expression: "2 * 3", OutputField: "ok", ValueKind: FormulaValueKindPrice},
	})
	if _, ok := catalog.FormulaByName("bad"); ok {
		t.Fatal("unparseable formula must not be in the catalog")
	}
	values, err := catalog.CalculateAllForItem("g", map[string]decimal.Decimal{})
	if err != nil {
		t.Fatalf("CalculateAllForItem error: %v", err)
	}
	if !values["ok"].Equal(dec("6")) {
		t.Fatalf("ok expected 6, got %s", values["ok"])
	}
}

func TestFormulaCatalog_TransactionSummaryOverSums(t *testing.T) {
	catalog := NewFormulaCatalog([]*Formula{
		{Name: "grand", Expression: "total_value + general_tax", OutputField: SummaryFinalPayable, ValueKind: FormulaValueKindPrice},
	})
	items := []map[string]decimal.Decimal{
		{FieldTotalValue: dec("100"), FieldGeneralTax: dec("9")},
		{FieldTotalValue: dec("200"), FieldGeneralTax: dec("18")},
	}
	outputs := catalog.CalculateTransactionSummary(items)
	if !outputs[SummaryFinalPayable].Equal(dec("327")) {
		t.Fatalf("final expected 327, got %s", outputs[SummaryFinalPayable])
	}
}

func TestFormula_Fields(t *testing.T) {
	f := Formula{RequiredFields: "a, b , ,c"}
	fields := f.Fields()
	expected := []string{"a", "b", "c"}
	if len(fields) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, fields)
	}
	for i := range expected {
		if fields[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, fields)
		}
	}
	if (&Formula{}).Fields() != nil {
		t.Fatal("empty required fields must return nil")
	}
}
