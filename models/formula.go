package models

import (
	"context"
	"sort"
	"strings"

	"github.com/RayanAndish/GoldACC-sub001/config"
	"github.com/RayanAndish/GoldACC-sub001/expression"
	"github.com/RayanAndish/GoldACC-sub001/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const formulaCacheKey = "formulaCatalog:v1"

// Formula is one rule of the pricing engine. Formulas with a category group
// price items of that category; group-less formulas compute transaction-level
// summary values. Lower priority runs earlier, and each formula's output is
// visible to the formulas after it.
type Formula struct {
	ID             int              `gorm:"primary_key" json:"id"`
	Name           string           `gorm:"size:100;uniqueIndex;not null" json:"name" validate:"required"`
	CategoryGroup  string           `gorm:"size:30;index" json:"category_group"`
	Expression     string           `gorm:"size:500;not null" json:"expression" validate:"required"`
	RequiredFields string           `gorm:"size:500" json:"required_fields"`
	OutputField    string           `gorm:"size:100" json:"output_field"`
	Priority       int              `gorm:"default:99" json:"priority"`
	ValueKind      FormulaValueKind `gorm:"size:10;not null;default:price" json:"value_kind"`
}

// Fields returns the declared required-field list.
func (f *Formula) Fields() []string {
	if strings.TrimSpace(f.RequiredFields) == "" {
		return nil
	}
	parts := strings.Split(f.RequiredFields, ",")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			fields = append(fields, p)
		}
	}
	return fields
}

type compiledFormula struct {
	formula *Formula
	expr    *expression.Expr
}

// FormulaCatalog indexes compiled formulas by unique name and by
// case-insensitive category group. Build it once and share it; evaluation is
// read-only.
type FormulaCatalog struct {
	byName  map[string]*compiledFormula
	byGroup map[string][]*compiledFormula
	summary []*compiledFormula
}

// NewFormulaCatalog compiles the definitions. A formula that fails to parse
// is logged and dropped so one bad definition cannot take pricing down.
func NewFormulaCatalog(formulas []*Formula) *FormulaCatalog {
	logger := config.GetLogger()
	c := &FormulaCatalog{
		byName:  make(map[string]*compiledFormula),
		byGroup: make(map[string][]*compiledFormula),
	}
	for _, f := range formulas {
		expr, err := expression.Parse(f.Expression)
		if err != nil {
			config.LogError(logger, "formula.go", "NewFormulaCatalog", "compiling formula "+f.Name, f.Expression, err)
			continue
		}
		cf := &compiledFormula{formula: f, expr: expr}
		if _, dup := c.byName[f.Name]; dup {
			config.LogWarn(logger, "formula.go", "NewFormulaCatalog", f.Name, "duplicate formula name, keeping the last definition")
		}
		c.byName[f.Name] = cf

		group := strings.ToLower(strings.TrimSpace(f.CategoryGroup))
		if group == "" {
			c.summary = append(c.summary, cf)
		} else {
			c.byGroup[group] = append(c.byGroup[group], cf)
		}
	}
	for group := range c.byGroup {
		sortByPriority(c.byGroup[group])
	}
	sortByPriority(c.summary)
	return c
}

func sortByPriority(formulas []*compiledFormula) {
	sort.SliceStable(formulas, func(i, j int) bool {
		return formulas[i].formula.Priority < formulas[j].formula.Priority
	})
}

// FormulaByName looks up one formula by its unique name.
func (c *FormulaCatalog) FormulaByName(name string) (*Formula, bool) {
	cf, ok := c.byName[name]
	if !ok {
		return nil, false
	}
	return cf.formula, true
}

// GroupFormulas returns the priority-ordered formulas of a category group
// (case-insensitive).
func (c *FormulaCatalog) GroupFormulas(group string) []*Formula {
	cfs := c.byGroup[strings.ToLower(strings.TrimSpace(group))]
	result := make([]*Formula, 0, len(cfs))
	for _, cf := range cfs {
		result = append(result, cf.formula)
	}
	return result
}

// CalculateAllForItem runs a category group's formula chain over the input
// values. Outputs are written back into the returned map, so later formulas
// consume earlier results. Formulas without an output field only validate.
// The input map is not modified.
func (c *FormulaCatalog) CalculateAllForItem(group string, input map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	group = strings.ToLower(strings.TrimSpace(group))
	if group == "" {
		return nil, utils.NewValidationError("category group is required for item calculation")
	}

	values := make(map[string]decimal.Decimal, len(input)+4)
	for k, v := range input {
		values[k] = v
	}
	for _, cf := range c.byGroup[group] {
		result := c.evalFormula(cf, values)
		if cf.formula.OutputField == "" {
			continue
		}
		values[cf.formula.OutputField] = result
	}
	return values, nil
}

// CalculateTransactionSummary evaluates the group-less summary formulas
// against per-field sums over all priced items. The returned map holds only
// the summary outputs.
func (c *FormulaCatalog) CalculateTransactionSummary(items []map[string]decimal.Decimal) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	for _, item := range items {
		for k, v := range item {
			sums[k] = sums[k].Add(v)
		}
	}

	outputs := make(map[string]decimal.Decimal)
	for _, cf := range c.summary {
		result := c.evalFormula(cf, sums)
		if cf.formula.OutputField == "" {
			continue
		}
		sums[cf.formula.OutputField] = result
		outputs[cf.formula.OutputField] = result
	}
	return outputs
}

// evalFormula degrades failures to zero: a broken formula must not abort the
// transaction, the value goes wrong loudly instead of the save failing.
// Missing variables default to zero with a warning.
func (c *FormulaCatalog) evalFormula(cf *compiledFormula, values map[string]decimal.Decimal) decimal.Decimal {
	logger := config.GetLogger()
	for _, field := range cf.formula.Fields() {
		if _, ok := values[field]; !ok {
			config.LogWarn(logger, "formula.go", "evalFormula", cf.formula.Name, "required field "+field+" missing, defaulting to zero")
		}
	}
	result, err := cf.expr.Eval(values, func(name string) {
		config.LogWarn(logger, "formula.go", "evalFormula", cf.formula.Name, "unknown variable "+name+" defaulted to zero")
	})
	if err != nil {
		config.LogError(logger, "formula.go", "evalFormula", "evaluating formula "+cf.formula.Name, cf.formula.Expression, err)
		return decimal.Zero
	}
	return result.Round(cf.formula.ValueKind.DecimalPlaces())
}

// LoadFormulaCatalog builds the catalog from the stored definitions, going
// through the redis object cache when available.
func LoadFormulaCatalog(ctx context.Context) (*FormulaCatalog, error) {
	var formulas []*Formula
	exists, err := config.GetRedisObject(formulaCacheKey, &formulas)
	if err != nil {
		return nil, err
	}
	if !exists {
		db := config.GetDB()
		if err := db.WithContext(ctx).Order("priority asc, id asc").Find(&formulas).Error; err != nil {
			return nil, err
		}
		if err := config.SetRedisObject(formulaCacheKey, &formulas, 0); err != nil {
			return nil, err
		}
	}
	return NewFormulaCatalog(formulas), nil
}

// InvalidateFormulaCache drops the cached definitions. Call after seeding or
// editing formulas.
func InvalidateFormulaCache() error {
	return config.RemoveRedisKey(formulaCacheKey)
}

// SaveFormula upserts one definition and invalidates the cache.
func SaveFormula(ctx context.Context, formula *Formula) error {
	if err := validate.Struct(formula); err != nil {
		return utils.NewValidationError(err.Error())
	}
	if _, err := expression.Parse(formula.Expression); err != nil {
		return utils.NewValidationError("invalid formula expression: " + err.Error())
	}
	if _, err := ParseFormulaValueKind(string(formula.ValueKind)); err != nil {
		return utils.NewValidationError(err.Error())
	}

	db := config.GetDB()
	var err error
	if formula.ID > 0 {
		err = db.WithContext(ctx).Save(formula).Error
	} else {
		err = db.WithContext(ctx).Create(formula).Error
	}
	if err != nil {
		return err
	}
	return InvalidateFormulaCache()
}

func deleteFormulasWhere(ctx context.Context, tx *gorm.DB, cond string, vars ...interface{}) error {
	return tx.WithContext(ctx).Where(cond, vars...).Delete(&Formula{}).Error
}
