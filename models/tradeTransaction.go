package models

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/RayanAndish/GoldACC-sub001/config"
	"github.com/RayanAndish/GoldACC-sub001/utils"
	"github.com/shopspring/decimal"
)

// Actor identifies who performed a mutation. It is threaded explicitly
// through every service call instead of living in ambient session state.
type Actor struct {
	Id   int
	Name string
}

// TradeTransaction is the header of one buy/sell of trade items, carrying
// the six recomputed summary totals and the delivery state machine.
type TradeTransaction struct {
	ID              int             `gorm:"primary_key" json:"id"`
	TradeType       TradeType       `gorm:"size:10;index;not null" json:"trade_type"`
	ContactId       int             `gorm:"index;not null" json:"contact_id"`
	TransactionDate time.Time       `gorm:"not null" json:"transaction_date"`
	MazanehPrice    decimal.Decimal `gorm:"type:decimal(20,0);default:0" json:"mazaneh_price"`
	DeliveryStatus  DeliveryStatus  `gorm:"size:20;index;not null" json:"delivery_status"`
	DeliveryDate    *time.Time      `json:"delivery_date"`

	BaseValue     decimal.Decimal `gorm:"type:decimal(20,0);default:0" json:"base_value"`
	ProfitWageFee decimal.Decimal `gorm:"type:decimal(20,0);default:0" json:"profit_wage_fee"`
	GeneralTax    decimal.Decimal `gorm:"type:decimal(20,0);default:0" json:"general_tax"`
	SubTotal      decimal.Decimal `gorm:"type:decimal(20,0);default:0" json:"sub_total"`
	Vat           decimal.Decimal `gorm:"type:decimal(20,0);default:0" json:"vat"`
	FinalPayable  decimal.Decimal `gorm:"type:decimal(20,0);default:0" json:"final_payable"`

	ActorId   int         `json:"actor_id"`
	ActorName string      `gorm:"size:100" json:"actor_name"`
	Items     []TradeItem `gorm:"foreignKey:TransactionId" json:"items"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t *TradeTransaction) GetId() int {
	return t.ID
}

// TradeItem is one priced line of a transaction. Weight fields apply to
// weight-based categories, Quantity to count-based ones; the category-only
// attributes (assay office, tag, coin year, workshop) stay nullable/empty
// outside their category.
type TradeItem struct {
	ID            int             `gorm:"primary_key" json:"id"`
	TransactionId int             `gorm:"index;not null" json:"transaction_id"`
	ProductId     int             `gorm:"index;not null" json:"product_id"`
	Category      ProductCategory `gorm:"size:20;not null" json:"category"`
	WeightGrams   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"weight_grams"`
	Carat         int             `gorm:"default:0" json:"carat"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,0);default:0" json:"unit_price"`
	TotalValue    decimal.Decimal `gorm:"type:decimal(20,0);default:0" json:"total_value"`
	ProfitPercent decimal.Decimal `gorm:"type:decimal(8,2);default:0" json:"profit_percent"`
	ProfitAmount  decimal.Decimal `gorm:"type:decimal(20,0);default:0" json:"profit_amount"`
	FeePercent    decimal.Decimal `gorm:"type:decimal(8,2);default:0" json:"fee_percent"`
	FeeAmount     decimal.Decimal `gorm:"type:decimal(20,0);default:0" json:"fee_amount"`
	WagePercent   decimal.Decimal `gorm:"type:decimal(8,2);default:0" json:"wage_percent"`
	WageAmount    decimal.Decimal `gorm:"type:decimal(20,0);default:0" json:"wage_amount"`
	GeneralTax    decimal.Decimal `gorm:"type:decimal(20,0);default:0" json:"general_tax"`
	Vat           decimal.Decimal `gorm:"type:decimal(20,0);default:0" json:"vat"`

	AssayOfficeId *int      `json:"assay_office_id"`
	TagNumber     string    `gorm:"size:100" json:"tag_number"`
	CoinYear      string    `gorm:"size:20" json:"coin_year"`
	WorkshopName  string    `gorm:"size:255" json:"workshop_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i TradeItem) GetId() int {
	return i.ID
}

func (i TradeItem) fillable() map[string]interface{} {
	return map[string]interface{}{
		"ProductId":     i.ProductId,
		"Category":      i.Category,
		"WeightGrams":   i.WeightGrams,
		"Carat":         i.Carat,
		"Quantity":      i.Quantity,
		"UnitPrice":     i.UnitPrice,
		"TotalValue":    i.TotalValue,
		"ProfitPercent": i.ProfitPercent,
		"ProfitAmount":  i.ProfitAmount,
		"FeePercent":    i.FeePercent,
		"FeeAmount":     i.FeeAmount,
		"WagePercent":   i.WagePercent,
		"WageAmount":    i.WageAmount,
		"GeneralTax":    i.GeneralTax,
		"Vat":           i.Vat,
		"AssayOfficeId": i.AssayOfficeId,
		"TagNumber":     i.TagNumber,
		"CoinYear":      i.CoinYear,
		"WorkshopName":  i.WorkshopName,
	}
}

// NewTradeTransaction is the submitted input for create & update.
type NewTradeTransaction struct {
	TradeType       string          `json:"trade_type" validate:"required"`
	ContactId       int             `json:"contact_id" validate:"required"`
	TransactionDate time.Time       `json:"transaction_date" validate:"required"`
	MazanehPrice    decimal.Decimal `json:"mazaneh_price"`
	Items           []*NewTradeItem `json:"items"`
}

// NewTradeItem is the typed item input. Raw category-suffixed rows are
// interpreted once by ParseTradeItemRow; computed values (totals, taxes,
// amounts) are never accepted from the client.
type NewTradeItem struct {
	Id            int             `json:"id"`
	ProductId     int             `json:"product_id" validate:"required"`
	WeightGrams   decimal.Decimal `json:"weight_grams"`
	Carat         int             `json:"carat"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	ProfitPercent decimal.Decimal `json:"profit_percent"`
	FeePercent    decimal.Decimal `json:"fee_percent"`
	WagePercent   decimal.Decimal `json:"wage_percent"`
	AssayOfficeId *int            `json:"assay_office_id"`
	TagNumber     string          `json:"tag_number"`
	CoinYear      string          `json:"coin_year"`
	WorkshopName  string          `json:"workshop_name"`
}

// ParseTradeItemRow interprets one raw submitted row whose keys are suffixed
// with the category token (e.g. "weight_grams_melted") into the typed item
// input. Bare field names are accepted as a fallback so callers that already
// strip the suffix keep working.
func ParseTradeItemRow(category ProductCategory, row map[string]string) (*NewTradeItem, error) {
	group := category.FormulaGroup()

	get := func(field string) string {
		if v, ok := row[field+"_"+group]; ok {
			return v
		}
		return row[field]
	}
	getInt := func(field string) int {
		s := strings.TrimSpace(strings.ReplaceAll(get(field), ",", ""))
		if s == "" {
			return 0
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0
		}
		return n
	}

	productId := getInt("product_id")
	if productId == 0 {
		return nil, utils.NewValidationError("item row has no product id")
	}

	item := &NewTradeItem{
		Id:            getInt("id"),
		ProductId:     productId,
		WeightGrams:   utils.ParseDecimalOrZero(get(FieldWeightGrams)),
		Carat:         getInt(FieldCarat),
		Quantity:      utils.ParseDecimalOrZero(get(FieldQuantity)),
		UnitPrice:     utils.ParseDecimalOrZero(get(FieldUnitPrice)),
		ProfitPercent: utils.ParseDecimalOrZero(get(FieldProfitPercent)),
		FeePercent:    utils.ParseDecimalOrZero(get(FieldFeePercent)),
		WagePercent:   utils.ParseDecimalOrZero(get(FieldWagePercent)),
		TagNumber:     get("tag_number"),
		CoinYear:      get("coin_year"),
		WorkshopName:  get("workshop_name"),
	}
	if assayId := getInt("assay_office_id"); assayId > 0 {
		item.AssayOfficeId = &assayId
	}
	return item, nil
}

// initialDeliveryStatus: what the business still owes decides the pending
// side. A purchase awaits receipt of the goods, a sale awaits delivery.
func initialDeliveryStatus(tradeType TradeType) DeliveryStatus {
	if tradeType == TradeTypeBuy {
		return DeliveryStatusPendingReceipt
	}
	return DeliveryStatusPendingDelivery
}

func GetTradeTransaction(ctx context.Context, id int) (*TradeTransaction, error) {
	return utils.FetchModel[TradeTransaction](ctx, id, "Items")
}

// CreateTradeTransaction prices, aggregates, and persists a new transaction
// with its items and weight commitments in one unit of work.
func CreateTradeTransaction(ctx context.Context, actor Actor, input *NewTradeTransaction) (*TradeTransaction, error) {
	return saveTradeTransaction(ctx, actor, input, 0)
}

// UpdateTradeTransaction re-derives an existing, not yet settled transaction
// from the submitted state: prior ledger entries are replaced wholesale and
// items absent from the input are removed.
func UpdateTradeTransaction(ctx context.Context, actor Actor, id int, input *NewTradeTransaction) (*TradeTransaction, error) {
	if id <= 0 {
		return nil, utils.ErrorRecordNotFound
	}
	return saveTradeTransaction(ctx, actor, input, id)
}

func saveTradeTransaction(ctx context.Context, actor Actor, input *NewTradeTransaction, existingId int) (*TradeTransaction, error) {

	if err := validate.Struct(input); err != nil {
		return nil, utils.NewValidationError(err.Error())
	}
	tradeType, err := ParseTradeType(input.TradeType)
	if err != nil {
		return nil, utils.NewValidationError(err.Error())
	}
	if input.TransactionDate.IsZero() {
		return nil, utils.NewValidationError("transaction date is required")
	}
	if len(input.Items) == 0 {
		return nil, utils.NewValidationError("at least one item is required")
	}
	if err := utils.ValidateResourceId[Contact](ctx, input.ContactId); err != nil {
		return nil, err
	}

	var existing *TradeTransaction
	if existingId > 0 {
		existing, err = GetTradeTransaction(ctx, existingId)
		if err != nil {
			return nil, err
		}
		if existing.DeliveryStatus == DeliveryStatusCompleted || existing.DeliveryStatus == DeliveryStatusCanceled {
			return nil, utils.NewStateError("cannot edit a " + string(existing.DeliveryStatus) + " transaction")
		}
	}

	catalog, err := LoadFormulaCatalog(ctx)
	if err != nil {
		return nil, err
	}

	pricedItems, err := priceSubmittedItems(ctx, catalog, input)
	if err != nil {
		return nil, err
	}

	summary := AggregateTradeItems(pricedItems)
	valueMaps := make([]map[string]decimal.Decimal, 0, len(pricedItems))
	for _, p := range pricedItems {
		valueMaps = append(valueMaps, p.Values)
	}
	summary.applyOverrides(catalog.CalculateTransactionSummary(valueMaps))

	commitments := CalculateWeightCommitments(pricedItems)
	sign := commitmentSign(tradeType)

	db := config.GetDB()
	var txn *TradeTransaction

	// Per-contact lock narrows the running-balance race window across
	// instances; the FOR UPDATE on the ledger tail is the actual guarantee.
	err = config.WithRedisLock(ctx, contactLedgerLockKey(input.ContactId), 30*time.Second, func() error {

		tx := db.Begin()

		if existing != nil {
			// Re-derivation: drop every ledger entry this transaction made.
			if err := deleteWeightLedgerEntriesForTransaction(ctx, tx, existing.ID); err != nil {
				tx.Rollback()
				return err
			}
			err := tx.WithContext(ctx).Model(existing).Updates(map[string]interface{}{
				"TradeType":       tradeType,
				"ContactId":       input.ContactId,
				"TransactionDate": input.TransactionDate,
				"MazanehPrice":    input.MazanehPrice,
				"DeliveryStatus":  initialDeliveryStatus(tradeType),
				"BaseValue":       summary.BaseValue,
				"ProfitWageFee":   summary.ProfitWageFee,
				"GeneralTax":      summary.GeneralTax,
				"SubTotal":        summary.SubTotal,
				"Vat":             summary.Vat,
				"FinalPayable":    summary.FinalPayable,
				"ActorId":         actor.Id,
				"ActorName":       actor.Name,
			}).Error
			if err != nil {
				tx.Rollback()
				return err
			}
			items := buildTradeItems(pricedItems, existing.ID)
			if err := ReplaceAssociation(ctx, tx, items, "transaction_id = ?", existing.ID); err != nil {
				tx.Rollback()
				return err
			}
			existing.Items = items
			txn = existing
		} else {
			txn = &TradeTransaction{
				TradeType:       tradeType,
				ContactId:       input.ContactId,
				TransactionDate: input.TransactionDate,
				MazanehPrice:    input.MazanehPrice,
				DeliveryStatus:  initialDeliveryStatus(tradeType),
				BaseValue:       summary.BaseValue,
				ProfitWageFee:   summary.ProfitWageFee,
				GeneralTax:      summary.GeneralTax,
				SubTotal:        summary.SubTotal,
				Vat:             summary.Vat,
				FinalPayable:    summary.FinalPayable,
				ActorId:         actor.Id,
				ActorName:       actor.Name,
				Items:           buildTradeItems(pricedItems, 0),
			}
			if err := tx.WithContext(ctx).Create(txn).Error; err != nil {
				tx.Rollback()
				return err
			}
		}

		// stable category order keeps lock acquisition deterministic
		categories := make([]ProductCategory, 0, len(commitments))
		for category := range commitments {
			categories = append(categories, category)
		}
		sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

		for _, category := range categories {
			delta := commitments[category].Mul(sign)
			if _, err := appendWeightLedgerEntry(ctx, tx, input.ContactId, category,
				WeightLedgerEventTrade, delta, txn.ID); err != nil {
				tx.Rollback()
				return err
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
	return txn, nil
}

// priceSubmittedItems resolves all products in one batch and recomputes every
// item. An unknown product aborts the whole save.
func priceSubmittedItems(ctx context.Context, catalog *FormulaCatalog, input *NewTradeTransaction) ([]*PricedTradeItem, error) {
	productIds := make([]int, 0, len(input.Items))
	for _, item := range input.Items {
		productIds = append(productIds, item.ProductId)
	}
	products, err := GetProductsByIds(ctx, productIds)
	if err != nil {
		return nil, err
	}

	pricedItems := make([]*PricedTradeItem, 0, len(input.Items))
	for _, item := range input.Items {
		product, ok := products[item.ProductId]
		if !ok {
			return nil, utils.ErrorRecordNotFound
		}
		priced, err := PriceTradeItem(catalog, product, input.MazanehPrice, item)
		if err != nil {
			return nil, err
		}
		pricedItems = append(pricedItems, priced)
	}
	return pricedItems, nil
}

func buildTradeItems(pricedItems []*PricedTradeItem, transactionId int) []TradeItem {
	items := make([]TradeItem, 0, len(pricedItems))
	for _, p := range pricedItems {
		items = append(items, TradeItem{
			ID:            p.Input.Id,
			TransactionId: transactionId,
			ProductId:     p.Product.ID,
			Category:      p.Product.Category,
			WeightGrams:   p.WeightGrams,
			Carat:         p.Carat,
			Quantity:      p.Quantity,
			UnitPrice:     p.UnitPrice,
			TotalValue:    p.TotalValue,
			ProfitPercent: p.Input.ProfitPercent,
			ProfitAmount:  p.ProfitAmount,
			FeePercent:    p.Input.FeePercent,
			FeeAmount:     p.FeeAmount,
			WagePercent:   p.Input.WagePercent,
			WageAmount:    p.WageAmount,
			GeneralTax:    p.GeneralTax,
			Vat:           p.Vat,
			AssayOfficeId: p.Input.AssayOfficeId,
			TagNumber:     p.Input.TagNumber,
			CoinYear:      p.Input.CoinYear,
			WorkshopName:  p.Input.WorkshopName,
		})
	}
	return items
}
