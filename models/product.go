package models

import (
	"context"

	"github.com/RayanAndish/GoldACC-sub001/config"
	"github.com/RayanAndish/GoldACC-sub001/utils"
	"github.com/shopspring/decimal"
)

// Product is the immutable pricing reference for a trade item. Category,
// unit of measure and the tax/VAT configuration are read at pricing time and
// never taken from the submitted row.
type Product struct {
	ID            int             `gorm:"primary_key" json:"id"`
	Code          string          `gorm:"size:100;uniqueIndex;not null" json:"code" validate:"required"`
	Name          string          `gorm:"size:255;not null" json:"name" validate:"required"`
	Category      ProductCategory `gorm:"size:20;index;not null" json:"category" validate:"required"`
	UnitOfMeasure UnitOfMeasure   `gorm:"size:10;not null;default:Weight" json:"unit_of_measure"`
	DefaultCarat  int             `gorm:"default:750" json:"default_carat"`
	TaxEnabled    bool            `gorm:"default:false" json:"tax_enabled"`
	TaxRate       decimal.Decimal `gorm:"type:decimal(8,4);default:0" json:"tax_rate"`
	VatEnabled    bool            `gorm:"default:false" json:"vat_enabled"`
	VatRate       decimal.Decimal `gorm:"type:decimal(8,4);default:0" json:"vat_rate"`
	TaxBaseType   TaxBaseType     `gorm:"size:20;not null;default:NONE" json:"tax_base_type"`
	VatBaseType   TaxBaseType     `gorm:"size:20;not null;default:NONE" json:"vat_base_type"`
	IsActive      bool            `gorm:"default:true" json:"is_active"`
}

func (p *Product) GetId() int {
	return p.ID
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	return utils.FetchModel[Product](ctx, id)
}

// GetProductsByIds resolves all referenced products in one batch lookup,
// keyed by id. Missing ids are simply absent from the map; callers decide
// whether that is fatal.
func GetProductsByIds(ctx context.Context, ids []int) (map[int]*Product, error) {
	db := config.GetDB()
	unqIds := utils.UniqueSlice(ids)

	var products []*Product
	if err := db.WithContext(ctx).Where("id IN ?", unqIds).Find(&products).Error; err != nil {
		return nil, err
	}
	result := make(map[int]*Product, len(products))
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func CreateProduct(ctx context.Context, product *Product) error {
	if err := validate.Struct(product); err != nil {
		return utils.NewValidationError(err.Error())
	}
	if _, err := ParseProductCategory(string(product.Category)); err != nil {
		return utils.NewValidationError(err.Error())
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(product).Error; err != nil {
		return err
	}
	return nil
}
