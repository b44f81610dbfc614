package models

import (
	"context"

	"github.com/RayanAndish/GoldACC-sub001/config"
	"github.com/RayanAndish/GoldACC-sub001/utils"
)

// Contact is a trading counterparty. Only identity lives here; what the
// contact owes in weight is derived from the ledger.
type Contact struct {
	ID       int    `gorm:"primary_key" json:"id"`
	Name     string `gorm:"size:255;not null" json:"name" validate:"required"`
	Phone    string `gorm:"size:50" json:"phone"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
}

func (c *Contact) GetId() int {
	return c.ID
}

func GetContact(ctx context.Context, id int) (*Contact, error) {
	return utils.FetchModel[Contact](ctx, id)
}

func CreateContact(ctx context.Context, contact *Contact) error {
	if err := validate.Struct(contact); err != nil {
		return utils.NewValidationError(err.Error())
	}
	db := config.GetDB()
	return db.WithContext(ctx).Create(contact).Error
}
