package models

import (
	"log"

	"github.com/RayanAndish/GoldACC-sub001/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Contact{}, &Product{}, &Formula{},
		&TradeTransaction{}, &TradeItem{},
		&ContactWeightLedgerEntry{}, &StockBucket{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
