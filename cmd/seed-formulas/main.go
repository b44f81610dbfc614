// Seeds (or re-seeds) the default pricing formula set.
//
// Usage: go run ./cmd/seed-formulas
package main

import (
	"context"
	"log"

	"github.com/RayanAndish/GoldACC-sub001/config"
	"github.com/RayanAndish/GoldACC-sub001/models"
)

func main() {
	config.ConnectDatabaseWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	if err := models.SeedDefaultFormulas(ctx); err != nil {
		log.Fatalf("seeding default formulas: %v", err)
	}

	catalog, err := models.LoadFormulaCatalog(ctx)
	if err != nil {
		log.Fatalf("reloading formula catalog: %v", err)
	}
	for _, f := range models.GetDefaultFormulas() {
		if _, ok := catalog.FormulaByName(f.Name); !ok {
			log.Fatalf("formula %s missing after seed", f.Name)
		}
	}
	log.Printf("seeded %d default formulas", len(models.GetDefaultFormulas()))
}
