package database

import (
	"fmt"

	"pantry-chef/internal/core/pantry"
	"pantry-chef/internal/pkg/common"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type seedIngredient struct {
	Name     string
	Calories float64
	Category string
}

var catalog = []seedIngredient{
	{"Eggs", 155, "Protein"},
	{"Flour", 364, "Grains"},
	{"Sugar", 387, "Sweeteners"},
	{"Milk", 42, "Dairy"},
	{"Butter", 717, "Dairy"},
	{"Salt", 0, "Seasoning"},
	{"Olive Oil", 884, "Oil"},
	{"Chicken Breast", 165, "Protein"},
	{"Tomato", 18, "Vegetables"},
	{"Onion", 40, "Vegetables"},
	{"Garlic", 149, "Vegetables"},
	{"Rice", 130, "Grains"},
	{"Cheese", 402, "Dairy"},
	{"Beef", 250, "Protein"},
	{"Potato", 77, "Vegetables"},
	{"Pepper", 40, "Vegetables"},
	{"Carrot", 41, "Vegetables"},
	{"Lettuce", 15, "Vegetables"},
	{"Bread", 265, "Grains"},
	{"Chocolate", 546, "Sweeteners"},
}

// SeedReport 種子資料結果
type SeedReport struct {
	CreatedIngredients int
	Noop               bool
}

// Seed 載入食材型錄，已存在的食材不會被覆寫
func Seed(db *gorm.DB) (SeedReport, error) {
	var report SeedReport
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, item := range catalog {
			kcal := item.Calories
			ing := pantry.Ingredient{Name: item.Name, Category: item.Category, CaloriesPer100g: &kcal}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ing)
			if res.Error != nil {
				return fmt.Errorf("seed ingredient %s: %w", item.Name, res.Error)
			}
			report.CreatedIngredients += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return SeedReport{}, err
	}

	report.Noop = report.CreatedIngredients == 0
	common.LogInfo("Ingredient catalog seeded",
		zap.Int("created", report.CreatedIngredients),
		zap.Int("catalog_size", len(catalog)),
	)
	return report, nil
}
