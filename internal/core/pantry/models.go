package pantry

import "time"

// Ingredient 食材型錄
type Ingredient struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Category        string    `gorm:"size:50" json:"category,omitempty"`
	CaloriesPer100g *float64  `json:"calories_per_100g,omitempty"`
	CreatedAt       time.Time `json:"-"`
}

// Pantry 使用者的食材櫃，每位使用者一筆
type Pantry struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	UserID      string       `gorm:"uniqueIndex;size:128;not null" json:"user_id"`
	Ingredients []Ingredient `gorm:"many2many:pantry_ingredients" json:"ingredients"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Models 需要遷移的資料表
func Models() []any {
	return []any{&Ingredient{}, &Pantry{}}
}
