package pantry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pantry-chef/internal/pkg/common"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNoPantry           = errors.New("pantry not found")
	ErrIngredientNotFound = errors.New("ingredient not found")
	ErrInvalidName        = errors.New("ingredient name is required")
)

// Service 食材櫃服務
type Service struct {
	db *gorm.DB
}

// NewService 創建食材櫃服務
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Ingredients 回傳使用者食材櫃中的食材名稱，依名稱排序
func (s *Service) Ingredients(ctx context.Context, userID string) ([]string, error) {
	p, err := s.find(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(p.Ingredients))
	for _, ing := range p.Ingredients {
		names = append(names, ing.Name)
	}
	return names, nil
}

// Get 回傳完整的食材櫃
func (s *Service) Get(ctx context.Context, userID string) (*Pantry, error) {
	return s.find(s.db.WithContext(ctx), userID)
}

// Catalog 回傳整份食材型錄
func (s *Service) Catalog(ctx context.Context) ([]Ingredient, error) {
	var items []Ingredient
	if err := s.db.WithContext(ctx).Order("name").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list ingredients: %w", err)
	}
	return items, nil
}

// Add 將食材加入使用者的食材櫃，食材櫃或型錄中沒有時一併建立
func (s *Service) Add(ctx context.Context, userID, name string) (*Pantry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.ensure(tx, userID)
		if err != nil {
			return err
		}

		ing := Ingredient{Name: name}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ing).Error; err != nil {
			return fmt.Errorf("create ingredient: %w", err)
		}
		if err := tx.Where("name = ?", name).First(&ing).Error; err != nil {
			return fmt.Errorf("load ingredient: %w", err)
		}

		if err := tx.Model(p).Association("Ingredients").Append(&ing); err != nil {
			return fmt.Errorf("add ingredient to pantry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	common.LogInfo("Pantry ingredient added",
		zap.String("user_id", userID),
		zap.String("ingredient", name),
	)
	return s.find(s.db.WithContext(ctx), userID)
}

// Remove 從食材櫃移除食材，型錄中的食材保留
func (s *Service) Remove(ctx context.Context, userID, name string) (*Pantry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	db := s.db.WithContext(ctx)
	p, err := s.find(db, userID)
	if err != nil {
		return nil, err
	}

	var target *Ingredient
	for i := range p.Ingredients {
		if p.Ingredients[i].Name == name {
			target = &p.Ingredients[i]
			break
		}
	}
	if target == nil {
		return nil, ErrIngredientNotFound
	}

	if err := db.Model(p).Association("Ingredients").Delete(target); err != nil {
		return nil, fmt.Errorf("remove ingredient from pantry: %w", err)
	}

	common.LogInfo("Pantry ingredient removed",
		zap.String("user_id", userID),
		zap.String("ingredient", name),
	)
	return s.find(db, userID)
}

func (s *Service) find(db *gorm.DB, userID string) (*Pantry, error) {
	var p Pantry
	err := db.Preload("Ingredients", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("ingredients.name")
	}).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoPantry
	}
	if err != nil {
		return nil, fmt.Errorf("load pantry: %w", err)
	}
	return &p, nil
}

func (s *Service) ensure(tx *gorm.DB, userID string) (*Pantry, error) {
	p := Pantry{UserID: userID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("create pantry: %w", err)
	}
	if err := tx.Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, fmt.Errorf("load pantry: %w", err)
	}
	return &p, nil
}
