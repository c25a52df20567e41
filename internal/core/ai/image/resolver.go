package image

import (
	"path"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Seed 已知菜色與其示意圖檔名
type Seed struct {
	Name  string
	Image string
}

// DefaultSeeds 型錄中的菜色，依宣告順序比對
var DefaultSeeds = []Seed{
	{Name: "Spaghetti Bolognese", Image: "spaghetti.jpg"},
	{Name: "Pancakes", Image: "Pancakes.jpg"},
	{Name: "Chicken Fried Rice", Image: "Chicken.jpg"},
	{Name: "Chocolate Cake", Image: "Chocolate.jpg"},
	{Name: "Caesar Salad", Image: "Caesar.jpg"},
	{Name: "Garlic Bread", Image: "Garlic.jpg"},
	{Name: "Mashed Potatoes", Image: "potatoes.jpg"},
	{Name: "Omelette", Image: "Omelette.jpg"},
	{Name: "Grilled Chicken", Image: "grilled.jpg"},
	{Name: "Beef Stew", Image: "beef.jpg"},
	{Name: "Fish Tacos", Image: "Fish_Tacos.jpeg"},
	{Name: "Vegetable Stir Fry", Image: "stir_fry.jpeg"},
	{Name: "Shrimp Alfredo Pasta", Image: "shrimp_alfredo.jpeg"},
	{Name: "Mushroom Risotto", Image: "risotto.jpeg"},
	{Name: "Greek Salad", Image: "greek_salad.jpeg"},
	{Name: "Lentil Soup", Image: "lentil_soup.jpeg"},
	{Name: "Stuffed Peppers", Image: "stuffed_peppers.jpeg"},
}

const (
	DefaultBasePath = "/media/recipes"
	DefaultImage    = "default.png"
	DefaultCutoff   = 0.5
)

type seedEntry struct {
	name   string
	tokens map[string]struct{}
	chars  []string
	path   string
}

// Resolver 將菜名對應到示意圖路徑，建構後唯讀，可並發使用
type Resolver struct {
	seeds       []seedEntry
	defaultPath string
	cutoff      float64
}

// NewResolver 創建圖片解析器
func NewResolver(seeds []Seed, basePath, defaultImage string, cutoff float64) *Resolver {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if defaultImage == "" {
		defaultImage = DefaultImage
	}

	entries := make([]seedEntry, 0, len(seeds))
	for _, s := range seeds {
		lower := strings.ToLower(s.Name)
		tokens := make(map[string]struct{})
		for _, tok := range strings.Fields(lower) {
			tokens[tok] = struct{}{}
		}
		entries = append(entries, seedEntry{
			name:   lower,
			tokens: tokens,
			chars:  splitChars(lower),
			path:   path.Join(basePath, s.Image),
		})
	}

	return &Resolver{
		seeds:       entries,
		defaultPath: path.Join(basePath, defaultImage),
		cutoff:      cutoff,
	}
}

// Resolve 依序嘗試：共同單字 -> 相似度 >= cutoff -> 預設圖
func (r *Resolver) Resolve(dishName string) string {
	lower := strings.ToLower(dishName)

	words := strings.Fields(lower)
	for _, seed := range r.seeds {
		for _, w := range words {
			if _, ok := seed.tokens[w]; ok {
				return seed.path
			}
		}
	}

	input := splitChars(lower)
	best, bestRatio := -1, 0.0
	for i, seed := range r.seeds {
		ratio := difflib.NewMatcher(seed.chars, input).Ratio()
		// 同分時保留較早宣告的菜色
		if ratio >= r.cutoff && ratio > bestRatio {
			best, bestRatio = i, ratio
		}
	}
	if best >= 0 {
		return r.seeds[best].path
	}

	return r.defaultPath
}

// DefaultPath 預設圖路徑
func (r *Resolver) DefaultPath() string {
	return r.defaultPath
}

func splitChars(s string) []string {
	chars := make([]string, 0, len(s))
	for _, c := range s {
		chars = append(chars, string(c))
	}
	return chars
}
