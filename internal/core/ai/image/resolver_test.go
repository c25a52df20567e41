package image

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newDefaultResolver() *Resolver {
	return NewResolver(DefaultSeeds, "", "", DefaultCutoff)
}

func TestResolveTokenOverlap(t *testing.T) {
	r := newDefaultResolver()

	assert.Equal(t, "/media/recipes/beef.jpg", r.Resolve("Spicy Beef Noodles"))
	assert.Equal(t, "/media/recipes/Omelette.jpg", r.Resolve("OMELETTE"))
	// 第一個共享單字的種子勝出："chicken" 先出現在 Chicken Fried Rice
	assert.Equal(t, "/media/recipes/Chicken.jpg", r.Resolve("Lemon Chicken"))
	// "salad" 同時出現在 Caesar Salad 與 Greek Salad，取宣告較早者
	assert.Equal(t, "/media/recipes/Caesar.jpg", r.Resolve("Tomato Salad"))
}

func TestResolveFuzzyFallback(t *testing.T) {
	r := newDefaultResolver()

	assert.Equal(t, "/media/recipes/Omelette.jpg", r.Resolve("Omelete"))
	assert.Equal(t, "/media/recipes/Pancakes.jpg", r.Resolve("pancake"))
	assert.Equal(t, "/media/recipes/beef.jpg", r.Resolve("beefstew"))
	assert.Equal(t, "/media/recipes/risotto.jpeg", r.Resolve("risoto"))
}

func TestResolveDefault(t *testing.T) {
	r := newDefaultResolver()

	assert.Equal(t, "/media/recipes/default.png", r.Resolve("Lasagna"))
	assert.Equal(t, "/media/recipes/default.png", r.Resolve("xyz"))
	assert.Equal(t, "/media/recipes/default.png", r.Resolve(""))
}

func TestResolveCustomBasePath(t *testing.T) {
	r := NewResolver([]Seed{{Name: "Tomato Soup", Image: "soup.png"}}, "/static/img", "none.png", 0.9)

	assert.Equal(t, "/static/img/soup.png", r.Resolve("tomato pie"))
	assert.Equal(t, "/static/img/none.png", r.Resolve("tomatosoup pie"))
	assert.Equal(t, "/static/img/none.png", r.DefaultPath())
}

func TestResolveIsConcurrencySafe(t *testing.T) {
	r := newDefaultResolver()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "/media/recipes/Omelette.jpg", r.Resolve("Omelete"))
		}()
	}
	wg.Wait()
}
