package lmstudio

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dishNames(t *testing.T, content string) []string {
	t.Helper()
	names := []string{}
	for _, d := range ParseDishes(content) {
		names = append(names, d.Name())
	}
	return names
}

func TestParseDishesWrappedObject(t *testing.T) {
	content := `{"dishes":[{"name":"Tomato Soup","cuisine":"Italian"},{"name":"Onion Tart"}]}`
	assert.Equal(t, []string{"Tomato Soup", "Onion Tart"}, dishNames(t, content))
}

func TestParseDishesBareList(t *testing.T) {
	content := `[{"name":"Shakshuka","difficulty":2}]`
	dishes := ParseDishes(content)
	require.Len(t, dishes, 1)
	assert.Equal(t, "Shakshuka", dishes[0].Name())
	assert.Equal(t, json.Number("2"), dishes[0]["difficulty"])
}

func TestParseDishesFencedMarkdown(t *testing.T) {
	content := "```json\n{\"dishes\": [{\"name\": \"Greek Salad\"}]}\n```"
	assert.Equal(t, []string{"Greek Salad"}, dishNames(t, content))
}

func TestParseDishesFallsBackToFragments(t *testing.T) {
	content := `Sure! Here are some ideas:
1. {"name": "Tomato Bruschetta", "cuisine": "Italian"}
2. {"cuisine": "French"} is not a dish
3. {"name": "Onion Soup", "difficulty": "easy"} enjoy! {broken`
	assert.Equal(t, []string{"Tomato Bruschetta", "Onion Soup"}, dishNames(t, content))
}

func TestParseDishesProseYieldsEmptyList(t *testing.T) {
	dishes := ParseDishes("I'm sorry, I can't come up with anything right now.")
	assert.NotNil(t, dishes)
	assert.Empty(t, dishes)
}

func TestParseDishesObjectWithoutDishesKey(t *testing.T) {
	assert.Empty(t, ParseDishes(`{"recipes":[{"name":"A"}]}`))
}

func TestParseDishesDropsNonObjectItems(t *testing.T) {
	assert.Equal(t, []string{"A"}, dishNames(t, `{"dishes":["A", {"name":"A"}, 3]}`))
}

func TestParseDetail(t *testing.T) {
	detail, err := ParseDetail("```json\n{\"name\":\"Omelette\",\"time_minutes\":10}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Omelette", detail["name"])
	assert.Equal(t, json.Number("10"), detail["time_minutes"])
}

func TestParseDetailUnescapesOnce(t *testing.T) {
	detail, err := ParseDetail(`{\"name\": \"Beef Stew\", \"instructions\": [{\"step\": \"Brown the beef\"}]}`)
	require.NoError(t, err)
	assert.Equal(t, "Beef Stew", detail["name"])
}

func TestParseDetailRejectsGarbage(t *testing.T) {
	_, err := ParseDetail("no json here")
	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))

	_, err = ParseDetail(`[1,2,3]`)
	assert.True(t, errors.As(err, &parseErr))

	_, err = ParseDetail(`null`)
	assert.True(t, errors.As(err, &parseErr))
}
