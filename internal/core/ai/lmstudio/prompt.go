package lmstudio

import (
	"fmt"
	"strings"
)

func buildSuggestionPrompt(ingredients []string) string {
	return fmt.Sprintf(
		"You are a creative chef. Based on these ingredients: %s, suggest 5 realistic dishes. "+
			"Return ONLY valid JSON with key 'dishes', where each item has: "+
			"name, short_description, cuisine, difficulty, image_hint.",
		strings.Join(ingredients, ", "),
	)
}

func buildDetailPrompt(name string) string {
	return fmt.Sprintf(
		"You are a master chef. Give detailed step-by-step instructions for cooking '%s'. "+
			"Return valid JSON with these keys: "+
			"{'name', 'ingredients' (list of dicts with 'name', 'amount', 'unit'), "+
			"'instructions' (list of dicts with 'step' and optional 'time_minutes'), 'time_minutes'}. "+
			"Return ONLY raw JSON, no markdown, code fences, or comments.",
		name,
	)
}
