package refine

import (
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RefinementPrompt asks the model to rewrite a colleague's proposition into a
// sharper version of itself. It is rendered with promptData.
const RefinementPrompt = `You are a specialist in {{.Field}}. A colleague has put forward this proposition:

"{{.Text}}"

Rewrite it into a stronger proposition:
- state the central idea more clearly and precisely
- bring the most important insight to the front
- cut any sentence that does not carry weight
- keep the reasoning connected from start to finish
- add your own insight where it deepens the claim

Reply with the rewritten proposition only. No preamble, no explanation, no commentary about the changes.`

var refinementTemplate = template.Must(template.New("refine").Parse(RefinementPrompt))

type promptData struct {
	Field string
	Text  string
}

var fieldCaser = cases.Title(language.English)

// DisplayCategory renders a category label for prompts and reports, e.g.
// "computer science" becomes "Computer Science".
func DisplayCategory(category string) string {
	category = strings.Join(strings.Fields(category), " ")
	if category == "" {
		return ""
	}
	return fieldCaser.String(category)
}

// BuildPrompt renders the refinement request for one proposition.
func BuildPrompt(category, text string) (string, error) {
	field := DisplayCategory(category)
	if field == "" {
		field = "this subject"
	}
	var b strings.Builder
	if err := refinementTemplate.Execute(&b, promptData{Field: field, Text: strings.TrimSpace(text)}); err != nil {
		return "", err
	}
	return b.String(), nil
}
