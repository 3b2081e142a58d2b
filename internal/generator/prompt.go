package generator

import (
	"strings"
	"text/template"
)

// PropositionPrompt requests one fresh proposition. Seed words are optional.
const PropositionPrompt = `Write one standalone proposition.
{{if .Seeds}}
Seed concepts (work every one in): {{.Seeds}}{{end}}
Field: {{.Field}}
Complexity: {{.Complexity}}

Requirements:
1. A complete declarative statement, never a question
2. Scholarly and authoritative in tone
3. Plausible enough that an expert would engage with it seriously
4. Genuinely novel rather than a textbook fact
5. Precise academic wording
6. One or two sentences at most

Avoid hedges such as "arguably" or "it seems", caveats, justification, and any commentary.

Reply with the proposition and nothing else.`

var propositionTemplate = template.Must(template.New("proposition").Parse(PropositionPrompt))

type promptData struct {
	Seeds      string
	Field      string
	Complexity string
}

// BuildPrompt renders the generation request.
func BuildPrompt(category, complexity string, seeds []string) (string, error) {
	if strings.TrimSpace(complexity) == "" {
		complexity = "high"
	}
	var b strings.Builder
	err := propositionTemplate.Execute(&b, promptData{
		Seeds:      strings.Join(seeds, ", "),
		Field:      category,
		Complexity: complexity,
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
