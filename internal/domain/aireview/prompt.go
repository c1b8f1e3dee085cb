package aireview

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/okian/panel/internal/domain/model"
)

//go:embed prompts.json response.schema.json
var assets embed.FS

var (
	promptsOnce sync.Once
	prompts     map[string]string
	promptsErr  error
)

// ApplicationBrief is what the model is shown about an application.
type ApplicationBrief struct {
	ApplicationID string
	Applicant     string
	Summary       string
	// Answers maps question keys to the applicant's answers.
	Answers map[string]string
}

// Prompt is a ready-to-send system and user message pair.
type Prompt struct {
	System string
	User   string
}

func loadPrompts() (map[string]string, error) {
	promptsOnce.Do(func() {
		data, err := assets.ReadFile("prompts.json")
		if err != nil {
			promptsErr = fmt.Errorf("read prompts: %w", err)
			return
		}
		if err := json.Unmarshal(data, &prompts); err != nil {
			promptsErr = fmt.Errorf("parse prompts: %w", err)
		}
	})
	return prompts, promptsErr
}

// BuildPrompt renders the evaluation prompt for brief against the active criteria.
func BuildPrompt(brief ApplicationBrief, criteria []model.Criterion) (Prompt, error) {
	p, err := loadPrompts()
	if err != nil {
		return Prompt{}, err
	}
	system, ok := p["system"]
	if !ok {
		return Prompt{}, fmt.Errorf("prompt key %q not found", "system")
	}
	tmpl, ok := p["evaluate"]
	if !ok {
		return Prompt{}, fmt.Errorf("prompt key %q not found", "evaluate")
	}

	return Prompt{
		System: system,
		User: format(tmpl, map[string]string{
			"ApplicationID": brief.ApplicationID,
			"Applicant":     brief.Applicant,
			"Summary":       brief.Summary,
			"Answers":       renderAnswers(brief.Answers),
			"Criteria":      renderCriteria(criteria),
		}),
	}, nil
}

// format replaces {{.Key}} placeholders with values from data.
func format(template string, data map[string]string) string {
	result := template
	for key, value := range data {
		result = strings.ReplaceAll(result, fmt.Sprintf("{{.%s}}", key), value)
	}
	return result
}

func renderAnswers(answers map[string]string) string {
	if len(answers) == 0 {
		return "(none)"
	}
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "- %s: %s\n", k, answers[k])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderCriteria(criteria []model.Criterion) string {
	active := make([]model.Criterion, 0, len(criteria))
	for _, c := range criteria {
		if c.Active {
			active = append(active, c)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Order < active[j].Order })

	var sb strings.Builder
	for _, c := range active {
		fmt.Fprintf(&sb, "- %s (%s, %s): score %g to %g, weight %g. %s\n",
			c.ID, c.Name, c.Category, c.MinScore, c.MaxScore, c.Weight, c.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}
