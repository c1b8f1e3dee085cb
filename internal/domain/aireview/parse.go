// Package aireview is the boundary between model-generated reviews and the
// scoring core: it builds prompts and turns raw model output into validated drafts.
package aireview

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/panel/internal/domain/model"
	"github.com/okian/panel/internal/domain/scoring"
	"github.com/xeipuuv/gojsonschema"
)

// Draft is a validated model review, not yet stored.
type Draft struct {
	Scores         []model.CriteriaScore
	Recommendation model.Recommendation
	Confidence     int
	Summary        string
	Strengths      []string
	Concerns       []string
}

type rawScore struct {
	CriterionID string  `json:"criterion_id"`
	Score       float64 `json:"score"`
	Reasoning   string  `json:"reasoning"`
}

type rawResponse struct {
	Scores         []rawScore `json:"scores"`
	Recommendation string     `json:"recommendation"`
	Confidence     int        `json:"confidence"`
	Summary        string     `json:"summary"`
	Strengths      []string   `json:"strengths"`
	Concerns       []string   `json:"concerns"`
}

// CleanJSONBlock removes markdown code fences models wrap around JSON.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	// Drop a language tag such as "json" on the opening fence line.
	if idx := strings.Index(text, "\n"); idx >= 0 {
		first := text[:idx]
		if len(first) < 20 && !strings.ContainsAny(first, " {") {
			text = text[idx+1:]
		}
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// ParseResponse validates raw model output against the response schema and the
// given criteria. Criterion IDs must exist and scores must be inside bounds.
func ParseResponse(raw string, criteria []model.Criterion) (Draft, error) {
	body := CleanJSONBlock(raw)
	if !strings.HasPrefix(body, "{") {
		return Draft{}, fmt.Errorf("%w: expected a JSON object", ErrMalformed)
	}
	if err := validateSchema(body); err != nil {
		return Draft{}, err
	}

	var resp rawResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return Draft{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	rec, err := model.ParseRecommendation(resp.Recommendation)
	if err != nil {
		return Draft{}, err
	}
	d := Draft{
		Recommendation: rec,
		Confidence:     resp.Confidence,
		Summary:        strings.TrimSpace(resp.Summary),
		Strengths:      resp.Strengths,
		Concerns:       resp.Concerns,
		Scores:         make([]model.CriteriaScore, 0, len(resp.Scores)),
	}
	for _, s := range resp.Scores {
		d.Scores = append(d.Scores, model.CriteriaScore{
			CriterionID: s.CriterionID,
			Score:       s.Score,
			Reasoning:   strings.TrimSpace(s.Reasoning),
		})
	}
	if err := scoring.ValidateScores(model.Evaluation{Scores: d.Scores}, criteria); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// Evaluation turns the draft into a completed AI evaluation.
func (d Draft) Evaluation(applicationID, reviewerID string, stage model.Stage, now time.Time) model.Evaluation {
	completed := now
	e := model.Evaluation{
		ApplicationID:  applicationID,
		ReviewerID:     reviewerID,
		Stage:          stage,
		Source:         model.SourceAI,
		Recommendation: d.Recommendation,
		Confidence:     d.Confidence,
		CompletedAt:    &completed,
		Scores:         d.Scores,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if d.Summary != "" {
		e.Comments = append(e.Comments, model.Comment{QuestionKey: "summary", Text: d.Summary, CreatedAt: now})
	}
	for _, s := range d.Strengths {
		e.Comments = append(e.Comments, model.Comment{QuestionKey: "strength", Text: s, CreatedAt: now})
	}
	for _, c := range d.Concerns {
		e.Comments = append(e.Comments, model.Comment{QuestionKey: "concern", Text: c, CreatedAt: now})
	}
	return e
}

func validateSchema(body string) error {
	schema, err := assets.ReadFile("response.schema.json")
	if err != nil {
		return fmt.Errorf("read response schema: %w", err)
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewStringLoader(body))
	if err != nil {
		return errors.Join(ErrMalformed, err)
	}
	if result.Valid() {
		return nil
	}
	ve := &ValidationError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return ve
}
