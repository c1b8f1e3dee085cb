package seed

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/okian/panel/internal/domain/model"
)

// Profile controls how closely an application's reviewers agree.
type Profile string

const (
	// ProfileConsensus reviewers score within a narrow band and share a recommendation.
	ProfileConsensus Profile = "consensus"
	// ProfileSplit reviewers disagree on both score and recommendation.
	ProfileSplit Profile = "split"
	// ProfilePartial leaves one assigned reviewer with a draft.
	ProfilePartial Profile = "partial"
	// ProfileSolo has a single unassigned evaluation.
	ProfileSolo Profile = "solo"
	// ProfileDecided is a split panel with a recorded decision.
	ProfileDecided Profile = "decided"
)

var profiles = []Profile{ProfileConsensus, ProfileSplit, ProfilePartial, ProfileSolo, ProfileDecided}

var competencyCategories = []model.Category{
	model.CategoryTechnical,
	model.CategoryProject,
	model.CategoryCommunityFit,
	model.CategoryVideo,
	model.CategoryOverall,
}

// Reviewer is a generated reviewer with the competency levels to register.
type Reviewer struct {
	ID     string
	Name   string
	Levels map[model.Category]int
	// Overrides are explicit weights sent instead of the level default.
	Overrides map[model.Category]float64
}

// Submission is one planned POST /evaluations call.
type Submission struct {
	SubmissionID string
	Evaluation   model.Evaluation
	Complete     bool
}

// Application is a generated application and everything that will be sent for it.
type Application struct {
	ID          string
	Profile     Profile
	Panel       []string
	Assigned    bool
	Submissions []Submission
	Decision    *model.ConsensusDecision
}

// Plan is the full data set of one run.
type Plan struct {
	RunID        string
	Reviewers    []Reviewer
	Criteria     []model.Criterion
	Applications []Application
}

// Generate builds a plan. The same seed yields the same scores and panels;
// runID keeps identifiers from colliding with earlier runs.
func Generate(cfg Config, runID string) Plan {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	p := Plan{RunID: runID, Criteria: criteriaFor(runID)}

	for i := 0; i < cfg.Reviewers; i++ {
		p.Reviewers = append(p.Reviewers, newReviewer(rng, runID, i))
	}
	for i := 0; i < cfg.Applications; i++ {
		app := Application{
			ID:      fmt.Sprintf("%s-app-%04d", runID, i),
			Profile: profiles[i%len(profiles)],
		}
		for _, idx := range rng.Perm(len(p.Reviewers))[:cfg.PanelSize] {
			app.Panel = append(app.Panel, p.Reviewers[idx].ID)
		}
		p.fill(rng, &app)
		p.Applications = append(p.Applications, app)
	}
	return p
}

func criteriaFor(runID string) []model.Criterion {
	c := func(key string, cat model.Category, weight, lo, hi float64, order int) model.Criterion {
		return model.Criterion{
			ID:       runID + "-" + key,
			Name:     key,
			Category: cat,
			Stage:    model.StageScreening,
			Weight:   weight,
			MinScore: lo,
			MaxScore: hi,
			Order:    order,
			Active:   true,
		}
	}
	return []model.Criterion{
		c("technical", model.CategoryTechnical, 2, 0, 10, 1),
		c("project", model.CategoryProject, 1.5, 1, 5, 2),
		c("community", model.CategoryCommunityFit, 1, 0, 10, 3),
		c("video", model.CategoryVideo, 0.5, 0, 100, 4),
	}
}

func newReviewer(rng *rand.Rand, runID string, i int) Reviewer {
	r := Reviewer{
		ID:        fmt.Sprintf("%s-r%02d", runID, i),
		Name:      fmt.Sprintf("Seed Reviewer %d", i+1),
		Levels:    map[model.Category]int{},
		Overrides: map[model.Category]float64{},
	}
	for _, cat := range competencyCategories {
		switch rng.IntN(6) {
		case 0:
			// left unset so the neutral weight applies
		case 1:
			r.Levels[cat] = 1 + rng.IntN(5)
			r.Overrides[cat] = round(0.5+rng.Float64()*1.5, 2)
		default:
			r.Levels[cat] = 1 + rng.IntN(5)
		}
	}
	return r
}

// fill plans the evaluations and decision for app according to its profile.
func (p *Plan) fill(rng *rand.Rand, app *Application) {
	switch app.Profile {
	case ProfileSolo:
		app.Panel = app.Panel[:1]
		q := band(rng, 0.3, 0.9)
		app.Submissions = append(app.Submissions, p.submission(app, app.Panel[0], q, recommendationFor(q), true))
	case ProfileConsensus, ProfilePartial:
		app.Assigned = true
		q := band(rng, 0.2, 0.95)
		rec := recommendationFor(q)
		for i, id := range app.Panel {
			jitter := (rng.Float64() - 0.5) * 0.06
			complete := app.Profile != ProfilePartial || i < len(app.Panel)-1
			app.Submissions = append(app.Submissions, p.submission(app, id, clamp01(q+jitter), rec, complete))
		}
	case ProfileSplit, ProfileDecided:
		app.Assigned = true
		for i, id := range app.Panel {
			q := band(rng, 0.1, 0.25)
			if i%2 == 0 {
				q = band(rng, 0.85, 0.95)
			}
			app.Submissions = append(app.Submissions, p.submission(app, id, q, recommendationFor(q), true))
		}
		if app.Profile == ProfileDecided {
			app.Decision = &model.ConsensusDecision{
				ApplicationID:   app.ID,
				FinalDecision:   model.RecommendWaitlist,
				DiscussionNotes: "seeded panel discussion",
				DecidedBy:       "panel-seed",
			}
		}
	}
}

// submission scores every criterion at quality q, a fraction of its range.
func (p *Plan) submission(app *Application, reviewerID string, q float64, rec model.Recommendation, complete bool) Submission {
	e := model.Evaluation{
		ID:             uuid.NewString(),
		ApplicationID:  app.ID,
		ReviewerID:     reviewerID,
		Stage:          model.StageScreening,
		Source:         model.SourceHuman,
		Recommendation: rec,
		Confidence:     1 + int(q*4),
	}
	for _, c := range p.Criteria {
		e.Scores = append(e.Scores, model.CriteriaScore{
			CriterionID: c.ID,
			Score:       round(c.MinScore+q*(c.MaxScore-c.MinScore), 2),
		})
	}
	return Submission{SubmissionID: uuid.NewString(), Evaluation: e, Complete: complete}
}

func recommendationFor(q float64) model.Recommendation {
	switch {
	case q >= 0.7:
		return model.RecommendAccept
	case q >= 0.45:
		return model.RecommendWaitlist
	default:
		return model.RecommendReject
	}
}

func band(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
