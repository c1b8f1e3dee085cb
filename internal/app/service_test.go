package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	service "github.com/okian/panel/internal/app"
	"github.com/okian/panel/internal/adapters/repository"
	"github.com/okian/panel/internal/domain/aireview"
	"github.com/okian/panel/internal/domain/competency"
	"github.com/okian/panel/internal/domain/consensus"
	"github.com/okian/panel/internal/domain/model"
	"github.com/okian/panel/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func newService(opts ...service.Option) (*service.Service, *repository.MemoryStore) {
	store := repository.NewMemoryStore()
	opts = append([]service.Option{service.WithLogger(logger.Nop()), service.WithWorkerCount(2)}, opts...)
	return service.New(store, opts...), store
}

func seed(ctx context.Context, svc *service.Service) {
	for _, id := range []string{"r-1", "r-2", "r-3"} {
		_, err := svc.RegisterReviewer(ctx, model.Reviewer{ID: id, Name: "Reviewer " + id})
		So(err, ShouldBeNil)
	}
	_, err := svc.UpsertCriterion(ctx, model.Criterion{
		ID: "tech", Name: "Technical depth", Category: model.CategoryTechnical,
		Stage: model.StageScreening, Weight: 1, MinScore: 0, MaxScore: 10, Active: true,
	})
	So(err, ShouldBeNil)
}

func submit(ctx context.Context, svc *service.Service, reviewer string, score float64, rec model.Recommendation) service.Receipt {
	r, err := svc.SubmitEvaluation(ctx, service.Submission{
		ApplicationID:  "app-1",
		ReviewerID:     reviewer,
		Stage:          model.StageScreening,
		Scores:         []model.CriteriaScore{{CriterionID: "tech", Score: score}},
		Recommendation: rec,
		Confidence:     4,
		Complete:       true,
	})
	So(err, ShouldBeNil)
	return r
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc, _ := newService()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("When getting stats before starting", func() {
			stats := svc.GetStats()

			Convey("Then the service reports stopped with its policy", func() {
				So(stats["started"], ShouldEqual, false)
				So(stats["store"], ShouldEqual, "memory")
				So(stats["agreementThreshold"], ShouldEqual, 70.0)
			})
		})

		Convey("When starting and stopping twice", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)

			Convey("Then stop is idempotent", func() {
				So(svc.Stop(ctx), ShouldBeNil)
				So(svc.Stop(ctx), ShouldBeNil)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})

		Convey("When a manual recompute is requested before start", func() {
			err := svc.RequestRecompute(ctx, "app-1")

			Convey("Then it is refused", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})
	})
}

func TestService_Reviewers(t *testing.T) {
	Convey("Given a service with reviewers", t, func() {
		svc, _ := newService()
		ctx := context.Background()
		seed(ctx, svc)

		Convey("When registering a duplicate or nameless reviewer", func() {
			_, dupErr := svc.RegisterReviewer(ctx, model.Reviewer{ID: "r-1", Name: "again"})
			_, nameErr := svc.RegisterReviewer(ctx, model.Reviewer{ID: "r-9"})

			Convey("Then both are rejected", func() {
				So(errors.Is(dupErr, repository.ErrConflict), ShouldBeTrue)
				So(errors.Is(nameErr, service.ErrInvalidInput), ShouldBeTrue)
			})
		})

		Convey("When setting competencies in bulk", func() {
			results, err := svc.BulkSetReviewerCompetencies(ctx, "r-1", []competency.Entry{
				{Category: "technical", Level: 9},
				{Category: "astrology", Level: 3},
			})

			Convey("Then valid entries apply and invalid ones report their own error", func() {
				So(err, ShouldBeNil)
				So(results, ShouldHaveLength, 2)
				So(results[0].Level, ShouldEqual, 5)
				So(results[0].Clamped, ShouldBeTrue)
				So(results[0].Weight, ShouldEqual, 1.7)
				So(errors.Is(results[1].Err, model.ErrInvalidCategory), ShouldBeTrue)
				So(svc.Registry().GetWeight(ctx, "r-1", model.CategoryTechnical), ShouldEqual, 1.7)
			})

			Convey("And the overview lists them with evaluation counts", func() {
				submit(ctx, svc, "r-1", 8, model.RecommendAccept)
				overview, err := svc.ReviewersOverview(ctx)
				So(err, ShouldBeNil)
				So(overview, ShouldHaveLength, 3)
				So(overview[0].Reviewer.ID, ShouldEqual, "r-1")
				So(overview[0].Competencies, ShouldHaveLength, 1)
				So(overview[0].EvaluationCount, ShouldEqual, 1)
				So(overview[0].CompletedCount, ShouldEqual, 1)
			})

			Convey("And removing the competency makes the reviewer neutral", func() {
				So(svc.RemoveCompetency(ctx, "r-1", model.CategoryTechnical), ShouldBeNil)
				So(svc.Registry().GetWeight(ctx, "r-1", model.CategoryTechnical), ShouldEqual, 1.0)
			})
		})

		Convey("When setting competencies for an unknown reviewer", func() {
			_, err := svc.BulkSetReviewerCompetencies(ctx, "ghost", []competency.Entry{{Category: "technical", Level: 3}})

			Convey("Then the call fails with not found", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When storing a criterion with inverted bounds", func() {
			_, err := svc.UpsertCriterion(ctx, model.Criterion{
				ID: "bad", Name: "Bad", Category: model.CategoryProject, Stage: model.StageScreening, MinScore: 5, MaxScore: 1,
			})

			Convey("Then it is rejected as out of range", func() {
				So(errors.Is(err, model.ErrInvalidRange), ShouldBeTrue)
			})
		})

		Convey("When assigning an unknown reviewer", func() {
			_, err := svc.AssignReviewer(ctx, "app-1", "ghost")

			Convey("Then the assignment fails with not found", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_SubmitEvaluation(t *testing.T) {
	Convey("Given a seeded service", t, func() {
		svc, _ := newService()
		ctx := context.Background()
		seed(ctx, svc)

		Convey("When a reviewer submits a completed evaluation", func() {
			r := submit(ctx, svc, "r-1", 8, model.RecommendAccept)

			Convey("Then the overall score is derived on the 0-10 scale", func() {
				So(r.Duplicate, ShouldBeFalse)
				So(r.Evaluation.ID, ShouldNotBeEmpty)
				So(r.Overall.Defined, ShouldBeTrue)
				So(*r.Evaluation.OverallScore, ShouldAlmostEqual, 8, 1e-9)
				So(r.Evaluation.Completed(), ShouldBeTrue)
				So(r.Evaluation.Source, ShouldEqual, model.SourceHuman)
			})
		})

		Convey("When the same submission ID arrives twice", func() {
			sub := service.Submission{
				SubmissionID:   "sub-1",
				ApplicationID:  "app-1",
				ReviewerID:     "r-1",
				Stage:          model.StageScreening,
				Scores:         []model.CriteriaScore{{CriterionID: "tech", Score: 6}},
				Recommendation: model.RecommendWaitlist,
				Complete:       true,
			}
			first, err := svc.SubmitEvaluation(ctx, sub)
			So(err, ShouldBeNil)
			second, err := svc.SubmitEvaluation(ctx, sub)
			So(err, ShouldBeNil)

			Convey("Then the second returns the first evaluation", func() {
				So(second.Duplicate, ShouldBeTrue)
				So(second.Evaluation.ID, ShouldEqual, first.Evaluation.ID)
				h, err := svc.EvaluationHistory(ctx, "app-1")
				So(err, ShouldBeNil)
				So(h.Evaluations, ShouldHaveLength, 1)
			})
		})

		Convey("When a retry arrives before the first attempt is stored", func() {
			So(svc.SeenAndRecord(ctx, "sub-9"), ShouldBeFalse)
			r, err := svc.SubmitEvaluation(ctx, service.Submission{
				SubmissionID:   "sub-9",
				ApplicationID:  "app-1",
				ReviewerID:     "r-1",
				Stage:          model.StageScreening,
				Scores:         []model.CriteriaScore{{CriterionID: "tech", Score: 6}},
				Recommendation: model.RecommendWaitlist,
				Complete:       true,
			})

			Convey("Then it is refused as a retryable conflict without an empty receipt", func() {
				So(errors.Is(err, service.ErrInFlight), ShouldBeTrue)
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
				So(r.Evaluation.ID, ShouldBeEmpty)
				So(r.Duplicate, ShouldBeFalse)
			})
		})

		Convey("When a submission fails validation", func() {
			sub := service.Submission{
				SubmissionID:  "sub-2",
				ApplicationID: "app-1",
				ReviewerID:    "r-1",
				Stage:         model.StageScreening,
				Scores:        []model.CriteriaScore{{CriterionID: "tech", Score: 11}},
			}
			_, err := svc.SubmitEvaluation(ctx, sub)

			Convey("Then it is rejected and the submission ID can be retried", func() {
				So(errors.Is(err, model.ErrInvalidRange), ShouldBeTrue)
				sub.Scores[0].Score = 7
				r, err := svc.SubmitEvaluation(ctx, sub)
				So(err, ShouldBeNil)
				So(r.Duplicate, ShouldBeFalse)
			})
		})

		Convey("When a score references an unknown criterion", func() {
			_, err := svc.SubmitEvaluation(ctx, service.Submission{
				ApplicationID: "app-1", ReviewerID: "r-1", Stage: model.StageScreening,
				Scores: []model.CriteriaScore{{CriterionID: "nope", Score: 1}},
			})

			Convey("Then it fails with not found", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a draft has no scores", func() {
			r, err := svc.SubmitEvaluation(ctx, service.Submission{
				ApplicationID: "app-1", ReviewerID: "r-2", Stage: model.StageScreening,
			})

			Convey("Then the overall score is undefined, not zero", func() {
				So(err, ShouldBeNil)
				So(r.Overall.Defined, ShouldBeFalse)
				So(r.Evaluation.OverallScore, ShouldBeNil)
			})
		})

		Convey("When an evaluation is updated by its reviewer", func() {
			first := submit(ctx, svc, "r-1", 4, model.RecommendReject)
			r, err := svc.SubmitEvaluation(ctx, service.Submission{
				EvaluationID:   first.Evaluation.ID,
				ApplicationID:  "app-1",
				ReviewerID:     "r-1",
				Stage:          model.StageScreening,
				Scores:         []model.CriteriaScore{{CriterionID: "tech", Score: 9}},
				Recommendation: model.RecommendAccept,
				Complete:       true,
			})

			Convey("Then the stored row is replaced, last write wins", func() {
				So(err, ShouldBeNil)
				So(r.Evaluation.ID, ShouldEqual, first.Evaluation.ID)
				So(*r.Evaluation.OverallScore, ShouldAlmostEqual, 9, 1e-9)
			})

			Convey("And another reviewer cannot take it over", func() {
				_, err := svc.SubmitEvaluation(ctx, service.Submission{
					EvaluationID: first.Evaluation.ID, ApplicationID: "app-1", ReviewerID: "r-2", Stage: model.StageScreening,
				})
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			})
		})
	})
}

func TestService_Consensus(t *testing.T) {
	Convey("Given a seeded service", t, func() {
		svc, _ := newService()
		ctx := context.Background()
		seed(ctx, svc)

		Convey("When two reviewers score 8 and 9 and both accept", func() {
			submit(ctx, svc, "r-1", 8, model.RecommendAccept)
			submit(ctx, svc, "r-2", 9, model.RecommendAccept)
			h, err := svc.EvaluationHistory(ctx, "app-1")
			So(err, ShouldBeNil)

			Convey("Then the application auto-resolves", func() {
				So(h.Analysis.Agreement, ShouldAlmostEqual, 99.75, 1e-9)
				So(h.Analysis.State, ShouldEqual, consensus.StateAutoResolved)
				So(h.Analysis.Provisional, ShouldEqual, model.RecommendAccept)
				So(h.Combined.Score, ShouldAlmostEqual, 8.5, 1e-9)
			})

			Convey("And the ranked summary agrees", func() {
				sum, err := svc.ApplicationSummary(ctx, "app-1")
				So(err, ShouldBeNil)
				So(sum.Rank, ShouldEqual, 1)
				So(sum.State, ShouldEqual, string(consensus.StateAutoResolved))
				So(*sum.CombinedScore, ShouldAlmostEqual, 8.5, 1e-9)
			})
		})

		Convey("When two reviewers score 3 and 9 and disagree", func() {
			submit(ctx, svc, "r-1", 3, model.RecommendReject)
			submit(ctx, svc, "r-2", 9, model.RecommendAccept)
			h, err := svc.EvaluationHistory(ctx, "app-1")
			So(err, ShouldBeNil)

			Convey("Then it needs consensus", func() {
				So(h.Analysis.Agreement, ShouldAlmostEqual, 48.5, 1e-9)
				So(h.Analysis.State, ShouldEqual, consensus.StateNeedsConsensus)
				So(h.Analysis.NextAction, ShouldEqual, consensus.ActionScheduleConsensus)
			})

			Convey("And a recorded decision settles it", func() {
				d, err := svc.RecordDecision(ctx, model.ConsensusDecision{
					ApplicationID: "app-1", FinalDecision: model.RecommendWaitlist, DecidedBy: "chair",
				})
				So(err, ShouldBeNil)
				So(d.DecidedAt.IsZero(), ShouldBeFalse)

				h, err := svc.EvaluationHistory(ctx, "app-1")
				So(err, ShouldBeNil)
				So(h.Analysis.State, ShouldEqual, consensus.StateDecided)
				sum, err := svc.ApplicationSummary(ctx, "app-1")
				So(err, ShouldBeNil)
				So(sum.Decision, ShouldEqual, model.RecommendWaitlist)
			})
		})

		Convey("When a decision targets an application nobody evaluated or was assigned", func() {
			_, err := svc.RecordDecision(ctx, model.ConsensusDecision{
				ApplicationID: "ghost", FinalDecision: model.RecommendAccept, DecidedBy: "chair",
			})

			Convey("Then it is not found and no summary appears", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				_, err := svc.ApplicationSummary(ctx, "ghost")
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a decision targets an application with only an assignment", func() {
			_, err := svc.AssignReviewer(ctx, "app-2", "r-1")
			So(err, ShouldBeNil)
			_, err = svc.RecordDecision(ctx, model.ConsensusDecision{
				ApplicationID: "app-2", FinalDecision: model.RecommendReject, DecidedBy: "chair",
			})

			Convey("Then it is accepted", func() {
				So(err, ShouldBeNil)
			})
		})

		Convey("When a reviewer is assigned but has not submitted", func() {
			_, err := svc.AssignReviewer(ctx, "app-1", "r-3")
			So(err, ShouldBeNil)
			submit(ctx, svc, "r-1", 7, model.RecommendAccept)
			h, err := svc.EvaluationHistory(ctx, "app-1")
			So(err, ShouldBeNil)

			Convey("Then the application is partial and waits for them", func() {
				So(h.Analysis.State, ShouldEqual, consensus.StatePartial)
				So(h.Analysis.PendingReviewers, ShouldResemble, []string{"r-3"})
			})
		})

		Convey("When a reviewer's overall competency changes", func() {
			submit(ctx, svc, "r-1", 4, model.RecommendReject)
			submit(ctx, svc, "r-2", 8, model.RecommendReject)
			_, err := svc.BulkSetReviewerCompetencies(ctx, "r-2", []competency.Entry{{Category: "overall", Level: 5}})
			So(err, ShouldBeNil)
			h, err := svc.EvaluationHistory(ctx, "app-1")
			So(err, ShouldBeNil)

			Convey("Then the combined score shifts toward them", func() {
				So(h.Combined.Score, ShouldAlmostEqual, (4*1.0+8*1.7)/2.7, 1e-9)
			})
		})

		Convey("When a single reviewer completes two stages", func() {
			submit(ctx, svc, "r-1", 8, model.RecommendAccept)
			_, err := svc.SubmitEvaluation(ctx, service.Submission{
				ApplicationID:  "app-1",
				ReviewerID:     "r-1",
				Stage:          model.StageDetailedReview,
				Scores:         []model.CriteriaScore{{CriterionID: "tech", Score: 8}},
				Recommendation: model.RecommendAccept,
				Complete:       true,
			})
			So(err, ShouldBeNil)
			h, err := svc.EvaluationHistory(ctx, "app-1")
			So(err, ShouldBeNil)

			Convey("Then they count as one reviewer and do not auto-resolve", func() {
				So(h.Evaluations, ShouldHaveLength, 2)
				So(h.Analysis.Scored, ShouldEqual, 1)
				So(h.Analysis.Resolvable, ShouldBeFalse)
				So(h.Analysis.State, ShouldEqual, consensus.StateEvaluated)
				So(h.Combined.Contributions, ShouldHaveLength, 1)
			})
		})

		Convey("When asking for an application nobody touched", func() {
			_, err := svc.ApplicationSummary(ctx, "app-none")

			Convey("Then it is not found", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_AIEvaluation(t *testing.T) {
	Convey("Given a seeded service", t, func() {
		svc, _ := newService()
		ctx := context.Background()
		seed(ctx, svc)

		Convey("When the model returns fenced, valid JSON", func() {
			raw := "```json\n" + `{"scores":[{"criterion_id":"tech","score":7,"reasoning":"solid"}],` +
				`"recommendation":"ACCEPT","confidence":4,"summary":"good fit"}` + "\n```"
			r, err := svc.SubmitAIEvaluation(ctx, service.AISubmission{
				ApplicationID: "app-1", ReviewerID: "r-3", Stage: model.StageScreening, Raw: raw,
			})

			Convey("Then it is stored as a completed AI evaluation", func() {
				So(err, ShouldBeNil)
				So(r.Evaluation.Source, ShouldEqual, model.SourceAI)
				So(r.Evaluation.Completed(), ShouldBeTrue)
				So(*r.Evaluation.OverallScore, ShouldAlmostEqual, 7, 1e-9)
				So(r.Evaluation.Comments, ShouldNotBeEmpty)
			})
		})

		Convey("When the model output is not JSON", func() {
			_, err := svc.SubmitAIEvaluation(ctx, service.AISubmission{
				ApplicationID: "app-1", ReviewerID: "r-3", Stage: model.StageScreening, Raw: "I think they are great",
			})

			Convey("Then it is rejected as malformed", func() {
				So(errors.Is(err, aireview.ErrMalformed), ShouldBeTrue)
			})
		})

		Convey("When rendering a prompt", func() {
			p, err := svc.AIPrompt(ctx, aireview.ApplicationBrief{ApplicationID: "app-1", Applicant: "Ada"}, model.StageScreening)

			Convey("Then the active criteria appear in it", func() {
				So(err, ShouldBeNil)
				So(p.User, ShouldContainSubstring, "tech")
				So(p.System, ShouldNotBeEmpty)
			})
		})
	})
}

func TestService_Workers(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc, _ := newService(service.WithQueueSize(64))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		seed(ctx, svc)
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When evaluations arrive for two applications", func() {
			for _, app := range []struct {
				id    string
				score float64
			}{{"app-a", 6}, {"app-b", 9}} {
				_, err := svc.SubmitEvaluation(ctx, service.Submission{
					ApplicationID: app.id, ReviewerID: "r-1", Stage: model.StageScreening,
					Scores:         []model.CriteriaScore{{CriterionID: "tech", Score: app.score}},
					Recommendation: model.RecommendAccept, Complete: true,
				})
				So(err, ShouldBeNil)
			}
			So(svc.RequestRecompute(ctx, "app-a"), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then the workers publish a ranking with the higher score first", func() {
				top, err := svc.TopApplications(ctx, 10)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 2)
				So(top[0].ApplicationID, ShouldEqual, "app-b")
				So(top[0].Rank, ShouldEqual, 1)
				So(top[1].Rank, ShouldEqual, 2)
			})
		})

		Convey("When asking for a non-positive limit", func() {
			_, err := svc.TopApplications(ctx, 0)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then the limit is rejected", func() {
				So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
			})
		})
	})
}
