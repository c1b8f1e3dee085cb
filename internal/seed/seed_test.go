package seed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/okian/panel/internal/adapters/http/api"
	"github.com/okian/panel/internal/adapters/repository"
	service "github.com/okian/panel/internal/app"
	"github.com/okian/panel/internal/domain/consensus"
	"github.com/okian/panel/internal/domain/model"
	"github.com/okian/panel/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.Applications = 10
	cfg.Reviewers = 5
	cfg.Workers = 4
	cfg.Timeout = 5 * time.Second
	cfg.Settle = 5 * time.Second
	cfg.Logger = logger.Nop()
	return cfg
}

func startPanel(ctx context.Context) (*httptest.Server, *service.Service) {
	svc := service.New(repository.NewMemoryStore(), service.WithLogger(logger.Nop()), service.WithWorkerCount(2))
	So(svc.Start(ctx), ShouldBeNil)
	mux := http.NewServeMux()
	api.NewServer(svc, api.WithLogger(logger.Nop())).Register(ctx, mux)
	return httptest.NewServer(mux), svc
}

func TestRun(t *testing.T) {
	Convey("Given a running panel service", t, func() {
		ctx := context.Background()
		srv, svc := startPanel(ctx)
		defer func() {
			srv.Close()
			_ = svc.Stop(ctx)
		}()

		Convey("When a seed run completes", func() {
			rep, err := Run(ctx, testConfig(srv.URL))

			Convey("Then every application matches the local recomputation", func() {
				So(err, ShouldBeNil)
				So(rep.Mismatches, ShouldBeEmpty)
				So(rep.Verified, ShouldEqual, 10)
				So(rep.RankingChecked, ShouldBeTrue)
			})

			Convey("Then each agreement profile lands in its state", func() {
				So(rep.States[consensus.StateAutoResolved], ShouldEqual, 2)
				So(rep.States[consensus.StateNeedsConsensus], ShouldEqual, 2)
				So(rep.States[consensus.StatePartial], ShouldEqual, 2)
				So(rep.States[consensus.StateEvaluated], ShouldEqual, 2)
				So(rep.States[consensus.StateDecided], ShouldEqual, 2)
			})

			Convey("Then resent submissions are reported as duplicates", func() {
				So(rep.Duplicates, ShouldEqual, 6)
				So(rep.Submitted, ShouldEqual, 32)
				So(rep.Failed, ShouldEqual, 0)
				So(rep.Decisions, ShouldEqual, 2)
				So(rep.Assignments, ShouldEqual, 24)
			})
		})

		Convey("When the same service is seeded twice", func() {
			_, err := Run(ctx, testConfig(srv.URL))
			So(err, ShouldBeNil)
			rep, err := Run(ctx, testConfig(srv.URL))

			Convey("Then runs do not interfere", func() {
				So(err, ShouldBeNil)
				So(rep.Verified, ShouldEqual, 10)
			})
		})
	})
}

func TestRunFailures(t *testing.T) {
	Convey("Given an invalid configuration", t, func() {
		cfg := testConfig("http://127.0.0.1:1")
		cfg.PanelSize = 1
		_, err := Run(context.Background(), cfg)
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "panel size")
	})

	Convey("Given a service that is down", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := Run(context.Background(), testConfig(srv.URL))
		So(err, ShouldNotBeNil)
		So(errors.Is(err, ErrStatus), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "health check")
	})
}

func TestGenerate(t *testing.T) {
	Convey("Given a seeded configuration", t, func() {
		cfg := testConfig("http://unused")

		Convey("Then the same seed yields the same scores and panels", func() {
			a := Generate(cfg, "run")
			b := Generate(cfg, "run")
			opts := cmp.Options{
				cmpopts.IgnoreFields(model.Evaluation{}, "ID"),
				cmpopts.IgnoreFields(Submission{}, "SubmissionID"),
			}
			So(cmp.Diff(a, b, opts), ShouldBeEmpty)
		})

		Convey("Then profiles shape the submissions", func() {
			p := Generate(cfg, "run")
			So(p.Applications, ShouldHaveLength, 10)
			So(p.Reviewers, ShouldHaveLength, 5)
			So(p.Criteria, ShouldHaveLength, 4)

			for _, app := range p.Applications {
				switch app.Profile {
				case ProfileSolo:
					So(app.Assigned, ShouldBeFalse)
					So(app.Submissions, ShouldHaveLength, 1)
				case ProfilePartial:
					So(app.Submissions[len(app.Submissions)-1].Complete, ShouldBeFalse)
				case ProfileConsensus:
					recs := map[model.Recommendation]bool{}
					for _, s := range app.Submissions {
						recs[s.Evaluation.Recommendation] = true
					}
					So(recs, ShouldHaveLength, 1)
				case ProfileSplit:
					So(app.Submissions[0].Evaluation.Recommendation, ShouldEqual, model.RecommendAccept)
					So(app.Submissions[1].Evaluation.Recommendation, ShouldEqual, model.RecommendReject)
				case ProfileDecided:
					So(app.Decision, ShouldNotBeNil)
				}
			}
		})

		Convey("Then every score stays inside its criterion's range", func() {
			p := Generate(cfg, "run")
			bounds := map[string]model.Criterion{}
			for _, c := range p.Criteria {
				bounds[c.ID] = c
			}
			for _, app := range p.Applications {
				for _, s := range app.Submissions {
					for _, sc := range s.Evaluation.Scores {
						c := bounds[sc.CriterionID]
						So(sc.Score, ShouldBeBetweenOrEqual, c.MinScore, c.MaxScore)
					}
				}
			}
		})
	})
}

func TestVerifier(t *testing.T) {
	Convey("Given two completed evaluations", t, func() {
		criteria := criteriaFor("v")
		p := Plan{Criteria: criteria}
		app := Application{ID: "v-app", Panel: []string{"a", "b"}, Assigned: true}
		subs := []Submission{
			p.submission(&app, "a", 0.8, model.RecommendAccept, true),
			p.submission(&app, "b", 0.9, model.RecommendAccept, true),
		}
		weights := map[string]map[model.Category]float64{"a": {model.CategoryOverall: 1.7}}
		v := NewVerifier(weights, criteria, consensus.DefaultPolicy(), logger.Nop())

		want, err := v.Expect(context.Background(), app, subs, false)
		So(err, ShouldBeNil)

		Convey("Then the expected verdict is auto-resolved", func() {
			So(want.State, ShouldEqual, string(consensus.StateAutoResolved))
			So(want.Mean, ShouldAlmostEqual, 8.5, 1e-9)
			So(want.StdDev, ShouldAlmostEqual, 0.5, 1e-9)
			So(*want.Combined, ShouldAlmostEqual, (8*1.7+9)/2.7, 1e-9)
			So(want.Provisional, ShouldEqual, string(model.RecommendAccept))
		})

		Convey("Then an identical observation has no diff", func() {
			got := want
			got.Pending = []string{}
			So(diff(want, got), ShouldBeEmpty)
		})

		Convey("Then a different state is reported", func() {
			got := want
			got.State = string(consensus.StateNeedsConsensus)
			So(diff(want, got), ShouldContainSubstring, "NEEDS_CONSENSUS")
		})
	})
}

func TestCheckRanking(t *testing.T) {
	Convey("Given ranked lists", t, func() {
		f := func(v float64) *float64 { return &v }

		So(checkRanking(nil), ShouldBeTrue)
		So(checkRanking([]SummaryView{{CombinedScore: f(9)}, {CombinedScore: f(7)}, {}}), ShouldBeTrue)
		So(checkRanking([]SummaryView{{CombinedScore: f(7)}, {CombinedScore: f(9)}}), ShouldBeFalse)
		So(checkRanking([]SummaryView{{}, {CombinedScore: f(9)}}), ShouldBeFalse)
	})
}

func TestClient(t *testing.T) {
	Convey("Given a service that rejects a submission", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"bad_request","message":"score out of range"}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL+"/", time.Second)
		_, err := c.Submit(context.Background(), Submission{Evaluation: model.Evaluation{ApplicationID: "x"}})

		Convey("Then the API message is kept", func() {
			So(errors.Is(err, ErrStatus), ShouldBeTrue)
			So(strings.Contains(err.Error(), "score out of range"), ShouldBeTrue)
		})
	})
}
