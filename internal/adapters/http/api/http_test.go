package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/panel/internal/adapters/http/api"
	"github.com/okian/panel/internal/adapters/repository"
	service "github.com/okian/panel/internal/app"
	"github.com/okian/panel/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func newMux(opts ...api.Option) *http.ServeMux {
	svc := service.New(repository.NewMemoryStore(), service.WithLogger(logger.Nop()))
	opts = append([]api.Option{api.WithLogger(logger.Nop())}, opts...)
	mux := http.NewServeMux()
	api.NewServer(svc, opts...).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeBody(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func seedPanel(mux *http.ServeMux) {
	for _, body := range []string{
		`{"id":"r-1","name":"Ada"}`,
		`{"id":"r-2","name":"Grace"}`,
	} {
		So(do(mux, "POST", "/reviewers", body).Code, ShouldEqual, http.StatusCreated)
	}
	w := do(mux, "POST", "/criteria", `{"id":"tech","name":"Technical depth","category":"technical",
		"stage":"screening","min_score":0,"max_score":10}`)
	So(w.Code, ShouldEqual, http.StatusOK)
}

func evaluation(reviewer string, score int, rec string) string {
	return `{"application_id":"app-1","reviewer_id":"` + reviewer + `","stage":"SCREENING",` +
		`"scores":[{"criterion_id":"tech","score":` + itoa(score) + `}],` +
		`"recommendation":"` + rec + `","confidence":4,"complete":true}`
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux()

		Convey("When scraping the health endpoint", func() {
			w := do(mux, "GET", "/healthz", "")

			Convey("Then Prometheus metrics are served", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "panel_")
			})
		})

		Convey("When reading stats", func() {
			w := do(mux, "GET", "/stats", "")

			Convey("Then service statistics are returned as JSON", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
				So(decodeBody(w)["store"], ShouldEqual, "memory")
			})
		})

		Convey("When using the wrong method", func() {
			w := do(mux, "DELETE", "/evaluations", "")

			Convey("Then the mux rejects it", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})

		Convey("When registering on a nil mux", func() {
			Convey("Then it panics", func() {
				So(func() {
					api.NewServer(service.New(repository.NewMemoryStore(), service.WithLogger(logger.Nop())),
						api.WithLogger(logger.Nop())).Register(context.Background(), nil)
				}, ShouldPanic)
			})
		})
	})
}

func TestReviewersEndpoints(t *testing.T) {
	Convey("Given a seeded panel", t, func() {
		mux := newMux()
		seedPanel(mux)

		Convey("When registering a reviewer without a name", func() {
			w := do(mux, "POST", "/reviewers", `{"id":"r-3"}`)

			Convey("Then validation fails with 400", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeBody(w)["message"], ShouldContainSubstring, "name")
			})
		})

		Convey("When registering an existing ID", func() {
			w := do(mux, "POST", "/reviewers", `{"id":"r-1","name":"Again"}`)

			Convey("Then it conflicts", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
			})
		})

		Convey("When setting competencies with one bad entry", func() {
			w := do(mux, "PUT", "/reviewers/r-1/competencies",
				`{"competencies":[{"category":"technical","level":7},{"category":"cooking","level":2}]}`)

			Convey("Then each entry reports its own outcome", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				results := decodeBody(w)["results"].([]any)
				So(results, ShouldHaveLength, 2)
				first := results[0].(map[string]any)
				So(first["applied"], ShouldBeTrue)
				So(first["clamped"], ShouldBeTrue)
				So(first["level"], ShouldEqual, 5.0)
				So(first["weight"], ShouldEqual, 1.7)
				second := results[1].(map[string]any)
				So(second["applied"], ShouldBeFalse)
				So(second["error"], ShouldContainSubstring, "invalid category")
			})

			Convey("And the reviewer list shows the competency", func() {
				w := do(mux, "GET", "/reviewers", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var list []map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &list), ShouldBeNil)
				So(list, ShouldHaveLength, 2)
				So(list[0]["id"], ShouldEqual, "r-1")
				So(list[0]["competencies"], ShouldHaveLength, 1)
			})

			Convey("And it can be removed", func() {
				So(do(mux, "DELETE", "/reviewers/r-1/competencies/technical", "").Code, ShouldEqual, http.StatusNoContent)
			})
		})

		Convey("When setting competencies for an unknown reviewer", func() {
			w := do(mux, "PUT", "/reviewers/ghost/competencies", `{"competencies":[{"category":"technical","level":3}]}`)

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When removing a competency with an unknown category", func() {
			w := do(mux, "DELETE", "/reviewers/r-1/competencies/cooking", "")

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When storing a criterion with inverted bounds", func() {
			w := do(mux, "POST", "/criteria", `{"id":"bad","name":"Bad","category":"project","stage":"SCREENING","min_score":5,"max_score":1}`)

			Convey("Then validation fails", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When listing criteria by stage", func() {
			w := do(mux, "GET", "/criteria?stage=screening", "")
			other := do(mux, "GET", "/criteria?stage=video_review", "")
			bad := do(mux, "GET", "/criteria?stage=lunch", "")

			Convey("Then only that stage is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var list []map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &list), ShouldBeNil)
				So(list, ShouldHaveLength, 1)
				So(list[0]["weight"], ShouldEqual, 1.0)
				So(list[0]["active"], ShouldBeTrue)
				So(strings.TrimSpace(other.Body.String()), ShouldEqual, "[]")
				So(bad.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestEvaluationEndpoints(t *testing.T) {
	Convey("Given a seeded panel", t, func() {
		mux := newMux()
		seedPanel(mux)

		Convey("When submitting a valid evaluation", func() {
			w := do(mux, "POST", "/evaluations", evaluation("r-1", 8, "ACCEPT"))

			Convey("Then it is stored with its overall score", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				body := decodeBody(w)
				So(body["status"], ShouldEqual, "stored")
				e := body["evaluation"].(map[string]any)
				So(e["overall_score"], ShouldAlmostEqual, 8.0, 1e-9)
				So(e["source"], ShouldEqual, "human")
			})
		})

		Convey("When the same submission_id is posted twice", func() {
			body := `{"submission_id":"s-1","application_id":"app-1","reviewer_id":"r-1","stage":"SCREENING",` +
				`"scores":[{"criterion_id":"tech","score":6}],"recommendation":"waitlist","complete":true}`
			first := do(mux, "POST", "/evaluations", body)
			second := do(mux, "POST", "/evaluations", body)

			Convey("Then the retry is acknowledged as a duplicate", func() {
				So(first.Code, ShouldEqual, http.StatusCreated)
				So(second.Code, ShouldEqual, http.StatusOK)
				b := decodeBody(second)
				So(b["duplicate"], ShouldBeTrue)
				So(b["evaluation"].(map[string]any)["id"], ShouldEqual,
					decodeBody(first)["evaluation"].(map[string]any)["id"])
			})
		})

		Convey("When a score is outside its criterion's range", func() {
			w := do(mux, "POST", "/evaluations", evaluation("r-1", 11, "ACCEPT"))

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeBody(w)["message"], ShouldContainSubstring, "out of range")
			})
		})

		Convey("When the reviewer is unknown", func() {
			w := do(mux, "POST", "/evaluations", evaluation("ghost", 5, "ACCEPT"))

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(mux, "POST", "/evaluations", `{broken`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeBody(w)["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When confidence is out of range", func() {
			w := do(mux, "POST", "/evaluations", `{"application_id":"app-1","reviewer_id":"r-1","stage":"SCREENING","confidence":9}`)

			Convey("Then validation names the field", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeBody(w)["message"], ShouldContainSubstring, "confidence")
			})
		})

		Convey("When an AI response is submitted", func() {
			raw := "```json\n{\"scores\":[{\"criterion_id\":\"tech\",\"score\":7}],\"recommendation\":\"ACCEPT\",\"confidence\":3}\n```"
			payload, _ := json.Marshal(map[string]string{"reviewer_id": "r-2", "stage": "SCREENING", "response": raw})
			w := do(mux, "POST", "/applications/app-1/ai-evaluations", string(payload))

			Convey("Then it is stored as an AI evaluation", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				e := decodeBody(w)["evaluation"].(map[string]any)
				So(e["source"], ShouldEqual, "ai")
				So(e["application_id"], ShouldEqual, "app-1")
			})
		})

		Convey("When an AI response violates the schema", func() {
			payload, _ := json.Marshal(map[string]string{
				"reviewer_id": "r-2", "stage": "SCREENING", "response": `{"scores":[],"recommendation":"MAYBE","confidence":9}`,
			})
			w := do(mux, "POST", "/applications/app-1/ai-evaluations", string(payload))

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When asking for the AI prompt", func() {
			w := do(mux, "POST", "/applications/app-1/ai-prompt", `{"stage":"SCREENING","applicant":"Ada","answers":{"why":"curiosity"}}`)

			Convey("Then the prompt lists the stage criteria and answers", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decodeBody(w)
				So(body["user"], ShouldContainSubstring, "tech")
				So(body["user"], ShouldContainSubstring, "curiosity")
			})
		})
	})
}

func TestApplicationEndpoints(t *testing.T) {
	Convey("Given two reviewers who disagree on an application", t, func() {
		mux := newMux(api.WithMaxLimit(10))
		seedPanel(mux)
		So(do(mux, "POST", "/evaluations", evaluation("r-1", 3, "REJECT")).Code, ShouldEqual, http.StatusCreated)
		So(do(mux, "POST", "/evaluations", evaluation("r-2", 9, "ACCEPT")).Code, ShouldEqual, http.StatusCreated)

		Convey("When reading the evaluation history", func() {
			w := do(mux, "GET", "/applications/app-1/evaluations", "")

			Convey("Then the analysis calls for consensus", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decodeBody(w)
				So(body["evaluations"], ShouldHaveLength, 2)
				a := body["analysis"].(map[string]any)
				So(a["state"], ShouldEqual, "NEEDS_CONSENSUS")
				So(a["next_action"], ShouldEqual, "schedule_consensus")
				So(a["agreement"], ShouldAlmostEqual, 48.5, 1e-9)
				So(a["std_dev"], ShouldAlmostEqual, 3.0, 1e-9)
				c := body["combined"].(map[string]any)
				So(c["score"], ShouldAlmostEqual, 6.0, 1e-9)
				So(c["status"], ShouldEqual, "ok")
			})
		})

		Convey("When a decision is recorded", func() {
			w := do(mux, "POST", "/applications/app-1/decision", `{"final_decision":"accept","decided_by":"chair","consensus_score":7.5}`)

			Convey("Then the summary reports it", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decodeBody(w)["final_decision"], ShouldEqual, "ACCEPT")
				s := do(mux, "GET", "/applications/app-1/summary", "")
				So(s.Code, ShouldEqual, http.StatusOK)
				body := decodeBody(s)
				So(body["state"], ShouldEqual, "DECIDED")
				So(body["decision"], ShouldEqual, "ACCEPT")
			})
		})

		Convey("When a decision names an unknown application", func() {
			w := do(mux, "POST", "/applications/ghost/decision", `{"final_decision":"ACCEPT","decided_by":"chair"}`)

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(do(mux, "GET", "/applications/ghost/summary", "").Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When a decision is missing its author", func() {
			w := do(mux, "POST", "/applications/app-1/decision", `{"final_decision":"ACCEPT"}`)

			Convey("Then validation fails", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When a consensus score is off the scale", func() {
			w := do(mux, "POST", "/applications/app-1/decision", `{"final_decision":"ACCEPT","decided_by":"chair","consensus_score":42}`)

			Convey("Then it is out of range", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When listing ranked applications", func() {
			w := do(mux, "GET", "/applications?limit=5", "")
			tooMany := do(mux, "GET", "/applications?limit=11", "")
			bad := do(mux, "GET", "/applications?limit=zero", "")

			Convey("Then the ranking and limits are enforced", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var list []map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &list), ShouldBeNil)
				So(list, ShouldHaveLength, 1)
				So(list[0]["rank"], ShouldEqual, 1.0)
				So(tooMany.Code, ShouldEqual, http.StatusBadRequest)
				So(bad.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When assigning reviewers", func() {
			ok := do(mux, "POST", "/applications/app-2/assignments", `{"reviewer_id":"r-1"}`)
			missing := do(mux, "POST", "/applications/app-2/assignments", `{"reviewer_id":"ghost"}`)

			Convey("Then known reviewers are assigned and the application waits for them", func() {
				So(ok.Code, ShouldEqual, http.StatusCreated)
				So(missing.Code, ShouldEqual, http.StatusNotFound)
				s := do(mux, "GET", "/applications/app-2/summary", "")
				So(s.Code, ShouldEqual, http.StatusOK)
				So(decodeBody(s)["state"], ShouldEqual, "NO_EVALUATIONS")
			})
		})

		Convey("When requesting an unknown application", func() {
			w := do(mux, "GET", "/applications/nope/summary", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When requesting a recompute before the workers run", func() {
			w := do(mux, "POST", "/applications/app-1/recompute", "")

			Convey("Then the service is unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})
	})
}
