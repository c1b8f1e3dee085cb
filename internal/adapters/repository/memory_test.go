package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/panel/internal/domain/model"
)

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"r-1", "r-2"} {
		if err := s.CreateReviewer(ctx, model.Reviewer{ID: id, Name: id}); err != nil {
			t.Fatalf("create reviewer: %v", err)
		}
	}
	return s
}

func TestMemoryStore_Reviewers(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	if err := s.CreateReviewer(ctx, model.Reviewer{ID: "r-1"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := s.GetReviewer(ctx, "ghost"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	list, err := s.ListReviewers(ctx)
	if err != nil || len(list) != 2 || list[0].ID != "r-1" {
		t.Fatalf("unexpected reviewers %v (%v)", list, err)
	}
}

func TestMemoryStore_CompetencyUpsert(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	first := []model.Competency{{Category: model.CategoryTechnical, Level: 2, Weight: 0.8}}
	second := []model.Competency{{Category: model.CategoryTechnical, Level: 5, Weight: 1.7}}
	if err := s.ReplaceCompetencies(ctx, "r-1", first); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceCompetencies(ctx, "r-1", second); err != nil {
		t.Fatal(err)
	}

	list, _ := s.ListCompetencies(ctx, "r-1")
	if len(list) != 1 {
		t.Fatalf("expected one record per (reviewer, category), got %d", len(list))
	}
	if list[0].Weight != 1.7 || list[0].ReviewerID != "r-1" {
		t.Errorf("unexpected record %+v", list[0])
	}

	if err := s.ReplaceCompetencies(ctx, "ghost", first); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown reviewer, got %v", err)
	}

	_ = s.DeleteCompetency(ctx, "r-1", model.CategoryTechnical)
	if _, ok, _ := s.GetCompetency(ctx, "r-1", model.CategoryTechnical); ok {
		t.Error("competency still present after delete")
	}
}

func TestMemoryStore_Criteria(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, c := range []model.Criterion{
		{ID: "b", Stage: model.StageScreening, Order: 2, Active: true},
		{ID: "a", Stage: model.StageScreening, Order: 2, Active: true},
		{ID: "c", Stage: model.StageScreening, Order: 1, Active: false},
		{ID: "d", Stage: model.StageVideoReview, Order: 0, Active: true},
	} {
		if err := s.UpsertCriterion(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	got, _ := s.ListCriteria(ctx, CriteriaFilter{Stage: model.StageScreening, ActiveOnly: true})
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("unexpected filtered criteria %+v", got)
	}
	all, _ := s.ListCriteria(ctx, CriteriaFilter{})
	if len(all) != 4 || all[0].ID != "d" {
		t.Fatalf("unexpected criteria order %+v", all)
	}
}

func TestMemoryStore_EvaluationsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)
	score := 7.0
	now := time.Now()
	e := model.Evaluation{
		ID: "e-1", ApplicationID: "app-1", ReviewerID: "r-1",
		OverallScore: &score, CompletedAt: &now,
		Scores: []model.CriteriaScore{{CriterionID: "tech", Score: 7}},
	}
	if err := s.SaveEvaluation(ctx, e); err != nil {
		t.Fatal(err)
	}

	score = 1
	e.Scores[0].Score = 1

	got, err := s.GetEvaluation(ctx, "e-1")
	if err != nil {
		t.Fatal(err)
	}
	if *got.OverallScore != 7 || got.Scores[0].Score != 7 {
		t.Errorf("store shares memory with caller: %+v", got)
	}

	moved := e
	moved.ApplicationID = "app-2"
	if err := s.SaveEvaluation(ctx, moved); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict when moving an evaluation, got %v", err)
	}
}

func TestMemoryStore_CountsAndApplications(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)
	now := time.Now()

	_ = s.SaveEvaluation(ctx, model.Evaluation{ID: "e-2", ApplicationID: "app-1", ReviewerID: "r-1", CompletedAt: &now})
	_ = s.SaveEvaluation(ctx, model.Evaluation{ID: "e-1", ApplicationID: "app-1", ReviewerID: "r-1"})
	_ = s.SaveEvaluation(ctx, model.Evaluation{ID: "e-3", ApplicationID: "app-2", ReviewerID: "r-2", CompletedAt: &now})
	_ = s.AddAssignment(ctx, model.Assignment{ApplicationID: "app-3", ReviewerID: "r-2"})
	_ = s.AddAssignment(ctx, model.Assignment{ApplicationID: "app-3", ReviewerID: "r-2"})
	_ = s.SaveDecision(ctx, model.ConsensusDecision{ApplicationID: "app-4", FinalDecision: model.RecommendAccept})

	counts, _ := s.CountByReviewer(ctx)
	if counts["r-1"] != (ReviewerCounts{Total: 2, Completed: 1}) {
		t.Errorf("unexpected counts for r-1: %+v", counts["r-1"])
	}

	evals, _ := s.ListEvaluations(ctx, "app-1")
	if len(evals) != 2 || evals[0].ID != "e-1" {
		t.Errorf("evaluations not ordered by ID: %+v", evals)
	}

	apps, _ := s.ApplicationIDs(ctx)
	want := []string{"app-1", "app-2", "app-3", "app-4"}
	if len(apps) != len(want) {
		t.Fatalf("expected %v, got %v", want, apps)
	}
	for i := range want {
		if apps[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, apps)
		}
	}

	assigned, _ := s.ListAssignments(ctx, "app-3")
	if len(assigned) != 1 {
		t.Errorf("assignment is not idempotent: %+v", assigned)
	}
	if err := s.AddAssignment(ctx, model.Assignment{ApplicationID: "app-3", ReviewerID: "ghost"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown reviewer, got %v", err)
	}
}

func TestMemoryStore_DecisionReplaced(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_ = s.SaveDecision(ctx, model.ConsensusDecision{ApplicationID: "app-1", FinalDecision: model.RecommendReject})
	_ = s.SaveDecision(ctx, model.ConsensusDecision{ApplicationID: "app-1", FinalDecision: model.RecommendAccept})

	d, ok, err := s.GetDecision(ctx, "app-1")
	if err != nil || !ok {
		t.Fatalf("decision missing: %v", err)
	}
	if d.FinalDecision != model.RecommendAccept {
		t.Errorf("current decision should win, got %s", d.FinalDecision)
	}
	if _, ok, _ := s.GetDecision(ctx, "app-2"); ok {
		t.Error("unexpected decision for app-2")
	}
}

func TestMemoryStore_ConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			score := float64(i % 10)
			now := time.Now()
			_ = s.SaveEvaluation(ctx, model.Evaluation{
				ID: "e-shared", ApplicationID: "app-1", ReviewerID: "r-1",
				OverallScore: &score, CompletedAt: &now,
			})
			_, _ = s.ListEvaluations(ctx, "app-1")
		}(i)
	}
	wg.Wait()

	evals, _ := s.ListEvaluations(ctx, "app-1")
	if len(evals) != 1 {
		t.Fatalf("last write should win on a single row, got %d rows", len(evals))
	}
}
