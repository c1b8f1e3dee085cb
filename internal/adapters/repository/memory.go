package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/panel/internal/domain/model"
	"github.com/okian/panel/pkg/metrics"
)

const memoryBackend = "memory"

type competencyKey struct {
	reviewerID string
	category   model.Category
}

// MemoryStore is an in-process Store. Every method copies values in and out,
// so callers never share slices with the store.
type MemoryStore struct {
	mu           sync.RWMutex
	reviewers    map[string]model.Reviewer
	competencies map[competencyKey]model.Competency
	criteria     map[string]model.Criterion
	evaluations  map[string]model.Evaluation
	byApp        map[string]map[string]struct{}
	assignments  map[string]map[string]model.Assignment
	decisions    map[string]model.ConsensusDecision
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reviewers:    make(map[string]model.Reviewer),
		competencies: make(map[competencyKey]model.Competency),
		criteria:     make(map[string]model.Criterion),
		evaluations:  make(map[string]model.Evaluation),
		byApp:        make(map[string]map[string]struct{}),
		assignments:  make(map[string]map[string]model.Assignment),
		decisions:    make(map[string]model.ConsensusDecision),
	}
}

var _ Store = (*MemoryStore)(nil)

func observe(op string, start time.Time) {
	metrics.RecordRepositoryLatency(memoryBackend, op, float64(time.Since(start).Microseconds())/1000)
}

// Backend implements Store.
func (s *MemoryStore) Backend() string { return memoryBackend }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// CreateReviewer implements ReviewerStore.
func (s *MemoryStore) CreateReviewer(_ context.Context, r model.Reviewer) error {
	defer observe("create_reviewer", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reviewers[r.ID]; ok {
		return fmt.Errorf("reviewer %s: %w", r.ID, ErrConflict)
	}
	s.reviewers[r.ID] = r
	return nil
}

// GetReviewer implements ReviewerStore.
func (s *MemoryStore) GetReviewer(_ context.Context, id string) (model.Reviewer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reviewers[id]
	if !ok {
		return model.Reviewer{}, fmt.Errorf("reviewer %s: %w", id, ErrNotFound)
	}
	return r, nil
}

// ListReviewers implements ReviewerStore, ordered by ID.
func (s *MemoryStore) ListReviewers(_ context.Context) ([]model.Reviewer, error) {
	defer observe("list_reviewers", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Reviewer, 0, len(s.reviewers))
	for _, r := range s.reviewers {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ReviewerExists implements ReviewerStore.
func (s *MemoryStore) ReviewerExists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.reviewers[id]
	return ok, nil
}

// ReplaceCompetencies implements ReviewerStore.
func (s *MemoryStore) ReplaceCompetencies(_ context.Context, reviewerID string, records []model.Competency) error {
	defer observe("replace_competencies", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reviewers[reviewerID]; !ok {
		return fmt.Errorf("reviewer %s: %w", reviewerID, ErrNotFound)
	}
	for _, c := range records {
		c.ReviewerID = reviewerID
		s.competencies[competencyKey{reviewerID, c.Category}] = c
	}
	return nil
}

// GetCompetency implements ReviewerStore.
func (s *MemoryStore) GetCompetency(_ context.Context, reviewerID string, category model.Category) (model.Competency, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.competencies[competencyKey{reviewerID, category}]
	return c, ok, nil
}

// DeleteCompetency implements ReviewerStore.
func (s *MemoryStore) DeleteCompetency(_ context.Context, reviewerID string, category model.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.competencies, competencyKey{reviewerID, category})
	return nil
}

// ListCompetencies implements ReviewerStore, in category order.
func (s *MemoryStore) ListCompetencies(_ context.Context, reviewerID string) ([]model.Competency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Competency
	for _, cat := range model.Categories {
		if c, ok := s.competencies[competencyKey{reviewerID, cat}]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// UpsertCriterion implements CriteriaStore.
func (s *MemoryStore) UpsertCriterion(_ context.Context, c model.Criterion) error {
	defer observe("upsert_criterion", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.criteria[c.ID] = c
	return nil
}

// ListCriteria implements CriteriaStore.
func (s *MemoryStore) ListCriteria(_ context.Context, f CriteriaFilter) ([]model.Criterion, error) {
	defer observe("list_criteria", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Criterion, 0, len(s.criteria))
	for _, c := range s.criteria {
		if f.Stage != "" && c.Stage != f.Stage {
			continue
		}
		if f.ActiveOnly && !c.Active {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SaveEvaluation implements EvaluationStore.
func (s *MemoryStore) SaveEvaluation(_ context.Context, e model.Evaluation) error {
	defer observe("save_evaluation", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.evaluations[e.ID]; ok && old.ApplicationID != e.ApplicationID {
		return fmt.Errorf("evaluation %s belongs to %s: %w", e.ID, old.ApplicationID, ErrConflict)
	}
	s.evaluations[e.ID] = cloneEvaluation(e)
	ids, ok := s.byApp[e.ApplicationID]
	if !ok {
		ids = make(map[string]struct{})
		s.byApp[e.ApplicationID] = ids
	}
	ids[e.ID] = struct{}{}
	return nil
}

// GetEvaluation implements EvaluationStore.
func (s *MemoryStore) GetEvaluation(_ context.Context, id string) (model.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.evaluations[id]
	if !ok {
		return model.Evaluation{}, fmt.Errorf("evaluation %s: %w", id, ErrNotFound)
	}
	return cloneEvaluation(e), nil
}

// ListEvaluations implements EvaluationStore.
func (s *MemoryStore) ListEvaluations(_ context.Context, applicationID string) ([]model.Evaluation, error) {
	defer observe("list_evaluations", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byApp[applicationID]
	out := make([]model.Evaluation, 0, len(ids))
	for id := range ids {
		out = append(out, cloneEvaluation(s.evaluations[id]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CountByReviewer implements EvaluationStore.
func (s *MemoryStore) CountByReviewer(_ context.Context) (map[string]ReviewerCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ReviewerCounts)
	for _, e := range s.evaluations {
		c := out[e.ReviewerID]
		c.Total++
		if e.Completed() {
			c.Completed++
		}
		out[e.ReviewerID] = c
	}
	return out, nil
}

// ApplicationIDs implements EvaluationStore.
func (s *MemoryStore) ApplicationIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[string]struct{}, len(s.byApp)+len(s.assignments)+len(s.decisions))
	for id := range s.byApp {
		set[id] = struct{}{}
	}
	for id := range s.assignments {
		set[id] = struct{}{}
	}
	for id := range s.decisions {
		set[id] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// AddAssignment implements AssignmentStore.
func (s *MemoryStore) AddAssignment(_ context.Context, a model.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reviewers[a.ReviewerID]; !ok {
		return fmt.Errorf("reviewer %s: %w", a.ReviewerID, ErrNotFound)
	}
	byReviewer, ok := s.assignments[a.ApplicationID]
	if !ok {
		byReviewer = make(map[string]model.Assignment)
		s.assignments[a.ApplicationID] = byReviewer
	}
	if _, exists := byReviewer[a.ReviewerID]; !exists {
		byReviewer[a.ReviewerID] = a
	}
	return nil
}

// ListAssignments implements AssignmentStore, ordered by reviewer ID.
func (s *MemoryStore) ListAssignments(_ context.Context, applicationID string) ([]model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Assignment, 0, len(s.assignments[applicationID]))
	for _, a := range s.assignments[applicationID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReviewerID < out[j].ReviewerID })
	return out, nil
}

// SaveDecision implements DecisionStore. A newer decision replaces the old one.
func (s *MemoryStore) SaveDecision(_ context.Context, d model.ConsensusDecision) error {
	defer observe("save_decision", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ConsensusScore != nil {
		v := *d.ConsensusScore
		d.ConsensusScore = &v
	}
	s.decisions[d.ApplicationID] = d
	return nil
}

// GetDecision implements DecisionStore.
func (s *MemoryStore) GetDecision(_ context.Context, applicationID string) (model.ConsensusDecision, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[applicationID]
	if ok && d.ConsensusScore != nil {
		v := *d.ConsensusScore
		d.ConsensusScore = &v
	}
	return d, ok, nil
}

func cloneEvaluation(e model.Evaluation) model.Evaluation {
	if e.OverallScore != nil {
		v := *e.OverallScore
		e.OverallScore = &v
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		e.CompletedAt = &t
	}
	e.Scores = append([]model.CriteriaScore(nil), e.Scores...)
	e.Comments = append([]model.Comment(nil), e.Comments...)
	return e
}
