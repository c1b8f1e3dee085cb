package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/panel/internal/domain/model"
	"github.com/okian/panel/pkg/metrics"
)

// Snapshot is an immutable, ranked view of every application summary.
type Snapshot struct {
	// Ordered holds ranked applications by combined score desc, then ID asc,
	// followed by unranked applications by ID.
	Ordered []model.ApplicationSummary
	ByID    map[string]int
}

// SummaryIndex keeps the latest summary per application. Writers rebuild a
// new Snapshot under a mutex; readers load it without locking.
type SummaryIndex struct {
	mu       sync.Mutex
	byID     map[string]model.ApplicationSummary
	snapshot atomic.Pointer[Snapshot]
}

// NewSummaryIndex creates an empty index.
func NewSummaryIndex() *SummaryIndex {
	idx := &SummaryIndex{byID: make(map[string]model.ApplicationSummary)}
	idx.snapshot.Store(&Snapshot{ByID: map[string]int{}})
	return idx
}

// Put stores s unless a summary with a later UpdatedAt is already present.
// Returns true if the index changed.
func (x *SummaryIndex) Put(_ context.Context, s model.ApplicationSummary) bool {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryLatency("summary", "put", float64(time.Since(start).Microseconds())/1000)
	}()

	x.mu.Lock()
	defer x.mu.Unlock()
	if old, ok := x.byID[s.ApplicationID]; ok && old.UpdatedAt.After(s.UpdatedAt) {
		return false
	}
	if s.CombinedScore != nil {
		v := *s.CombinedScore
		s.CombinedScore = &v
	}
	x.byID[s.ApplicationID] = s
	x.publish()
	metrics.UpdateApplicationsTracked(len(x.byID))
	return true
}

// Get returns the ranked summary of one application.
func (x *SummaryIndex) Get(_ context.Context, applicationID string) (model.ApplicationSummary, error) {
	snap := x.snapshot.Load()
	i, ok := snap.ByID[applicationID]
	if !ok {
		return model.ApplicationSummary{}, fmt.Errorf("summary %s: %w", applicationID, ErrNotFound)
	}
	return snap.Ordered[i], nil
}

// TopN returns up to n summaries in rank order.
func (x *SummaryIndex) TopN(_ context.Context, n int) ([]model.ApplicationSummary, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	snap := x.snapshot.Load()
	if n > len(snap.Ordered) {
		n = len(snap.Ordered)
	}
	return append([]model.ApplicationSummary(nil), snap.Ordered[:n]...), nil
}

// Count returns the number of tracked applications.
func (x *SummaryIndex) Count(_ context.Context) int {
	return len(x.snapshot.Load().Ordered)
}

// publish must be called with x.mu held.
func (x *SummaryIndex) publish() {
	ordered := make([]model.ApplicationSummary, 0, len(x.byID))
	for _, s := range x.byID {
		ordered = append(ordered, s)
	}
	sortSummaries(ordered)
	assignRanksWithTies(ordered)

	byID := make(map[string]int, len(ordered))
	for i, s := range ordered {
		byID[s.ApplicationID] = i
	}
	x.snapshot.Store(&Snapshot{Ordered: ordered, ByID: byID})
}

func sortSummaries(list []model.ApplicationSummary) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Ranked() != b.Ranked() {
			return a.Ranked()
		}
		if a.Ranked() && *a.CombinedScore != *b.CombinedScore {
			return *a.CombinedScore > *b.CombinedScore
		}
		return a.ApplicationID < b.ApplicationID
	})
}

// assignRanksWithTies gives equal scores the same rank and the next score the
// next consecutive rank. Unranked summaries get rank 0.
func assignRanksWithTies(list []model.ApplicationSummary) {
	rank := 0
	var prev float64
	for i := range list {
		if !list[i].Ranked() {
			list[i].Rank = 0
			continue
		}
		if rank == 0 || *list[i].CombinedScore != prev {
			rank++
			prev = *list[i].CombinedScore
		}
		list[i].Rank = rank
	}
}
