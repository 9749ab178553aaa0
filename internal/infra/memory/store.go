package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"gamification-service/internal/app"
	"gamification-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. Transactions for the
// same user are serialized by a per-user mutex; different users never block
// each other beyond the brief map access.
type Store struct {
	mu         sync.RWMutex
	aggregates map[string]domain.Aggregate
	progress   map[string]map[string]domain.ProgressRecord // user -> content -> record

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		aggregates: make(map[string]domain.Aggregate),
		progress:   make(map[string]map[string]domain.ProgressRecord),
		locks:      make(map[string]*sync.Mutex),
	}
}

func (s *Store) userLock(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *Store) WithinUserTx(ctx context.Context, userID string, fn func(tx app.UserTx) error) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	tx := &userTx{store: s, userID: userID, progress: make(map[string]domain.ProgressRecord)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) CreateAggregate(_ context.Context, agg domain.Aggregate) error {
	lock := s.userLock(agg.UserID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.aggregates[agg.UserID]; ok {
		return domain.ErrAggregateExists
	}
	s.aggregates[agg.UserID] = agg.Clone()
	return nil
}

func (s *Store) GetAggregate(_ context.Context, userID string) (domain.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.aggregates[userID]
	if !ok {
		return domain.Aggregate{}, domain.ErrAggregateNotFound
	}
	return agg.Clone(), nil
}

func (s *Store) TopAggregates(_ context.Context, limit int) ([]domain.Aggregate, error) {
	s.mu.RLock()
	out := make([]domain.Aggregate, 0, len(s.aggregates))
	for _, agg := range s.aggregates {
		out = append(out, agg.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPoints != out[j].TotalPoints {
			return out[i].TotalPoints > out[j].TotalPoints
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListProgress(_ context.Context, userID string) ([]domain.ProgressRecord, error) {
	s.mu.RLock()
	out := make([]domain.ProgressRecord, 0, len(s.progress[userID]))
	for _, p := range s.progress[userID] {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastCompletedAt.Equal(out[j].LastCompletedAt) {
			return out[i].LastCompletedAt.After(out[j].LastCompletedAt)
		}
		return out[i].ContentID < out[j].ContentID
	})
	return out, nil
}

func (s *Store) ListProgressByType(_ context.Context, contentType domain.ContentType) ([]domain.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ProgressRecord
	for _, byContent := range s.progress {
		for _, p := range byContent {
			if p.ContentType == contentType {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

// userTx stages writes until the transaction function returns without error.
type userTx struct {
	store     *Store
	userID    string
	progress  map[string]domain.ProgressRecord
	aggregate *domain.Aggregate
}

func (t *userTx) record(userID, contentID string) (domain.ProgressRecord, bool) {
	if p, ok := t.progress[contentID]; ok && userID == t.userID {
		return p, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	p, ok := t.store.progress[userID][contentID]
	return p, ok
}

func (t *userTx) UpsertProgress(_ context.Context, userID string, content domain.Content, score, maxScore float64, at time.Time) (domain.ProgressRecord, error) {
	p, ok := t.record(userID, content.ID)
	if !ok {
		p = domain.ProgressRecord{UserID: userID, ContentID: content.ID}
	}
	p.ContentType = content.Type
	p = p.Apply(score, maxScore, at)
	t.progress[content.ID] = p
	return p, nil
}

func (t *userTx) records(userID string) map[string]domain.ProgressRecord {
	t.store.mu.RLock()
	merged := make(map[string]domain.ProgressRecord, len(t.store.progress[userID])+len(t.progress))
	for id, p := range t.store.progress[userID] {
		merged[id] = p
	}
	t.store.mu.RUnlock()
	if userID == t.userID {
		for id, p := range t.progress {
			merged[id] = p
		}
	}
	return merged
}

func (t *userTx) CountByUserAndType(_ context.Context, userID string, contentType domain.ContentType) (int, error) {
	n := 0
	for _, p := range t.records(userID) {
		if p.ContentType == contentType {
			n++
		}
	}
	return n, nil
}

func (t *userTx) CountByUserWithScoreAtLeast(_ context.Context, userID string, threshold float64) (int, error) {
	n := 0
	for _, p := range t.records(userID) {
		if p.BestScore >= threshold {
			n++
		}
	}
	return n, nil
}

func (t *userTx) GetAggregate(ctx context.Context, userID string) (domain.Aggregate, error) {
	if t.aggregate != nil && userID == t.userID {
		return t.aggregate.Clone(), nil
	}
	return t.store.GetAggregate(ctx, userID)
}

func (t *userTx) SaveAggregate(_ context.Context, agg domain.Aggregate) error {
	staged := agg.Clone()
	t.aggregate = &staged
	return nil
}

func (t *userTx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if len(t.progress) > 0 {
		byContent, ok := t.store.progress[t.userID]
		if !ok {
			byContent = make(map[string]domain.ProgressRecord)
			t.store.progress[t.userID] = byContent
		}
		for id, p := range t.progress {
			byContent[id] = p
		}
	}
	if t.aggregate != nil {
		t.store.aggregates[t.userID] = *t.aggregate
	}
}
