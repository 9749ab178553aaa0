package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"gamification-service/internal/app"
	"gamification-service/internal/domain"
	"gamification-service/internal/logging"
)

// ErrTxConflict is returned when optimistic retries are exhausted.
var ErrTxConflict = errors.New("redis: too many concurrent updates for user")

const defaultMaxRetries = 25

// Store is a Redis implementation of app.Store.
//
// Layout:
//
//	gamification:aggregate:{user}          JSON aggregate
//	gamification:progress:{user}           HASH contentID -> JSON progress record
//	gamification:leaderboard:points        ZSET user -> total points
//	gamification:progress-users:{type}     SET of users with progress of that type
//
// Per-user transactions WATCH the user's aggregate and progress keys and
// apply staged writes in MULTI/EXEC, retrying when another writer wins.
type Store struct {
	client     *redis.Client
	log        *logrus.Entry
	maxRetries int

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewStore(client *redis.Client, log *logrus.Entry) *Store {
	return &Store{
		client:     client,
		log:        log,
		maxRetries: defaultMaxRetries,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (s *Store) aggregateKey(userID string) string { return "gamification:aggregate:" + userID }
func (s *Store) progressKey(userID string) string  { return "gamification:progress:" + userID }
func (s *Store) leaderboardKey() string            { return "gamification:leaderboard:points" }
func (s *Store) typeIndexKey(t domain.ContentType) string {
	return "gamification:progress-users:" + string(t)
}

// userLock keeps same-process writers for one user from spinning on WATCH conflicts.
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

	log := logging.Component(ctx, s.log, "redis_store").WithField("user_id", userID)
	keys := []string{s.aggregateKey(userID), s.progressKey(userID)}
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &userTx{store: s, rtx: rtx, userID: userID, progress: make(map[string]domain.ProgressRecord)}
			if err := fn(tx); err != nil {
				return err
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return tx.flush(ctx, pipe)
			})
			return err
		}, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			log.WithField("attempt", attempt+1).Debug("watch conflict, retrying")
			continue
		}
		return err
	}
	return ErrTxConflict
}

func (s *Store) CreateAggregate(ctx context.Context, agg domain.Aggregate) error {
	raw, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("marshal aggregate: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.aggregateKey(agg.UserID), raw, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAggregateExists
	}
	return s.client.ZAdd(ctx, s.leaderboardKey(), redis.Z{Score: float64(agg.TotalPoints), Member: agg.UserID}).Err()
}

func (s *Store) GetAggregate(ctx context.Context, userID string) (domain.Aggregate, error) {
	return readAggregate(ctx, s.client, s.aggregateKey(userID))
}

// TopAggregates orders by points desc, user id asc. ZREVRANGE breaks ties by
// reverse member order, so every member tied with the last score at the cut-off
// is fetched before sorting and truncating.
func (s *Store) TopAggregates(ctx context.Context, limit int) ([]domain.Aggregate, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ranked, err := s.client.ZRevRangeWithScores(ctx, s.leaderboardKey(), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, nil
	}
	if limit > 0 && len(ranked) == limit {
		cutoff := strconv.FormatFloat(ranked[len(ranked)-1].Score, 'f', -1, 64)
		ranked, err = s.client.ZRevRangeByScoreWithScores(ctx, s.leaderboardKey(), &redis.ZRangeBy{
			Min: cutoff,
			Max: "+inf",
		}).Result()
		if err != nil {
			return nil, err
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return fmt.Sprint(ranked[i].Member) < fmt.Sprint(ranked[j].Member)
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	users := make([]string, len(ranked))
	for i, z := range ranked {
		users[i] = fmt.Sprint(z.Member)
	}

	keys := make([]string, len(users))
	for i, u := range users {
		keys[i] = s.aggregateKey(u)
	}
	raws, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Aggregate, 0, len(raws))
	for _, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var agg domain.Aggregate
		if err := json.Unmarshal([]byte(str), &agg); err != nil {
			return nil, fmt.Errorf("decode aggregate: %w", err)
		}
		out = append(out, agg)
	}
	return out, nil
}

func (s *Store) ListProgress(ctx context.Context, userID string) ([]domain.ProgressRecord, error) {
	byContent, err := readProgress(ctx, s.client, s.progressKey(userID))
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProgressRecord, 0, len(byContent))
	for _, p := range byContent {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastCompletedAt.Equal(out[j].LastCompletedAt) {
			return out[i].LastCompletedAt.After(out[j].LastCompletedAt)
		}
		return out[i].ContentID < out[j].ContentID
	})
	return out, nil
}

func (s *Store) ListProgressByType(ctx context.Context, contentType domain.ContentType) ([]domain.ProgressRecord, error) {
	users, err := s.client.SMembers(ctx, s.typeIndexKey(contentType)).Result()
	if err != nil || len(users) == 0 {
		return nil, err
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(users))
	for i, u := range users {
		cmds[i] = pipe.HGetAll(ctx, s.progressKey(u))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	var out []domain.ProgressRecord
	for _, cmd := range cmds {
		for _, raw := range cmd.Val() {
			var p domain.ProgressRecord
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				return nil, fmt.Errorf("decode progress: %w", err)
			}
			if p.ContentType == contentType {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

type userTx struct {
	store     *Store
	rtx       *redis.Tx
	userID    string
	progress  map[string]domain.ProgressRecord
	aggregate *domain.Aggregate
}

func (t *userTx) UpsertProgress(ctx context.Context, userID string, content domain.Content, score, maxScore float64, at time.Time) (domain.ProgressRecord, error) {
	p, ok := t.progress[content.ID]
	if !ok {
		raw, err := t.rtx.HGet(ctx, t.store.progressKey(userID), content.ID).Result()
		switch {
		case errors.Is(err, redis.Nil):
			p = domain.ProgressRecord{UserID: userID, ContentID: content.ID}
		case err != nil:
			return domain.ProgressRecord{}, err
		default:
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				return domain.ProgressRecord{}, fmt.Errorf("decode progress: %w", err)
			}
		}
	}
	p.ContentType = content.Type
	p = p.Apply(score, maxScore, at)
	t.progress[content.ID] = p
	return p, nil
}

func (t *userTx) records(ctx context.Context, userID string) (map[string]domain.ProgressRecord, error) {
	stored, err := readProgress(ctx, t.rtx, t.store.progressKey(userID))
	if err != nil {
		return nil, err
	}
	if userID == t.userID {
		for id, p := range t.progress {
			stored[id] = p
		}
	}
	return stored, nil
}

func (t *userTx) CountByUserAndType(ctx context.Context, userID string, contentType domain.ContentType) (int, error) {
	records, err := t.records(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range records {
		if p.ContentType == contentType {
			n++
		}
	}
	return n, nil
}

func (t *userTx) CountByUserWithScoreAtLeast(ctx context.Context, userID string, threshold float64) (int, error) {
	records, err := t.records(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range records {
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
	return readAggregate(ctx, t.rtx, t.store.aggregateKey(userID))
}

func (t *userTx) SaveAggregate(_ context.Context, agg domain.Aggregate) error {
	staged := agg.Clone()
	t.aggregate = &staged
	return nil
}

func (t *userTx) flush(ctx context.Context, pipe redis.Pipeliner) error {
	for id, p := range t.progress {
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal progress: %w", err)
		}
		pipe.HSet(ctx, t.store.progressKey(t.userID), id, raw)
		pipe.SAdd(ctx, t.store.typeIndexKey(p.ContentType), t.userID)
	}
	if t.aggregate != nil {
		raw, err := json.Marshal(t.aggregate)
		if err != nil {
			return fmt.Errorf("marshal aggregate: %w", err)
		}
		pipe.Set(ctx, t.store.aggregateKey(t.userID), raw, 0)
		pipe.ZAdd(ctx, t.store.leaderboardKey(), redis.Z{Score: float64(t.aggregate.TotalPoints), Member: t.userID})
	}
	return nil
}

// reader is satisfied by both *redis.Client and *redis.Tx.
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func readAggregate(ctx context.Context, c reader, key string) (domain.Aggregate, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Aggregate{}, domain.ErrAggregateNotFound
	}
	if err != nil {
		return domain.Aggregate{}, err
	}
	var agg domain.Aggregate
	if err := json.Unmarshal(raw, &agg); err != nil {
		return domain.Aggregate{}, fmt.Errorf("decode aggregate: %w", err)
	}
	if agg.Badges == nil {
		agg.Badges = domain.BadgeSet{}
	}
	return agg, nil
}

func readProgress(ctx context.Context, c reader, key string) (map[string]domain.ProgressRecord, error) {
	raws, err := c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.ProgressRecord, len(raws))
	for id, raw := range raws {
		var p domain.ProgressRecord
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode progress: %w", err)
		}
		out[id] = p
	}
	return out, nil
}
