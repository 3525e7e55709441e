package repository

import (
	"context"

	"conqueroj/internal/common/cache"
	"conqueroj/pkg/errors"
)

const (
	leaderboardKey  = "judge:leaderboard"
	solvedKeyPrefix = "judge:solved:"
)

// LeaderboardRepository keeps user scores in a Redis sorted set and the set
// of problems each user solved. The SQL users table stays authoritative; the
// Redis structures only serve ranking reads.
type LeaderboardRepository struct {
	cache cache.Cache
}

func NewLeaderboardRepository(c cache.Cache) *LeaderboardRepository {
	return &LeaderboardRepository{cache: c}
}

func solvedKey(userID string) string {
	return solvedKeyPrefix + userID
}

// RecordAccept applies a first accept: the score increment and the solved-set
// membership. Callers gate on first-accept, so no idempotence check here.
func (r *LeaderboardRepository) RecordAccept(ctx context.Context, userID, problemID string, points int) error {
	if _, err := r.cache.ZIncrBy(ctx, leaderboardKey, float64(points), userID); err != nil {
		return errors.Wrapf(err, errors.CacheError, "increment leaderboard score for %s", userID)
	}
	if err := r.cache.SAdd(ctx, solvedKey(userID), problemID); err != nil {
		return errors.Wrapf(err, errors.CacheError, "record solved problem for %s", userID)
	}
	return nil
}

// TopEntry is one leaderboard row.
type TopEntry struct {
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
	Solved int64   `json:"solved"`
}

// Top returns the highest-scoring users, best first, with solved counts.
func (r *LeaderboardRepository) Top(ctx context.Context, limit int64) ([]TopEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	members, err := r.cache.ZRevRangeWithScores(ctx, leaderboardKey, 0, limit-1)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CacheError, "read leaderboard")
	}
	entries := make([]TopEntry, 0, len(members))
	for _, m := range members {
		solved, err := r.cache.SCard(ctx, solvedKey(m.Member))
		if err != nil {
			return nil, errors.Wrapf(err, errors.CacheError, "count solved problems for %s", m.Member)
		}
		entries = append(entries, TopEntry{UserID: m.Member, Score: m.Score, Solved: solved})
	}
	return entries, nil
}
