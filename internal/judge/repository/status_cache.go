package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"conqueroj/internal/common/cache"
	"conqueroj/internal/judge/model"
	"conqueroj/pkg/errors"
)

const (
	statusKeyPrefix  = "judge:status:"
	defaultStatusTTL = 24 * time.Hour
)

type cachedVerdict struct {
	Status      string                 `json:"status"`
	ErrorOutput string                 `json:"error_output,omitempty"`
	Results     []model.TestCaseResult `json:"results"`
}

// StatusCacheRepository mirrors verdicts into Redis so status polls do not
// hit the database for recently judged submissions.
type StatusCacheRepository struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewStatusCacheRepository(c cache.Cache, ttl time.Duration) *StatusCacheRepository {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &StatusCacheRepository{cache: c, ttl: ttl}
}

func statusKey(submissionID string) string {
	return fmt.Sprintf("%s%s", statusKeyPrefix, submissionID)
}

func (r *StatusCacheRepository) SetVerdict(ctx context.Context, submissionID string, verdict model.Verdict) error {
	payload, err := json.Marshal(cachedVerdict{
		Status:      verdict.Status,
		ErrorOutput: verdict.ErrorOutput,
		Results:     verdict.Results,
	})
	if err != nil {
		return errors.Wrapf(err, errors.CacheError, "marshal verdict for %s", submissionID)
	}
	if err := r.cache.Set(ctx, statusKey(submissionID), string(payload), r.ttl); err != nil {
		return errors.Wrapf(err, errors.CacheError, "cache verdict for %s", submissionID)
	}
	return nil
}

func (r *StatusCacheRepository) GetVerdict(ctx context.Context, submissionID string) (model.Verdict, bool, error) {
	raw, err := r.cache.Get(ctx, statusKey(submissionID))
	if err != nil {
		return model.Verdict{}, false, errors.Wrapf(err, errors.CacheError, "read verdict for %s", submissionID)
	}
	if raw == "" {
		return model.Verdict{}, false, nil
	}
	var v cachedVerdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		// Treat a corrupt entry as a miss so the store stays authoritative.
		return model.Verdict{}, false, nil
	}
	return model.Verdict{Status: v.Status, ErrorOutput: v.ErrorOutput, Results: v.Results}, true, nil
}
