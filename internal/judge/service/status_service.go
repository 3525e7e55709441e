package service

import (
	"context"

	"conqueroj/internal/judge/model"
	"conqueroj/pkg/utils/logger"

	"go.uber.org/zap"
)

// StatusReader reads a submission and its persisted case results.
type StatusReader interface {
	GetSubmissionWithResults(ctx context.Context, submissionID string) (*model.Submission, []model.TestCaseResult, error)
}

// SubmissionStatus is the polling view of a submission. Hidden test cases
// appear with their verdict only; output and expected output are redacted.
type SubmissionStatus struct {
	SubmissionID string                 `json:"submission_id"`
	Status       string                 `json:"status"`
	Error        string                 `json:"error,omitempty"`
	Results      []model.TestCaseResult `json:"results"`
}

// StatusService answers status polls, preferring the cache and falling back
// to the store. Cache misses on terminal submissions backfill the cache.
type StatusService struct {
	store StatusReader
	cache StatusCache
}

func NewStatusService(store StatusReader, cache StatusCache) *StatusService {
	return &StatusService{store: store, cache: cache}
}

func (s *StatusService) GetStatus(ctx context.Context, submissionID string) (*SubmissionStatus, error) {
	if s.cache != nil {
		v, ok, err := s.cache.GetVerdict(ctx, submissionID)
		if err != nil {
			logger.Warn(ctx, "status cache read failed", zap.Error(err))
		} else if ok {
			return statusView(submissionID, v), nil
		}
	}

	sub, results, err := s.store.GetSubmissionWithResults(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	v := model.Verdict{Status: sub.Status, ErrorOutput: sub.ErrorOutput, Results: results}

	if s.cache != nil && model.IsTerminal(sub.Status) {
		if err := s.cache.SetVerdict(ctx, submissionID, v); err != nil {
			logger.Warn(ctx, "status cache backfill failed", zap.Error(err))
		}
	}
	return statusView(submissionID, v), nil
}

// statusView builds the client-facing status, redacting hidden cases. The
// cache and the store keep the full results; only the view is stripped.
func statusView(submissionID string, v model.Verdict) *SubmissionStatus {
	results := make([]model.TestCaseResult, len(v.Results))
	for i, r := range v.Results {
		if r.Hidden {
			r.Output = ""
			r.Expected = ""
		}
		results[i] = r
	}
	return &SubmissionStatus{
		SubmissionID: submissionID,
		Status:       v.Status,
		Error:        v.ErrorOutput,
		Results:      results,
	}
}
