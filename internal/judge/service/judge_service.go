package service

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"conqueroj/internal/common/mq"
	"conqueroj/internal/common/storage"
	"conqueroj/internal/judge/model"
	"conqueroj/internal/judge/sandbox/runner"
	"conqueroj/pkg/errors"
	"conqueroj/pkg/utils/contextkey"
	"conqueroj/pkg/utils/logger"

	"go.uber.org/zap"
)

// SubmissionStore is the persistence surface the judge pipeline needs.
type SubmissionStore interface {
	// GetJudgeTask loads the submission joined with its problem and test
	// cases. Source code is loaded separately from object storage.
	GetJudgeTask(ctx context.Context, submissionID string) (*model.JudgeTask, error)

	// UpdateResult writes the final status, the error text and all per-case
	// results in one transaction. Readers never see a status without its
	// results.
	UpdateResult(ctx context.Context, submissionID string, verdict model.Verdict) error

	// RecordAcceptance marks (userID, problemID) solved and applies the
	// score and solve-count increments, all in one transaction. It returns
	// false without side effects when the pair was already recorded, so
	// redelivered accepts can never double-award.
	RecordAcceptance(ctx context.Context, userID, problemID string, points int) (bool, error)
}

// StatusCache mirrors verdicts into a fast store for polling clients.
type StatusCache interface {
	SetVerdict(ctx context.Context, submissionID string, verdict model.Verdict) error
	GetVerdict(ctx context.Context, submissionID string) (model.Verdict, bool, error)
}

// Leaderboard accumulates user scores and solved problems.
type Leaderboard interface {
	RecordAccept(ctx context.Context, userID, problemID string, points int) error
}

// Locker serializes evaluation of one submission across workers so a
// redelivered message cannot start a second sandbox for the same code.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// JudgeService consumes judge messages and drives a submission from Pending
// to its final verdict.
type JudgeService struct {
	store       SubmissionStore
	statusCache StatusCache
	leaderboard Leaderboard
	locker      Locker
	storage     storage.ObjectStorage
	bucket      string
	runner      runner.Runner
	taskTimeout time.Duration
}

// Options configures optional pipeline pieces. Cache, leaderboard and locker
// are best-effort: the pipeline works without them.
type Options struct {
	StatusCache StatusCache
	Leaderboard Leaderboard
	Locker      Locker
	TaskTimeout time.Duration
}

// NewJudgeService wires the judge pipeline.
func NewJudgeService(store SubmissionStore, objStore storage.ObjectStorage, bucket string, r runner.Runner, opts Options) *JudgeService {
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 10 * time.Minute
	}
	return &JudgeService{
		store:       store,
		statusCache: opts.StatusCache,
		leaderboard: opts.Leaderboard,
		locker:      opts.Locker,
		storage:     objStore,
		bucket:      bucket,
		runner:      r,
		taskTimeout: opts.TaskTimeout,
	}
}

// HandleMessage processes one judge message. A nil return acknowledges the
// message; an error return lets the queue retry it. Malformed messages and
// unknown submissions are acknowledged and dropped after logging, since no
// retry can repair them.
func (s *JudgeService) HandleMessage(ctx context.Context, msg *mq.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.taskTimeout)
	defer cancel()

	var payload model.JudgeMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil || payload.SubmissionID == "" {
		logger.Warn(ctx, "dropping malformed judge message",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return nil
	}
	ctx = context.WithValue(ctx, contextkey.SubmissionID, payload.SubmissionID)

	task, err := s.store.GetJudgeTask(ctx, payload.SubmissionID)
	if err != nil {
		if errors.Is(err, errors.SubmissionNotFound) {
			logger.Warn(ctx, "dropping judge message for unknown submission")
			return nil
		}
		return err
	}

	// At-least-once delivery: a crash after persisting but before the ack
	// redelivers the message. The stored verdict wins.
	if model.IsTerminal(task.Submission.Status) {
		logger.Info(ctx, "submission already judged, skipping",
			zap.String("status", task.Submission.Status))
		return nil
	}

	unlock, err := s.acquireLock(ctx, payload.SubmissionID)
	if err != nil {
		return err
	}
	defer unlock()

	verdict, err := s.evaluate(ctx, task)
	if err != nil {
		// The sandbox itself failed. Record a runtime error so the
		// submission does not stay Pending forever, then acknowledge.
		logger.Error(ctx, "evaluation failed", zap.Error(err))
		s.persist(ctx, task, model.Verdict{
			Status:      model.StatusRuntimeError,
			ErrorOutput: err.Error(),
			Results:     []model.TestCaseResult{},
		})
		return nil
	}

	if err := s.store.UpdateResult(ctx, task.Submission.ID, verdict); err != nil {
		return err
	}
	s.mirrorStatus(ctx, task.Submission.ID, verdict)

	if verdict.Status == model.StatusAccepted {
		s.applyAcceptance(ctx, task)
	}

	logger.Info(ctx, "submission judged",
		zap.String("status", verdict.Status),
		zap.Int("cases", len(verdict.Results)))
	return nil
}

// acquireLock takes the per-submission evaluation lock. Not acquiring it
// means another worker holds the submission; the message goes back for retry.
// Lock backend failures fail open so a degraded Redis cannot stall judging.
func (s *JudgeService) acquireLock(ctx context.Context, submissionID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := "judge:lock:" + submissionID
	acquired, err := s.locker.TryLock(ctx, key, s.taskTimeout)
	if err != nil {
		logger.Warn(ctx, "evaluation lock unavailable, proceeding", zap.Error(err))
		return func() {}, nil
	}
	if !acquired {
		return nil, errors.Newf(errors.QueueError, "submission %s is being evaluated by another worker", submissionID)
	}
	return func() {
		if err := s.locker.Unlock(ctx, key); err != nil {
			logger.Warn(ctx, "evaluation lock release failed", zap.Error(err))
		}
	}, nil
}

func (s *JudgeService) evaluate(ctx context.Context, task *model.JudgeTask) (model.Verdict, error) {
	source := task.SourceCode
	if source == "" {
		loaded, err := s.loadSource(ctx, task.Submission.SourceKey)
		if err != nil {
			return model.Verdict{}, err
		}
		source = loaded
	}

	inputs := make([]string, len(task.Problem.TestCases))
	for i, tc := range task.Problem.TestCases {
		inputs[i] = tc.Input
	}

	run, err := s.runner.RunSubmission(ctx, task.Submission.Language, source, inputs)
	if err != nil {
		return model.Verdict{}, err
	}
	return Aggregate(task.Problem.TestCases, run), nil
}

// maxSourceObjectBytes bounds what the worker will read from object storage.
// The submit service enforces its own smaller cap; this one guards against
// objects written to the bucket by other means.
const maxSourceObjectBytes = 1 * 1024 * 1024

func (s *JudgeService) loadSource(ctx context.Context, sourceKey string) (string, error) {
	if sourceKey == "" {
		return "", errors.Newf(errors.StorageError, "submission has no source key")
	}
	stat, err := s.storage.StatObject(ctx, s.bucket, sourceKey)
	if err != nil {
		return "", err
	}
	if stat.SizeBytes > maxSourceObjectBytes {
		return "", errors.Newf(errors.SubmissionTooLarge, "source object %s is %d bytes", sourceKey, stat.SizeBytes)
	}
	rc, err := s.storage.GetObject(ctx, s.bucket, sourceKey)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", errors.Wrapf(err, errors.StorageError, "read source object %s", sourceKey)
	}
	return string(data), nil
}

// persist is the best-effort fallback path for failed evaluations.
func (s *JudgeService) persist(ctx context.Context, task *model.JudgeTask, v model.Verdict) {
	if err := s.store.UpdateResult(ctx, task.Submission.ID, v); err != nil {
		logger.Error(ctx, "fallback status write failed", zap.Error(err))
		return
	}
	s.mirrorStatus(ctx, task.Submission.ID, v)
}

func (s *JudgeService) mirrorStatus(ctx context.Context, submissionID string, v model.Verdict) {
	if s.statusCache == nil {
		return
	}
	if err := s.statusCache.SetVerdict(ctx, submissionID, v); err != nil {
		logger.Warn(ctx, "status cache write failed", zap.Error(err))
	}
}

// applyAcceptance runs the first-accept side effects. All failures here are
// logged, never returned: the verdict is already durable and a retry of the
// whole message would re-run the sandbox for nothing.
func (s *JudgeService) applyAcceptance(ctx context.Context, task *model.JudgeTask) {
	points := PointsFor(task.Problem.Difficulty)
	first, err := s.store.RecordAcceptance(ctx, task.Submission.UserID, task.Problem.ID, points)
	if err != nil {
		logger.Error(ctx, "record acceptance failed", zap.Error(err))
		return
	}
	if !first {
		return
	}
	if s.leaderboard != nil {
		if err := s.leaderboard.RecordAccept(ctx, task.Submission.UserID, task.Problem.ID, points); err != nil {
			logger.Warn(ctx, "leaderboard update failed", zap.Error(err))
		}
	}
}
