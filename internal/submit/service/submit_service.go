package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"conqueroj/internal/common/cache"
	"conqueroj/internal/common/mq"
	"conqueroj/internal/common/storage"
	"conqueroj/internal/judge/model"
	"conqueroj/pkg/errors"
	"conqueroj/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaxSourceBytes  = 64 * 1024
	defaultRateLimitWindow = 3 * time.Second
)

// Config tunes submission intake.
type Config struct {
	Topic           string        `yaml:"topic"`
	Bucket          string        `yaml:"bucket"`
	MaxSourceBytes  int           `yaml:"maxSourceBytes"`
	RateLimitWindow time.Duration `yaml:"rateLimitWindow"`
}

func (c *Config) applyDefaults() {
	if c.MaxSourceBytes <= 0 {
		c.MaxSourceBytes = defaultMaxSourceBytes
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = defaultRateLimitWindow
	}
}

// SubmitInput is one submission request.
type SubmitInput struct {
	UserID     string
	ProblemID  string
	Language   string
	SourceCode string
}

// SubmitResult is returned to the client immediately; judging is async.
type SubmitResult struct {
	SubmissionID string `json:"submission_id"`
	Status       string `json:"status"`
}

// SubmissionStore is the persistence surface submission intake needs.
type SubmissionStore interface {
	ProblemExists(ctx context.Context, problemID string) (bool, error)
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error)
}

// SubmitService accepts submissions: it validates input, stores the source
// in object storage, creates a Pending row and enqueues a judge message.
type SubmitService struct {
	repo     SubmissionStore
	storage  storage.ObjectStorage
	producer mq.Producer
	cache    cache.Cache
	config   Config
}

func NewSubmitService(repo SubmissionStore, objStore storage.ObjectStorage, producer mq.Producer, c cache.Cache, cfg Config) *SubmitService {
	cfg.applyDefaults()
	return &SubmitService{
		repo:     repo,
		storage:  objStore,
		producer: producer,
		cache:    c,
		config:   cfg,
	}
}

// Submit runs the intake pipeline. The row is persisted before the message
// is published: a publish failure leaves a Pending submission that can be
// re-enqueued, never a queued message with no row behind it.
func (s *SubmitService) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}
	if err := s.checkRateLimit(ctx, input.UserID); err != nil {
		return nil, err
	}

	exists, err := s.repo.ProblemExists(ctx, input.ProblemID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Newf(errors.ProblemNotFound, "problem %s not found", input.ProblemID)
	}

	now := time.Now().UTC()
	sub := &model.Submission{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		ProblemID: input.ProblemID,
		Language:  strings.ToLower(strings.TrimSpace(input.Language)),
		SourceKey: fmt.Sprintf("submissions/%s/source", uuid.NewString()),
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.storage.PutObject(ctx, s.config.Bucket, sub.SourceKey,
		strings.NewReader(input.SourceCode), int64(len(input.SourceCode)), "text/plain"); err != nil {
		return nil, err
	}

	if err := s.repo.CreateSubmission(ctx, sub); err != nil {
		return nil, err
	}

	if err := s.publish(ctx, sub.ID); err != nil {
		logger.Error(ctx, "enqueue judge message failed",
			zap.String("submission_id", sub.ID),
			zap.Error(err))
		return nil, errors.Wrapf(err, errors.QueueError, "enqueue submission %s", sub.ID)
	}

	return &SubmitResult{SubmissionID: sub.ID, Status: sub.Status}, nil
}

func (s *SubmitService) validate(input SubmitInput) error {
	if strings.TrimSpace(input.UserID) == "" {
		return errors.ValidationError("user_id", "is required")
	}
	if strings.TrimSpace(input.ProblemID) == "" {
		return errors.ValidationError("problem_id", "is required")
	}
	if strings.TrimSpace(input.Language) == "" {
		return errors.ValidationError("language", "is required")
	}
	if strings.TrimSpace(input.SourceCode) == "" {
		return errors.ValidationError("source_code", "is required")
	}
	if len(input.SourceCode) > s.config.MaxSourceBytes {
		return errors.Newf(errors.SubmissionTooLarge, "source exceeds %d bytes", s.config.MaxSourceBytes)
	}
	return nil
}

// checkRateLimit allows one submission per user per window. Cache failures
// fail open: intake must not depend on Redis availability.
func (s *SubmitService) checkRateLimit(ctx context.Context, userID string) error {
	if s.cache == nil {
		return nil
	}
	key := fmt.Sprintf("submit:rl:%s", userID)
	ok, err := s.cache.SetNX(ctx, key, "1", s.config.RateLimitWindow)
	if err != nil {
		logger.Warn(ctx, "rate limit check failed", zap.Error(err))
		return nil
	}
	if !ok {
		return errors.Newf(errors.SubmitTooFrequently, "please wait before submitting again")
	}
	return nil
}

func (s *SubmitService) publish(ctx context.Context, submissionID string) error {
	body, err := json.Marshal(model.JudgeMessage{SubmissionID: submissionID})
	if err != nil {
		return err
	}
	msg := mq.NewMessage(body)
	msg.ID = submissionID
	return s.producer.Publish(ctx, s.config.Topic, msg)
}

// GetSource streams back the stored source code for a submission.
func (s *SubmitService) GetSource(ctx context.Context, submissionID string) (string, error) {
	sub, err := s.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return "", err
	}
	rc, err := s.storage.GetObject(ctx, s.config.Bucket, sub.SourceKey)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", errors.Wrapf(err, errors.StorageError, "read source for %s", submissionID)
	}
	return string(data), nil
}
