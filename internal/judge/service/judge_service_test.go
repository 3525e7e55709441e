package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"conqueroj/internal/common/mq"
	"conqueroj/internal/common/storage"
	"conqueroj/internal/judge/model"
	"conqueroj/internal/judge/sandbox/runner"
	pkgerrors "conqueroj/pkg/errors"
)

type fakeStore struct {
	task       *model.JudgeTask
	taskErr    error
	updated    []updateCall
	updateErr  error
	accepted   []acceptCall
	firstSolve bool
	acceptErr  error
}

type updateCall struct {
	submissionID string
	verdict      model.Verdict
}

type acceptCall struct {
	userID    string
	problemID string
	points    int
}

func (f *fakeStore) GetJudgeTask(ctx context.Context, submissionID string) (*model.JudgeTask, error) {
	if f.taskErr != nil {
		return nil, f.taskErr
	}
	return f.task, nil
}

func (f *fakeStore) UpdateResult(ctx context.Context, submissionID string, verdict model.Verdict) error {
	f.updated = append(f.updated, updateCall{submissionID, verdict})
	return f.updateErr
}

func (f *fakeStore) RecordAcceptance(ctx context.Context, userID, problemID string, points int) (bool, error) {
	f.accepted = append(f.accepted, acceptCall{userID, problemID, points})
	return f.firstSolve, f.acceptErr
}

type fakeStatusCache struct {
	set map[string]model.Verdict
}

func (f *fakeStatusCache) SetVerdict(ctx context.Context, submissionID string, verdict model.Verdict) error {
	if f.set == nil {
		f.set = map[string]model.Verdict{}
	}
	f.set[submissionID] = verdict
	return nil
}

func (f *fakeStatusCache) GetVerdict(ctx context.Context, submissionID string) (model.Verdict, bool, error) {
	v, ok := f.set[submissionID]
	return v, ok, nil
}

type fakeLeaderboard struct {
	accepts []acceptCall
}

func (f *fakeLeaderboard) RecordAccept(ctx context.Context, userID, problemID string, points int) error {
	f.accepts = append(f.accepts, acceptCall{userID, problemID, points})
	return nil
}

type fakeLocker struct {
	held     bool
	locks    int
	unlocks  int
	lockErr  error
	acquired bool
}

func (f *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	f.locks++
	if f.lockErr != nil {
		return false, f.lockErr
	}
	if f.held {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLocker) Unlock(ctx context.Context, key string) error {
	f.unlocks++
	return nil
}

type fakeRunner struct {
	run    *runner.SubmissionRun
	err    error
	called int
}

func (f *fakeRunner) RunSubmission(ctx context.Context, language, source string, inputs []string) (*runner.SubmissionRun, error) {
	f.called++
	return f.run, f.err
}

type fakeStorage struct {
	objects map[string]string
}

func (f *fakeStorage) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	return nil
}

func (f *fakeStorage) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	body, ok := f.objects[key]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.StorageError, "object %s not found", key)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeStorage) StatObject(ctx context.Context, bucket, key string) (storage.ObjectStat, error) {
	body, ok := f.objects[key]
	if !ok {
		return storage.ObjectStat{}, pkgerrors.Newf(pkgerrors.StorageError, "object %s not found", key)
	}
	return storage.ObjectStat{SizeBytes: int64(len(body))}, nil
}

func (f *fakeStorage) EnsureBucket(ctx context.Context, bucket string) error {
	return nil
}

func pendingTask(difficulty string) *model.JudgeTask {
	return &model.JudgeTask{
		Submission: model.Submission{
			ID:        "sub-1",
			UserID:    "user-1",
			ProblemID: "prob-1",
			Language:  "python",
			SourceKey: "submissions/sub-1/source",
			Status:    model.StatusPending,
		},
		Problem: model.Problem{
			ID:         "prob-1",
			Difficulty: difficulty,
			TestCases: []model.TestCase{
				{Input: "1 2", ExpectedOutput: "3"},
			},
		},
	}
}

func judgeMessage(t *testing.T, submissionID string) *mq.Message {
	t.Helper()
	body, err := json.Marshal(model.JudgeMessage{SubmissionID: submissionID})
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return mq.NewMessage(body)
}

func newTestService(store *fakeStore, r runner.Runner, cache *fakeStatusCache, board *fakeLeaderboard) *JudgeService {
	objects := &fakeStorage{objects: map[string]string{
		"submissions/sub-1/source": "print(3)",
	}}
	return NewJudgeService(store, objects, "submissions", r, Options{
		StatusCache: cache,
		Leaderboard: board,
	})
}

func TestHandleMessageAcceptedAwardsScore(t *testing.T) {
	store := &fakeStore{task: pendingTask("medium"), firstSolve: true}
	cache := &fakeStatusCache{}
	board := &fakeLeaderboard{}
	r := &fakeRunner{run: &runner.SubmissionRun{Cases: []runner.CaseRun{
		{Outcome: runner.OutcomeCompleted, Output: "3\n"},
	}}}

	svc := newTestService(store, r, cache, board)
	if err := svc.HandleMessage(context.Background(), judgeMessage(t, "sub-1")); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if len(store.updated) != 1 {
		t.Fatalf("expected 1 update, got %d", len(store.updated))
	}
	if store.updated[0].verdict.Status != model.StatusAccepted {
		t.Fatalf("expected Accepted, got %s", store.updated[0].verdict.Status)
	}
	if len(store.accepted) != 1 || store.accepted[0].points != 20 {
		t.Fatalf("expected one acceptance worth 20 points, got %+v", store.accepted)
	}
	if len(board.accepts) != 1 || board.accepts[0].points != 20 || board.accepts[0].problemID != "prob-1" {
		t.Fatalf("expected leaderboard accept of 20 for prob-1, got %+v", board.accepts)
	}
	if cache.set["sub-1"].Status != model.StatusAccepted {
		t.Fatalf("expected status cache mirror, got %q", cache.set["sub-1"].Status)
	}
}

func TestHandleMessageRepeatAcceptSkipsLeaderboard(t *testing.T) {
	store := &fakeStore{task: pendingTask("easy"), firstSolve: false}
	board := &fakeLeaderboard{}
	r := &fakeRunner{run: &runner.SubmissionRun{Cases: []runner.CaseRun{
		{Outcome: runner.OutcomeCompleted, Output: "3"},
	}}}

	svc := newTestService(store, r, &fakeStatusCache{}, board)
	if err := svc.HandleMessage(context.Background(), judgeMessage(t, "sub-1")); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if len(store.accepted) != 1 {
		t.Fatalf("expected acceptance attempt, got %d", len(store.accepted))
	}
	if len(board.accepts) != 0 {
		t.Fatalf("expected no leaderboard update on repeat accept, got %v", board.accepts)
	}
}

func TestHandleMessageTerminalStatusSkipsEvaluation(t *testing.T) {
	task := pendingTask("easy")
	task.Submission.Status = model.StatusAccepted
	store := &fakeStore{task: task}
	r := &fakeRunner{}

	svc := newTestService(store, r, &fakeStatusCache{}, &fakeLeaderboard{})
	if err := svc.HandleMessage(context.Background(), judgeMessage(t, "sub-1")); err != nil {
		t.Fatalf("expected redelivery to ack, got %v", err)
	}
	if r.called != 0 {
		t.Fatalf("expected sandbox untouched, ran %d times", r.called)
	}
	if len(store.updated) != 0 {
		t.Fatalf("expected no status update, got %d", len(store.updated))
	}
}

func TestHandleMessageMalformedPayloadAcks(t *testing.T) {
	store := &fakeStore{task: pendingTask("easy")}
	r := &fakeRunner{}
	svc := newTestService(store, r, &fakeStatusCache{}, &fakeLeaderboard{})

	msg := mq.NewMessage([]byte("{not json"))
	if err := svc.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("expected malformed message to ack, got %v", err)
	}
	if r.called != 0 {
		t.Fatalf("expected no evaluation, ran %d times", r.called)
	}
}

func TestHandleMessageUnknownSubmissionAcks(t *testing.T) {
	store := &fakeStore{taskErr: pkgerrors.Newf(pkgerrors.SubmissionNotFound, "submission sub-1 not found")}
	svc := newTestService(store, &fakeRunner{}, &fakeStatusCache{}, &fakeLeaderboard{})

	if err := svc.HandleMessage(context.Background(), judgeMessage(t, "sub-1")); err != nil {
		t.Fatalf("expected unknown submission to ack, got %v", err)
	}
}

func TestHandleMessageStoreErrorRetries(t *testing.T) {
	store := &fakeStore{taskErr: pkgerrors.Newf(pkgerrors.DatabaseError, "connection refused")}
	svc := newTestService(store, &fakeRunner{}, &fakeStatusCache{}, &fakeLeaderboard{})

	if err := svc.HandleMessage(context.Background(), judgeMessage(t, "sub-1")); err == nil {
		t.Fatalf("expected transient store error to be returned for retry")
	}
}

func TestHandleMessageSandboxFailureMarksRuntimeError(t *testing.T) {
	store := &fakeStore{task: pendingTask("easy")}
	r := &fakeRunner{err: errors.New("docker daemon unreachable")}

	svc := newTestService(store, r, &fakeStatusCache{}, &fakeLeaderboard{})
	if err := svc.HandleMessage(context.Background(), judgeMessage(t, "sub-1")); err != nil {
		t.Fatalf("expected sandbox failure to ack after fallback write, got %v", err)
	}

	if len(store.updated) != 1 {
		t.Fatalf("expected fallback status write, got %d", len(store.updated))
	}
	if store.updated[0].verdict.Status != model.StatusRuntimeError {
		t.Fatalf("expected Runtime Error fallback, got %s", store.updated[0].verdict.Status)
	}
	if !strings.Contains(store.updated[0].verdict.ErrorOutput, "docker daemon unreachable") {
		t.Fatalf("expected failure text persisted, got %q", store.updated[0].verdict.ErrorOutput)
	}
}

func TestHandleMessagePersistFailureRetries(t *testing.T) {
	store := &fakeStore{
		task:      pendingTask("easy"),
		updateErr: pkgerrors.Newf(pkgerrors.DatabaseError, "deadlock"),
	}
	r := &fakeRunner{run: &runner.SubmissionRun{Cases: []runner.CaseRun{
		{Outcome: runner.OutcomeCompleted, Output: "3"},
	}}}

	svc := newTestService(store, r, &fakeStatusCache{}, &fakeLeaderboard{})
	if err := svc.HandleMessage(context.Background(), judgeMessage(t, "sub-1")); err == nil {
		t.Fatalf("expected persist failure to be returned for retry")
	}
}

func TestHandleMessageCompileErrorPersistsDiagnostic(t *testing.T) {
	task := pendingTask("easy")
	task.Submission.Language = "c"
	store := &fakeStore{task: task}
	r := &fakeRunner{run: &runner.SubmissionRun{CompileFailed: true, CompileOutput: "main.c:1:1: error: expected ';'"}}

	svc := newTestService(store, r, &fakeStatusCache{}, &fakeLeaderboard{})
	if err := svc.HandleMessage(context.Background(), judgeMessage(t, "sub-1")); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if store.updated[0].verdict.Status != model.StatusCompileError {
		t.Fatalf("expected Compile Error, got %s", store.updated[0].verdict.Status)
	}
	if store.updated[0].verdict.ErrorOutput != "main.c:1:1: error: expected ';'" {
		t.Fatalf("expected compiler diagnostic persisted, got %q", store.updated[0].verdict.ErrorOutput)
	}
	if len(store.updated[0].verdict.Results) != 0 {
		t.Fatalf("expected no per-case results, got %d", len(store.updated[0].verdict.Results))
	}
	if len(store.accepted) != 0 {
		t.Fatalf("expected no acceptance on compile error")
	}
}

func TestHandleMessageHeldLockDefersMessage(t *testing.T) {
	store := &fakeStore{task: pendingTask("easy")}
	r := &fakeRunner{}
	locker := &fakeLocker{held: true}

	svc := newTestService(store, r, &fakeStatusCache{}, &fakeLeaderboard{})
	svc.locker = locker

	if err := svc.HandleMessage(context.Background(), judgeMessage(t, "sub-1")); err == nil {
		t.Fatalf("expected held lock to defer the message for retry")
	}
	if r.called != 0 {
		t.Fatalf("expected no evaluation while another worker holds the lock")
	}
}

func TestHandleMessageReleasesLockAfterJudging(t *testing.T) {
	store := &fakeStore{task: pendingTask("easy")}
	r := &fakeRunner{run: &runner.SubmissionRun{Cases: []runner.CaseRun{
		{Outcome: runner.OutcomeCompleted, Output: "3"},
	}}}
	locker := &fakeLocker{}

	svc := newTestService(store, r, &fakeStatusCache{}, &fakeLeaderboard{})
	svc.locker = locker

	if err := svc.HandleMessage(context.Background(), judgeMessage(t, "sub-1")); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !locker.acquired || locker.unlocks != 1 {
		t.Fatalf("expected lock taken and released once, got locks=%d unlocks=%d", locker.locks, locker.unlocks)
	}
}

func TestHandleMessageLockBackendFailureFailsOpen(t *testing.T) {
	store := &fakeStore{task: pendingTask("easy")}
	r := &fakeRunner{run: &runner.SubmissionRun{Cases: []runner.CaseRun{
		{Outcome: runner.OutcomeCompleted, Output: "3"},
	}}}
	locker := &fakeLocker{lockErr: errors.New("redis down")}

	svc := newTestService(store, r, &fakeStatusCache{}, &fakeLeaderboard{})
	svc.locker = locker

	if err := svc.HandleMessage(context.Background(), judgeMessage(t, "sub-1")); err != nil {
		t.Fatalf("expected degraded lock backend to fail open, got %v", err)
	}
	if r.called != 1 {
		t.Fatalf("expected evaluation to proceed, ran %d times", r.called)
	}
}

func TestHandleMessageOversizedSourceObjectRejected(t *testing.T) {
	store := &fakeStore{task: pendingTask("easy")}
	r := &fakeRunner{}
	objects := &fakeStorage{objects: map[string]string{
		"submissions/sub-1/source": strings.Repeat("a", maxSourceObjectBytes+1),
	}}
	svc := NewJudgeService(store, objects, "submissions", r, Options{})

	if err := svc.HandleMessage(context.Background(), judgeMessage(t, "sub-1")); err != nil {
		t.Fatalf("expected oversized source to ack after fallback write, got %v", err)
	}
	if r.called != 0 {
		t.Fatalf("expected sandbox untouched for oversized source")
	}
	if len(store.updated) != 1 || store.updated[0].verdict.Status != model.StatusRuntimeError {
		t.Fatalf("expected Runtime Error fallback, got %+v", store.updated)
	}
	if store.updated[0].verdict.ErrorOutput == "" {
		t.Fatalf("expected error text on oversized source")
	}
}
